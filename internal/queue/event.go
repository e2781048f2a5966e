// Package queue defines message payloads exchanged over the message broker.
package queue

// Queue names for the inventory events.  Both queues are durable.
const (
	SeatReleasedQueue     = "seat.released"
	BookingConfirmedQueue = "booking.confirmed"
)

// Release reasons carried on SeatsReleasedEvent.
const (
	ReleaseExplicit = "released"
	ReleaseExpired  = "expired"
)

// SeatsReleasedEvent is published whenever seats return to AVAILABLE,
// either by explicit release or by the expiry sweep.  The waitlist
// notifier consumes it to wake queued demand; delivery is best-effort
// and duplicates are acceptable.
type SeatsReleasedEvent struct {
	EventID    string   `json:"event_id"`
	SeatIDs    []string `json:"seat_ids"`
	HolderID   string   `json:"holder_id"`
	Reason     string   `json:"reason"`
	ReleasedAt string   `json:"released_at"`
}

// BookingConfirmedEvent is published when a booking is successfully
// confirmed.  It contains enough information for downstream consumers
// to log, notify, or trigger analytics without querying the primary
// database.
type BookingConfirmedEvent struct {
	BookingID        string   `json:"booking_id"`
	HolderID         string   `json:"holder_id"`
	EventID          string   `json:"event_id"`
	SeatIDs          []string `json:"seat_ids"`
	TotalAmountCents uint32   `json:"total_amount_cents"`
	ConfirmedAt      string   `json:"confirmed_at"`
}
