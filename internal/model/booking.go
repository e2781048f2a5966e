package model

import "time"

// BookingStatus enumerates booking lifecycle states.  A booking is
// created PENDING inside the confirm transaction and flipped to
// CONFIRMED in the same transaction once all seats promote; FAILED and
// CANCELLED exist for collaborator-reported downstream outcomes.
type BookingStatus string

const (
	BookingPending   BookingStatus = "PENDING"
	BookingConfirmed BookingStatus = "CONFIRMED"
	BookingCancelled BookingStatus = "CANCELLED"
	BookingFailed    BookingStatus = "FAILED"
)

// Booking groups the seats a holder purchased for one event.  A
// CONFIRMED booking owns seats that are all BOOKED and point back to it;
// no two bookings ever reference the same seat in CONFIRMED state.
type Booking struct {
	ID               string        // bookings.id (supplied by the payment collaborator)
	HolderID         string        // bookings.holder_id
	EventID          string        // bookings.event_id
	Status           BookingStatus // bookings.status
	TotalAmountCents uint32        // bookings.total_amount_cents
	SeatIDs          []string      // from booking_seats
	CreatedAt        time.Time     // bookings.created_at
	ConfirmedAt      *time.Time    // bookings.confirmed_at (nullable)
}
