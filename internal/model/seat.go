package model

import "time"

// SeatStatus enumerates the availability states of a seat.  The
// transitions AVAILABLE→LOCKED, LOCKED→AVAILABLE and LOCKED→BOOKED are
// the only legal ones and are always performed as conditional updates
// against the current status and holder.
type SeatStatus string

const (
	SeatAvailable SeatStatus = "AVAILABLE"
	SeatLocked    SeatStatus = "LOCKED"
	SeatBooked    SeatStatus = "BOOKED"
)

// Seat is the persisted state of a single seat for one event.  A seat
// is LOCKED exactly when LockedBy and LockExpiresAt are both set and
// the expiry lies in the future; a BOOKED seat carries neither (its
// ownership lives on the booking, referenced by BookingID).
//
// Fields:
//  EventID       – event this seat belongs to.
//  ID            – seat identifier, unique within the event.
//  Section       – venue section label, informational only.
//  Status        – AVAILABLE, LOCKED or BOOKED.
//  LockedBy      – holder that currently owns the lock (nil otherwise).
//  LockExpiresAt – when the current lock lapses (nil otherwise).
//  BookingID     – booking that owns the seat once BOOKED.
//  PriceCents    – seat price in cents.
type Seat struct {
	EventID       string     // seats.event_id
	ID            string     // seats.id
	Section       string     // seats.section
	Status        SeatStatus // seats.status
	LockedBy      *string    // seats.locked_by (nullable)
	LockExpiresAt *time.Time // seats.lock_expires_at (nullable)
	BookingID     *string    // seats.booking_id (nullable)
	PriceCents    uint32     // seats.price_cents
	UpdatedAt     time.Time  // seats.updated_at
}

// SeatAvailabilityView is the read-only projection returned to callers
// checking live availability.  It carries no lock ownership details.
type SeatAvailabilityView struct {
	SeatID      string     `json:"seat_id"`
	IsAvailable bool       `json:"is_available"`
	Status      SeatStatus `json:"status"`
}
