package model

import "time"

// LockOutcome records which path consumed a reservation lock entry.
// Exactly one of explicit release, confirm or the expiry sweep wins the
// claim; the others observe processed=true and no-op.
type LockOutcome string

const (
	OutcomeReleased  LockOutcome = "RELEASED"
	OutcomeConfirmed LockOutcome = "CONFIRMED"
	OutcomeExpired   LockOutcome = "EXPIRED"
)

// ReservationLockEntry is the durable expiry-queue record written
// atomically with every successful lock grant.  Its existence does not
// depend on any in-memory timer: a crashed holder's locks are found by
// the sweep through this table.  At most one unprocessed entry exists
// per holder+event; it covers the holder's full held seat set.
//
// Entries are retained after processing for audit.
type ReservationLockEntry struct {
	ID          string      // reservation_locks.id (uuid)
	HolderID    string      // reservation_locks.holder_id
	EventID     string      // reservation_locks.event_id
	SeatIDs     []string    // reservation_locks.seat_ids (JSON array)
	ExpiresAt   time.Time   // reservation_locks.expires_at
	CreatedAt   time.Time   // reservation_locks.created_at
	Processed   bool        // reservation_locks.processed
	ProcessedAt *time.Time  // reservation_locks.processed_at (nullable)
	Outcome     LockOutcome // reservation_locks.outcome (empty while unprocessed)
}
