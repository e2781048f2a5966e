package model

import "time"

// WaitlistEntry is queued demand for a sold-out event.  Delivery of
// availability notifications is best-effort: an entry may be notified
// more than once and a missed notification is not an error.
type WaitlistEntry struct {
	ID         uint64     // waitlist_entries.id
	EventID    string     // waitlist_entries.event_id
	Contact    string     // waitlist_entries.contact
	CreatedAt  time.Time  // waitlist_entries.created_at
	NotifiedAt *time.Time // waitlist_entries.notified_at (nullable)
}
