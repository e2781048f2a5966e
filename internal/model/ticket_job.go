package model

import "time"

// TicketJobStatus enumerates work item states.  FAILED is terminal and
// requires operator intervention; the booking and payment behind a
// failed job are untouched.
type TicketJobStatus string

const (
	JobPending   TicketJobStatus = "PENDING"
	JobCompleted TicketJobStatus = "COMPLETED"
	JobFailed    TicketJobStatus = "FAILED"
)

// TicketJob is a retryable unit of ticket-generation work enqueued after
// a booking confirms.  Attempts never exceed MaxAttempts; each failure
// pushes NextAttemptAt out with exponential backoff.
type TicketJob struct {
	ID            string          // ticket_jobs.id (uuid)
	BookingID     string          // ticket_jobs.booking_id
	Status        TicketJobStatus // ticket_jobs.status
	Attempts      int             // ticket_jobs.attempts
	MaxAttempts   int             // ticket_jobs.max_attempts
	NextAttemptAt time.Time       // ticket_jobs.next_attempt_at
	LastError     *string         // ticket_jobs.last_error (nullable)
	CreatedAt     time.Time       // ticket_jobs.created_at
}
