package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/tickethub/seat-inventory/internal/model"
)

// TicketJobRepo provides data access to the ticket_jobs work queue.
// Jobs are selected by due time through the (status, next_attempt_at)
// index and follow the same replay-safe pattern as the expiry queue:
// a job row survives the process that enqueued it.
type TicketJobRepo struct {
	db *sql.DB
}

// NewTicketJobRepo returns a new TicketJobRepo bound to the provided database.
func NewTicketJobRepo(db *sql.DB) *TicketJobRepo { return &TicketJobRepo{db: db} }

// Enqueue inserts a pending job due immediately.
func (r *TicketJobRepo) Enqueue(ctx context.Context, job *model.TicketJob) error {
	const q = `INSERT INTO ticket_jobs (id, booking_id, status, attempts, max_attempts, next_attempt_at)
	           VALUES (?, ?, 'PENDING', 0, ?, ?)`
	_, err := r.db.ExecContext(ctx, q, job.ID, job.BookingID, job.MaxAttempts, job.NextAttemptAt.UTC())
	return err
}

// Due returns pending jobs whose next attempt is at or before now,
// oldest first.
func (r *TicketJobRepo) Due(ctx context.Context, now time.Time, limit int) ([]model.TicketJob, error) {
	const q = `SELECT id, booking_id, status, attempts, max_attempts, next_attempt_at, last_error, created_at
	           FROM ticket_jobs
	           WHERE status = 'PENDING' AND next_attempt_at <= ?
	           ORDER BY next_attempt_at ASC
	           LIMIT ?`
	rows, err := r.db.QueryContext(ctx, q, now.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var jobs []model.TicketJob
	for rows.Next() {
		var j model.TicketJob
		var status string
		var lastErr sql.NullString
		if err := rows.Scan(&j.ID, &j.BookingID, &status, &j.Attempts, &j.MaxAttempts, &j.NextAttemptAt, &lastErr, &j.CreatedAt); err != nil {
			return nil, err
		}
		j.Status = model.TicketJobStatus(status)
		if lastErr.Valid {
			j.LastError = &lastErr.String
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// MarkCompleted finishes a job after its tickets were generated.
func (r *TicketJobRepo) MarkCompleted(ctx context.Context, jobID string) error {
	const q = `UPDATE ticket_jobs SET status = 'COMPLETED' WHERE id = ? AND status = 'PENDING'`
	_, err := r.db.ExecContext(ctx, q, jobID)
	return err
}

// Reschedule records a failed attempt and pushes the next one out to
// nextAt.  The job stays PENDING so the next processing pass picks it
// up again.
func (r *TicketJobRepo) Reschedule(ctx context.Context, jobID string, attempts int, nextAt time.Time, lastError string) error {
	const q = `UPDATE ticket_jobs SET attempts = ?, next_attempt_at = ?, last_error = ?
	           WHERE id = ? AND status = 'PENDING'`
	_, err := r.db.ExecContext(ctx, q, attempts, nextAt.UTC(), lastError, jobID)
	return err
}

// MarkFailed moves a job to its terminal FAILED state once attempts are
// exhausted.  Failed jobs are left in place, clearly marked, for
// operator intervention; they are never silently dropped.
func (r *TicketJobRepo) MarkFailed(ctx context.Context, jobID string, attempts int, lastError string) error {
	const q = `UPDATE ticket_jobs SET status = 'FAILED', attempts = ?, last_error = ?
	           WHERE id = ? AND status = 'PENDING'`
	_, err := r.db.ExecContext(ctx, q, attempts, lastError, jobID)
	return err
}
