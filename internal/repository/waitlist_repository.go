package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/tickethub/seat-inventory/internal/model"
)

// WaitlistRepo provides data access to waitlist_entries.  The waitlist
// path is best-effort by design: notification state is advisory and a
// lost update here never affects seat inventory correctness.
type WaitlistRepo struct {
	db *sql.DB
}

// NewWaitlistRepo returns a new WaitlistRepo bound to the provided database.
func NewWaitlistRepo(db *sql.DB) *WaitlistRepo { return &WaitlistRepo{db: db} }

// PendingByEvent lists entries for an event that have not been notified
// yet, oldest first.
func (r *WaitlistRepo) PendingByEvent(ctx context.Context, eventID string, limit int) ([]model.WaitlistEntry, error) {
	const q = `SELECT id, event_id, contact, created_at, notified_at
	           FROM waitlist_entries
	           WHERE event_id = ? AND notified_at IS NULL
	           ORDER BY created_at ASC
	           LIMIT ?`
	rows, err := r.db.QueryContext(ctx, q, eventID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []model.WaitlistEntry
	for rows.Next() {
		var e model.WaitlistEntry
		var notifiedAt sql.NullTime
		if err := rows.Scan(&e.ID, &e.EventID, &e.Contact, &e.CreatedAt, &notifiedAt); err != nil {
			return nil, err
		}
		if notifiedAt.Valid {
			e.NotifiedAt = &notifiedAt.Time
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// MarkNotified stamps an entry as notified.
func (r *WaitlistRepo) MarkNotified(ctx context.Context, id uint64, at time.Time) error {
	const q = `UPDATE waitlist_entries SET notified_at = ? WHERE id = ? AND notified_at IS NULL`
	_, err := r.db.ExecContext(ctx, q, at.UTC(), id)
	return err
}
