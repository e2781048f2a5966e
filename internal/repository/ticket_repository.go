package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/tickethub/seat-inventory/internal/model"
)

// TicketRepo provides data access to tickets and the ticket_scans audit
// table.  Scan validation runs inside a transaction that pins the ticket
// row, so concurrent scans of the same ticket at two checkpoints
// serialize at the store.
type TicketRepo struct {
	db *sql.DB
}

// NewTicketRepo returns a new TicketRepo bound to the provided database.
func NewTicketRepo(db *sql.DB) *TicketRepo { return &TicketRepo{db: db} }

// CreateBulkTx inserts the tickets for a booking in one statement.  The
// (booking_id, seat_id) unique key makes generation idempotent: a job
// retried after a partial insert skips rows that already exist instead
// of issuing duplicate tickets.
func (r *TicketRepo) CreateBulkTx(ctx context.Context, tx *sql.Tx, tickets []model.Ticket) error {
	if len(tickets) == 0 {
		return nil
	}
	query := `INSERT INTO tickets (id, booking_id, event_id, seat_id, code, type, status) VALUES `
	args := make([]interface{}, 0, len(tickets)*7)
	for i, t := range tickets {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?, ?, ?, ?, ?)"
		args = append(args, t.ID, t.BookingID, t.EventID, t.SeatID, t.Code, string(t.Type), string(t.Status))
	}
	query += ` ON DUPLICATE KEY UPDATE id = id`
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// GetForUpdateTx loads a ticket under FOR UPDATE so the scan decision
// and the entry-count increment see a stable row.  Returns
// ErrTicketNotFound when no such ticket exists.
func (r *TicketRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, ticketID string) (*model.Ticket, error) {
	const q = `SELECT id, booking_id, event_id, seat_id, code, type, status, entry_count, created_at
	           FROM tickets WHERE id = ? FOR UPDATE`
	var t model.Ticket
	var typ, status string
	err := tx.QueryRowContext(ctx, q, ticketID).Scan(
		&t.ID, &t.BookingID, &t.EventID, &t.SeatID, &t.Code, &typ, &status, &t.EntryCount, &t.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrTicketNotFound
	}
	if err != nil {
		return nil, err
	}
	t.Type = model.TicketType(typ)
	t.Status = model.TicketStatus(status)
	return &t, nil
}

// AdmitTx increments the ticket's entry count, conditioned on the status
// and count observed by the caller.  When final is true the ticket is
// consumed (single-entry tickets on their first scan).  Returns whether
// the conditional update won.
func (r *TicketRepo) AdmitTx(ctx context.Context, tx *sql.Tx, ticketID string, observedCount int, final bool) (bool, error) {
	q := `UPDATE tickets SET entry_count = entry_count + 1`
	if final {
		q += `, status = 'USED'`
	}
	q += ` WHERE id = ? AND status = 'ACTIVE' AND entry_count = ?`
	res, err := tx.ExecContext(ctx, q, ticketID, observedCount)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// RecordScanTx appends one row to the scan audit trail.  Every attempt
// is recorded, accepted or rejected, inside the same transaction as the
// decision it documents.
func (r *TicketRepo) RecordScanTx(ctx context.Context, tx *sql.Tx, scan model.TicketScan) error {
	const q = `INSERT INTO ticket_scans (ticket_id, event_id, checkpoint_id, scanner_id, result, scanned_at)
	           VALUES (?, ?, ?, ?, ?, ?)`
	_, err := tx.ExecContext(ctx, q, scan.TicketID, scan.EventID, scan.CheckpointID, scan.ScannerID, scan.Result, scan.ScannedAt.UTC())
	return err
}

// FirstAdmittedAtTx returns the timestamp of the first accepted scan of
// a ticket, so a rejected duplicate can report when the original entry
// happened.  ok is false when the ticket has never been admitted.
func (r *TicketRepo) FirstAdmittedAtTx(ctx context.Context, tx *sql.Tx, ticketID string) (time.Time, bool, error) {
	const q = `SELECT MIN(scanned_at) FROM ticket_scans WHERE ticket_id = ? AND result = 'OK'`
	var at sql.NullTime
	if err := tx.QueryRowContext(ctx, q, ticketID).Scan(&at); err != nil {
		return time.Time{}, false, err
	}
	if !at.Valid {
		return time.Time{}, false, nil
	}
	return at.Time, true, nil
}
