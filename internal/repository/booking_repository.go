package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/tickethub/seat-inventory/internal/model"
)

// BookingRepo provides CRUD operations for bookings and their seats.
// Bookings group together one or more seats for a particular event and
// holder.  Seats booked under a booking are stored in the booking_seats
// table.  All timestamp fields are assumed to be stored in UTC.
type BookingRepo struct {
	db *sql.DB
}

// NewBookingRepo returns a new BookingRepo bound to the given database.
func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

// CreateTx inserts a new booking within the scope of an existing
// transaction.  The booking id is supplied by the payment collaborator,
// which is what makes confirm idempotent: a second insert with the same
// id fails on the primary key and the caller falls back to returning
// the stored booking.
func (r *BookingRepo) CreateTx(ctx context.Context, tx *sql.Tx, b *model.Booking) error {
	const q = `INSERT INTO bookings (id, holder_id, event_id, status, total_amount_cents)
	           VALUES (?, ?, ?, ?, ?)`
	_, err := tx.ExecContext(ctx, q, b.ID, b.HolderID, b.EventID, string(b.Status), b.TotalAmountCents)
	return err
}

// CreateSeatsBulkTx inserts the booking_seats rows for a booking in one
// statement.  Passing an empty slice has no effect and returns nil.
func (r *BookingRepo) CreateSeatsBulkTx(ctx context.Context, tx *sql.Tx, bookingID, eventID string, seatIDs []string, prices map[string]uint32) error {
	if len(seatIDs) == 0 {
		return nil
	}
	query := `INSERT INTO booking_seats (booking_id, event_id, seat_id, price_cents) VALUES `
	args := make([]interface{}, 0, len(seatIDs)*4)
	for i, sid := range seatIDs {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?, ?)"
		args = append(args, bookingID, eventID, sid, prices[sid])
	}
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// MarkConfirmedTx flips a PENDING booking to CONFIRMED within the
// confirm transaction.  The status guard keeps the transition one-way.
func (r *BookingRepo) MarkConfirmedTx(ctx context.Context, tx *sql.Tx, bookingID string, at time.Time) error {
	const q = `UPDATE bookings SET status = 'CONFIRMED', confirmed_at = ?
	           WHERE id = ? AND status = 'PENDING'`
	_, err := tx.ExecContext(ctx, q, at.UTC(), bookingID)
	return err
}

// UpdateStatus records a collaborator-reported downstream outcome
// (FAILED, CANCELLED) against a booking outside any transaction.
func (r *BookingRepo) UpdateStatus(ctx context.Context, bookingID string, status model.BookingStatus) error {
	const q = `UPDATE bookings SET status = ? WHERE id = ?`
	_, err := r.db.ExecContext(ctx, q, string(status), bookingID)
	return err
}

// GetByID loads a booking together with its seat ids.  Returns
// ErrBookingNotFound when no booking exists with the given id.
func (r *BookingRepo) GetByID(ctx context.Context, bookingID string) (*model.Booking, error) {
	const q = `SELECT id, holder_id, event_id, status, total_amount_cents, created_at, confirmed_at
	           FROM bookings WHERE id = ?`
	var b model.Booking
	var status string
	var confirmedAt sql.NullTime
	err := r.db.QueryRowContext(ctx, q, bookingID).Scan(
		&b.ID, &b.HolderID, &b.EventID, &status, &b.TotalAmountCents, &b.CreatedAt, &confirmedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, err
	}
	b.Status = model.BookingStatus(status)
	if confirmedAt.Valid {
		b.ConfirmedAt = &confirmedAt.Time
	}
	const qs = `SELECT seat_id FROM booking_seats WHERE booking_id = ? ORDER BY seat_id`
	rows, err := r.db.QueryContext(ctx, qs, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var sid string
		if err := rows.Scan(&sid); err != nil {
			return nil, err
		}
		b.SeatIDs = append(b.SeatIDs, sid)
	}
	return &b, rows.Err()
}
