package repository // repository defines data access for the seat record store

import (
	"context"      // context allows query cancellation and timeouts
	"database/sql" // sql provides DB primitives
	"strings"      // strings builds IN (...) placeholder lists
	"time"         // time for lock expiry values

	"github.com/tickethub/seat-inventory/internal/model"
)

// SeatRepo provides methods to work with seats in the database.  Every
// mutation is a conditional multi-row UPDATE keyed on the seat's current
// status and holder; callers inspect the affected row count to decide
// whether the transition applied to the full requested set.  There is
// deliberately no in-process locking here: multiple server instances
// share the same tables and all mutual exclusion comes from the store.
type SeatRepo struct {
	db *sql.DB
}

// NewSeatRepo constructs a SeatRepo with the given DB handle.
func NewSeatRepo(db *sql.DB) *SeatRepo {
	return &SeatRepo{db: db}
}

// placeholders returns a "?, ?, ?" list of n placeholders for IN clauses.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func seatArgs(eventID string, seatIDs []string, extra ...interface{}) []interface{} {
	args := make([]interface{}, 0, len(seatIDs)+len(extra)+1)
	args = append(args, eventID)
	for _, id := range seatIDs {
		args = append(args, id)
	}
	args = append(args, extra...)
	return args
}

// LockTx transitions the requested seats to LOCKED for holderID within
// the provided transaction.  Seats already LOCKED by the same holder are
// re-granted with the new expiry (a no-op re-grant that extends the TTL).
// It returns the number of seats actually transitioned; when that count
// is short of len(seatIDs) the caller must roll the transaction back so
// no partial grant is left behind.
func (r *SeatRepo) LockTx(ctx context.Context, tx *sql.Tx, eventID string, seatIDs []string, holderID string, expiresAt time.Time) (int64, error) {
	q := `UPDATE seats SET status = 'LOCKED', locked_by = ?, lock_expires_at = ?
	      WHERE event_id = ? AND id IN (` + placeholders(len(seatIDs)) + `)
	        AND (status = 'AVAILABLE' OR (status = 'LOCKED' AND locked_by = ?))`
	args := make([]interface{}, 0, len(seatIDs)+4)
	args = append(args, holderID, expiresAt.UTC())
	args = append(args, seatArgs(eventID, seatIDs, holderID)...)
	res, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ConflictingTx returns the subset of seatIDs that are not currently
// LOCKED by holderID.  Seats missing from the table entirely are also
// reported as conflicting.  Call it after a short LockTx, before rolling
// back, so the caller can name the offending seats.
func (r *SeatRepo) ConflictingTx(ctx context.Context, tx *sql.Tx, eventID string, seatIDs []string, holderID string) ([]string, error) {
	q := `SELECT id, status, locked_by FROM seats
	      WHERE event_id = ? AND id IN (` + placeholders(len(seatIDs)) + `)`
	rows, err := tx.QueryContext(ctx, q, seatArgs(eventID, seatIDs)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ok := make(map[string]bool, len(seatIDs))
	for rows.Next() {
		var id, status string
		var lockedBy sql.NullString
		if err := rows.Scan(&id, &status, &lockedBy); err != nil {
			return nil, err
		}
		ok[id] = status == string(model.SeatLocked) && lockedBy.Valid && lockedBy.String == holderID
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	var conflicting []string
	for _, id := range seatIDs {
		if !ok[id] {
			conflicting = append(conflicting, id)
		}
	}
	return conflicting, nil
}

// ExtendTx moves the lock expiry of seats LOCKED by holderID to the new
// timestamp.  It returns the affected row count; a short count means at
// least one seat is no longer owned by the holder and the caller must
// roll back so the extend has no side effects.
func (r *SeatRepo) ExtendTx(ctx context.Context, tx *sql.Tx, eventID string, seatIDs []string, holderID string, expiresAt time.Time) (int64, error) {
	q := `UPDATE seats SET lock_expires_at = ?
	      WHERE event_id = ? AND id IN (` + placeholders(len(seatIDs)) + `)
	        AND status = 'LOCKED' AND locked_by = ?`
	args := make([]interface{}, 0, len(seatIDs)+3)
	args = append(args, expiresAt.UTC())
	args = append(args, seatArgs(eventID, seatIDs, holderID)...)
	res, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ReleaseTx returns seats LOCKED by holderID to AVAILABLE and clears the
// lock columns.  Seats not locked by the holder (already released,
// expired and re-locked, or booked) are silently skipped, which makes
// release idempotent and safe to run from the expiry sweep long after
// the original holder is gone.  The returned count is the number of
// seats actually transitioned.
func (r *SeatRepo) ReleaseTx(ctx context.Context, tx *sql.Tx, eventID string, seatIDs []string, holderID string) (int64, error) {
	q := `UPDATE seats SET status = 'AVAILABLE', locked_by = NULL, lock_expires_at = NULL
	      WHERE event_id = ? AND id IN (` + placeholders(len(seatIDs)) + `)
	        AND status = 'LOCKED' AND locked_by = ?`
	res, err := tx.ExecContext(ctx, q, seatArgs(eventID, seatIDs, holderID)...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// PromoteTx transitions seats LOCKED by holderID with an unexpired lock
// to BOOKED, pointing them at bookingID and clearing the lock columns.
// The unexpired check is part of the same statement so a lock lapsing
// between payment and confirm can never be promoted.  A short row count
// means the precondition failed for at least one seat; the caller rolls
// back and reports the offending seats.
func (r *SeatRepo) PromoteTx(ctx context.Context, tx *sql.Tx, eventID string, seatIDs []string, holderID, bookingID string, now time.Time) (int64, error) {
	q := `UPDATE seats SET status = 'BOOKED', booking_id = ?, locked_by = NULL, lock_expires_at = NULL
	      WHERE event_id = ? AND id IN (` + placeholders(len(seatIDs)) + `)
	        AND status = 'LOCKED' AND locked_by = ? AND lock_expires_at > ?`
	args := make([]interface{}, 0, len(seatIDs)+4)
	args = append(args, bookingID)
	args = append(args, seatArgs(eventID, seatIDs, holderID, now.UTC())...)
	res, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// NotPromotedTx returns the subset of seatIDs that did not end up
// BOOKED under bookingID, including ids missing from the table.  Called
// after a short PromoteTx to name the seats whose lock was lost; an
// empty result means every seat already belongs to this booking, i.e. a
// concurrent confirm with the same booking id won.
func (r *SeatRepo) NotPromotedTx(ctx context.Context, tx *sql.Tx, eventID string, seatIDs []string, bookingID string) ([]string, error) {
	q := `SELECT id, status, booking_id FROM seats
	      WHERE event_id = ? AND id IN (` + placeholders(len(seatIDs)) + `)`
	rows, err := tx.QueryContext(ctx, q, seatArgs(eventID, seatIDs)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ok := make(map[string]bool, len(seatIDs))
	for rows.Next() {
		var id, status string
		var bid sql.NullString
		if err := rows.Scan(&id, &status, &bid); err != nil {
			return nil, err
		}
		ok[id] = status == string(model.SeatBooked) && bid.Valid && bid.String == bookingID
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	var offending []string
	for _, id := range seatIDs {
		if !ok[id] {
			offending = append(offending, id)
		}
	}
	return offending, nil
}

// HeldByTx lists the ids of all seats currently LOCKED by holderID for
// the event.  The lock manager uses it to record the holder's full held
// set on the reservation lock entry after a grant.
func (r *SeatRepo) HeldByTx(ctx context.Context, tx *sql.Tx, eventID, holderID string) ([]string, error) {
	const q = `SELECT id FROM seats WHERE event_id = ? AND locked_by = ? AND status = 'LOCKED' ORDER BY id`
	rows, err := tx.QueryContext(ctx, q, eventID, holderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// PricesTx returns a seat id -> price map for the given seats.  Used by
// the booking confirmer to compute the booking total.
func (r *SeatRepo) PricesTx(ctx context.Context, tx *sql.Tx, eventID string, seatIDs []string) (map[string]uint32, error) {
	q := `SELECT id, price_cents FROM seats
	      WHERE event_id = ? AND id IN (` + placeholders(len(seatIDs)) + `)`
	rows, err := tx.QueryContext(ctx, q, seatArgs(eventID, seatIDs)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	prices := make(map[string]uint32, len(seatIDs))
	for rows.Next() {
		var id string
		var cents uint32
		if err := rows.Scan(&id, &cents); err != nil {
			return nil, err
		}
		prices[id] = cents
	}
	return prices, rows.Err()
}

// StatusesByEvent returns availability views for an event, optionally
// restricted to specific seat ids.  This is a plain read outside any
// transaction: it takes no locks and its result may be a moment stale,
// which is acceptable for the UI availability display.
func (r *SeatRepo) StatusesByEvent(ctx context.Context, eventID string, seatIDs []string) ([]model.SeatAvailabilityView, error) {
	q := `SELECT id, status FROM seats WHERE event_id = ?`
	args := []interface{}{eventID}
	if len(seatIDs) > 0 {
		q += ` AND id IN (` + placeholders(len(seatIDs)) + `)`
		for _, id := range seatIDs {
			args = append(args, id)
		}
	}
	q += ` ORDER BY id`
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var views []model.SeatAvailabilityView
	for rows.Next() {
		var v model.SeatAvailabilityView
		if err := rows.Scan(&v.SeatID, &v.Status); err != nil {
			return nil, err
		}
		v.IsAvailable = v.Status == model.SeatAvailable
		views = append(views, v)
	}
	return views, rows.Err()
}
