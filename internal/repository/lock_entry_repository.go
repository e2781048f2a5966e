package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/tickethub/seat-inventory/internal/model"
)

// LockEntryRepo provides data access to the reservation_locks table,
// the durable expiry queue behind every granted lock.  An entry is
// written in the same transaction as the grant itself, so its existence
// never depends on the process that created it staying alive.  All
// timestamps are UTC.
type LockEntryRepo struct {
	db *sql.DB
}

// NewLockEntryRepo returns a new LockEntryRepo bound to the provided database.
func NewLockEntryRepo(db *sql.DB) *LockEntryRepo { return &LockEntryRepo{db: db} }

// UpsertForHolderTx writes or refreshes the single unprocessed entry for
// holder+event so that it covers seatIDs (the holder's full held set)
// and expires at expiresAt.  The SELECT ... FOR UPDATE pins the existing
// row against a concurrent sweep claiming it mid-grant.  Returns the
// entry id.
func (r *LockEntryRepo) UpsertForHolderTx(ctx context.Context, tx *sql.Tx, holderID, eventID string, seatIDs []string, expiresAt time.Time) (string, error) {
	seatJSON, err := json.Marshal(seatIDs)
	if err != nil {
		return "", err
	}
	var id string
	const sel = `SELECT id FROM reservation_locks
	             WHERE holder_id = ? AND event_id = ? AND processed = 0 FOR UPDATE`
	err = tx.QueryRowContext(ctx, sel, holderID, eventID).Scan(&id)
	switch {
	case err == sql.ErrNoRows:
		id = uuid.NewString()
		const ins = `INSERT INTO reservation_locks (id, holder_id, event_id, seat_ids, expires_at)
		             VALUES (?, ?, ?, ?, ?)`
		if _, err := tx.ExecContext(ctx, ins, id, holderID, eventID, string(seatJSON), expiresAt.UTC()); err != nil {
			return "", err
		}
	case err != nil:
		return "", err
	default:
		const upd = `UPDATE reservation_locks SET seat_ids = ?, expires_at = ? WHERE id = ?`
		if _, err := tx.ExecContext(ctx, upd, string(seatJSON), expiresAt.UTC(), id); err != nil {
			return "", err
		}
	}
	return id, nil
}

// ExtendByHolderTx moves the expiry of the unprocessed entry for
// holder+event.  A missing entry is not an error: the seats themselves
// are the source of truth for ownership and were already validated.
func (r *LockEntryRepo) ExtendByHolderTx(ctx context.Context, tx *sql.Tx, holderID, eventID string, expiresAt time.Time) error {
	const q = `UPDATE reservation_locks SET expires_at = ?
	           WHERE holder_id = ? AND event_id = ? AND processed = 0`
	_, err := tx.ExecContext(ctx, q, expiresAt.UTC(), holderID, eventID)
	return err
}

// ShrinkForHolderTx rewrites the unprocessed entry for holder+event to
// cover only seatIDs, after a partial release or confirm took some of
// the held seats off the entry.  The seats still locked must stay on
// the expiry queue or the sweep would never find them; the expiry
// itself is untouched.
func (r *LockEntryRepo) ShrinkForHolderTx(ctx context.Context, tx *sql.Tx, holderID, eventID string, seatIDs []string) error {
	seatJSON, err := json.Marshal(seatIDs)
	if err != nil {
		return err
	}
	const q = `UPDATE reservation_locks SET seat_ids = ?
	           WHERE holder_id = ? AND event_id = ? AND processed = 0`
	_, err = tx.ExecContext(ctx, q, string(seatJSON), holderID, eventID)
	return err
}

// ClaimTx atomically marks the entry processed with the given outcome,
// but only while its expiry still lies at or before at.  The
// conditional update means exactly one of {release, confirm, sweep}
// wins, and an entry whose lock was extended after the sweep's due scan
// matches nothing: the losers observe false and treat their path as a
// no-op.
func (r *LockEntryRepo) ClaimTx(ctx context.Context, tx *sql.Tx, id string, outcome model.LockOutcome, at time.Time) (bool, error) {
	const q = `UPDATE reservation_locks SET processed = 1, processed_at = ?, outcome = ?
	           WHERE id = ? AND processed = 0 AND expires_at <= ?`
	res, err := tx.ExecContext(ctx, q, at.UTC(), string(outcome), id, at.UTC())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ClaimByHolderTx is ClaimTx keyed by holder+event, used by release and
// confirm which identify the entry through its owner rather than its id.
func (r *LockEntryRepo) ClaimByHolderTx(ctx context.Context, tx *sql.Tx, holderID, eventID string, outcome model.LockOutcome, at time.Time) (bool, error) {
	const q = `UPDATE reservation_locks SET processed = 1, processed_at = ?, outcome = ?
	           WHERE holder_id = ? AND event_id = ? AND processed = 0`
	res, err := tx.ExecContext(ctx, q, at.UTC(), string(outcome), holderID, eventID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n >= 1, nil
}

// Due returns unprocessed entries whose expiry is at or before now,
// oldest first.  The (processed, expires_at) index keeps this scan
// cheap regardless of table size.  The sweep passes a synthetic now in
// tests; production passes the wall clock.
func (r *LockEntryRepo) Due(ctx context.Context, now time.Time, limit int) ([]model.ReservationLockEntry, error) {
	const q = `SELECT id, holder_id, event_id, seat_ids, expires_at, created_at
	           FROM reservation_locks
	           WHERE processed = 0 AND expires_at <= ?
	           ORDER BY expires_at ASC
	           LIMIT ?`
	rows, err := r.db.QueryContext(ctx, q, now.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []model.ReservationLockEntry
	for rows.Next() {
		var e model.ReservationLockEntry
		var seatJSON string
		if err := rows.Scan(&e.ID, &e.HolderID, &e.EventID, &seatJSON, &e.ExpiresAt, &e.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(seatJSON), &e.SeatIDs); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
