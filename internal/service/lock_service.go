package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tickethub/seat-inventory/internal/model"
	"github.com/tickethub/seat-inventory/internal/repository"
)

// LockGrant is the successful result of a lock or extend call.
type LockGrant struct {
	SeatIDs   []string  `json:"granted_seat_ids"`
	ExpiresAt time.Time `json:"lock_expires_at"`
}

// LockService owns the seat lock lifecycle.  Every mutation runs one
// short storage transaction built from conditional updates; conflicts
// fail fast with typed results rather than queueing one shopper behind
// another.  The optional redis client caches whole-event availability
// for the read path and is invalidated on every transition; when it is
// nil the service serves reads straight from the database.
type LockService struct {
	db         *sql.DB
	seats      *repository.SeatRepo
	entries    *repository.LockEntryRepo
	cache      *redis.Client
	cacheTTL   time.Duration
	defaultTTL time.Duration
	maxTTL     time.Duration
}

// NewLockService constructs a LockService.  cache may be nil.
func NewLockService(db *sql.DB, seats *repository.SeatRepo, entries *repository.LockEntryRepo, cache *redis.Client, cacheTTL, defaultTTL, maxTTL time.Duration) *LockService {
	if db == nil || seats == nil || entries == nil {
		panic("nil dependency passed to NewLockService")
	}
	return &LockService{
		db:         db,
		seats:      seats,
		entries:    entries,
		cache:      cache,
		cacheTTL:   cacheTTL,
		defaultTTL: defaultTTL,
		maxTTL:     maxTTL,
	}
}

// dedupe removes empty and repeated ids while preserving order.
func dedupe(seatIDs []string) []string {
	unique := make([]string, 0, len(seatIDs))
	seen := make(map[string]struct{}, len(seatIDs))
	for _, id := range seatIDs {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			unique = append(unique, id)
		}
	}
	return unique
}

func (s *LockService) clampTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return s.defaultTTL
	}
	if s.maxTTL > 0 && ttl > s.maxTTL {
		return s.maxTTL
	}
	return ttl
}

// Lock grants holderID an exclusive, TTL-bounded lock on the requested
// seats.  The grant is all-or-nothing: if any seat is unavailable the
// transaction rolls back, no seat is locked, and the conflicting ids are
// reported through *SeatsUnavailableError.  Seats already locked by the
// same holder are re-granted with the fresh TTL.  The reservation lock
// entry covering the holder's full held set is written in the same
// transaction, so the grant and its durable expiry record are
// inseparable.
func (s *LockService) Lock(ctx context.Context, eventID string, seatIDs []string, holderID string, ttl time.Duration) (*LockGrant, error) {
	seatIDs = dedupe(seatIDs)
	if len(seatIDs) == 0 {
		return nil, ErrNoSeats
	}
	expiresAt := time.Now().UTC().Add(s.clampTTL(ttl))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	n, err := s.seats.LockTx(ctx, tx, eventID, seatIDs, holderID, expiresAt)
	if err != nil {
		return nil, err
	}
	if n != int64(len(seatIDs)) {
		conflicting, err := s.seats.ConflictingTx(ctx, tx, eventID, seatIDs, holderID)
		if err != nil {
			return nil, err
		}
		return nil, &SeatsUnavailableError{Conflicting: conflicting}
	}

	// The entry records everything the holder now has locked for this
	// event, not just this request, so a later sweep releases the full set.
	held, err := s.seats.HeldByTx(ctx, tx, eventID, holderID)
	if err != nil {
		return nil, err
	}
	if _, err := s.entries.UpsertForHolderTx(ctx, tx, holderID, eventID, held, expiresAt); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	s.invalidate(ctx, eventID)
	return &LockGrant{SeatIDs: seatIDs, ExpiresAt: expiresAt}, nil
}

// Extend pushes the expiry of an existing grant out by ttl.  It only
// succeeds when every named seat is still locked by holderID; otherwise
// it rolls back and returns ErrNotLockOwner with no side effects.
func (s *LockService) Extend(ctx context.Context, eventID string, seatIDs []string, holderID string, ttl time.Duration) (*LockGrant, error) {
	seatIDs = dedupe(seatIDs)
	if len(seatIDs) == 0 {
		return nil, ErrNoSeats
	}
	expiresAt := time.Now().UTC().Add(s.clampTTL(ttl))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	n, err := s.seats.ExtendTx(ctx, tx, eventID, seatIDs, holderID, expiresAt)
	if err != nil {
		return nil, err
	}
	if n != int64(len(seatIDs)) {
		return nil, ErrNotLockOwner
	}
	if err := s.entries.ExtendByHolderTx(ctx, tx, holderID, eventID, expiresAt); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	return &LockGrant{SeatIDs: seatIDs, ExpiresAt: expiresAt}, nil
}

// Release returns the holder's locks on the named seats and returns
// the ids actually made AVAILABLE.  It is idempotent: seats not locked
// by holderID are skipped, so releasing after an expiry reclaim or a
// confirm is a harmless no-op.  When the release covers only part of
// the holder's held set, the reservation lock entry is rewritten to
// the remainder instead of claimed, so the still-locked seats stay on
// the expiry queue.
func (s *LockService) Release(ctx context.Context, eventID string, seatIDs []string, holderID string) ([]string, error) {
	seatIDs = dedupe(seatIDs)
	if len(seatIDs) == 0 {
		return nil, ErrNoSeats
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	held, err := s.seats.HeldByTx(ctx, tx, eventID, holderID)
	if err != nil {
		return nil, err
	}
	if _, err := s.seats.ReleaseTx(ctx, tx, eventID, seatIDs, holderID); err != nil {
		return nil, err
	}

	// ReleaseTx only touches seats the holder owned, so the released set
	// is the requested ids intersected with the held set.
	heldSet := make(map[string]bool, len(held))
	for _, id := range held {
		heldSet[id] = true
	}
	released := make([]string, 0, len(seatIDs))
	for _, id := range seatIDs {
		if heldSet[id] {
			released = append(released, id)
			heldSet[id] = false
		}
	}
	var remaining []string
	for _, id := range held {
		if heldSet[id] {
			remaining = append(remaining, id)
		}
	}

	if len(remaining) == 0 {
		if _, err := s.entries.ClaimByHolderTx(ctx, tx, holderID, eventID, model.OutcomeReleased, time.Now().UTC()); err != nil {
			return nil, err
		}
	} else if err := s.entries.ShrinkForHolderTx(ctx, tx, holderID, eventID, remaining); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	if len(released) > 0 {
		s.invalidate(ctx, eventID)
	}
	return released, nil
}

// CheckSeats returns the live availability of an event's seats, or of a
// specific subset when seatIDs is non-empty.  This is a plain read with
// no locks; whole-event reads go through a short-lived redis cache when
// one is configured.
func (s *LockService) CheckSeats(ctx context.Context, eventID string, seatIDs []string) ([]model.SeatAvailabilityView, error) {
	seatIDs = dedupe(seatIDs)
	if len(seatIDs) > 0 || s.cache == nil {
		return s.seats.StatusesByEvent(ctx, eventID, seatIDs)
	}

	key := availabilityKey(eventID)
	if raw, err := s.cache.Get(ctx, key).Result(); err == nil {
		var views []model.SeatAvailabilityView
		if err := json.Unmarshal([]byte(raw), &views); err == nil {
			return views, nil
		}
	}
	views, err := s.seats.StatusesByEvent(ctx, eventID, nil)
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(views); err == nil {
		// Cache failures only cost the next reader a DB round trip.
		_ = s.cache.Set(ctx, key, raw, s.cacheTTL).Err()
	}
	return views, nil
}

func availabilityKey(eventID string) string {
	return "availability:" + eventID
}

// invalidate drops the cached availability for an event after any seat
// transition.  Callers never reuse cached state as a basis for writes,
// so dropping the key is all the consistency the cache needs.
func (s *LockService) invalidate(ctx context.Context, eventID string) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Del(ctx, availabilityKey(eventID)).Err()
}
