package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/tickethub/seat-inventory/internal/model"
	"github.com/tickethub/seat-inventory/internal/queue"
	"github.com/tickethub/seat-inventory/internal/repository"
)

// reclaimBatch bounds how many due entries one sweep processes.
const reclaimBatch = 500

// Reclaimer is the expiry sweep over the durable lock queue.  It owns
// no timer: an external scheduler calls ReclaimExpired with the current
// time, which also makes the sweep trivially testable with a synthetic
// now.  Two overlapping sweeps, or a sweep racing a confirm, are safe
// because each entry is consumed through an atomic claim that only one
// runner can win, and release itself skips seats the original holder no
// longer owns.
type Reclaimer struct {
	db      *sql.DB
	seats   *repository.SeatRepo
	entries *repository.LockEntryRepo
	cache   *redis.Client
	publish func(ctx context.Context, event queue.SeatsReleasedEvent) error
}

// NewReclaimer constructs a Reclaimer.  cache may be nil; the release
// notification goes through the best-effort broker path and may be
// disabled by passing a nil publish func.
func NewReclaimer(db *sql.DB, seats *repository.SeatRepo, entries *repository.LockEntryRepo, cache *redis.Client) *Reclaimer {
	if db == nil || seats == nil || entries == nil {
		panic("nil dependency passed to NewReclaimer")
	}
	return &Reclaimer{
		db:      db,
		seats:   seats,
		entries: entries,
		cache:   cache,
		publish: queue.PublishSeatsReleased,
	}
}

// WithPublisher overrides the release-event publisher.  Passing nil
// disables publishing.
func (r *Reclaimer) WithPublisher(publish func(ctx context.Context, event queue.SeatsReleasedEvent) error) *Reclaimer {
	r.publish = publish
	return r
}

// ReclaimExpired releases the seats of every lock entry due at or
// before now and returns how many seats were made AVAILABLE.  Entries
// are processed independently: a failure on one is logged, counted and
// left unprocessed for the next sweep, and never aborts the rest.
func (r *Reclaimer) ReclaimExpired(ctx context.Context, now time.Time) (int, error) {
	due, err := r.entries.Due(ctx, now, reclaimBatch)
	if err != nil {
		return 0, err
	}
	if len(due) == 0 {
		return 0, nil
	}

	released := 0
	failed := 0
	for _, entry := range due {
		select {
		case <-ctx.Done():
			logrus.Info("reclaim sweep interrupted by context cancellation")
			return released, ctx.Err()
		default:
		}

		n, claimed, err := r.reclaimOne(ctx, entry, now)
		if err != nil {
			// Entry stays unprocessed; the next sweep retries it.
			logrus.Errorf("reclaim: entry %s (holder=%s event=%s): %v", entry.ID, entry.HolderID, entry.EventID, err)
			failed++
			continue
		}
		if !claimed {
			// A concurrent sweep, release or confirm won the claim, or
			// the holder extended the lock after the due scan.
			continue
		}
		released += n
		if n > 0 {
			r.invalidate(ctx, entry.EventID)
			r.notify(ctx, entry, now)
		}
	}

	logrus.Infof("reclaim sweep completed: %d entries due, %d seats released, %d failed", len(due), released, failed)
	return released, nil
}

// reclaimOne claims one entry and releases its seats in a single
// transaction.  The claim and the release commit or roll back together,
// so a failed release leaves the entry unprocessed.
func (r *Reclaimer) reclaimOne(ctx context.Context, entry model.ReservationLockEntry, now time.Time) (int, bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	claimed, err := r.entries.ClaimTx(ctx, tx, entry.ID, model.OutcomeExpired, now)
	if err != nil {
		return 0, false, err
	}
	if !claimed {
		return 0, false, nil
	}

	// Release under the original holder id: a seat legitimately
	// re-locked by someone else since then is never touched.
	n, err := r.seats.ReleaseTx(ctx, tx, entry.EventID, entry.SeatIDs, entry.HolderID)
	if err != nil {
		return 0, false, err
	}
	if err := tx.Commit(); err != nil {
		return 0, false, err
	}
	committed = true
	return int(n), true, nil
}

func (r *Reclaimer) invalidate(ctx context.Context, eventID string) {
	if r.cache == nil {
		return
	}
	_ = r.cache.Del(ctx, availabilityKey(eventID)).Err()
}

func (r *Reclaimer) notify(ctx context.Context, entry model.ReservationLockEntry, now time.Time) {
	if r.publish == nil {
		return
	}
	event := queue.SeatsReleasedEvent{
		EventID:    entry.EventID,
		SeatIDs:    entry.SeatIDs,
		HolderID:   entry.HolderID,
		Reason:     queue.ReleaseExpired,
		ReleasedAt: now.UTC().Format(time.RFC3339),
	}
	if err := r.publish(ctx, event); err != nil {
		logrus.Warnf("reclaim: publish release event for entry %s failed: %v", entry.ID, err)
	}
}
