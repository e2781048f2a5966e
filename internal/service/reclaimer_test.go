package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tickethub/seat-inventory/internal/queue"
	"github.com/tickethub/seat-inventory/internal/repository"
	"github.com/tickethub/seat-inventory/internal/service"
)

func newReclaimer(t *testing.T) (*service.Reclaimer, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	r := service.NewReclaimer(
		db,
		repository.NewSeatRepo(db),
		repository.NewLockEntryRepo(db),
		nil,
	).WithPublisher(nil)
	return r, mock
}

func dueEntryRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "holder_id", "event_id", "seat_ids", "expires_at", "created_at"})
}

func TestReclaimExpired_ReleasesDueEntry(t *testing.T) {
	r, mock := newReclaimer(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var published []queue.SeatsReleasedEvent
	r.WithPublisher(func(ctx context.Context, event queue.SeatsReleasedEvent) error {
		published = append(published, event)
		return nil
	})

	mock.ExpectQuery("FROM reservation_locks").
		WithArgs(now, 500).
		WillReturnRows(dueEntryRows().
			AddRow("entry-1", "h1", "ev1", `["A1","A2"]`, now.Add(-time.Minute), now.Add(-11*time.Minute)))
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE reservation_locks SET processed = 1").
		WithArgs(now, "EXPIRED", "entry-1", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE seats SET status = 'AVAILABLE'").
		WithArgs("ev1", "A1", "A2", "h1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	released, err := r.ReclaimExpired(context.Background(), now)

	require.NoError(t, err)
	assert.Equal(t, 2, released)
	require.Len(t, published, 1)
	assert.Equal(t, "ev1", published[0].EventID)
	assert.Equal(t, []string{"A1", "A2"}, published[0].SeatIDs)
	assert.Equal(t, queue.ReleaseExpired, published[0].Reason)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReclaimExpired_NothingDue(t *testing.T) {
	r, mock := newReclaimer(t)
	now := time.Now().UTC()

	mock.ExpectQuery("FROM reservation_locks").
		WithArgs(now, 500).
		WillReturnRows(dueEntryRows())

	released, err := r.ReclaimExpired(context.Background(), now)

	require.NoError(t, err)
	assert.Equal(t, 0, released)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReclaimExpired_SkipsEntryClaimedElsewhere(t *testing.T) {
	r, mock := newReclaimer(t)
	now := time.Now().UTC()

	mock.ExpectQuery("FROM reservation_locks").
		WithArgs(now, 500).
		WillReturnRows(dueEntryRows().
			AddRow("entry-1", "h1", "ev1", `["A1"]`, now.Add(-time.Minute), now.Add(-11*time.Minute)))
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE reservation_locks SET processed = 1").
		WithArgs(now, "EXPIRED", "entry-1", now).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	released, err := r.ReclaimExpired(context.Background(), now)

	require.NoError(t, err)
	assert.Equal(t, 0, released)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReclaimExpired_FailureOnOneEntryDoesNotAbortTheRest(t *testing.T) {
	r, mock := newReclaimer(t)
	now := time.Now().UTC()

	mock.ExpectQuery("FROM reservation_locks").
		WithArgs(now, 500).
		WillReturnRows(dueEntryRows().
			AddRow("entry-1", "h1", "ev1", `["A1"]`, now.Add(-2*time.Minute), now.Add(-12*time.Minute)).
			AddRow("entry-2", "h2", "ev2", `["B7"]`, now.Add(-time.Minute), now.Add(-11*time.Minute)))

	// entry-1 fails mid-transaction and stays unprocessed.
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE reservation_locks SET processed = 1").
		WithArgs(now, "EXPIRED", "entry-1", now).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	// entry-2 is still reclaimed.
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE reservation_locks SET processed = 1").
		WithArgs(now, "EXPIRED", "entry-2", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE seats SET status = 'AVAILABLE'").
		WithArgs("ev2", "B7", "h2").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	released, err := r.ReclaimExpired(context.Background(), now)

	require.NoError(t, err)
	assert.Equal(t, 1, released)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReclaimExpired_LeavesLockExtendedAfterDueScan(t *testing.T) {
	r, mock := newReclaimer(t)
	now := time.Now().UTC()

	var published []queue.SeatsReleasedEvent
	r.WithPublisher(func(ctx context.Context, event queue.SeatsReleasedEvent) error {
		published = append(published, event)
		return nil
	})

	mock.ExpectQuery("FROM reservation_locks").
		WithArgs(now, 500).
		WillReturnRows(dueEntryRows().
			AddRow("entry-1", "h1", "ev1", `["A1"]`, now.Add(-time.Second), now.Add(-10*time.Minute)))
	mock.ExpectBegin()
	// An extend committed between the due scan and the claim pushed
	// expires_at past now; the guarded claim matches nothing and the
	// holder keeps the seat.
	mock.ExpectExec("UPDATE reservation_locks SET processed = 1").
		WithArgs(now, "EXPIRED", "entry-1", now).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	released, err := r.ReclaimExpired(context.Background(), now)

	require.NoError(t, err)
	assert.Equal(t, 0, released)
	assert.Empty(t, published)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReclaimExpired_ReleaseSkipsRelockedSeats(t *testing.T) {
	r, mock := newReclaimer(t)
	now := time.Now().UTC()

	mock.ExpectQuery("FROM reservation_locks").
		WithArgs(now, 500).
		WillReturnRows(dueEntryRows().
			AddRow("entry-1", "h1", "ev1", `["A1","A2"]`, now.Add(-time.Minute), now.Add(-11*time.Minute)))
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE reservation_locks SET processed = 1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	// A2 was already released and re-locked by a new holder; only A1 flips.
	mock.ExpectExec("UPDATE seats SET status = 'AVAILABLE'").
		WithArgs("ev1", "A1", "A2", "h1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	released, err := r.ReclaimExpired(context.Background(), now)

	require.NoError(t, err)
	assert.Equal(t, 1, released)
	assert.NoError(t, mock.ExpectationsWereMet())
}
