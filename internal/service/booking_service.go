package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/tickethub/seat-inventory/internal/model"
	"github.com/tickethub/seat-inventory/internal/repository"
)

// mysqlDuplicateEntry is the driver error number for a unique key
// violation, used to detect two confirms racing on the same booking id.
const mysqlDuplicateEntry = 1062

// BookingService performs the single atomic transition from "holder
// owns locks" to "seats are sold and a booking exists".  The ownership
// check and the promotion are one conditional update, so a lock that
// expired or was reclaimed between payment and confirm can never be
// promoted.
type BookingService struct {
	db          *sql.DB
	seats       *repository.SeatRepo
	entries     *repository.LockEntryRepo
	bookings    *repository.BookingRepo
	jobs        *repository.TicketJobRepo
	cache       *redis.Client
	maxAttempts int
}

// NewBookingService constructs a BookingService.  cache may be nil.
// maxAttempts bounds the ticket-generation retries enqueued on success.
func NewBookingService(db *sql.DB, seats *repository.SeatRepo, entries *repository.LockEntryRepo, bookings *repository.BookingRepo, jobs *repository.TicketJobRepo, cache *redis.Client, maxAttempts int) *BookingService {
	if db == nil || seats == nil || entries == nil || bookings == nil || jobs == nil {
		panic("nil dependency passed to NewBookingService")
	}
	return &BookingService{
		db:          db,
		seats:       seats,
		entries:     entries,
		bookings:    bookings,
		jobs:        jobs,
		cache:       cache,
		maxAttempts: maxAttempts,
	}
}

// Confirm promotes the holder's locked seats into a persisted booking.
// Preconditions are strict and atomic with the promotion: every seat
// must be LOCKED by holderID with an unexpired lock, or the whole call
// fails with *LockLostError naming the offenders and nothing changes.
//
// Confirm is idempotent on bookingID: payment callbacks may be
// delivered more than once, and a repeat call returns the stored
// booking instead of double-charging inventory.  A bookingID owned by a
// different holder yields ErrAlreadyBooked.
func (s *BookingService) Confirm(ctx context.Context, eventID string, seatIDs []string, holderID, bookingID string) (*model.Booking, error) {
	seatIDs = dedupe(seatIDs)
	if len(seatIDs) == 0 {
		return nil, ErrNoSeats
	}

	// Fast idempotency path for redelivered payment callbacks.
	if existing, err := s.existing(ctx, holderID, bookingID); existing != nil || err != nil {
		return existing, err
	}

	now := time.Now().UTC()
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

	n, err := s.seats.PromoteTx(ctx, tx, eventID, seatIDs, holderID, bookingID, now)
	if err != nil {
		return nil, err
	}
	if n != int64(len(seatIDs)) {
		offending, err := s.seats.NotPromotedTx(ctx, tx, eventID, seatIDs, bookingID)
		if err != nil {
			return nil, err
		}
		if len(offending) == 0 {
			// Every seat is already BOOKED under this booking id: a
			// concurrent confirm with the same id won the race.
			_ = tx.Rollback()
			committed = true // suppress the deferred rollback
			return s.confirmed(ctx, holderID, bookingID)
		}
		return nil, &LockLostError{Seats: offending}
	}

	prices, err := s.seats.PricesTx(ctx, tx, eventID, seatIDs)
	if err != nil {
		return nil, err
	}
	var total uint32
	for _, sid := range seatIDs {
		total += prices[sid]
	}

	booking := &model.Booking{
		ID:               bookingID,
		HolderID:         holderID,
		EventID:          eventID,
		Status:           model.BookingPending,
		TotalAmountCents: total,
		SeatIDs:          seatIDs,
	}
	if err := s.bookings.CreateTx(ctx, tx, booking); err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == mysqlDuplicateEntry {
			_ = tx.Rollback()
			committed = true
			return s.confirmed(ctx, holderID, bookingID)
		}
		return nil, err
	}
	if err := s.bookings.CreateSeatsBulkTx(ctx, tx, bookingID, eventID, seatIDs, prices); err != nil {
		return nil, err
	}

	// The promoted seats are BOOKED now, so HeldByTx yields whatever the
	// holder still has locked.  A holder confirming part of their held
	// set keeps the remainder on the expiry queue.
	held, err := s.seats.HeldByTx(ctx, tx, eventID, holderID)
	if err != nil {
		return nil, err
	}
	if len(held) == 0 {
		if _, err := s.entries.ClaimByHolderTx(ctx, tx, holderID, eventID, model.OutcomeConfirmed, now); err != nil {
			return nil, err
		}
	} else if err := s.entries.ShrinkForHolderTx(ctx, tx, holderID, eventID, held); err != nil {
		return nil, err
	}
	if err := s.bookings.MarkConfirmedTx(ctx, tx, bookingID, now); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true

	booking.Status = model.BookingConfirmed
	booking.ConfirmedAt = &now

	s.enqueueTicketJob(ctx, bookingID, now)
	if s.cache != nil {
		_ = s.cache.Del(ctx, availabilityKey(eventID)).Err()
	}
	return booking, nil
}

// existing implements the idempotency pre-check.  Returns (nil, nil)
// when no booking with the id exists yet.
func (s *BookingService) existing(ctx context.Context, holderID, bookingID string) (*model.Booking, error) {
	b, err := s.bookings.GetByID(ctx, bookingID)
	if err == repository.ErrBookingNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if b.HolderID != holderID {
		return nil, ErrAlreadyBooked
	}
	return b, nil
}

// confirmed re-reads a booking that another writer just created for the
// same id, preserving idempotent semantics under the race.
func (s *BookingService) confirmed(ctx context.Context, holderID, bookingID string) (*model.Booking, error) {
	b, err := s.existing(ctx, holderID, bookingID)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, repository.ErrBookingNotFound
	}
	return b, nil
}

// enqueueTicketJob schedules ticket generation for a confirmed booking.
// The booking and payment already succeeded; a failed enqueue is an
// operator-visible warning, never a reason to unwind the confirm.
func (s *BookingService) enqueueTicketJob(ctx context.Context, bookingID string, now time.Time) {
	job := &model.TicketJob{
		ID:            uuid.NewString(),
		BookingID:     bookingID,
		MaxAttempts:   s.maxAttempts,
		NextAttemptAt: now,
	}
	if err := s.jobs.Enqueue(ctx, job); err != nil {
		logrus.Errorf("confirm: enqueue ticket job for booking %s failed: %v", bookingID, err)
	}
}
