package service_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tickethub/seat-inventory/internal/model"
	"github.com/tickethub/seat-inventory/internal/repository"
	"github.com/tickethub/seat-inventory/internal/service"
)

func newBookingService(t *testing.T) (*service.BookingService, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	svc := service.NewBookingService(
		db,
		repository.NewSeatRepo(db),
		repository.NewLockEntryRepo(db),
		repository.NewBookingRepo(db),
		repository.NewTicketJobRepo(db),
		nil,
		5,
	)
	return svc, mock
}

func bookingRow(id, holder, event, status string, total uint32, confirmedAt *time.Time) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"id", "holder_id", "event_id", "status", "total_amount_cents", "created_at", "confirmed_at"})
	var at sql.NullTime
	if confirmedAt != nil {
		at = sql.NullTime{Time: *confirmedAt, Valid: true}
	}
	return rows.AddRow(id, holder, event, status, total, time.Now().UTC(), at)
}

func TestConfirm_PromotesLockedSeats(t *testing.T) {
	svc, mock := newBookingService(t)

	mock.ExpectQuery("FROM bookings WHERE id").
		WithArgs("bk-1").
		WillReturnError(sql.ErrNoRows)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE seats SET status = 'BOOKED'").
		WithArgs("bk-1", "ev1", "A1", "A2", "h1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectQuery("SELECT id, price_cents FROM seats").
		WithArgs("ev1", "A1", "A2").
		WillReturnRows(sqlmock.NewRows([]string{"id", "price_cents"}).
			AddRow("A1", 2500).
			AddRow("A2", 3000))
	mock.ExpectExec("INSERT INTO bookings").
		WithArgs("bk-1", "h1", "ev1", "PENDING", uint32(5500)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO booking_seats").
		WithArgs("bk-1", "ev1", "A1", uint32(2500), "bk-1", "ev1", "A2", uint32(3000)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectQuery("SELECT id FROM seats WHERE event_id").
		WithArgs("ev1", "h1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec("UPDATE reservation_locks SET processed = 1").
		WithArgs(sqlmock.AnyArg(), "CONFIRMED", "h1", "ev1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE bookings SET status = 'CONFIRMED'").
		WithArgs(sqlmock.AnyArg(), "bk-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	mock.ExpectExec("INSERT INTO ticket_jobs").
		WithArgs(sqlmock.AnyArg(), "bk-1", 5, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	booking, err := svc.Confirm(context.Background(), "ev1", []string{"A1", "A2"}, "h1", "bk-1")

	require.NoError(t, err)
	assert.Equal(t, model.BookingConfirmed, booking.Status)
	assert.Equal(t, uint32(5500), booking.TotalAmountCents)
	assert.Equal(t, []string{"A1", "A2"}, booking.SeatIDs)
	assert.NotNil(t, booking.ConfirmedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConfirm_PartialHoldKeepsEntryForRemainder(t *testing.T) {
	svc, mock := newBookingService(t)

	mock.ExpectQuery("FROM bookings WHERE id").
		WithArgs("bk-1").
		WillReturnError(sql.ErrNoRows)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE seats SET status = 'BOOKED'").
		WithArgs("bk-1", "ev1", "A1", "h1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT id, price_cents FROM seats").
		WithArgs("ev1", "A1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "price_cents"}).AddRow("A1", 2500))
	mock.ExpectExec("INSERT INTO bookings").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO booking_seats").
		WillReturnResult(sqlmock.NewResult(0, 1))
	// The holder still has B5 locked: the entry is rewritten to cover it
	// instead of being consumed, so B5 stays on the expiry queue.
	mock.ExpectQuery("SELECT id FROM seats WHERE event_id").
		WithArgs("ev1", "h1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("B5"))
	mock.ExpectExec("UPDATE reservation_locks SET seat_ids").
		WithArgs(`["B5"]`, "h1", "ev1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE bookings SET status = 'CONFIRMED'").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	mock.ExpectExec("INSERT INTO ticket_jobs").
		WillReturnResult(sqlmock.NewResult(0, 1))

	booking, err := svc.Confirm(context.Background(), "ev1", []string{"A1"}, "h1", "bk-1")

	require.NoError(t, err)
	assert.Equal(t, model.BookingConfirmed, booking.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConfirm_IdempotentOnRedelivery(t *testing.T) {
	svc, mock := newBookingService(t)
	confirmedAt := time.Now().UTC().Add(-time.Minute)

	mock.ExpectQuery("FROM bookings WHERE id").
		WithArgs("bk-1").
		WillReturnRows(bookingRow("bk-1", "h1", "ev1", "CONFIRMED", 5500, &confirmedAt))
	mock.ExpectQuery("SELECT seat_id FROM booking_seats").
		WithArgs("bk-1").
		WillReturnRows(sqlmock.NewRows([]string{"seat_id"}).AddRow("A1").AddRow("A2"))

	booking, err := svc.Confirm(context.Background(), "ev1", []string{"A1", "A2"}, "h1", "bk-1")

	require.NoError(t, err)
	assert.Equal(t, model.BookingConfirmed, booking.Status)
	assert.Equal(t, []string{"A1", "A2"}, booking.SeatIDs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConfirm_RejectsBookingIDOwnedByAnotherHolder(t *testing.T) {
	svc, mock := newBookingService(t)

	mock.ExpectQuery("FROM bookings WHERE id").
		WithArgs("bk-1").
		WillReturnRows(bookingRow("bk-1", "someone-else", "ev1", "CONFIRMED", 5500, nil))
	mock.ExpectQuery("SELECT seat_id FROM booking_seats").
		WithArgs("bk-1").
		WillReturnRows(sqlmock.NewRows([]string{"seat_id"}))

	booking, err := svc.Confirm(context.Background(), "ev1", []string{"A1"}, "h1", "bk-1")

	assert.Nil(t, booking)
	assert.ErrorIs(t, err, service.ErrAlreadyBooked)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConfirm_LockLostNamesOffendingSeats(t *testing.T) {
	svc, mock := newBookingService(t)

	mock.ExpectQuery("FROM bookings WHERE id").
		WithArgs("bk-1").
		WillReturnError(sql.ErrNoRows)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE seats SET status = 'BOOKED'").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT id, status, booking_id FROM seats").
		WithArgs("ev1", "A1", "A2").
		WillReturnRows(sqlmock.NewRows([]string{"id", "status", "booking_id"}).
			AddRow("A1", "BOOKED", "bk-1").
			AddRow("A2", "AVAILABLE", nil))
	mock.ExpectRollback()

	booking, err := svc.Confirm(context.Background(), "ev1", []string{"A1", "A2"}, "h1", "bk-1")

	assert.Nil(t, booking)
	var lost *service.LockLostError
	require.ErrorAs(t, err, &lost)
	assert.Equal(t, []string{"A2"}, lost.Seats)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConfirm_ConcurrentSameBookingIDReturnsStoredBooking(t *testing.T) {
	svc, mock := newBookingService(t)
	confirmedAt := time.Now().UTC()

	mock.ExpectQuery("FROM bookings WHERE id").
		WithArgs("bk-1").
		WillReturnError(sql.ErrNoRows)

	mock.ExpectBegin()
	// Zero rows promoted, yet every seat is BOOKED under bk-1: the other
	// instance finished first.
	mock.ExpectExec("UPDATE seats SET status = 'BOOKED'").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT id, status, booking_id FROM seats").
		WithArgs("ev1", "A1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "status", "booking_id"}).
			AddRow("A1", "BOOKED", "bk-1"))
	mock.ExpectRollback()

	mock.ExpectQuery("FROM bookings WHERE id").
		WithArgs("bk-1").
		WillReturnRows(bookingRow("bk-1", "h1", "ev1", "CONFIRMED", 2500, &confirmedAt))
	mock.ExpectQuery("SELECT seat_id FROM booking_seats").
		WithArgs("bk-1").
		WillReturnRows(sqlmock.NewRows([]string{"seat_id"}).AddRow("A1"))

	booking, err := svc.Confirm(context.Background(), "ev1", []string{"A1"}, "h1", "bk-1")

	require.NoError(t, err)
	assert.Equal(t, model.BookingConfirmed, booking.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConfirm_DuplicateInsertFallsBackToStoredBooking(t *testing.T) {
	svc, mock := newBookingService(t)
	confirmedAt := time.Now().UTC()

	mock.ExpectQuery("FROM bookings WHERE id").
		WithArgs("bk-1").
		WillReturnError(sql.ErrNoRows)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE seats SET status = 'BOOKED'").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT id, price_cents FROM seats").
		WillReturnRows(sqlmock.NewRows([]string{"id", "price_cents"}).AddRow("A1", 2500))
	mock.ExpectExec("INSERT INTO bookings").
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'bk-1' for key 'PRIMARY'"})
	mock.ExpectRollback()

	mock.ExpectQuery("FROM bookings WHERE id").
		WithArgs("bk-1").
		WillReturnRows(bookingRow("bk-1", "h1", "ev1", "CONFIRMED", 2500, &confirmedAt))
	mock.ExpectQuery("SELECT seat_id FROM booking_seats").
		WithArgs("bk-1").
		WillReturnRows(sqlmock.NewRows([]string{"seat_id"}).AddRow("A1"))

	booking, err := svc.Confirm(context.Background(), "ev1", []string{"A1"}, "h1", "bk-1")

	require.NoError(t, err)
	assert.Equal(t, model.BookingConfirmed, booking.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConfirm_NoSeats(t *testing.T) {
	svc, mock := newBookingService(t)

	_, err := svc.Confirm(context.Background(), "ev1", nil, "h1", "bk-1")

	assert.ErrorIs(t, err, service.ErrNoSeats)
	assert.NoError(t, mock.ExpectationsWereMet())
}
