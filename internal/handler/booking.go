package handler

import (
	"context"  // context for detaching the publish from the request
	"errors"   // for errors.As/Is comparisons
	"net/http" // HTTP status codes
	"time"     // event timestamps

	"github.com/labstack/echo/v4" // Echo web framework

	"github.com/tickethub/seat-inventory/internal/queue"
	"github.com/tickethub/seat-inventory/internal/service"
)

// BookingHandler exposes the booking confirmer.  Confirm is called by
// the payment collaborator once a payment is verified; the handler maps
// lost locks to 409 so the caller can re-quote and re-lock.
type BookingHandler struct {
	Bookings *service.BookingService
}

// NewBookingHandler constructs a BookingHandler.  The service must be non-nil.
func NewBookingHandler(bookings *service.BookingService) *BookingHandler {
	if bookings == nil {
		panic("nil service passed to NewBookingHandler")
	}
	return &BookingHandler{Bookings: bookings}
}

type confirmRequest struct {
	SeatIDs   []string `json:"seat_ids"`
	HolderID  string   `json:"holder_id"`
	BookingID string   `json:"booking_id"`
}

// Confirm handles POST /v1/events/:id/confirm.  On success all seats
// promote atomically and the booking is returned with 201.  Redelivered
// callbacks with the same booking_id return the stored booking with the
// same shape, so callers need no dedup of their own.
func (h *BookingHandler) Confirm(c echo.Context) error {
	eventID := c.Param("id")
	var body confirmRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.HolderID == "" || body.BookingID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "holder_id and booking_id are required"})
	}

	booking, err := h.Bookings.Confirm(c.Request().Context(), eventID, body.SeatIDs, body.HolderID, body.BookingID)
	if err != nil {
		var lost *service.LockLostError
		if errors.As(err, &lost) {
			return c.JSON(http.StatusConflict, echo.Map{
				"error":              "lock expired or stolen",
				"offending_seat_ids": lost.Seats,
			})
		}
		if errors.Is(err, service.ErrAlreadyBooked) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "booking id already used"})
		}
		if errors.Is(err, service.ErrNoSeats) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "seat_ids is required"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to confirm booking"})
	}

	confirmedAt := ""
	if booking.ConfirmedAt != nil {
		confirmedAt = booking.ConfirmedAt.UTC().Format(time.RFC3339)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = queue.PublishBookingConfirmed(ctx, queue.BookingConfirmedEvent{
		BookingID:        booking.ID,
		HolderID:         booking.HolderID,
		EventID:          booking.EventID,
		SeatIDs:          booking.SeatIDs,
		TotalAmountCents: booking.TotalAmountCents,
		ConfirmedAt:      confirmedAt,
	})

	return c.JSON(http.StatusCreated, echo.Map{
		"booking": booking,
	})
}
