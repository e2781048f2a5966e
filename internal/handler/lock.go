package handler

import (
	"context"  // context for detaching the publish from the request
	"errors"   // for errors.As/Is comparisons
	"net/http" // HTTP status codes
	"strings"  // parsing the seat_ids query parameter
	"time"     // TTL conversion and event timestamps

	"github.com/labstack/echo/v4" // Echo web framework

	"github.com/tickethub/seat-inventory/internal/queue"
	"github.com/tickethub/seat-inventory/internal/service"
)

// LockHandler exposes the lock manager's operations over HTTP, mapping
// the operation contract 1:1.  Lock conflicts are expected, frequent
// outcomes of concurrent demand: they surface as 409 responses naming
// the conflicting seats, never as server errors.
type LockHandler struct {
	Locks *service.LockService
}

// NewLockHandler constructs a LockHandler.  The service must be non-nil.
func NewLockHandler(locks *service.LockService) *LockHandler {
	if locks == nil {
		panic("nil service passed to NewLockHandler")
	}
	return &LockHandler{Locks: locks}
}

type lockRequest struct {
	SeatIDs    []string `json:"seat_ids"`
	HolderID   string   `json:"holder_id"`
	TTLSeconds int      `json:"ttl_seconds"`
}

// Lock handles POST /v1/events/:id/locks.  It attempts an all-or-nothing
// grant over the requested seats and returns 200 with the granted set
// and expiry, or 409 with the conflicting seat ids when any seat is
// taken.  No seat is locked on conflict.
func (h *LockHandler) Lock(c echo.Context) error {
	eventID := c.Param("id")
	var body lockRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.HolderID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "holder_id is required"})
	}

	grant, err := h.Locks.Lock(c.Request().Context(), eventID, body.SeatIDs, body.HolderID, time.Duration(body.TTLSeconds)*time.Second)
	if err != nil {
		var unavailable *service.SeatsUnavailableError
		if errors.As(err, &unavailable) {
			return c.JSON(http.StatusConflict, echo.Map{
				"error":                "some seats are unavailable",
				"conflicting_seat_ids": unavailable.Conflicting,
			})
		}
		if errors.Is(err, service.ErrNoSeats) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "seat_ids is required"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to lock seats"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"granted_seat_ids": grant.SeatIDs,
		"lock_expires_at":  grant.ExpiresAt.Format(time.RFC3339),
	})
}

// Extend handles PATCH /v1/events/:id/locks.  It refreshes the TTL on
// seats the holder already owns; if any named seat is no longer theirs
// the call fails with 403 and has no side effects.
func (h *LockHandler) Extend(c echo.Context) error {
	eventID := c.Param("id")
	var body lockRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.HolderID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "holder_id is required"})
	}

	grant, err := h.Locks.Extend(c.Request().Context(), eventID, body.SeatIDs, body.HolderID, time.Duration(body.TTLSeconds)*time.Second)
	if err != nil {
		if errors.Is(err, service.ErrNotLockOwner) {
			return c.JSON(http.StatusForbidden, echo.Map{"error": "not lock owner"})
		}
		if errors.Is(err, service.ErrNoSeats) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "seat_ids is required"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to extend lock"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"lock_expires_at": grant.ExpiresAt.Format(time.RFC3339),
	})
}

// Release handles DELETE /v1/events/:id/locks.  Releasing seats the
// holder no longer owns is a no-op, not an error; the response reports
// how many seats actually returned to AVAILABLE.
func (h *LockHandler) Release(c echo.Context) error {
	eventID := c.Param("id")
	var body lockRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.HolderID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "holder_id is required"})
	}

	released, err := h.Locks.Release(c.Request().Context(), eventID, body.SeatIDs, body.HolderID)
	if err != nil {
		if errors.Is(err, service.ErrNoSeats) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "seat_ids is required"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to release seats"})
	}

	if len(released) > 0 {
		// Wake the waitlist; failures are the notifier's problem, not ours.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = queue.PublishSeatsReleased(ctx, queue.SeatsReleasedEvent{
			EventID:    eventID,
			SeatIDs:    released,
			HolderID:   body.HolderID,
			Reason:     queue.ReleaseExplicit,
			ReleasedAt: time.Now().UTC().Format(time.RFC3339),
		})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"released_count":    len(released),
		"released_seat_ids": released,
	})
}

// CheckSeats handles GET /v1/events/:id/seats.  It returns live
// per-seat availability, optionally restricted via the comma-separated
// seat_ids query parameter.  This is a plain read taking no locks.
func (h *LockHandler) CheckSeats(c echo.Context) error {
	eventID := c.Param("id")
	var seatIDs []string
	if raw := c.QueryParam("seat_ids"); raw != "" {
		for _, id := range strings.Split(raw, ",") {
			if id = strings.TrimSpace(id); id != "" {
				seatIDs = append(seatIDs, id)
			}
		}
	}
	views, err := h.Locks.CheckSeats(c.Request().Context(), eventID, seatIDs)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load seat availability"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"seats": views,
	})
}
