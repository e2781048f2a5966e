package handler

import (
	"net/http" // HTTP status codes

	"github.com/labstack/echo/v4" // Echo web framework

	"github.com/tickethub/seat-inventory/internal/service"
)

// TicketHandler exposes admission scan validation to gate scanners.
type TicketHandler struct {
	Tickets *service.TicketService
}

// NewTicketHandler constructs a TicketHandler.  The service must be non-nil.
func NewTicketHandler(tickets *service.TicketService) *TicketHandler {
	if tickets == nil {
		panic("nil service passed to NewTicketHandler")
	}
	return &TicketHandler{Tickets: tickets}
}

type scanRequest struct {
	TicketID     string `json:"ticket_id"`
	EventID      string `json:"event_id"`
	CheckpointID string `json:"checkpoint_id"`
	ScannerID    string `json:"scanner_id"`
}

// Scan handles POST /v1/tickets/scan.  A rejected scan is still a 200:
// the scanner needs the outcome and reason, and every attempt is
// recorded server-side either way.
func (h *TicketHandler) Scan(c echo.Context) error {
	var body scanRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.TicketID == "" || body.EventID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "ticket_id and event_id are required"})
	}

	outcome, err := h.Tickets.ValidateAndInvalidate(c.Request().Context(), body.TicketID, body.EventID, body.CheckpointID, body.ScannerID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to validate ticket"})
	}
	return c.JSON(http.StatusOK, outcome)
}
