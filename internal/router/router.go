package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing

	"github.com/tickethub/seat-inventory/internal/handler" // import the handlers that implement the operation contract
)

// RegisterRoutes registers routes that do not depend on the inventory
// services.  Currently it exposes only a health check, used by load
// balancers and monitoring systems to verify that the service is up.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterInventory registers the seat inventory operation contract.
// The routes map 1:1 onto the core operations; the REST layer adds no
// semantics of its own.
func RegisterInventory(e *echo.Echo, l *handler.LockHandler, b *handler.BookingHandler, t *handler.TicketHandler) {
	g := e.Group("/v1")
	// Lock lifecycle for one event's seats.
	g.POST("/events/:id/locks", l.Lock)
	g.PATCH("/events/:id/locks", l.Extend)
	g.DELETE("/events/:id/locks", l.Release)
	// Read-only availability used by seat maps; takes no locks.
	g.GET("/events/:id/seats", l.CheckSeats)
	// Promotion of held seats into a booking, called by the payment
	// collaborator after it has verified the payment.
	g.POST("/events/:id/confirm", b.Confirm)
	// Admission scan validation at entry checkpoints.
	g.POST("/tickets/scan", t.Scan)
}
