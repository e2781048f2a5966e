// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as
// services to distinguish between different failure scenarios without
// inspecting driver errors. Contention outcomes (a seat already locked,
// a lock entry already claimed) are NOT errors at this layer: the
// conditional updates report them through affected row counts so the
// service layer can turn them into typed results.
package repository

import "errors"

// ErrBookingNotFound is returned when a booking lookup yields no rows.
var ErrBookingNotFound = errors.New("booking not found")

// ErrTicketNotFound is returned when a ticket lookup yields no rows.
var ErrTicketNotFound = errors.New("ticket not found")
