// Package service implements the seat inventory operations: lock
// management, expiry reclamation, booking confirmation and ticket
// lifecycle.  Contention outcomes are typed values defined here; they
// are normal control flow under concurrent demand and are never logged
// as errors.
package service

import (
	"errors"
	"fmt"
)

// ErrNoSeats is returned when a request names no valid seat ids.
var ErrNoSeats = errors.New("no seats requested")

// ErrNotLockOwner is returned by extend when at least one seat is not
// currently locked by the caller.  The operation leaves no side effects.
var ErrNotLockOwner = errors.New("not lock owner")

// ErrAlreadyBooked is returned by confirm when the booking id is
// already taken by a different holder's booking.
var ErrAlreadyBooked = errors.New("booking id already used")

// SeatsUnavailableError reports a failed lock grant.  No seat was
// locked; Conflicting names the seats that prevented the grant so the
// caller can re-quote the rest.
type SeatsUnavailableError struct {
	Conflicting []string
}

func (e *SeatsUnavailableError) Error() string {
	return fmt.Sprintf("seats unavailable: %v", e.Conflicting)
}

// LockLostError reports a failed confirm: at least one seat's lock
// expired, was reclaimed or was released before promotion.  Nothing was
// promoted; Seats names the offenders.
type LockLostError struct {
	Seats []string
}

func (e *LockLostError) Error() string {
	return fmt.Sprintf("lock expired or stolen for seats: %v", e.Seats)
}
