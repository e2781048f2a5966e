package model

import "time"

// TicketType distinguishes single-entry tickets, which are consumed by
// their first scan, from multi-entry tickets, which admit repeatedly up
// to a configurable entry limit.
type TicketType string

const (
	TicketSingle TicketType = "SINGLE"
	TicketMulti  TicketType = "MULTI"
)

// TicketStatus enumerates ticket lifecycle states.  USED is the
// terminal state of a consumed single-entry ticket; VOID marks tickets
// invalidated by operators.
type TicketStatus string

const (
	TicketActive TicketStatus = "ACTIVE"
	TicketUsed   TicketStatus = "USED"
	TicketVoid   TicketStatus = "VOID"
)

// Ticket is the entry artifact generated for one booked seat.
type Ticket struct {
	ID         string       // tickets.id (uuid)
	BookingID  string       // tickets.booking_id
	EventID    string       // tickets.event_id
	SeatID     string       // tickets.seat_id
	Code       string       // tickets.code, random opaque token printed on the ticket
	Type       TicketType   // tickets.type
	Status     TicketStatus // tickets.status
	EntryCount int          // tickets.entry_count
	CreatedAt  time.Time    // tickets.created_at
}

// ScanResult values recorded for every scan attempt, accepted or not.
const (
	ScanOK             = "OK"
	ScanNotFound       = "NOT_FOUND"
	ScanWrongEvent     = "WRONG_EVENT"
	ScanInvalidStatus  = "INVALID_STATUS"
	ScanAlreadyScanned = "ALREADY_SCANNED"
)

// TicketScan is the audit record of a single scan attempt at an entry
// checkpoint.  Rejected attempts are recorded with their reason so
// operators can investigate duplicate-scan incidents.
type TicketScan struct {
	ID           uint64    // ticket_scans.id
	TicketID     string    // ticket_scans.ticket_id
	EventID      string    // ticket_scans.event_id
	CheckpointID string    // ticket_scans.checkpoint_id
	ScannerID    string    // ticket_scans.scanner_id
	Result       string    // ticket_scans.result
	ScannedAt    time.Time // ticket_scans.scanned_at
}
