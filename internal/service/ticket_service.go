package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tickethub/seat-inventory/internal/model"
	"github.com/tickethub/seat-inventory/internal/repository"
)

// jobBatch bounds how many due jobs one processing pass takes on.
const jobBatch = 100

// maxBackoffShift caps the exponential backoff at base * 2^5.
const maxBackoffShift = 5

// ScanOutcome is the result of one admission scan attempt.
type ScanOutcome struct {
	Valid          bool       `json:"valid"`
	Reason         string     `json:"reason,omitempty"`
	EntryCount     int        `json:"entry_count"`
	FirstScannedAt *time.Time `json:"first_scanned_at,omitempty"`
}

// TicketService runs the ticket side of a confirmed booking: the
// retryable generation work queue and admission scan validation.
type TicketService struct {
	db            *sql.DB
	tickets       *repository.TicketRepo
	jobs          *repository.TicketJobRepo
	bookings      *repository.BookingRepo
	baseDelay     time.Duration
	multiEntryMax int
}

// NewTicketService constructs a TicketService.  baseDelay seeds the
// generation backoff; multiEntryMax caps MULTI ticket admissions, with
// 0 meaning unlimited.
func NewTicketService(db *sql.DB, tickets *repository.TicketRepo, jobs *repository.TicketJobRepo, bookings *repository.BookingRepo, baseDelay time.Duration, multiEntryMax int) *TicketService {
	if db == nil || tickets == nil || jobs == nil || bookings == nil {
		panic("nil dependency passed to NewTicketService")
	}
	return &TicketService{
		db:            db,
		tickets:       tickets,
		jobs:          jobs,
		bookings:      bookings,
		baseDelay:     baseDelay,
		multiEntryMax: multiEntryMax,
	}
}

// ProcessDueJobs runs every ticket-generation job due at or before now
// and returns how many completed.  Like the expiry sweep, it owns no
// timer and processes jobs independently: one job's failure is recorded
// against that job alone.  A job that exhausts its attempts is marked
// FAILED and left for an operator; its booking and payment stand.
func (s *TicketService) ProcessDueJobs(ctx context.Context, now time.Time) (int, error) {
	due, err := s.jobs.Due(ctx, now, jobBatch)
	if err != nil {
		return 0, err
	}
	completed := 0
	for _, job := range due {
		select {
		case <-ctx.Done():
			return completed, ctx.Err()
		default:
		}

		if err := s.generate(ctx, job); err != nil {
			attempts := job.Attempts + 1
			if attempts >= job.MaxAttempts {
				logrus.Errorf("ticket job %s for booking %s terminal-failed after %d attempts: %v", job.ID, job.BookingID, attempts, err)
				if ferr := s.jobs.MarkFailed(ctx, job.ID, attempts, err.Error()); ferr != nil {
					logrus.Errorf("ticket job %s: mark failed: %v", job.ID, ferr)
				}
				continue
			}
			next := now.Add(s.backoff(attempts))
			logrus.Warnf("ticket job %s attempt %d/%d failed, retrying at %s: %v", job.ID, attempts, job.MaxAttempts, next.Format(time.RFC3339), err)
			if rerr := s.jobs.Reschedule(ctx, job.ID, attempts, next, err.Error()); rerr != nil {
				logrus.Errorf("ticket job %s: reschedule: %v", job.ID, rerr)
			}
			continue
		}
		if err := s.jobs.MarkCompleted(ctx, job.ID); err != nil {
			logrus.Errorf("ticket job %s: mark completed: %v", job.ID, err)
			continue
		}
		completed++
	}
	return completed, nil
}

// backoff doubles the base delay per attempt: base, 2*base, 4*base,
// capped at base << maxBackoffShift.
func (s *TicketService) backoff(attempts int) time.Duration {
	shift := attempts - 1
	if shift < 0 {
		shift = 0
	}
	if shift > maxBackoffShift {
		shift = maxBackoffShift
	}
	return s.baseDelay << shift
}

// generate creates one ticket per booked seat.  The (booking_id,
// seat_id) unique key makes a retry after partial success idempotent.
func (s *TicketService) generate(ctx context.Context, job model.TicketJob) error {
	booking, err := s.bookings.GetByID(ctx, job.BookingID)
	if err != nil {
		return err
	}

	tickets := make([]model.Ticket, 0, len(booking.SeatIDs))
	for _, sid := range booking.SeatIDs {
		code, err := randomToken(16)
		if err != nil {
			return err
		}
		tickets = append(tickets, model.Ticket{
			ID:        uuid.NewString(),
			BookingID: booking.ID,
			EventID:   booking.EventID,
			SeatID:    sid,
			Code:      code,
			Type:      model.TicketSingle,
			Status:    model.TicketActive,
		})
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := s.tickets.CreateBulkTx(ctx, tx, tickets); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// randomToken generates a random hexadecimal string of n*2 characters.
// The underlying call to crypto/rand ensures cryptographically secure
// random bytes.
func randomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// ValidateAndInvalidate decides one admission scan.  Single-entry
// tickets are consumed by their first accepted scan; MULTI tickets
// admit repeatedly up to the configured entry limit.  Every attempt,
// accepted or rejected, is recorded in the audit trail inside the same
// transaction as the decision, and a rejected duplicate reports the
// timestamp of the original entry so operators can investigate.
func (s *TicketService) ValidateAndInvalidate(ctx context.Context, ticketID, eventID, checkpointID, scannerID string) (*ScanOutcome, error) {
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

	record := func(result string) error {
		return s.tickets.RecordScanTx(ctx, tx, model.TicketScan{
			TicketID:     ticketID,
			EventID:      eventID,
			CheckpointID: checkpointID,
			ScannerID:    scannerID,
			Result:       result,
			ScannedAt:    now,
		})
	}

	ticket, err := s.tickets.GetForUpdateTx(ctx, tx, ticketID)
	if err == repository.ErrTicketNotFound {
		if err := record(model.ScanNotFound); err != nil {
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, err
		}
		committed = true
		return &ScanOutcome{Valid: false, Reason: model.ScanNotFound}, nil
	}
	if err != nil {
		return nil, err
	}

	reason := ""
	switch {
	case ticket.EventID != eventID:
		reason = model.ScanWrongEvent
	case ticket.Status == model.TicketUsed:
		// A consumed single-entry ticket scanned again is the classic
		// duplicate; it is rejected but still logged with the original
		// entry time.
		reason = model.ScanAlreadyScanned
	case ticket.Status != model.TicketActive:
		reason = model.ScanInvalidStatus
	case ticket.Type == model.TicketMulti && s.multiEntryMax > 0 && ticket.EntryCount >= s.multiEntryMax:
		reason = model.ScanAlreadyScanned
	}

	if reason != "" {
		outcome := &ScanOutcome{Valid: false, Reason: reason, EntryCount: ticket.EntryCount}
		if reason == model.ScanAlreadyScanned {
			if first, ok, err := s.tickets.FirstAdmittedAtTx(ctx, tx, ticketID); err != nil {
				return nil, err
			} else if ok {
				outcome.FirstScannedAt = &first
			}
		}
		if err := record(reason); err != nil {
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, err
		}
		committed = true
		return outcome, nil
	}

	final := ticket.Type == model.TicketSingle
	won, err := s.tickets.AdmitTx(ctx, tx, ticketID, ticket.EntryCount, final)
	if err != nil {
		return nil, err
	}
	if !won {
		// The FOR UPDATE read should make this unreachable; treat it as
		// a duplicate rather than admit on stale state.
		if err := record(model.ScanAlreadyScanned); err != nil {
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, err
		}
		committed = true
		return &ScanOutcome{Valid: false, Reason: model.ScanAlreadyScanned, EntryCount: ticket.EntryCount}, nil
	}
	if err := record(model.ScanOK); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	return &ScanOutcome{Valid: true, EntryCount: ticket.EntryCount + 1}, nil
}
