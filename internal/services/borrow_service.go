package services

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"bookstore/internal/metrics"
	"bookstore/internal/models"
	"bookstore/internal/repositories"
)

// BorrowService is the loan-record state machine:
// ACTIVE → RETURNED | OVERDUE | LOST; OVERDUE → RETURNED | LOST.
// Availability changes are delegated to the coordinator; every multi-row
// effect runs in one storage transaction so callers never observe a copy
// released without its record closed, or vice versa.
type BorrowService struct {
	db       *gorm.DB
	loans    repositories.LoanRepository
	readers  repositories.ReaderRepository
	avail    *AvailabilityCoordinator
	requests *RequestService
	metrics  *metrics.Metrics
	clock    Clock
}

func NewBorrowService(
	db *gorm.DB,
	loans repositories.LoanRepository,
	readers repositories.ReaderRepository,
	avail *AvailabilityCoordinator,
	requests *RequestService,
	m *metrics.Metrics,
	clock Clock,
) *BorrowService {
	return &BorrowService{
		db:       db,
		loans:    loans,
		readers:  readers,
		avail:    avail,
		requests: requests,
		metrics:  m,
		clock:    clock,
	}
}

// Borrow acquires the copy through the coordinator's conditional write and
// creates the ACTIVE loan record. Two concurrent borrowers cannot both
// succeed: the single compare-and-swap on availability is the gate, not a
// prior read. Losing the race surfaces as ErrCopyUnavailable with no record
// created. If the borrower is the reader a promotion notified, that request
// is fulfilled in the same transaction.
func (s *BorrowService) Borrow(ctx context.Context, copyID, readerID uuid.UUID, dueAt time.Time) (*models.LoanRecord, error) {
	now := s.clock.Now()
	if !dueAt.After(now) {
		return nil, ErrDueDateNotInFuture
	}

	var created *models.LoanRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.readers.GetByID(tx, readerID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrReaderNotFound
			}
			return err
		}

		if err := s.avail.TryAcquire(ctx, tx, copyID); err != nil {
			return err
		}

		loan := &models.LoanRecord{
			CopyID:     copyID,
			ReaderID:   readerID,
			BorrowedAt: now,
			DueAt:      dueAt,
			Status:     models.LoanActive,
		}
		if err := s.loans.Create(tx, loan); err != nil {
			return err
		}

		if err := s.requests.fulfillForBorrow(tx, copyID, readerID); err != nil {
			return err
		}

		created = loan
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrCopyUnavailable) {
			s.metrics.BorrowConflicts.Inc()
			log.Printf("[INFO] Borrow: copy %s taken, reader %s lost the race", copyID, readerID)
		}
		return nil, err
	}
	log.Printf("[INFO] Borrow: loan %s created for reader %s on copy %s, due %s",
		created.ID, readerID, copyID, dueAt.Format(time.RFC3339))
	return created, nil
}

// Return closes an ACTIVE or OVERDUE loan, frees the copy, and promotes the
// next queued request, all in one transaction, so the caller observes a
// consistent world when this returns.
func (s *BorrowService) Return(ctx context.Context, loanID uuid.UUID) (*models.LoanRecord, error) {
	now := s.clock.Now()
	var updated *models.LoanRecord

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		loan, err := s.loans.GetByID(tx, loanID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrLoanNotFound
			}
			return err
		}

		n, err := s.loans.MarkReturnedIf(tx, loanID, now)
		if err != nil {
			return err
		}
		if n == 0 {
			log.Printf("[WARN] Return: loan %s is %s, not on loan", loanID, loan.Status)
			return ErrNotOnLoan
		}

		if err := s.avail.Release(ctx, tx, loan.CopyID); err != nil {
			return err
		}

		if err := s.requests.PromoteNext(ctx, tx, loan.CopyID, now); err != nil {
			return err
		}

		reloaded, err := s.loans.GetByID(tx, loanID)
		if err != nil {
			return err
		}
		updated = reloaded
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[INFO] Return: loan %s returned, copy %s released", loanID, updated.CopyID)
	return updated, nil
}

// MarkLost closes the loan as LOST and marks the copy LOST. The reservation
// queue is not promoted: a lost copy cannot satisfy anyone.
func (s *BorrowService) MarkLost(ctx context.Context, loanID uuid.UUID) (*models.LoanRecord, error) {
	var updated *models.LoanRecord

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		loan, err := s.loans.GetByID(tx, loanID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrLoanNotFound
			}
			return err
		}

		n, err := s.loans.MarkLostIf(tx, loanID)
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotOnLoan
		}

		if err := s.avail.MarkLost(ctx, tx, loan.CopyID); err != nil {
			return err
		}

		reloaded, err := s.loans.GetByID(tx, loanID)
		if err != nil {
			return err
		}
		updated = reloaded
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[WARN] MarkLost: loan %s closed as lost, copy %s out of circulation", loanID, updated.CopyID)
	return updated, nil
}

// SweepOverdue flips every ACTIVE loan past its due date to OVERDUE. Each
// transition is a conditional write on status=ACTIVE, so overlapping or
// re-run sweeps settle on the same end state without errors or double
// transitions. The copy stays LOANED. One bad row is logged and counted;
// the sweep continues.
func (s *BorrowService) SweepOverdue(ctx context.Context) (int, error) {
	now := s.clock.Now()

	candidates, err := s.loans.ListActiveDueBefore(s.db.WithContext(ctx), now)
	if err != nil {
		return 0, err
	}

	swept := 0
	for _, loan := range candidates {
		n, err := s.loans.MarkOverdueIf(s.db.WithContext(ctx), loan.ID)
		if err != nil {
			s.metrics.SweepRowFailures.Inc()
			log.Printf("[ERROR] SweepOverdue: loan %s skipped: %v", loan.ID, err)
			continue
		}
		if n == 0 {
			// Returned, lost, or already swept since listing.
			continue
		}
		swept++
		s.metrics.LoansSweptOverdue.Inc()
	}
	if swept > 0 {
		log.Printf("[INFO] SweepOverdue: %d loan(s) now overdue", swept)
	}
	return swept, nil
}

// GetLoan returns a single loan record.
func (s *BorrowService) GetLoan(ctx context.Context, loanID uuid.UUID) (*models.LoanRecord, error) {
	loan, err := s.loans.GetByID(s.db.WithContext(ctx), loanID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLoanNotFound
		}
		return nil, err
	}
	return loan, nil
}

// ListReaderLoans returns a reader's borrow history, optionally filtered by
// status, newest first.
func (s *BorrowService) ListReaderLoans(ctx context.Context, readerID uuid.UUID, statuses []models.LoanStatus) ([]models.LoanRecord, error) {
	return s.loans.ListByReader(s.db.WithContext(ctx), readerID, statuses)
}
