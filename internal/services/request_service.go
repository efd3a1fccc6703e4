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
	"bookstore/internal/notifications"
	"bookstore/internal/repositories"
)

// RequestService is the reservation-request state machine:
// PENDING → NOTIFIED | REJECTED | EXPIRED; NOTIFIED → FULFILLED | EXPIRED.
// Promotion is FIFO by requested_at (id as tiebreak) and emits exactly one
// notification event per promoted request, inside the same transaction as the
// transition.
type RequestService struct {
	db            *gorm.DB
	requests      repositories.RequestRepository
	copies        repositories.CopyRepository
	notifications repositories.NotificationRepository
	notifier      notifications.Notifier
	metrics       *metrics.Metrics
	clock         Clock
	graceWindow   time.Duration
}

// NewRequestService wires the request engine. graceWindow is how long a
// NOTIFIED reader has to borrow before the expiry sweep forfeits the request;
// it is deployment configuration, never hard-coded here.
func NewRequestService(
	db *gorm.DB,
	requests repositories.RequestRepository,
	copies repositories.CopyRepository,
	notificationRepo repositories.NotificationRepository,
	notifier notifications.Notifier,
	m *metrics.Metrics,
	clock Clock,
	graceWindow time.Duration,
) *RequestService {
	return &RequestService{
		db:            db,
		requests:      requests,
		copies:        copies,
		notifications: notificationRepo,
		notifier:      notifier,
		metrics:       m,
		clock:         clock,
		graceWindow:   graceWindow,
	}
}

// GraceWindow exposes the configured window for callers reporting it (e.g.
// pickup-by timestamps in API responses).
func (s *RequestService) GraceWindow() time.Duration {
	return s.graceWindow
}

// Request queues the reader for a copy that is currently out. Reservations
// only make sense for unavailable copies; an AVAILABLE copy can simply be
// borrowed.
func (s *RequestService) Request(ctx context.Context, copyID, readerID uuid.UUID) (*models.ReservationRequest, error) {
	now := s.clock.Now()
	var created *models.ReservationRequest

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		copy, err := s.copies.GetByID(tx, copyID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCopyNotFound
			}
			return err
		}
		if copy.Availability == models.CopyAvailable {
			return ErrCopyAlreadyAvailable
		}

		if _, err := s.requests.GetOpenByCopyAndReader(tx, copyID, readerID); err == nil {
			log.Printf("[WARN] Request: reader %s already queued for copy %s", readerID, copyID)
			return ErrDuplicateRequest
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		req := &models.ReservationRequest{
			CopyID:      copyID,
			ReaderID:    readerID,
			RequestedAt: now,
			Status:      models.RequestPending,
		}
		if err := s.requests.Create(tx, req); err != nil {
			// The partial unique index closes the check-then-insert window
			// under concurrent duplicates.
			if isUniqueViolation(err) {
				return ErrDuplicateRequest
			}
			return err
		}
		created = req
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[INFO] Request: reader %s queued for copy %s (id=%s)", readerID, copyID, created.ID)
	return created, nil
}

// PromoteNext advances the longest-waiting PENDING request for the copy to
// NOTIFIED and emits one notification event. Runs inside the caller's
// transaction (loan return, expiry sweep) so the promotion and the state
// change that freed the copy commit together. No PENDING request is a no-op:
// the copy stays open for ordinary borrowing.
func (s *RequestService) PromoteNext(ctx context.Context, tx *gorm.DB, copyID uuid.UUID, now time.Time) error {
	candidates, err := s.requests.ListPendingByCopy(tx, copyID)
	if err != nil {
		return err
	}
	for _, req := range candidates {
		n, err := s.requests.MarkNotifiedIf(tx, req.ID, now)
		if err != nil {
			return err
		}
		if n == 0 {
			// A concurrent promoter or a rejection got here first; try the
			// next candidate in FIFO order.
			continue
		}
		event := notifications.Event{
			ReaderID: req.ReaderID,
			CopyID:   copyID,
			Reason:   notifications.ReasonCopyAvailable,
			SentAt:   now,
		}
		if err := s.notifier.Notify(ctx, tx, event); err != nil {
			return err
		}
		s.metrics.RequestsPromoted.Inc()
		log.Printf("[INFO] PromoteNext: request %s (reader=%s) notified for copy %s", req.ID, req.ReaderID, copyID)
		return nil
	}
	return nil
}

// Fulfill closes out a NOTIFIED request because the notified reader borrowed
// the copy. Invoked standalone or from the borrow path in its transaction.
func (s *RequestService) Fulfill(ctx context.Context, requestID uuid.UUID) (*models.ReservationRequest, error) {
	var updated *models.ReservationRequest

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		req, err := s.requests.GetByID(tx, requestID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRequestNotFound
			}
			return err
		}
		n, err := s.requests.MarkFulfilledIf(tx, requestID)
		if err != nil {
			return err
		}
		if n == 0 {
			if req.Status == models.RequestExpired {
				return ErrRequestExpired
			}
			return ErrRequestNotNotified
		}
		reloaded, err := s.requests.GetByID(tx, requestID)
		if err != nil {
			return err
		}
		updated = reloaded
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[INFO] Fulfill: request %s fulfilled", requestID)
	return updated, nil
}

// fulfillForBorrow marks the borrower's NOTIFIED request (if any) FULFILLED
// inside the borrow transaction. A borrower without a request is the normal
// open-borrowing case.
func (s *RequestService) fulfillForBorrow(tx *gorm.DB, copyID, readerID uuid.UUID) error {
	req, err := s.requests.GetNotifiedByCopyAndReader(tx, copyID, readerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	if _, err := s.requests.MarkFulfilledIf(tx, req.ID); err != nil {
		return err
	}
	log.Printf("[INFO] Borrow: fulfilled request %s for reader %s on copy %s", req.ID, readerID, copyID)
	return nil
}

// Reject is the librarian's refusal of a PENDING request. Who may call it is
// decided upstream.
func (s *RequestService) Reject(ctx context.Context, requestID uuid.UUID) (*models.ReservationRequest, error) {
	var updated *models.ReservationRequest

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.requests.GetByID(tx, requestID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRequestNotFound
			}
			return err
		}
		n, err := s.requests.MarkRejectedIf(tx, requestID)
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrRequestNotPending
		}
		reloaded, err := s.requests.GetByID(tx, requestID)
		if err != nil {
			return err
		}
		updated = reloaded
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[INFO] Reject: request %s rejected", requestID)
	return updated, nil
}

// SweepExpired forfeits NOTIFIED requests whose grace window elapsed and
// promotes the next waiter for each affected copy. Each row runs in its own
// transaction: one bad row is logged and counted, never stalls the rest, and
// re-running the sweep (crash recovery, overlapping schedules) cannot
// double-transition because each expiry is a conditional write.
func (s *RequestService) SweepExpired(ctx context.Context) (int, error) {
	now := s.clock.Now()
	cutoff := now.Add(-s.graceWindow)

	candidates, err := s.requests.ListNotifiedBefore(nil, cutoff)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, req := range candidates {
		var transitioned bool
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			n, err := s.requests.MarkExpiredIf(tx, req.ID)
			if err != nil {
				return err
			}
			if n == 0 {
				// Fulfilled or expired since listing; nothing to do.
				return nil
			}
			transitioned = true
			return s.PromoteNext(ctx, tx, req.CopyID, now)
		})
		if err != nil {
			s.metrics.SweepRowFailures.Inc()
			log.Printf("[ERROR] SweepExpired: request %s skipped: %v", req.ID, err)
			continue
		}
		if transitioned {
			expired++
			s.metrics.RequestsExpired.Inc()
		}
	}
	if expired > 0 {
		log.Printf("[INFO] SweepExpired: %d request(s) expired", expired)
	}
	return expired, nil
}

// ListForCopy returns a copy's full request history in queue order.
func (s *RequestService) ListForCopy(ctx context.Context, copyID uuid.UUID) ([]models.ReservationRequest, error) {
	return s.requests.ListByCopy(s.db.WithContext(ctx), copyID)
}

// ListReaderNotifications returns the promotion events emitted for a reader,
// newest first.
func (s *RequestService) ListReaderNotifications(ctx context.Context, readerID uuid.UUID) ([]models.Notification, error) {
	return s.notifications.ListByReader(s.db.WithContext(ctx), readerID)
}
