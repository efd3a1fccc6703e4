package services

import (
	"context"
	"errors"
	"log"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"bookstore/internal/cache"
	"bookstore/internal/models"
	"bookstore/internal/repositories"
)

// AvailabilityCoordinator owns the copy availability field. Every transition
// is a single conditional write scoped to the copy row: the WHERE clause
// carries the expected current state, and zero affected rows means the state
// was not what the caller assumed. Nothing here reads availability first to
// decide whether to write; that pattern races across two round trips.
type AvailabilityCoordinator struct {
	copies    repositories.CopyRepository
	copyCache *cache.CopyCache
}

// NewAvailabilityCoordinator wires the coordinator. copyCache may be nil.
func NewAvailabilityCoordinator(copies repositories.CopyRepository, copyCache *cache.CopyCache) *AvailabilityCoordinator {
	return &AvailabilityCoordinator{copies: copies, copyCache: copyCache}
}

// TryAcquire atomically flips AVAILABLE to LOANED. Exactly one of any number
// of concurrent callers can win; losers get ErrCopyUnavailable and must not
// retry internally; the copy was taken, which is a normal outcome.
func (c *AvailabilityCoordinator) TryAcquire(ctx context.Context, tx *gorm.DB, copyID uuid.UUID) error {
	n, err := c.copies.UpdateAvailabilityIf(tx, copyID,
		[]models.CopyAvailability{models.CopyAvailable}, models.CopyLoaned)
	if err != nil {
		return err
	}
	if n == 0 {
		return c.missReason(tx, copyID, ErrCopyUnavailable)
	}
	c.copyCache.Invalidate(ctx, copyID)
	return nil
}

// Release flips LOANED back to AVAILABLE. Called only from the loan-return
// path after the record is already marked RETURNED in the same transaction.
func (c *AvailabilityCoordinator) Release(ctx context.Context, tx *gorm.DB, copyID uuid.UUID) error {
	n, err := c.copies.UpdateAvailabilityIf(tx, copyID,
		[]models.CopyAvailability{models.CopyLoaned}, models.CopyAvailable)
	if err != nil {
		return err
	}
	if n == 0 {
		return c.missReason(tx, copyID, ErrCopyNotLoaned)
	}
	c.copyCache.Invalidate(ctx, copyID)
	return nil
}

// MarkLost flips LOANED to LOST. LOST is terminal until a manual catalog
// correction, which happens outside this system.
func (c *AvailabilityCoordinator) MarkLost(ctx context.Context, tx *gorm.DB, copyID uuid.UUID) error {
	n, err := c.copies.UpdateAvailabilityIf(tx, copyID,
		[]models.CopyAvailability{models.CopyLoaned}, models.CopyLost)
	if err != nil {
		return err
	}
	if n == 0 {
		return c.missReason(tx, copyID, ErrCopyNotLoaned)
	}
	c.copyCache.Invalidate(ctx, copyID)
	return nil
}

// GetAvailability is the read-through path: cache first, store on miss.
func (c *AvailabilityCoordinator) GetAvailability(ctx context.Context, copyID uuid.UUID) (models.CopyAvailability, error) {
	if a, ok := c.copyCache.GetAvailability(ctx, copyID); ok {
		return a, nil
	}
	copy, err := c.copies.GetByID(nil, copyID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrCopyNotFound
		}
		return "", err
	}
	c.copyCache.SetAvailability(ctx, copyID, copy.Availability)
	return copy.Availability, nil
}

// missReason distinguishes "row missing" from "row in another state" after a
// zero-row conditional write.
func (c *AvailabilityCoordinator) missReason(tx *gorm.DB, copyID uuid.UUID, stateErr *Error) error {
	if _, err := c.copies.GetByID(tx, copyID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrCopyNotFound
		}
		log.Printf("[ERROR] availability: lookup after failed conditional write on copy %s: %v", copyID, err)
		return err
	}
	return stateErr
}
