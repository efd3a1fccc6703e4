package services

import (
	"context"
	"errors"
	"log"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"bookstore/internal/models"
	"bookstore/internal/repositories"
)

// CatalogService covers the minimal catalog surface the lending flow needs:
// titles, physical copies, and readers. Full catalog management (categories,
// descriptions, corrections) lives elsewhere.
type CatalogService struct {
	db      *gorm.DB
	titles  repositories.TitleRepository
	copies  repositories.CopyRepository
	readers repositories.ReaderRepository
	avail   *AvailabilityCoordinator
}

func NewCatalogService(
	db *gorm.DB,
	titles repositories.TitleRepository,
	copies repositories.CopyRepository,
	readers repositories.ReaderRepository,
	avail *AvailabilityCoordinator,
) *CatalogService {
	return &CatalogService{
		db:      db,
		titles:  titles,
		copies:  copies,
		readers: readers,
		avail:   avail,
	}
}

func (s *CatalogService) CreateTitle(ctx context.Context, title, author, isbn, publisher string) (*models.Title, error) {
	t := &models.Title{
		Title:     title,
		Author:    author,
		ISBN:      isbn,
		Publisher: publisher,
	}
	if err := s.titles.Create(s.db.WithContext(ctx), t); err != nil {
		return nil, err
	}
	log.Printf("[INFO] CreateTitle: %q by %s (id=%s)", title, author, t.ID)
	return t, nil
}

// AddCopy registers a new physical copy; it enters circulation AVAILABLE.
func (s *CatalogService) AddCopy(ctx context.Context, titleID uuid.UUID, barcode string) (*models.Copy, error) {
	if _, err := s.titles.GetByID(s.db.WithContext(ctx), titleID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTitleNotFound
		}
		return nil, err
	}

	copy := &models.Copy{
		TitleID:      titleID,
		Barcode:      barcode,
		Availability: models.CopyAvailable,
	}
	if err := s.copies.Create(s.db.WithContext(ctx), copy); err != nil {
		return nil, err
	}
	log.Printf("[INFO] AddCopy: copy %s (barcode=%s) added to title %s", copy.ID, barcode, titleID)
	return copy, nil
}

func (s *CatalogService) ListTitles(ctx context.Context) ([]models.Title, error) {
	return s.titles.List(s.db.WithContext(ctx))
}

func (s *CatalogService) ListCopies(ctx context.Context, titleID uuid.UUID) ([]models.Copy, error) {
	return s.copies.ListByTitle(s.db.WithContext(ctx), titleID)
}

func (s *CatalogService) GetCopy(ctx context.Context, copyID uuid.UUID) (*models.Copy, error) {
	copy, err := s.copies.GetByID(s.db.WithContext(ctx), copyID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCopyNotFound
		}
		return nil, err
	}
	return copy, nil
}

// GetCopyAvailability is the cache-backed read path for the hot availability
// lookups the transport layer makes.
func (s *CatalogService) GetCopyAvailability(ctx context.Context, copyID uuid.UUID) (models.CopyAvailability, error) {
	return s.avail.GetAvailability(ctx, copyID)
}

func (s *CatalogService) CreateReader(ctx context.Context, name, email string) (*models.Reader, error) {
	reader := &models.Reader{
		Name:  name,
		Email: email,
	}
	if err := s.readers.Create(s.db.WithContext(ctx), reader); err != nil {
		return nil, err
	}
	log.Printf("[INFO] CreateReader: %s (id=%s)", email, reader.ID)
	return reader, nil
}
