package repositories

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"bookstore/internal/models"
)

// Conditional updates ("...If" methods) compare against the expected current
// status in the WHERE clause and report how many rows changed. Callers decide
// what zero rows means (lost race, illegal transition, missing row). This is
// the only write discipline used for status fields; nothing here does
// read-then-write.

type ReaderRepository interface {
	Create(db *gorm.DB, reader *models.Reader) error
	GetByID(db *gorm.DB, id uuid.UUID) (*models.Reader, error)
}

type TitleRepository interface {
	Create(db *gorm.DB, title *models.Title) error
	GetByID(db *gorm.DB, id uuid.UUID) (*models.Title, error)
	List(db *gorm.DB) ([]models.Title, error)
}

type CopyRepository interface {
	Create(db *gorm.DB, copy *models.Copy) error
	GetByID(db *gorm.DB, id uuid.UUID) (*models.Copy, error)
	ListByTitle(db *gorm.DB, titleID uuid.UUID) ([]models.Copy, error)
	// UpdateAvailabilityIf flips availability only when the current value is
	// one of `from`, returning the affected-row count.
	UpdateAvailabilityIf(db *gorm.DB, id uuid.UUID, from []models.CopyAvailability, to models.CopyAvailability) (int64, error)
}

type LoanRepository interface {
	Create(db *gorm.DB, loan *models.LoanRecord) error
	GetByID(db *gorm.DB, id uuid.UUID) (*models.LoanRecord, error)
	MarkReturnedIf(db *gorm.DB, id uuid.UUID, returnedAt time.Time) (int64, error)
	MarkLostIf(db *gorm.DB, id uuid.UUID) (int64, error)
	MarkOverdueIf(db *gorm.DB, id uuid.UUID) (int64, error)
	ListActiveDueBefore(db *gorm.DB, cutoff time.Time) ([]models.LoanRecord, error)
	ListByReader(db *gorm.DB, readerID uuid.UUID, statuses []models.LoanStatus) ([]models.LoanRecord, error)
}

type RequestRepository interface {
	Create(db *gorm.DB, req *models.ReservationRequest) error
	GetByID(db *gorm.DB, id uuid.UUID) (*models.ReservationRequest, error)
	GetOpenByCopyAndReader(db *gorm.DB, copyID, readerID uuid.UUID) (*models.ReservationRequest, error)
	GetNotifiedByCopyAndReader(db *gorm.DB, copyID, readerID uuid.UUID) (*models.ReservationRequest, error)
	ListPendingByCopy(db *gorm.DB, copyID uuid.UUID) ([]models.ReservationRequest, error)
	ListNotifiedBefore(db *gorm.DB, cutoff time.Time) ([]models.ReservationRequest, error)
	ListByCopy(db *gorm.DB, copyID uuid.UUID) ([]models.ReservationRequest, error)
	MarkNotifiedIf(db *gorm.DB, id uuid.UUID, notifiedAt time.Time) (int64, error)
	MarkFulfilledIf(db *gorm.DB, id uuid.UUID) (int64, error)
	MarkRejectedIf(db *gorm.DB, id uuid.UUID) (int64, error)
	MarkExpiredIf(db *gorm.DB, id uuid.UUID) (int64, error)
}

type NotificationRepository interface {
	Create(db *gorm.DB, n *models.Notification) error
	ListByReader(db *gorm.DB, readerID uuid.UUID) ([]models.Notification, error)
}

// concrete implementations

type readerRepository struct {
	db *gorm.DB
}

func NewReaderRepository(db *gorm.DB) ReaderRepository {
	return &readerRepository{db: db}
}

func (r *readerRepository) Create(db *gorm.DB, reader *models.Reader) error {
	if db == nil {
		db = r.db
	}
	return db.Create(reader).Error
}

func (r *readerRepository) GetByID(db *gorm.DB, id uuid.UUID) (*models.Reader, error) {
	if db == nil {
		db = r.db
	}
	var reader models.Reader
	if err := db.First(&reader, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &reader, nil
}

type titleRepository struct {
	db *gorm.DB
}

func NewTitleRepository(db *gorm.DB) TitleRepository {
	return &titleRepository{db: db}
}

func (r *titleRepository) Create(db *gorm.DB, title *models.Title) error {
	if db == nil {
		db = r.db
	}
	return db.Create(title).Error
}

func (r *titleRepository) GetByID(db *gorm.DB, id uuid.UUID) (*models.Title, error) {
	if db == nil {
		db = r.db
	}
	var title models.Title
	if err := db.First(&title, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &title, nil
}

func (r *titleRepository) List(db *gorm.DB) ([]models.Title, error) {
	if db == nil {
		db = r.db
	}
	var titles []models.Title
	if err := db.Order("title ASC").Find(&titles).Error; err != nil {
		return nil, err
	}
	return titles, nil
}

type copyRepository struct {
	db *gorm.DB
}

func NewCopyRepository(db *gorm.DB) CopyRepository {
	return &copyRepository{db: db}
}

func (r *copyRepository) Create(db *gorm.DB, copy *models.Copy) error {
	if db == nil {
		db = r.db
	}
	return db.Create(copy).Error
}

func (r *copyRepository) GetByID(db *gorm.DB, id uuid.UUID) (*models.Copy, error) {
	if db == nil {
		db = r.db
	}
	var copy models.Copy
	if err := db.First(&copy, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &copy, nil
}

func (r *copyRepository) ListByTitle(db *gorm.DB, titleID uuid.UUID) ([]models.Copy, error) {
	if db == nil {
		db = r.db
	}
	var copies []models.Copy
	if err := db.Where("title_id = ?", titleID).Order("barcode ASC").Find(&copies).Error; err != nil {
		return nil, err
	}
	return copies, nil
}

func (r *copyRepository) UpdateAvailabilityIf(db *gorm.DB, id uuid.UUID, from []models.CopyAvailability, to models.CopyAvailability) (int64, error) {
	if db == nil {
		db = r.db
	}
	res := db.Model(&models.Copy{}).
		Where("id = ? AND availability IN ?", id, from).
		Update("availability", to)
	return res.RowsAffected, res.Error
}

type loanRepository struct {
	db *gorm.DB
}

func NewLoanRepository(db *gorm.DB) LoanRepository {
	return &loanRepository{db: db}
}

func (r *loanRepository) Create(db *gorm.DB, loan *models.LoanRecord) error {
	if db == nil {
		db = r.db
	}
	return db.Create(loan).Error
}

func (r *loanRepository) GetByID(db *gorm.DB, id uuid.UUID) (*models.LoanRecord, error) {
	if db == nil {
		db = r.db
	}
	var loan models.LoanRecord
	if err := db.First(&loan, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &loan, nil
}

func (r *loanRepository) MarkReturnedIf(db *gorm.DB, id uuid.UUID, returnedAt time.Time) (int64, error) {
	if db == nil {
		db = r.db
	}
	res := db.Model(&models.LoanRecord{}).
		Where("id = ? AND status IN ?", id, []models.LoanStatus{models.LoanActive, models.LoanOverdue}).
		Updates(map[string]interface{}{
			"status":      models.LoanReturned,
			"returned_at": returnedAt,
		})
	return res.RowsAffected, res.Error
}

func (r *loanRepository) MarkLostIf(db *gorm.DB, id uuid.UUID) (int64, error) {
	if db == nil {
		db = r.db
	}
	res := db.Model(&models.LoanRecord{}).
		Where("id = ? AND status IN ?", id, []models.LoanStatus{models.LoanActive, models.LoanOverdue}).
		Update("status", models.LoanLost)
	return res.RowsAffected, res.Error
}

func (r *loanRepository) MarkOverdueIf(db *gorm.DB, id uuid.UUID) (int64, error) {
	if db == nil {
		db = r.db
	}
	res := db.Model(&models.LoanRecord{}).
		Where("id = ? AND status = ?", id, models.LoanActive).
		Update("status", models.LoanOverdue)
	return res.RowsAffected, res.Error
}

func (r *loanRepository) ListActiveDueBefore(db *gorm.DB, cutoff time.Time) ([]models.LoanRecord, error) {
	if db == nil {
		db = r.db
	}
	var loans []models.LoanRecord
	err := db.Where("status = ? AND due_at < ?", models.LoanActive, cutoff).
		Order("due_at ASC").
		Find(&loans).Error
	if err != nil {
		return nil, err
	}
	return loans, nil
}

func (r *loanRepository) ListByReader(db *gorm.DB, readerID uuid.UUID, statuses []models.LoanStatus) ([]models.LoanRecord, error) {
	if db == nil {
		db = r.db
	}
	q := db.Where("reader_id = ?", readerID)
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	var loans []models.LoanRecord
	if err := q.Order("borrowed_at DESC").Find(&loans).Error; err != nil {
		return nil, err
	}
	return loans, nil
}

type requestRepository struct {
	db *gorm.DB
}

func NewRequestRepository(db *gorm.DB) RequestRepository {
	return &requestRepository{db: db}
}

func (r *requestRepository) Create(db *gorm.DB, req *models.ReservationRequest) error {
	if db == nil {
		db = r.db
	}
	return db.Create(req).Error
}

func (r *requestRepository) GetByID(db *gorm.DB, id uuid.UUID) (*models.ReservationRequest, error) {
	if db == nil {
		db = r.db
	}
	var req models.ReservationRequest
	if err := db.First(&req, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *requestRepository) GetOpenByCopyAndReader(db *gorm.DB, copyID, readerID uuid.UUID) (*models.ReservationRequest, error) {
	if db == nil {
		db = r.db
	}
	var req models.ReservationRequest
	err := db.Where("copy_id = ? AND reader_id = ? AND status IN ?",
		copyID, readerID, []models.RequestStatus{models.RequestPending, models.RequestNotified}).
		First(&req).Error
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *requestRepository) GetNotifiedByCopyAndReader(db *gorm.DB, copyID, readerID uuid.UUID) (*models.ReservationRequest, error) {
	if db == nil {
		db = r.db
	}
	var req models.ReservationRequest
	err := db.Where("copy_id = ? AND reader_id = ? AND status = ?",
		copyID, readerID, models.RequestNotified).
		First(&req).Error
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// ListPendingByCopy returns the promotion queue for a copy: oldest request
// first, id as a deterministic tiebreak.
func (r *requestRepository) ListPendingByCopy(db *gorm.DB, copyID uuid.UUID) ([]models.ReservationRequest, error) {
	if db == nil {
		db = r.db
	}
	var reqs []models.ReservationRequest
	err := db.Where("copy_id = ? AND status = ?", copyID, models.RequestPending).
		Order("requested_at ASC, id ASC").
		Find(&reqs).Error
	if err != nil {
		return nil, err
	}
	return reqs, nil
}

func (r *requestRepository) ListNotifiedBefore(db *gorm.DB, cutoff time.Time) ([]models.ReservationRequest, error) {
	if db == nil {
		db = r.db
	}
	var reqs []models.ReservationRequest
	err := db.Where("status = ? AND notified_at < ?", models.RequestNotified, cutoff).
		Order("notified_at ASC").
		Find(&reqs).Error
	if err != nil {
		return nil, err
	}
	return reqs, nil
}

func (r *requestRepository) ListByCopy(db *gorm.DB, copyID uuid.UUID) ([]models.ReservationRequest, error) {
	if db == nil {
		db = r.db
	}
	var reqs []models.ReservationRequest
	err := db.Where("copy_id = ?", copyID).
		Order("requested_at ASC, id ASC").
		Find(&reqs).Error
	if err != nil {
		return nil, err
	}
	return reqs, nil
}

func (r *requestRepository) MarkNotifiedIf(db *gorm.DB, id uuid.UUID, notifiedAt time.Time) (int64, error) {
	if db == nil {
		db = r.db
	}
	res := db.Model(&models.ReservationRequest{}).
		Where("id = ? AND status = ?", id, models.RequestPending).
		Updates(map[string]interface{}{
			"status":      models.RequestNotified,
			"notified_at": notifiedAt,
		})
	return res.RowsAffected, res.Error
}

func (r *requestRepository) MarkFulfilledIf(db *gorm.DB, id uuid.UUID) (int64, error) {
	if db == nil {
		db = r.db
	}
	res := db.Model(&models.ReservationRequest{}).
		Where("id = ? AND status = ?", id, models.RequestNotified).
		Update("status", models.RequestFulfilled)
	return res.RowsAffected, res.Error
}

func (r *requestRepository) MarkRejectedIf(db *gorm.DB, id uuid.UUID) (int64, error) {
	if db == nil {
		db = r.db
	}
	res := db.Model(&models.ReservationRequest{}).
		Where("id = ? AND status = ?", id, models.RequestPending).
		Update("status", models.RequestRejected)
	return res.RowsAffected, res.Error
}

func (r *requestRepository) MarkExpiredIf(db *gorm.DB, id uuid.UUID) (int64, error) {
	if db == nil {
		db = r.db
	}
	res := db.Model(&models.ReservationRequest{}).
		Where("id = ? AND status = ?", id, models.RequestNotified).
		Update("status", models.RequestExpired)
	return res.RowsAffected, res.Error
}

type notificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) Create(db *gorm.DB, n *models.Notification) error {
	if db == nil {
		db = r.db
	}
	return db.Create(n).Error
}

func (r *notificationRepository) ListByReader(db *gorm.DB, readerID uuid.UUID) ([]models.Notification, error) {
	if db == nil {
		db = r.db
	}
	var ns []models.Notification
	if err := db.Where("reader_id = ?", readerID).Order("sent_at DESC").Find(&ns).Error; err != nil {
		return nil, err
	}
	return ns, nil
}
