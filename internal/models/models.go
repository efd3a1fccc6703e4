package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ─── Status Types ─────────────────────────────────────────────────────────────

type CopyAvailability string

const (
	CopyAvailable CopyAvailability = "AVAILABLE"
	CopyLoaned    CopyAvailability = "LOANED"
	CopyLost      CopyAvailability = "LOST"
)

type LoanStatus string

const (
	LoanActive   LoanStatus = "ACTIVE"
	LoanOverdue  LoanStatus = "OVERDUE"
	LoanReturned LoanStatus = "RETURNED"
	LoanLost     LoanStatus = "LOST"
)

// OnLoan reports whether the record still ties up its copy.
// A loan counts as active while ACTIVE or OVERDUE.
func (s LoanStatus) OnLoan() bool {
	return s == LoanActive || s == LoanOverdue
}

// CanTransitionTo is the single source of truth for loan transitions.
// RETURNED and LOST are terminal; OVERDUE can still be returned or lost.
func (s LoanStatus) CanTransitionTo(next LoanStatus) bool {
	switch s {
	case LoanActive:
		return next == LoanReturned || next == LoanOverdue || next == LoanLost
	case LoanOverdue:
		return next == LoanReturned || next == LoanLost
	default:
		return false
	}
}

type RequestStatus string

const (
	RequestPending   RequestStatus = "PENDING"
	RequestNotified  RequestStatus = "NOTIFIED"
	RequestFulfilled RequestStatus = "FULFILLED"
	RequestRejected  RequestStatus = "REJECTED"
	RequestExpired   RequestStatus = "EXPIRED"
)

// Open reports whether the request still occupies the reader's slot in the
// queue for a copy (used for the no-duplicate-queuing rule).
func (s RequestStatus) Open() bool {
	return s == RequestPending || s == RequestNotified
}

// CanTransitionTo is the single source of truth for request transitions.
func (s RequestStatus) CanTransitionTo(next RequestStatus) bool {
	switch s {
	case RequestPending:
		return next == RequestNotified || next == RequestRejected || next == RequestExpired
	case RequestNotified:
		return next == RequestFulfilled || next == RequestExpired
	default:
		return false
	}
}

// ─── Entities ─────────────────────────────────────────────────────────────────

type Reader struct {
	ID    uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name  string    `gorm:"size:255;not null" json:"name"`
	Email string    `gorm:"size:255;not null;uniqueIndex" json:"email"`
}

func (r *Reader) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

type Title struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Title     string    `gorm:"size:255;not null;index" json:"title"`
	Author    string    `gorm:"size:255;not null;index" json:"author"`
	ISBN      string    `gorm:"size:32;not null;uniqueIndex" json:"isbn"`
	Publisher string    `gorm:"size:255" json:"publisher"`
}

func (t *Title) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// Copy is a single physical instance of a Title. Availability is written only
// by the availability coordinator; callers never update it directly.
type Copy struct {
	ID           uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	TitleID      uuid.UUID        `gorm:"type:uuid;not null;index" json:"title_id"`
	Barcode      string           `gorm:"size:64;not null;uniqueIndex" json:"barcode"`
	Availability CopyAvailability `gorm:"size:16;not null;index" json:"availability"`
}

func (c *Copy) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// LoanRecord is the durable audit trail of a borrowing. Records are never
// deleted; terminal statuses close them out. At most one record per copy may
// be ACTIVE or OVERDUE at any instant, enforced by the availability gate and
// backed by the partial unique index.
type LoanRecord struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	CopyID     uuid.UUID  `gorm:"type:uuid;not null;index" json:"copy_id"`
	ReaderID   uuid.UUID  `gorm:"type:uuid;not null;index" json:"reader_id"`
	BorrowedAt time.Time  `gorm:"not null" json:"borrowed_at"`
	DueAt      time.Time  `gorm:"not null;index" json:"due_at"`
	ReturnedAt *time.Time `json:"returned_at"`
	Status     LoanStatus `gorm:"size:16;not null;index" json:"status"`
}

func (l *LoanRecord) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

// ReservationRequest queues a reader for a copy that is currently out.
// Promotion order is requested_at ascending, id as tiebreak.
type ReservationRequest struct {
	ID          uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	CopyID      uuid.UUID     `gorm:"type:uuid;not null;index" json:"copy_id"`
	ReaderID    uuid.UUID     `gorm:"type:uuid;not null;index" json:"reader_id"`
	RequestedAt time.Time     `gorm:"not null;index" json:"requested_at"`
	NotifiedAt  *time.Time    `json:"notified_at"`
	Status      RequestStatus `gorm:"size:16;not null;index" json:"status"`
}

func (r *ReservationRequest) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// Notification is the persisted form of a promotion event handed to the
// notification collaborator. Delivery (email/push) happens elsewhere.
type Notification struct {
	ID       uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	ReaderID uuid.UUID  `gorm:"type:uuid;not null;index" json:"reader_id"`
	CopyID   uuid.UUID  `gorm:"type:uuid;not null;index" json:"copy_id"`
	Reason   string     `gorm:"size:64;not null" json:"reason"`
	Message  string     `gorm:"size:512;not null" json:"message"`
	SentAt   time.Time  `gorm:"not null" json:"sent_at"`
	ReadAt   *time.Time `json:"read_at"`
}

func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return nil
}
