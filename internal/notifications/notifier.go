package notifications

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"bookstore/internal/models"
	"bookstore/internal/repositories"
)

// Reasons attached to emitted events.
const (
	ReasonCopyAvailable = "COPY_AVAILABLE"
)

// Event names the reader to notify and the copy the event is about. Delivery
// semantics (email, push, retries) are owned by downstream consumers; the
// lending core only emits.
type Event struct {
	ReaderID uuid.UUID
	CopyID   uuid.UUID
	Reason   string
	SentAt   time.Time
}

// Notifier is the sink handed one event per reservation promotion. The db
// argument carries the caller's open transaction so persisting sinks commit
// or roll back together with the state transition that caused the event.
type Notifier interface {
	Notify(ctx context.Context, db *gorm.DB, event Event) error
}

// LogNotifier writes events to the process log. Used in development and as a
// fallback when no persisting sink is configured.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Notify(_ context.Context, _ *gorm.DB, event Event) error {
	log.Printf("[INFO] notify: reader=%s copy=%s reason=%s", event.ReaderID, event.CopyID, event.Reason)
	return nil
}

// StoreNotifier persists each event as a Notification row inside the caller's
// transaction, so an event exists exactly when the promotion that produced it
// committed.
type StoreNotifier struct {
	repo repositories.NotificationRepository
}

func NewStoreNotifier(repo repositories.NotificationRepository) *StoreNotifier {
	return &StoreNotifier{repo: repo}
}

func (n *StoreNotifier) Notify(_ context.Context, db *gorm.DB, event Event) error {
	row := &models.Notification{
		ReaderID: event.ReaderID,
		CopyID:   event.CopyID,
		Reason:   event.Reason,
		Message:  fmt.Sprintf("The copy you requested (%s) is ready for pickup.", event.CopyID),
		SentAt:   event.SentAt,
	}
	return n.repo.Create(db, row)
}
