package services_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"bookstore/internal/metrics"
	"bookstore/internal/models"
	"bookstore/internal/notifications"
	"bookstore/internal/repositories"
	"bookstore/internal/services"
	"bookstore/internal/testdb"
)

const testGraceWindow = 48 * time.Hour

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{t: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notifications.Event
}

func (n *recordingNotifier) Notify(_ context.Context, _ *gorm.DB, event notifications.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func (n *recordingNotifier) Events() []notifications.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]notifications.Event, len(n.events))
	copy(out, n.events)
	return out
}

type testEnv struct {
	db       *gorm.DB
	clock    *fakeClock
	notifier *recordingNotifier

	catalog  *services.CatalogService
	borrows  *services.BorrowService
	requests *services.RequestService

	copyRepo repositories.CopyRepository
	loanRepo repositories.LoanRepository
	reqRepo  repositories.RequestRepository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := testdb.Open(t)
	clock := newFakeClock(time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC))
	notifier := &recordingNotifier{}
	m := metrics.New(prometheus.NewRegistry())

	readerRepo := repositories.NewReaderRepository(db)
	titleRepo := repositories.NewTitleRepository(db)
	copyRepo := repositories.NewCopyRepository(db)
	loanRepo := repositories.NewLoanRepository(db)
	requestRepo := repositories.NewRequestRepository(db)
	notificationRepo := repositories.NewNotificationRepository(db)

	avail := services.NewAvailabilityCoordinator(copyRepo, nil)
	requestSvc := services.NewRequestService(db, requestRepo, copyRepo, notificationRepo, notifier, m, clock, testGraceWindow)
	borrowSvc := services.NewBorrowService(db, loanRepo, readerRepo, avail, requestSvc, m, clock)
	catalogSvc := services.NewCatalogService(db, titleRepo, copyRepo, readerRepo, avail)

	return &testEnv{
		db:       db,
		clock:    clock,
		notifier: notifier,
		catalog:  catalogSvc,
		borrows:  borrowSvc,
		requests: requestSvc,
		copyRepo: copyRepo,
		loanRepo: loanRepo,
		reqRepo:  requestRepo,
	}
}

func (e *testEnv) newReader(t *testing.T, name, email string) *models.Reader {
	t.Helper()
	reader, err := e.catalog.CreateReader(context.Background(), name, email)
	require.NoError(t, err)
	return reader
}

func (e *testEnv) newCopy(t *testing.T, barcode string) *models.Copy {
	t.Helper()
	title, err := e.catalog.CreateTitle(context.Background(), "The Go Programming Language", "Donovan & Kernighan", "978-0-13-419044-0-"+barcode, "Addison-Wesley")
	require.NoError(t, err)
	copy, err := e.catalog.AddCopy(context.Background(), title.ID, barcode)
	require.NoError(t, err)
	return copy
}

func (e *testEnv) copyAvailability(t *testing.T, copyID uuid.UUID) models.CopyAvailability {
	t.Helper()
	copy, err := e.copyRepo.GetByID(nil, copyID)
	require.NoError(t, err)
	return copy.Availability
}

func (e *testEnv) dueIn(d time.Duration) time.Time {
	return e.clock.Now().Add(d)
}

func newUUID() uuid.UUID {
	return uuid.New()
}
