package handlers_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookstore/internal/handlers"
	"bookstore/internal/metrics"
	"bookstore/internal/models"
	"bookstore/internal/notifications"
	"bookstore/internal/repositories"
	"bookstore/internal/services"
	"bookstore/internal/testdb"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testdb.Open(t)
	m := metrics.New(prometheus.NewRegistry())
	clock := services.NewSystemClock()

	readerRepo := repositories.NewReaderRepository(db)
	titleRepo := repositories.NewTitleRepository(db)
	copyRepo := repositories.NewCopyRepository(db)
	loanRepo := repositories.NewLoanRepository(db)
	requestRepo := repositories.NewRequestRepository(db)
	notificationRepo := repositories.NewNotificationRepository(db)

	avail := services.NewAvailabilityCoordinator(copyRepo, nil)
	notifier := notifications.NewStoreNotifier(notificationRepo)
	requestSvc := services.NewRequestService(db, requestRepo, copyRepo, notificationRepo, notifier, m, clock, 48*time.Hour)
	borrowSvc := services.NewBorrowService(db, loanRepo, readerRepo, avail, requestSvc, m, clock)
	catalogSvc := services.NewCatalogService(db, titleRepo, copyRepo, readerRepo, avail)

	router := gin.New()
	handlers.RegisterRoutes(router, catalogSvc, borrowSvc, requestSvc, 14)
	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), "body: %s", w.Body.String())
	return v
}

func seed(t *testing.T, router *gin.Engine) (readerID, copyID string) {
	t.Helper()

	w := doJSON(t, router, http.MethodPost, "/readers", gin.H{"name": "U1", "email": "u1@example.com"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	reader := decode[models.Reader](t, w)

	w = doJSON(t, router, http.MethodPost, "/titles", gin.H{
		"title": "Dune", "author": "Frank Herbert", "isbn": "978-0-441-17271-9",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	title := decode[models.Title](t, w)

	w = doJSON(t, router, http.MethodPost, fmt.Sprintf("/titles/%s/copies", title.ID), gin.H{"barcode": "C-0001"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	copy := decode[models.Copy](t, w)

	return reader.ID.String(), copy.ID.String()
}

func TestBorrowEndpointsStatusMapping(t *testing.T) {
	router := newTestRouter(t)
	readerID, copyID := seed(t, router)

	// First borrow: created.
	w := doJSON(t, router, http.MethodPost, "/copies/"+copyID+"/borrow", gin.H{"reader_id": readerID})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	loan := decode[models.LoanRecord](t, w)
	assert.Equal(t, models.LoanActive, loan.Status)

	// Lost race / already out: conflict.
	w = doJSON(t, router, http.MethodPost, "/copies/"+copyID+"/borrow", gin.H{"reader_id": readerID})
	assert.Equal(t, http.StatusConflict, w.Code)

	// Past due date: validation.
	past := time.Now().UTC().Add(-time.Hour)
	w = doJSON(t, router, http.MethodPost, "/copies/"+copyID+"/borrow",
		gin.H{"reader_id": readerID, "due_at": past})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Malformed id: bad request before the core is reached.
	w = doJSON(t, router, http.MethodPost, "/copies/not-a-uuid/borrow", gin.H{"reader_id": readerID})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Return and round-trip.
	w = doJSON(t, router, http.MethodPost, "/loans/"+loan.ID.String()+"/return", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	returned := decode[models.LoanRecord](t, w)
	assert.Equal(t, models.LoanReturned, returned.Status)

	// Double return: conflict.
	w = doJSON(t, router, http.MethodPost, "/loans/"+loan.ID.String()+"/return", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	// Unknown loan: not found.
	w = doJSON(t, router, http.MethodPost, "/loans/00000000-0000-0000-0000-000000000001/return", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReservationEndpoints(t *testing.T) {
	router := newTestRouter(t)
	readerID, copyID := seed(t, router)

	// Reserving an available copy is a validation failure.
	w := doJSON(t, router, http.MethodPost, "/copies/"+copyID+"/requests", gin.H{"reader_id": readerID})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Borrow it, then a second reader queues up.
	w = doJSON(t, router, http.MethodPost, "/copies/"+copyID+"/borrow", gin.H{"reader_id": readerID})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	loan := decode[models.LoanRecord](t, w)

	w = doJSON(t, router, http.MethodPost, "/readers", gin.H{"name": "U2", "email": "u2@example.com"})
	require.Equal(t, http.StatusCreated, w.Code)
	u2 := decode[models.Reader](t, w)

	w = doJSON(t, router, http.MethodPost, "/copies/"+copyID+"/requests", gin.H{"reader_id": u2.ID.String()})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	request := decode[models.ReservationRequest](t, w)
	assert.Equal(t, models.RequestPending, request.Status)

	// Duplicate queuing: conflict.
	w = doJSON(t, router, http.MethodPost, "/copies/"+copyID+"/requests", gin.H{"reader_id": u2.ID.String()})
	assert.Equal(t, http.StatusConflict, w.Code)

	// Return promotes U2 and emits a persisted notification.
	w = doJSON(t, router, http.MethodPost, "/loans/"+loan.ID.String()+"/return", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	type queuedRequest struct {
		models.ReservationRequest
		PickupBy *time.Time `json:"pickup_by"`
	}
	w = doJSON(t, router, http.MethodGet, "/copies/"+copyID+"/requests", nil)
	require.Equal(t, http.StatusOK, w.Code)
	queue := decode[[]queuedRequest](t, w)
	require.Len(t, queue, 1)
	assert.Equal(t, models.RequestNotified, queue[0].Status)
	require.NotNil(t, queue[0].PickupBy)
	require.NotNil(t, queue[0].NotifiedAt)
	assert.Equal(t, queue[0].NotifiedAt.Add(48*time.Hour), *queue[0].PickupBy)

	w = doJSON(t, router, http.MethodGet, "/readers/"+u2.ID.String()+"/notifications", nil)
	require.Equal(t, http.StatusOK, w.Code)
	ns := decode[[]models.Notification](t, w)
	require.Len(t, ns, 1)
	assert.Equal(t, notifications.ReasonCopyAvailable, ns[0].Reason)
}

func TestCopyAvailabilityEndpoint(t *testing.T) {
	router := newTestRouter(t)
	readerID, copyID := seed(t, router)

	w := doJSON(t, router, http.MethodGet, "/copies/"+copyID+"/availability", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]string](t, w)
	assert.Equal(t, string(models.CopyAvailable), body["availability"])

	w = doJSON(t, router, http.MethodPost, "/copies/"+copyID+"/borrow", gin.H{"reader_id": readerID})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = doJSON(t, router, http.MethodGet, "/copies/"+copyID+"/availability", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body = decode[map[string]string](t, w)
	assert.Equal(t, string(models.CopyLoaned), body["availability"])

	w = doJSON(t, router, http.MethodGet, "/copies/00000000-0000-0000-0000-000000000001/availability", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSweepEndpoints(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/sweeps/overdue", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]int](t, w)
	assert.Zero(t, body["swept"])

	w = doJSON(t, router, http.MethodPost, "/sweeps/expired", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body = decode[map[string]int](t, w)
	assert.Zero(t, body["expired"])
}
