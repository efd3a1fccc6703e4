package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"bookstore/internal/models"
	"bookstore/internal/services"
)

// LendingHandler is the thin HTTP surface over the lending core. It parses
// ids, binds bodies, and maps error kinds to status codes; every rule lives
// in the services.
type LendingHandler struct {
	catalog  *services.CatalogService
	borrows  *services.BorrowService
	requests *services.RequestService

	loanPeriodDays int
}

func RegisterRoutes(
	r *gin.Engine,
	catalog *services.CatalogService,
	borrows *services.BorrowService,
	requests *services.RequestService,
	loanPeriodDays int,
) {
	h := &LendingHandler{
		catalog:        catalog,
		borrows:        borrows,
		requests:       requests,
		loanPeriodDays: loanPeriodDays,
	}

	// Catalog
	r.POST("/titles", h.createTitle)
	r.GET("/titles", h.listTitles)
	r.POST("/titles/:id/copies", h.addCopy)
	r.GET("/titles/:id/copies", h.listCopies)
	r.GET("/copies/:id", h.getCopy)
	r.GET("/copies/:id/availability", h.getCopyAvailability)
	r.POST("/readers", h.createReader)

	// Lending
	r.POST("/copies/:id/borrow", h.borrow)
	r.POST("/loans/:id/return", h.returnLoan)
	r.POST("/loans/:id/lost", h.markLost)
	r.GET("/loans/:id", h.getLoan)
	r.GET("/readers/:id/loans", h.listReaderLoans)

	// Reservations
	r.POST("/copies/:id/requests", h.createRequest)
	r.GET("/copies/:id/requests", h.listCopyRequests)
	r.POST("/requests/:id/fulfill", h.fulfillRequest)
	r.POST("/requests/:id/reject", h.rejectRequest)
	r.GET("/readers/:id/notifications", h.listReaderNotifications)

	// Sweeps, for deployments that trigger them over HTTP instead of the
	// built-in ticker.
	r.POST("/sweeps/overdue", h.sweepOverdue)
	r.POST("/sweeps/expired", h.sweepExpired)
}

// statusFor maps error kinds to HTTP statuses. Conflicts are 409 so clients
// can tell a lost race (retryable) from a validation failure (400, never
// retryable without changed input).
func statusFor(err error) int {
	switch services.KindOf(err) {
	case services.KindNotFound:
		return http.StatusNotFound
	case services.KindValidation:
		return http.StatusBadRequest
	case services.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusServiceUnavailable
	}
}

func fail(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return uuid.Nil, false
	}
	return id, true
}

// ─── Catalog ──────────────────────────────────────────────────────────────────

type createTitleRequest struct {
	Title     string `json:"title" binding:"required"`
	Author    string `json:"author" binding:"required"`
	ISBN      string `json:"isbn" binding:"required"`
	Publisher string `json:"publisher"`
}

func (h *LendingHandler) createTitle(c *gin.Context) {
	var req createTitleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	title, err := h.catalog.CreateTitle(c.Request.Context(), req.Title, req.Author, req.ISBN, req.Publisher)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, title)
}

func (h *LendingHandler) listTitles(c *gin.Context) {
	titles, err := h.catalog.ListTitles(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, titles)
}

type addCopyRequest struct {
	Barcode string `json:"barcode" binding:"required"`
}

func (h *LendingHandler) addCopy(c *gin.Context) {
	titleID, ok := pathID(c)
	if !ok {
		return
	}
	var req addCopyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	copy, err := h.catalog.AddCopy(c.Request.Context(), titleID, req.Barcode)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, copy)
}

func (h *LendingHandler) listCopies(c *gin.Context) {
	titleID, ok := pathID(c)
	if !ok {
		return
	}
	copies, err := h.catalog.ListCopies(c.Request.Context(), titleID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, copies)
}

func (h *LendingHandler) getCopy(c *gin.Context) {
	copyID, ok := pathID(c)
	if !ok {
		return
	}
	copy, err := h.catalog.GetCopy(c.Request.Context(), copyID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, copy)
}

// getCopyAvailability serves the hot availability lookups through the
// cache-backed read path.
func (h *LendingHandler) getCopyAvailability(c *gin.Context) {
	copyID, ok := pathID(c)
	if !ok {
		return
	}
	availability, err := h.catalog.GetCopyAvailability(c.Request.Context(), copyID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"copy_id": copyID, "availability": availability})
}

type createReaderRequest struct {
	Name  string `json:"name" binding:"required"`
	Email string `json:"email" binding:"required,email"`
}

func (h *LendingHandler) createReader(c *gin.Context) {
	var req createReaderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	reader, err := h.catalog.CreateReader(c.Request.Context(), req.Name, req.Email)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, reader)
}

// ─── Lending ──────────────────────────────────────────────────────────────────

type borrowRequest struct {
	ReaderID string     `json:"reader_id" binding:"required,uuid"`
	DueAt    *time.Time `json:"due_at"`
}

func (h *LendingHandler) borrow(c *gin.Context) {
	copyID, ok := pathID(c)
	if !ok {
		return
	}
	var req borrowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	readerID, err := uuid.Parse(req.ReaderID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid reader id"})
		return
	}

	dueAt := time.Now().UTC().AddDate(0, 0, h.loanPeriodDays)
	if req.DueAt != nil {
		dueAt = *req.DueAt
	}

	loan, err := h.borrows.Borrow(c.Request.Context(), copyID, readerID, dueAt)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, loan)
}

func (h *LendingHandler) returnLoan(c *gin.Context) {
	loanID, ok := pathID(c)
	if !ok {
		return
	}
	loan, err := h.borrows.Return(c.Request.Context(), loanID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, loan)
}

func (h *LendingHandler) markLost(c *gin.Context) {
	loanID, ok := pathID(c)
	if !ok {
		return
	}
	loan, err := h.borrows.MarkLost(c.Request.Context(), loanID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, loan)
}

func (h *LendingHandler) getLoan(c *gin.Context) {
	loanID, ok := pathID(c)
	if !ok {
		return
	}
	loan, err := h.borrows.GetLoan(c.Request.Context(), loanID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, loan)
}

func (h *LendingHandler) listReaderLoans(c *gin.Context) {
	readerID, ok := pathID(c)
	if !ok {
		return
	}
	var statuses []models.LoanStatus
	for _, s := range c.QueryArray("status") {
		statuses = append(statuses, models.LoanStatus(s))
	}
	loans, err := h.borrows.ListReaderLoans(c.Request.Context(), readerID, statuses)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, loans)
}

// ─── Reservations ─────────────────────────────────────────────────────────────

type createReservationRequest struct {
	ReaderID string `json:"reader_id" binding:"required,uuid"`
}

func (h *LendingHandler) createRequest(c *gin.Context) {
	copyID, ok := pathID(c)
	if !ok {
		return
	}
	var req createReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	readerID, err := uuid.Parse(req.ReaderID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid reader id"})
		return
	}

	created, err := h.requests.Request(c.Request.Context(), copyID, readerID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

// requestView decorates a reservation request with the pickup deadline a
// notified reader has before the expiry sweep forfeits it.
type requestView struct {
	models.ReservationRequest
	PickupBy *time.Time `json:"pickup_by,omitempty"`
}

func (h *LendingHandler) requestViews(reqs []models.ReservationRequest) []requestView {
	grace := h.requests.GraceWindow()
	views := make([]requestView, 0, len(reqs))
	for _, req := range reqs {
		v := requestView{ReservationRequest: req}
		if req.Status == models.RequestNotified && req.NotifiedAt != nil {
			deadline := req.NotifiedAt.Add(grace)
			v.PickupBy = &deadline
		}
		views = append(views, v)
	}
	return views
}

func (h *LendingHandler) listCopyRequests(c *gin.Context) {
	copyID, ok := pathID(c)
	if !ok {
		return
	}
	reqs, err := h.requests.ListForCopy(c.Request.Context(), copyID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, h.requestViews(reqs))
}

func (h *LendingHandler) fulfillRequest(c *gin.Context) {
	requestID, ok := pathID(c)
	if !ok {
		return
	}
	req, err := h.requests.Fulfill(c.Request.Context(), requestID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

func (h *LendingHandler) rejectRequest(c *gin.Context) {
	requestID, ok := pathID(c)
	if !ok {
		return
	}
	req, err := h.requests.Reject(c.Request.Context(), requestID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

func (h *LendingHandler) listReaderNotifications(c *gin.Context) {
	readerID, ok := pathID(c)
	if !ok {
		return
	}
	ns, err := h.requests.ListReaderNotifications(c.Request.Context(), readerID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ns)
}

// ─── Sweeps ───────────────────────────────────────────────────────────────────

func (h *LendingHandler) sweepOverdue(c *gin.Context) {
	swept, err := h.borrows.SweepOverdue(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"swept": swept})
}

func (h *LendingHandler) sweepExpired(c *gin.Context) {
	expired, err := h.requests.SweepExpired(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"expired": expired})
}
