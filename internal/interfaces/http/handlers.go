package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/finstack/docflow/internal/application/engine"
	"github.com/finstack/docflow/internal/application/port"
	"github.com/finstack/docflow/internal/application/scheduler"
	"github.com/finstack/docflow/internal/application/sweeper"
	"github.com/finstack/docflow/internal/domain/document"
	"github.com/finstack/docflow/internal/domain/schedule"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	workflow  engine.WorkflowEngine
	scheduler scheduler.Scheduler
	sweeper   sweeper.Sweeper
	docs      port.DocumentRepository
	steps     port.ApprovalStepRepository
	audits    port.AuditRepository
	logger    Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(
	workflow engine.WorkflowEngine,
	sched scheduler.Scheduler,
	sweep sweeper.Sweeper,
	docs port.DocumentRepository,
	steps port.ApprovalStepRepository,
	audits port.AuditRepository,
	logger Logger,
) *Handlers {
	return &Handlers{
		workflow:  workflow,
		scheduler: sched,
		sweeper:   sweep,
		docs:      docs,
		steps:     steps,
		audits:    audits,
		logger:    logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// CreateDocumentRequest is the body for POST /api/documents
type CreateDocumentRequest struct {
	ActorID   string `json:"actor_id" binding:"required"`
	ActorRole string `json:"actor_role" binding:"required"`

	Category        string     `json:"category" binding:"required"`
	BaseAmountCents int64      `json:"base_amount_cents"`
	TaxAmountCents  int64      `json:"tax_amount_cents"`
	PaymentType     string     `json:"payment_type"`
	DueDate         *time.Time `json:"due_date"`

	InstallmentCount       int   `json:"installment_count"`
	InstallmentAmountCents int64 `json:"installment_amount_cents"`
	FrequencyDays          int   `json:"frequency_days"`
	FrequencyMonths        int   `json:"frequency_months"`
}

// TransitionRequest is the body for POST /api/documents/:id/transitions
type TransitionRequest struct {
	ActorID   string `json:"actor_id" binding:"required"`
	ActorRole string `json:"actor_role" binding:"required"`
	Action    string `json:"action" binding:"required"`

	Reason        string     `json:"reason"`
	Comment       string     `json:"comment"`
	LumpSum       bool       `json:"lump_sum"`
	EffectiveDate *time.Time `json:"effective_date"`
}

// PayInstallmentRequest is the body for POST /api/installments/:id/pay
type PayInstallmentRequest struct {
	PaidBy   string     `json:"paid_by" binding:"required"`
	PaidDate *time.Time `json:"paid_date"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: gin.H{
			"status":    "healthy",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		},
	})
}

// CreateDocument handles POST /api/documents
func (h *Handlers) CreateDocument(c *gin.Context) {
	var req CreateDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	actor := engine.Actor{ID: req.ActorID, Role: document.Role(req.ActorRole)}
	doc, err := h.workflow.CreateDocument(c.Request.Context(), actor, engine.CreateInput{
		Category:               document.Category(req.Category),
		BaseAmountCents:        req.BaseAmountCents,
		TaxAmountCents:         req.TaxAmountCents,
		PaymentType:            document.PaymentType(req.PaymentType),
		DueDate:                req.DueDate,
		InstallmentCount:       req.InstallmentCount,
		InstallmentAmountCents: req.InstallmentAmountCents,
		FrequencyDays:          req.FrequencyDays,
		FrequencyMonths:        req.FrequencyMonths,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: doc})
}

// ListDocuments handles GET /api/documents
func (h *Handlers) ListDocuments(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	documents, err := h.docs.List(c.Request.Context(), limit, offset)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: documents})
}

// GetDocument handles GET /api/documents/:id
func (h *Handlers) GetDocument(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	doc, err := h.docs.GetByID(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	if doc == nil {
		c.JSON(http.StatusNotFound, Response{Success: false, Error: "document not found"})
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: doc})
}

// Transition handles POST /api/documents/:id/transitions
func (h *Handlers) Transition(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	var req TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	actor := engine.Actor{ID: req.ActorID, Role: document.Role(req.ActorRole)}
	doc, err := h.workflow.Transition(c.Request.Context(), id, document.Action(req.Action), actor, engine.Payload{
		Reason:        req.Reason,
		Comment:       req.Comment,
		LumpSum:       req.LumpSum,
		EffectiveDate: req.EffectiveDate,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: doc})
}

// AllowedActions handles GET /api/documents/:id/actions
func (h *Handlers) AllowedActions(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	role := document.Role(c.Query("role"))
	if role == "" {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "role query parameter is required"})
		return
	}

	actions, err := h.workflow.AllowedActions(c.Request.Context(), id, role)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: actions})
}

// ListSteps handles GET /api/documents/:id/steps
func (h *Handlers) ListSteps(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	steps, err := h.steps.GetByDocumentID(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: steps})
}

// ListAudit handles GET /api/documents/:id/audit
func (h *Handlers) ListAudit(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	entries, err := h.audits.GetByDocumentID(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: entries})
}

// GetSchedule handles GET /api/documents/:id/schedule
func (h *Handlers) GetSchedule(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	sched, installments, err := h.scheduler.GetByDocument(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: gin.H{
		"schedule":         sched,
		"installments":     installments,
		"progress_percent": sched.ProgressPercent(),
		"remaining_cents":  sched.RemainingAmountCents(),
	}})
}

// PauseSchedule handles POST /api/schedules/:id/pause
func (h *Handlers) PauseSchedule(c *gin.Context) {
	h.scheduleTransition(c, h.scheduler.Pause)
}

// ResumeSchedule handles POST /api/schedules/:id/resume
func (h *Handlers) ResumeSchedule(c *gin.Context) {
	h.scheduleTransition(c, h.scheduler.Resume)
}

// CancelSchedule handles POST /api/schedules/:id/cancel
func (h *Handlers) CancelSchedule(c *gin.Context) {
	h.scheduleTransition(c, h.scheduler.Cancel)
}

// PayInstallment handles POST /api/installments/:id/pay
func (h *Handlers) PayInstallment(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	var req PayInstallmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	paidAt := time.Now()
	if req.PaidDate != nil {
		paidAt = *req.PaidDate
	}

	sched, err := h.scheduler.ApplyPayment(c.Request.Context(), id, req.PaidBy, paidAt)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: sched})
}

// UpcomingInstallments handles GET /api/installments/upcoming
func (h *Handlers) UpcomingInstallments(c *gin.Context) {
	days, err := strconv.Atoi(c.DefaultQuery("days", "30"))
	if err != nil || days <= 0 {
		days = 30
	}

	from := time.Now()
	installments, err := h.scheduler.ListUpcoming(c.Request.Context(), from, from.AddDate(0, 0, days))
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: installments})
}

// RunSweep handles POST /api/sweep
func (h *Handlers) RunSweep(c *gin.Context) {
	report, err := h.sweeper.RunOnce(c.Request.Context(), time.Now())
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: report})
}

func (h *Handlers) scheduleTransition(c *gin.Context, fn func(ctx context.Context, id int64) error) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	if err := fn(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true})
}

func (h *Handlers) pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid id"})
		return 0, false
	}
	return id, true
}

func (h *Handlers) badRequest(c *gin.Context, err error) {
	h.logger.Error("Invalid request body", "error", err)
	c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body"})
}

// fail maps domain sentinel errors to HTTP statuses
func (h *Handlers) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, document.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, document.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, document.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, document.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, document.ErrInvalidTransition), errors.Is(err, schedule.ErrSchedule):
		status = http.StatusUnprocessableEntity
	default:
		h.logger.Error("Request failed", "error", err)
	}

	c.JSON(status, Response{Success: false, Error: err.Error()})
}
