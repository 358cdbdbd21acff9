package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jinwill/docflow/internal/application/engine"
	"github.com/jinwill/docflow/internal/application/port"
	"github.com/jinwill/docflow/internal/application/service"
	"github.com/jinwill/docflow/internal/domain/entity"
	"github.com/jinwill/docflow/internal/domain/errs"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	engine        engine.Engine
	documents     service.DocumentService
	notifications service.NotificationService
	audit         service.AuditService
	auth          AuthConfig
	logger        Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(
	wfEngine engine.Engine,
	documents service.DocumentService,
	notifications service.NotificationService,
	audit service.AuditService,
	auth AuthConfig,
	logger Logger,
) *Handlers {
	return &Handlers{
		engine:        wfEngine,
		documents:     documents,
		notifications: notifications,
		audit:         audit,
		auth:          auth,
		logger:        logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// WorkflowResponse represents a workflow in API responses
type WorkflowResponse struct {
	ID                string         `json:"id"`
	DocumentID        string         `json:"document_id"`
	Type              string         `json:"type"`
	Status            string         `json:"status"`
	RequesterID       string         `json:"requester_id"`
	CurrentApproverID *string        `json:"current_approver_id,omitempty"`
	Priority          string         `json:"priority"`
	DueDate           *string        `json:"due_date,omitempty"`
	Comments          string         `json:"comments,omitempty"`
	CompletedAt       *string        `json:"completed_at,omitempty"`
	CreatedAt         string         `json:"created_at"`
	UpdatedAt         string         `json:"updated_at"`
	Steps             []StepResponse `json:"steps,omitempty"`
}

// StepResponse represents a workflow step in API responses
type StepResponse struct {
	ID           string  `json:"id"`
	StepOrder    int     `json:"step_order"`
	ApproverID   string  `json:"approver_id"`
	Status       string  `json:"status"`
	Comments     string  `json:"comments,omitempty"`
	DecisionDate *string `json:"decision_date,omitempty"`
}

// WorkflowPageResponse is a paginated workflow listing
type WorkflowPageResponse struct {
	Items  []WorkflowResponse `json:"items"`
	Total  int                `json:"total"`
	Limit  int                `json:"limit"`
	Offset int                `json:"offset"`
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

// IssueToken handles POST /api/auth/token
func (h *Handlers) IssueToken(c *gin.Context) {
	var req struct {
		UserID string `json:"user_id" binding:"required"`
		Role   string `json:"role"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "user_id is required"})
		return
	}

	if req.Role == "" {
		req.Role = engine.RoleUser
	}
	if req.Role != engine.RoleUser && req.Role != engine.RoleAdmin {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: fmt.Sprintf("unknown role %q", req.Role)})
		return
	}

	token, expiresAt, err := GenerateToken(req.UserID, req.Role, h.auth)
	if err != nil {
		h.logger.Error("Failed to issue token", "user_id", req.UserID, "error", err)
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "failed to issue token"})
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: gin.H{
			"token":      token,
			"expires_at": expiresAt.UTC().Format(time.RFC3339),
		},
	})
}

// CreateDocument handles POST /api/documents
func (h *Handlers) CreateDocument(c *gin.Context) {
	var req struct {
		Title string `json:"title" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "title is required"})
		return
	}

	doc, err := h.documents.Create(c.Request.Context(), currentActor(c).ID, req.Title)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: doc})
}

// ListDocuments handles GET /api/documents
func (h *Handlers) ListDocuments(c *gin.Context) {
	var req struct {
		Limit  int `form:"limit"`
		Offset int `form:"offset"`
	}
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid query parameters"})
		return
	}

	docs, err := h.documents.ListOwn(c.Request.Context(), currentActor(c).ID, req.Limit, req.Offset)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: docs})
}

// GetDocument handles GET /api/documents/:id
func (h *Handlers) GetDocument(c *gin.Context) {
	actor := currentActor(c)
	doc, err := h.documents.Get(c.Request.Context(), actor.ID, actor.IsAdmin(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: doc})
}

// CreateWorkflowRequest is the body of POST /api/workflows
type CreateWorkflowRequest struct {
	DocumentID  string     `json:"document_id" binding:"required"`
	ApproverIDs []string   `json:"approver_ids" binding:"required"`
	Type        string     `json:"type"`
	Priority    string     `json:"priority"`
	DueDate     *time.Time `json:"due_date"`
	Comments    string     `json:"comments"`
}

// CreateWorkflow handles POST /api/workflows
func (h *Handlers) CreateWorkflow(c *gin.Context) {
	var req CreateWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "document_id and approver_ids are required"})
		return
	}

	wf, err := h.engine.Create(c.Request.Context(), currentActor(c), engine.CreateRequest{
		DocumentID:  req.DocumentID,
		ApproverIDs: req.ApproverIDs,
		Type:        req.Type,
		Priority:    req.Priority,
		DueDate:     req.DueDate,
		Comments:    req.Comments,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: toWorkflowResponse(wf, nil)})
}

// ListWorkflows handles GET /api/workflows
func (h *Handlers) ListWorkflows(c *gin.Context) {
	var req struct {
		Status       string `form:"status"`
		Priority     string `form:"priority"`
		AssignedToMe bool   `form:"assigned_to_me"`
		Overdue      bool   `form:"overdue"`
		Limit        int    `form:"limit"`
		Offset       int    `form:"offset"`
	}
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid query parameters"})
		return
	}

	page, err := h.engine.List(c.Request.Context(), currentActor(c), engine.ListFilter{
		Status:       req.Status,
		Priority:     req.Priority,
		AssignedToMe: req.AssignedToMe,
		Overdue:      req.Overdue,
		Limit:        req.Limit,
		Offset:       req.Offset,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	resp := WorkflowPageResponse{
		Items:  []WorkflowResponse{},
		Total:  page.Total,
		Limit:  page.Limit,
		Offset: page.Offset,
	}
	for _, wf := range page.Items {
		resp.Items = append(resp.Items, toWorkflowResponse(wf, nil))
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: resp})
}

// GetWorkflow handles GET /api/workflows/:id
func (h *Handlers) GetWorkflow(c *gin.Context) {
	detail, err := h.engine.Get(c.Request.Context(), currentActor(c), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: toWorkflowResponse(detail.Workflow, detail.Steps)})
}

// DecisionRequest is the body of approve/reject calls
type DecisionRequest struct {
	Comments string `json:"comments"`
}

// ApproveWorkflow handles POST /api/workflows/:id/approve
func (h *Handlers) ApproveWorkflow(c *gin.Context) {
	// Approval comments are optional; an empty body is fine.
	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body"})
		return
	}

	result, err := h.engine.ApproveStep(c.Request.Context(), currentActor(c), c.Param("id"), req.Comments)
	if err != nil {
		h.writeError(c, err)
		return
	}

	resp := toWorkflowResponse(result.Workflow, nil)
	c.JSON(http.StatusOK, Response{Success: true, Data: gin.H{
		"workflow":     resp,
		"is_completed": result.IsCompleted,
	}})
}

// RejectWorkflow handles POST /api/workflows/:id/reject
func (h *Handlers) RejectWorkflow(c *gin.Context) {
	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "comments are required"})
		return
	}

	wf, err := h.engine.Reject(c.Request.Context(), currentActor(c), c.Param("id"), req.Comments)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: toWorkflowResponse(wf, nil)})
}

// CancelWorkflow handles POST /api/workflows/:id/cancel
func (h *Handlers) CancelWorkflow(c *gin.Context) {
	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "reason is required"})
		return
	}

	wf, err := h.engine.Cancel(c.Request.Context(), currentActor(c), c.Param("id"), req.Reason)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: toWorkflowResponse(wf, nil)})
}

// ListNotifications handles GET /api/notifications
func (h *Handlers) ListNotifications(c *gin.Context) {
	var req struct {
		Limit  int `form:"limit"`
		Offset int `form:"offset"`
	}
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid query parameters"})
		return
	}

	items, err := h.notifications.ListForRecipient(c.Request.Context(), currentActor(c).ID, req.Limit, req.Offset)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if items == nil {
		items = []*entity.Notification{}
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: items})
}

// QueryAudit handles GET /api/audit
func (h *Handlers) QueryAudit(c *gin.Context) {
	filter, ok := bindAuditFilter(c)
	if !ok {
		return
	}

	records, err := h.audit.Query(c.Request.Context(), filter)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if records == nil {
		records = []*entity.AuditRecord{}
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: records})
}

// ExportAudit handles GET /api/audit/export
func (h *Handlers) ExportAudit(c *gin.Context) {
	filter, ok := bindAuditFilter(c)
	if !ok {
		return
	}

	filename := fmt.Sprintf("audit-%s.xlsx", time.Now().UTC().Format("20060102-150405"))
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	if err := h.audit.ExportExcel(c.Request.Context(), filter, c.Writer); err != nil {
		h.logger.Error("Audit export failed", "error", err)
		c.Status(http.StatusInternalServerError)
	}
}

func bindAuditFilter(c *gin.Context) (port.AuditFilter, bool) {
	var req struct {
		ActorID    string `form:"actor_id"`
		Action     string `form:"action"`
		EntityType string `form:"entity_type"`
		EntityID   string `form:"entity_id"`
		Limit      int    `form:"limit"`
		Offset     int    `form:"offset"`
	}
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid query parameters"})
		return port.AuditFilter{}, false
	}

	return port.AuditFilter{
		ActorID:    req.ActorID,
		Action:     req.Action,
		EntityType: req.EntityType,
		EntityID:   req.EntityID,
		Limit:      req.Limit,
		Offset:     req.Offset,
	}, true
}

// writeError maps domain error kinds to HTTP status codes
func (h *Handlers) writeError(c *gin.Context, err error) {
	kind := errs.KindOf(err)

	message := "internal error"
	var domainErr *errs.Error
	if kind != errs.KindPersistence && errors.As(err, &domainErr) {
		message = domainErr.Message
	}
	if kind == errs.KindPersistence {
		h.logger.Error("Request failed", "path", c.Request.URL.Path, "error", err)
	}

	c.JSON(statusFor(kind), Response{Success: false, Error: message})
}

func statusFor(kind errs.Kind) int {
	switch kind {
	case errs.KindValidation:
		return http.StatusBadRequest
	case errs.KindForbidden:
		return http.StatusForbidden
	case errs.KindNotFound:
		return http.StatusNotFound
	case errs.KindConflict, errs.KindInvalidState:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// toWorkflowResponse converts domain entities to the API shape
func toWorkflowResponse(wf *entity.Workflow, steps []*entity.WorkflowStep) WorkflowResponse {
	resp := WorkflowResponse{
		ID:                wf.ID,
		DocumentID:        wf.DocumentID,
		Type:              wf.Type,
		Status:            wf.Status,
		RequesterID:       wf.RequesterID,
		CurrentApproverID: wf.CurrentApproverID,
		Priority:          wf.Priority,
		Comments:          wf.Comments,
		CreatedAt:         wf.CreatedAt.Format(time.RFC3339),
		UpdatedAt:         wf.UpdatedAt.Format(time.RFC3339),
	}

	if wf.DueDate != nil {
		s := wf.DueDate.Format(time.RFC3339)
		resp.DueDate = &s
	}
	if wf.CompletedAt != nil {
		s := wf.CompletedAt.Format(time.RFC3339)
		resp.CompletedAt = &s
	}

	for _, step := range steps {
		sr := StepResponse{
			ID:         step.ID,
			StepOrder:  step.StepOrder,
			ApproverID: step.ApproverID,
			Status:     step.Status,
			Comments:   step.Comments,
		}
		if step.DecisionDate != nil {
			s := step.DecisionDate.Format(time.RFC3339)
			sr.DecisionDate = &s
		}
		resp.Steps = append(resp.Steps, sr)
	}

	return resp
}
