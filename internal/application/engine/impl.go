package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jinwill/docflow/internal/application/dispatcher"
	"github.com/jinwill/docflow/internal/application/port"
	"github.com/jinwill/docflow/internal/domain/entity"
	"github.com/jinwill/docflow/internal/domain/errs"
	"github.com/jinwill/docflow/internal/domain/event"
	domainwf "github.com/jinwill/docflow/internal/domain/workflow"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

type engineImpl struct {
	workflowRepo port.WorkflowRepository
	stepRepo     port.StepRepository
	documentRepo port.DocumentRepository
	txManager    port.TransactionManager
	dispatcher   dispatcher.Dispatcher
	logger       Logger
}

// Option configures the workflow engine
type Option func(*engineImpl)

// WithDispatcher sets the event dispatcher for post-commit events
func WithDispatcher(d dispatcher.Dispatcher) Option {
	return func(e *engineImpl) {
		e.dispatcher = d
	}
}

// New creates a workflow engine
func New(
	workflowRepo port.WorkflowRepository,
	stepRepo port.StepRepository,
	documentRepo port.DocumentRepository,
	txManager port.TransactionManager,
	logger Logger,
	opts ...Option,
) Engine {
	e := &engineImpl{
		workflowRepo: workflowRepo,
		stepRepo:     stepRepo,
		documentRepo: documentRepo,
		txManager:    txManager,
		logger:       logger,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Create starts a workflow over a document with an ordered approver chain.
// Workflow, steps and the document status change are written in a single
// transaction, so a step-insert failure leaves nothing behind.
func (e *engineImpl) Create(ctx context.Context, actor Actor, req CreateRequest) (*entity.Workflow, error) {
	if err := validateCreate(&req); err != nil {
		return nil, err
	}

	doc, err := e.documentRepo.GetByID(ctx, req.DocumentID)
	if err != nil {
		return nil, errs.Persistence(err, "load document %s", req.DocumentID)
	}
	if doc == nil {
		return nil, errs.NotFound("document %s not found", req.DocumentID)
	}

	if !actor.IsAdmin() && doc.OwnerID != actor.ID {
		return nil, errs.Forbidden("only the document owner or an administrator may start a workflow")
	}

	active, err := e.workflowRepo.GetActiveByDocumentID(ctx, req.DocumentID)
	if err != nil {
		return nil, errs.Persistence(err, "check active workflow for document %s", req.DocumentID)
	}
	if active != nil {
		return nil, errs.Conflict("document %s already has an active workflow (%s)", req.DocumentID, active.ID)
	}

	now := time.Now()
	firstApprover := req.ApproverIDs[0]
	wf := &entity.Workflow{
		ID:                uuid.NewString(),
		DocumentID:        req.DocumentID,
		Type:              req.Type,
		Status:            entity.WorkflowStatusPending,
		RequesterID:       actor.ID,
		CurrentApproverID: &firstApprover,
		Priority:          req.Priority,
		DueDate:           req.DueDate,
		Comments:          req.Comments,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	err = e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := e.workflowRepo.Create(txCtx, wf); err != nil {
			return fmt.Errorf("create workflow: %w", err)
		}

		for i, approverID := range req.ApproverIDs {
			step := &entity.WorkflowStep{
				ID:         uuid.NewString(),
				WorkflowID: wf.ID,
				StepOrder:  i + 1,
				ApproverID: approverID,
				Status:     entity.StepStatusPending,
				CreatedAt:  now,
			}
			if err := e.stepRepo.Create(txCtx, step); err != nil {
				return fmt.Errorf("create step %d: %w", i+1, err)
			}
		}

		if err := e.documentRepo.UpdateStatus(txCtx, doc.ID, entity.DocumentStatusPending, nil, nil); err != nil {
			return fmt.Errorf("update document status: %w", err)
		}

		return nil
	})
	if err != nil {
		// A concurrent create that slipped past the active-workflow check
		// trips the per-document unique index instead.
		if errors.Is(err, port.ErrDuplicateActiveWorkflow) {
			return nil, errs.Conflict("document %s already has an active workflow", req.DocumentID)
		}
		e.logger.Error("Workflow creation failed", "document_id", req.DocumentID, "error", err)
		return nil, errs.Persistence(err, "create workflow for document %s", req.DocumentID)
	}

	e.logger.Info("Workflow created",
		"workflow_id", wf.ID,
		"document_id", wf.DocumentID,
		"approvers", len(req.ApproverIDs),
		"first_approver", firstApprover,
	)

	e.emit(ctx, event.NewEvent(event.TypeWorkflowCreated, wf.ID, actor.ID, map[string]interface{}{
		"document_id":    wf.DocumentID,
		"requester_id":   wf.RequesterID,
		"first_approver": firstApprover,
		"approver_count": len(req.ApproverIDs),
	}))

	return wf, nil
}

// ApproveStep records the current approver's approval and advances the chain.
func (e *engineImpl) ApproveStep(ctx context.Context, actor Actor, workflowID, comments string) (*ApproveResult, error) {
	wf, step, err := e.loadForDecision(ctx, actor, workflowID)
	if err != nil {
		return nil, err
	}

	machine := BuildDocumentStateMachine(domainwf.State(wf.Status))
	now := time.Now()

	var (
		isCompleted  bool
		nextApprover string
	)

	err = e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		ok, err := e.stepRepo.MarkDecided(txCtx, step.ID, entity.StepStatusApproved, comments, now)
		if err != nil {
			return errs.Persistence(err, "mark step %d approved", step.StepOrder)
		}
		if !ok {
			return errs.InvalidState("step %d was already decided", step.StepOrder)
		}

		next, err := e.stepRepo.GetNextPending(txCtx, wf.ID, step.StepOrder)
		if err != nil {
			return errs.Persistence(err, "find next pending step")
		}

		var upd entity.WorkflowUpdate
		if next != nil {
			if err := machine.Fire(txCtx, domainwf.TriggerAdvance); err != nil {
				return errs.InvalidState("workflow %s cannot advance from %s", wf.ID, wf.Status)
			}
			nextApprover = next.ApproverID
			upd = entity.WorkflowUpdate{
				Status:            machine.State().String(),
				CurrentApproverID: &next.ApproverID,
			}
		} else {
			if err := machine.Fire(txCtx, domainwf.TriggerComplete); err != nil {
				return errs.InvalidState("workflow %s cannot complete from %s", wf.ID, wf.Status)
			}
			isCompleted = true
			upd = entity.WorkflowUpdate{
				Status:      machine.State().String(),
				CompletedAt: &now,
			}
		}

		// The write re-asserts the state read during validation; a lost
		// race shows up as zero rows affected.
		swapped, err := e.workflowRepo.CompareAndSwap(txCtx, wf.ID, wf.Status, wf.CurrentApproverID, upd)
		if err != nil {
			return errs.Persistence(err, "update workflow %s", wf.ID)
		}
		if !swapped {
			return errs.InvalidState("workflow %s was modified concurrently", wf.ID)
		}

		if isCompleted {
			if err := e.documentRepo.UpdateStatus(txCtx, wf.DocumentID, entity.DocumentStatusApproved, &actor.ID, &now); err != nil {
				return errs.Persistence(err, "update document %s status", wf.DocumentID)
			}
		}

		wf.Status = upd.Status
		wf.CurrentApproverID = upd.CurrentApproverID
		wf.CompletedAt = upd.CompletedAt
		wf.UpdatedAt = now
		return nil
	})
	if err != nil {
		e.logger.Error("Approve step failed", "workflow_id", workflowID, "approver_id", actor.ID, "error", err)
		return nil, err
	}

	e.logger.Info("Step approved",
		"workflow_id", wf.ID,
		"step_order", step.StepOrder,
		"approver_id", actor.ID,
		"is_completed", isCompleted,
	)

	e.emit(ctx, event.NewEvent(event.TypeStepApproved, wf.ID, actor.ID, map[string]interface{}{
		"step_order":       step.StepOrder,
		"is_completed":     isCompleted,
		"requester_id":     wf.RequesterID,
		"next_approver_id": nextApprover,
	}))

	return &ApproveResult{Workflow: wf, IsCompleted: isCompleted}, nil
}

// Reject terminates the workflow. Remaining pending steps stay pending for
// historical fidelity; the parent status marks them as never reached.
func (e *engineImpl) Reject(ctx context.Context, actor Actor, workflowID, comments string) (*entity.Workflow, error) {
	if len(strings.TrimSpace(comments)) < MinJustificationLen {
		return nil, errs.Validation("rejection comments must be at least %d characters", MinJustificationLen)
	}

	wf, step, err := e.loadForDecision(ctx, actor, workflowID)
	if err != nil {
		return nil, err
	}

	machine := BuildDocumentStateMachine(domainwf.State(wf.Status))
	now := time.Now()

	err = e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		ok, err := e.stepRepo.MarkDecided(txCtx, step.ID, entity.StepStatusRejected, comments, now)
		if err != nil {
			return errs.Persistence(err, "mark step %d rejected", step.StepOrder)
		}
		if !ok {
			return errs.InvalidState("step %d was already decided", step.StepOrder)
		}

		if err := machine.Fire(txCtx, domainwf.TriggerReject); err != nil {
			return errs.InvalidState("workflow %s cannot be rejected from %s", wf.ID, wf.Status)
		}

		upd := entity.WorkflowUpdate{
			Status:      machine.State().String(),
			CompletedAt: &now,
		}
		swapped, err := e.workflowRepo.CompareAndSwap(txCtx, wf.ID, wf.Status, wf.CurrentApproverID, upd)
		if err != nil {
			return errs.Persistence(err, "update workflow %s", wf.ID)
		}
		if !swapped {
			return errs.InvalidState("workflow %s was modified concurrently", wf.ID)
		}

		if err := e.documentRepo.UpdateStatus(txCtx, wf.DocumentID, entity.DocumentStatusRejected, nil, nil); err != nil {
			return errs.Persistence(err, "update document %s status", wf.DocumentID)
		}

		wf.Status = upd.Status
		wf.CurrentApproverID = nil
		wf.CompletedAt = &now
		wf.UpdatedAt = now
		return nil
	})
	if err != nil {
		e.logger.Error("Reject failed", "workflow_id", workflowID, "approver_id", actor.ID, "error", err)
		return nil, err
	}

	e.logger.Info("Workflow rejected",
		"workflow_id", wf.ID,
		"step_order", step.StepOrder,
		"approver_id", actor.ID,
	)

	e.emit(ctx, event.NewEvent(event.TypeWorkflowRejected, wf.ID, actor.ID, map[string]interface{}{
		"step_order":   step.StepOrder,
		"requester_id": wf.RequesterID,
	}))

	return wf, nil
}

// Cancel terminates the workflow and returns the document to draft.
func (e *engineImpl) Cancel(ctx context.Context, actor Actor, workflowID, reason string) (*entity.Workflow, error) {
	if len(strings.TrimSpace(reason)) < MinJustificationLen {
		return nil, errs.Validation("cancellation reason must be at least %d characters", MinJustificationLen)
	}

	wf, err := e.workflowRepo.GetByID(ctx, workflowID)
	if err != nil {
		return nil, errs.Persistence(err, "load workflow %s", workflowID)
	}
	if wf == nil {
		return nil, errs.NotFound("workflow %s not found", workflowID)
	}

	if !actor.IsAdmin() && wf.RequesterID != actor.ID {
		return nil, errs.Forbidden("only the requester or an administrator may cancel")
	}
	if wf.IsTerminal() {
		return nil, errs.InvalidState("workflow %s is already %s", wf.ID, wf.Status)
	}

	machine := BuildDocumentStateMachine(domainwf.State(wf.Status))
	now := time.Now()

	var pendingApprovers []string

	err = e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := machine.Fire(txCtx, domainwf.TriggerCancel); err != nil {
			return errs.InvalidState("workflow %s cannot be cancelled from %s", wf.ID, wf.Status)
		}

		upd := entity.WorkflowUpdate{
			Status:        machine.State().String(),
			CompletedAt:   &now,
			AppendComment: fmt.Sprintf("Cancelled by %s: %s", actor.ID, reason),
		}
		swapped, err := e.workflowRepo.CompareAndSwap(txCtx, wf.ID, wf.Status, wf.CurrentApproverID, upd)
		if err != nil {
			return errs.Persistence(err, "update workflow %s", wf.ID)
		}
		if !swapped {
			return errs.InvalidState("workflow %s was modified concurrently", wf.ID)
		}

		steps, err := e.stepRepo.GetByWorkflowID(txCtx, wf.ID)
		if err != nil {
			return errs.Persistence(err, "load steps for workflow %s", wf.ID)
		}
		for _, s := range steps {
			if s.Status == entity.StepStatusPending {
				pendingApprovers = append(pendingApprovers, s.ApproverID)
			}
		}

		// Cancellation returns the document to an editable state,
		// distinct from rejection.
		if err := e.documentRepo.UpdateStatus(txCtx, wf.DocumentID, entity.DocumentStatusDraft, nil, nil); err != nil {
			return errs.Persistence(err, "update document %s status", wf.DocumentID)
		}

		if wf.Comments != "" {
			wf.Comments = wf.Comments + " | " + upd.AppendComment
		} else {
			wf.Comments = upd.AppendComment
		}
		wf.Status = upd.Status
		wf.CurrentApproverID = nil
		wf.CompletedAt = &now
		wf.UpdatedAt = now
		return nil
	})
	if err != nil {
		e.logger.Error("Cancel failed", "workflow_id", workflowID, "actor_id", actor.ID, "error", err)
		return nil, err
	}

	e.logger.Info("Workflow cancelled",
		"workflow_id", wf.ID,
		"actor_id", actor.ID,
		"pending_approvers", len(pendingApprovers),
	)

	e.emit(ctx, event.NewEvent(event.TypeWorkflowCancelled, wf.ID, actor.ID, map[string]interface{}{
		"reason":            reason,
		"requester_id":      wf.RequesterID,
		"pending_approvers": pendingApprovers,
	}))

	return wf, nil
}

// Get returns a workflow with its ordered steps, subject to visibility.
func (e *engineImpl) Get(ctx context.Context, actor Actor, workflowID string) (*WorkflowDetail, error) {
	wf, err := e.workflowRepo.GetByID(ctx, workflowID)
	if err != nil {
		return nil, errs.Persistence(err, "load workflow %s", workflowID)
	}
	if wf == nil {
		return nil, errs.NotFound("workflow %s not found", workflowID)
	}

	steps, err := e.stepRepo.GetByWorkflowID(ctx, workflowID)
	if err != nil {
		return nil, errs.Persistence(err, "load steps for workflow %s", workflowID)
	}

	if !e.canView(actor, wf, steps) {
		return nil, errs.Forbidden("workflow %s is not visible to %s", workflowID, actor.ID)
	}

	return &WorkflowDetail{Workflow: wf, Steps: steps}, nil
}

// List returns a page of workflows visible to the actor, newest first.
func (e *engineImpl) List(ctx context.Context, actor Actor, filter ListFilter) (*WorkflowPage, error) {
	if filter.Status != "" && !domainwf.State(filter.Status).IsValid() {
		return nil, errs.Validation("unknown status filter %q", filter.Status)
	}
	if filter.Priority != "" && !entity.ValidPriority(filter.Priority) {
		return nil, errs.Validation("unknown priority filter %q", filter.Priority)
	}

	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	repoFilter := port.WorkflowFilter{
		Status:   filter.Status,
		Priority: filter.Priority,
		Overdue:  filter.Overdue,
		Limit:    limit,
		Offset:   offset,
	}
	if filter.AssignedToMe {
		repoFilter.AssignedTo = actor.ID
	} else if !actor.IsAdmin() {
		repoFilter.VisibleTo = actor.ID
	}

	items, total, err := e.workflowRepo.List(ctx, repoFilter)
	if err != nil {
		return nil, errs.Persistence(err, "list workflows")
	}

	return &WorkflowPage{Items: items, Total: total, Limit: limit, Offset: offset}, nil
}

// loadForDecision loads a workflow and the caller's pending step, enforcing
// the shared approve/reject preconditions.
func (e *engineImpl) loadForDecision(ctx context.Context, actor Actor, workflowID string) (*entity.Workflow, *entity.WorkflowStep, error) {
	wf, err := e.workflowRepo.GetByID(ctx, workflowID)
	if err != nil {
		return nil, nil, errs.Persistence(err, "load workflow %s", workflowID)
	}
	if wf == nil {
		return nil, nil, errs.NotFound("workflow %s not found", workflowID)
	}

	// A terminal workflow has a null current approver, so this check also
	// rejects late decisions on finished workflows.
	if wf.CurrentApproverID == nil || *wf.CurrentApproverID != actor.ID {
		return nil, nil, errs.Forbidden("user %s is not the current approver of workflow %s", actor.ID, workflowID)
	}

	if wf.Status != entity.WorkflowStatusPending && wf.Status != entity.WorkflowStatusInProgress {
		return nil, nil, errs.InvalidState("workflow %s is %s and accepts no decisions", workflowID, wf.Status)
	}

	step, err := e.stepRepo.GetPendingByApprover(ctx, workflowID, actor.ID)
	if err != nil {
		return nil, nil, errs.Persistence(err, "load pending step for workflow %s", workflowID)
	}
	if step == nil {
		// Steps and workflow disagree: the state was modified concurrently.
		return nil, nil, errs.InvalidState("no pending step for approver %s on workflow %s", actor.ID, workflowID)
	}

	return wf, step, nil
}

// canView applies the visibility rule: administrators, the requester, and
// anyone in the approver chain.
func (e *engineImpl) canView(actor Actor, wf *entity.Workflow, steps []*entity.WorkflowStep) bool {
	if actor.IsAdmin() || wf.RequesterID == actor.ID {
		return true
	}
	for _, s := range steps {
		if s.ApproverID == actor.ID {
			return true
		}
	}
	return false
}

// emit dispatches a post-commit event; side effects never block or fail
// the committed transition.
func (e *engineImpl) emit(ctx context.Context, evt *event.Event) {
	if e.dispatcher != nil {
		e.dispatcher.DispatchAsync(ctx, evt)
	}
}

func validateCreate(req *CreateRequest) error {
	if strings.TrimSpace(req.DocumentID) == "" {
		return errs.Validation("document_id is required")
	}
	if len(req.ApproverIDs) == 0 {
		return errs.Validation("at least one approver is required")
	}
	for i, id := range req.ApproverIDs {
		if strings.TrimSpace(id) == "" {
			return errs.Validation("approver at position %d is blank", i+1)
		}
	}

	if req.Type == "" {
		req.Type = entity.WorkflowTypeApproval
	}
	if !entity.ValidWorkflowType(req.Type) {
		return errs.Validation("unknown workflow type %q", req.Type)
	}

	if req.Priority == "" {
		req.Priority = entity.PriorityMedium
	}
	if !entity.ValidPriority(req.Priority) {
		return errs.Validation("unknown priority %q", req.Priority)
	}

	return nil
}
