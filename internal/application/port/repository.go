package port

import (
	"context"
	"errors"
	"time"

	"github.com/jinwill/docflow/internal/domain/entity"
)

// ErrDuplicateActiveWorkflow is returned by WorkflowRepository.Create when
// the document already has a pending or in_progress workflow. The storage
// enforces this with a partial unique index, so creates that race past the
// application-level check still surface it.
var ErrDuplicateActiveWorkflow = errors.New("document already has an active workflow")

// WorkflowFilter narrows List queries. VisibleTo applies the non-admin
// visibility rule (requester or current approver); AssignedTo restricts
// to rows where the user is the current approver.
type WorkflowFilter struct {
	Status     string
	Priority   string
	VisibleTo  string
	AssignedTo string
	Overdue    bool
	Limit      int
	Offset     int
}

// WorkflowRepository defines persistence operations for Workflow
type WorkflowRepository interface {
	Create(ctx context.Context, wf *entity.Workflow) error

	GetByID(ctx context.Context, id string) (*entity.Workflow, error)

	// GetActiveByDocumentID returns the pending or in_progress workflow for a
	// document, or nil when none exists.
	GetActiveByDocumentID(ctx context.Context, documentID string) (*entity.Workflow, error)

	// CompareAndSwap writes upd only if the row still holds expectedStatus and
	// expectedApprover. Returns false when the precondition no longer holds,
	// which means a concurrent caller won the race.
	CompareAndSwap(ctx context.Context, id string, expectedStatus string, expectedApprover *string, upd entity.WorkflowUpdate) (bool, error)

	// List returns a page of workflows ordered by created_at DESC plus the
	// total row count for the filter.
	List(ctx context.Context, filter WorkflowFilter) ([]*entity.Workflow, int, error)
}

// StepRepository defines persistence operations for WorkflowStep
type StepRepository interface {
	Create(ctx context.Context, step *entity.WorkflowStep) error

	// GetByWorkflowID returns all steps of a workflow ordered by step_order.
	GetByWorkflowID(ctx context.Context, workflowID string) ([]*entity.WorkflowStep, error)

	// GetPendingByApprover returns the pending step assigned to approverID,
	// or nil when no such step exists.
	GetPendingByApprover(ctx context.Context, workflowID, approverID string) (*entity.WorkflowStep, error)

	// GetNextPending returns the pending step with the smallest step_order
	// strictly greater than afterOrder, or nil when the chain is exhausted.
	GetNextPending(ctx context.Context, workflowID string, afterOrder int) (*entity.WorkflowStep, error)

	// MarkDecided moves a step out of pending, stamping comments and the
	// decision date. Returns false if the step was no longer pending.
	MarkDecided(ctx context.Context, id string, status, comments string, decidedAt time.Time) (bool, error)
}

// DocumentRepository defines persistence operations for Document
type DocumentRepository interface {
	Create(ctx context.Context, doc *entity.Document) error
	GetByID(ctx context.Context, id string) (*entity.Document, error)
	UpdateStatus(ctx context.Context, id, status string, approvedBy *string, approvedAt *time.Time) error
	List(ctx context.Context, ownerID string, limit, offset int) ([]*entity.Document, error)
}

// AuditFilter narrows audit queries
type AuditFilter struct {
	ActorID    string
	Action     string
	EntityType string
	EntityID   string
	Limit      int
	Offset     int
}

// AuditRepository defines persistence operations for AuditRecord
type AuditRepository interface {
	Create(ctx context.Context, record *entity.AuditRecord) error
	Query(ctx context.Context, filter AuditFilter) ([]*entity.AuditRecord, error)
}

// NotificationRepository defines persistence operations for Notification
type NotificationRepository interface {
	Create(ctx context.Context, n *entity.Notification) error
	ListByRecipient(ctx context.Context, recipientID string, limit, offset int) ([]*entity.Notification, error)
	MarkSent(ctx context.Context, id int64, sentAt time.Time) error
	MarkFailed(ctx context.Context, id int64, errorMsg string) error
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
