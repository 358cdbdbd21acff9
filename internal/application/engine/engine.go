// Package engine implements the workflow approval engine: a sequential,
// multi-approver state machine that advances a document through an ordered
// chain of approvers. All reads and writes go through the persistence ports;
// notification and audit are side effects dispatched after a transition
// commits and never block it.
package engine

import (
	"context"
	"time"

	"github.com/jinwill/docflow/internal/domain/entity"
)

// Actor roles
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// MinJustificationLen is the minimum length for rejection comments and
// cancellation reasons.
const MinJustificationLen = 10

// Actor is the caller identity, resolved upstream of the engine.
type Actor struct {
	ID   string
	Role string
}

// IsAdmin reports whether the actor holds the administrator role.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// CreateRequest carries the inputs for creating a workflow.
type CreateRequest struct {
	DocumentID  string
	ApproverIDs []string
	Type        string
	Priority    string
	DueDate     *time.Time
	Comments    string
}

// ApproveResult is the outcome of an approve-step call.
type ApproveResult struct {
	Workflow    *entity.Workflow `json:"workflow"`
	IsCompleted bool             `json:"is_completed"`
}

// WorkflowDetail is a workflow plus its ordered steps.
type WorkflowDetail struct {
	Workflow *entity.Workflow       `json:"workflow"`
	Steps    []*entity.WorkflowStep `json:"steps"`
}

// ListFilter narrows List results. Non-admin callers only ever see
// workflows where they are requester or current approver.
type ListFilter struct {
	Status       string
	Priority     string
	AssignedToMe bool
	Overdue      bool
	Limit        int
	Offset       int
}

// WorkflowPage is a page of workflows plus paging metadata.
type WorkflowPage struct {
	Items  []*entity.Workflow `json:"items"`
	Total  int                `json:"total"`
	Limit  int                `json:"limit"`
	Offset int                `json:"offset"`
}

// Engine is the workflow engine boundary contract.
type Engine interface {
	// Create starts a workflow over a document with an ordered approver chain.
	Create(ctx context.Context, actor Actor, req CreateRequest) (*entity.Workflow, error)

	// ApproveStep records the current approver's approval and advances the
	// chain, completing the workflow when the last step approves.
	ApproveStep(ctx context.Context, actor Actor, workflowID, comments string) (*ApproveResult, error)

	// Reject terminates the workflow; a single rejection kills the whole
	// chain regardless of remaining steps.
	Reject(ctx context.Context, actor Actor, workflowID, comments string) (*entity.Workflow, error)

	// Cancel terminates the workflow and returns the document to draft.
	// Only the requester or an administrator may cancel.
	Cancel(ctx context.Context, actor Actor, workflowID, reason string) (*entity.Workflow, error)

	// Get returns a workflow with its ordered steps, subject to visibility.
	Get(ctx context.Context, actor Actor, workflowID string) (*WorkflowDetail, error)

	// List returns a page of workflows visible to the actor.
	List(ctx context.Context, actor Actor, filter ListFilter) (*WorkflowPage, error)
}
