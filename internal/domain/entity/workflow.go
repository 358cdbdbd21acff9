package entity

import "time"

// Workflow represents one document moving through a sequential approval chain.
type Workflow struct {
	ID                string     `json:"id"`
	DocumentID        string     `json:"document_id"`
	Type              string     `json:"workflow_type"`
	Status            string     `json:"status"`
	RequesterID       string     `json:"requester_id"`
	CurrentApproverID *string    `json:"current_approver_id,omitempty"`
	Priority          string     `json:"priority"`
	DueDate           *time.Time `json:"due_date,omitempty"`
	Comments          string     `json:"comments,omitempty"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// IsTerminal reports whether the workflow reached a final status.
func (w *Workflow) IsTerminal() bool {
	switch w.Status {
	case WorkflowStatusApproved, WorkflowStatusRejected, WorkflowStatusCancelled:
		return true
	}
	return false
}

// WorkflowStep is one approver's slot within a workflow's chain.
// StepOrder is 1-based and immutable after creation.
type WorkflowStep struct {
	ID           string     `json:"id"`
	WorkflowID   string     `json:"workflow_id"`
	StepOrder    int        `json:"step_order"`
	ApproverID   string     `json:"approver_id"`
	Status       string     `json:"status"`
	Comments     string     `json:"comments,omitempty"`
	DecisionDate *time.Time `json:"decision_date,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// WorkflowUpdate is the post-transition image written by a compare-and-swap
// update. AppendComment, when non-empty, is concatenated onto the existing
// comments with a separator rather than overwriting them.
type WorkflowUpdate struct {
	Status            string
	CurrentApproverID *string
	CompletedAt       *time.Time
	AppendComment     string
}
