package entity

// Status constants for Workflow
const (
	WorkflowStatusPending    = "pending"
	WorkflowStatusInProgress = "in_progress"
	WorkflowStatusApproved   = "approved"
	WorkflowStatusRejected   = "rejected"
	WorkflowStatusCancelled  = "cancelled"
)

// Status constants for WorkflowStep
const (
	StepStatusPending  = "pending"
	StepStatusApproved = "approved"
	StepStatusRejected = "rejected"
)

// Workflow type constants (semantic only, do not alter transition rules)
const (
	WorkflowTypeApproval  = "approval"
	WorkflowTypeReview    = "review"
	WorkflowTypeSignature = "signature"
)

// Priority constants (informational, used for sorting/filtering)
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// Status constants for Document
const (
	DocumentStatusDraft    = "draft"
	DocumentStatusPending  = "pending"
	DocumentStatusApproved = "approved"
	DocumentStatusRejected = "rejected"
)

// Notification status constants
const (
	NotificationStatusPending = "PENDING"
	NotificationStatusSent    = "SENT"
	NotificationStatusFailed  = "FAILED"
)

// Notification event kinds
const (
	NotifyWorkflowAssigned  = "workflow_assigned"
	NotifyWorkflowApproved  = "workflow_approved"
	NotifyWorkflowRejected  = "workflow_rejected"
	NotifyWorkflowCancelled = "workflow_cancelled"
)

// Audit action constants
const (
	AuditWorkflowCreated      = "WORKFLOW_CREATED"
	AuditWorkflowStepApproved = "WORKFLOW_STEP_APPROVED"
	AuditWorkflowRejected     = "WORKFLOW_REJECTED"
	AuditWorkflowCancelled    = "WORKFLOW_CANCELLED"
)

// ValidWorkflowType reports whether t is a known workflow type.
func ValidWorkflowType(t string) bool {
	switch t {
	case WorkflowTypeApproval, WorkflowTypeReview, WorkflowTypeSignature:
		return true
	}
	return false
}

// ValidPriority reports whether p is a known priority.
func ValidPriority(p string) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}
