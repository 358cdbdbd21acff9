package event

// Type identifies the type of domain event
type Type string

const (
	TypeWorkflowCreated   Type = "workflow.created"
	TypeStepApproved      Type = "workflow.step_approved"
	TypeWorkflowRejected  Type = "workflow.rejected"
	TypeWorkflowCancelled Type = "workflow.cancelled"
)

// All returns every defined event type.
func All() []Type {
	return []Type{
		TypeWorkflowCreated,
		TypeStepApproved,
		TypeWorkflowRejected,
		TypeWorkflowCancelled,
	}
}

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeWorkflowCreated,
		TypeStepApproved,
		TypeWorkflowRejected,
		TypeWorkflowCancelled:
		return true
	default:
		return false
	}
}
