package workflow

// Trigger represents an event that can cause a state transition
type Trigger string

const (
	// TriggerAdvance fires when a step is approved and more steps remain
	TriggerAdvance Trigger = "ADVANCE"
	// TriggerComplete fires when the final step is approved
	TriggerComplete Trigger = "COMPLETE"
	// TriggerReject fires when the current approver rejects; always terminal
	TriggerReject Trigger = "REJECT"
	// TriggerCancel fires when the requester or an administrator cancels
	TriggerCancel Trigger = "CANCEL"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
