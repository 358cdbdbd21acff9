package engine

import (
	domainwf "github.com/jinwill/docflow/internal/domain/workflow"
)

// BuildDocumentStateMachine creates a state machine configured for the
// document approval lifecycle. ADVANCE keeps a mid-chain workflow in
// in_progress; COMPLETE, REJECT and CANCEL reach terminal states, which
// have no outgoing transitions.
func BuildDocumentStateMachine(initialState domainwf.State) domainwf.StateMachine {
	builder := domainwf.NewBuilder()

	builder.Configure(domainwf.StatePending).
		Permit(domainwf.TriggerAdvance, domainwf.StateInProgress).
		Permit(domainwf.TriggerComplete, domainwf.StateApproved).
		Permit(domainwf.TriggerReject, domainwf.StateRejected).
		Permit(domainwf.TriggerCancel, domainwf.StateCancelled)

	builder.Configure(domainwf.StateInProgress).
		Permit(domainwf.TriggerAdvance, domainwf.StateInProgress).
		Permit(domainwf.TriggerComplete, domainwf.StateApproved).
		Permit(domainwf.TriggerReject, domainwf.StateRejected).
		Permit(domainwf.TriggerCancel, domainwf.StateCancelled)

	return builder.Build(initialState)
}
