package event

import "testing"

func TestNewEvent(t *testing.T) {
	evt := NewEvent(TypeWorkflowCreated, "wf-1", "user-1", map[string]interface{}{
		"first_approver": "alice",
	})

	if evt.ID == "" {
		t.Error("NewEvent() should generate an ID")
	}
	if evt.CorrelationID == "" {
		t.Error("NewEvent() should generate a correlation ID")
	}
	if evt.WorkflowID != "wf-1" {
		t.Errorf("WorkflowID = %v, want wf-1", evt.WorkflowID)
	}
	if evt.Timestamp.IsZero() {
		t.Error("NewEvent() should stamp a timestamp")
	}
	if evt.GetPayloadString("first_approver") != "alice" {
		t.Error("payload string round-trip failed")
	}
}

func TestEvent_WithPayload(t *testing.T) {
	evt := NewEvent(TypeStepApproved, "wf-1", "user-1", map[string]interface{}{"step_order": 2})
	evt2 := evt.WithPayload("is_completed", true)

	if evt.GetPayloadBool("is_completed") {
		t.Error("WithPayload() must not mutate the original event")
	}
	if !evt2.GetPayloadBool("is_completed") {
		t.Error("WithPayload() should set the new key")
	}
	if evt2.GetPayloadInt("step_order") != 2 {
		t.Error("WithPayload() should preserve existing keys")
	}
	if evt2.ID != evt.ID {
		t.Error("WithPayload() should keep the event identity")
	}
}

func TestEvent_GetPayloadStrings(t *testing.T) {
	evt := NewEvent(TypeWorkflowCancelled, "wf-1", "admin", map[string]interface{}{
		"pending_approvers": []string{"bob", "carol"},
	})

	got := evt.GetPayloadStrings("pending_approvers")
	if len(got) != 2 || got[0] != "bob" || got[1] != "carol" {
		t.Errorf("GetPayloadStrings() = %v", got)
	}

	// JSON round-trips deliver []interface{}
	evt2 := evt.WithPayload("pending_approvers", []interface{}{"dave"})
	got = evt2.GetPayloadStrings("pending_approvers")
	if len(got) != 1 || got[0] != "dave" {
		t.Errorf("GetPayloadStrings() from []interface{} = %v", got)
	}

	if evt.GetPayloadStrings("missing") != nil {
		t.Error("GetPayloadStrings() should return nil for missing keys")
	}
}

func TestType_IsValid(t *testing.T) {
	for _, typ := range All() {
		if !typ.IsValid() {
			t.Errorf("%s should be valid", typ)
		}
	}
	if Type("workflow.unknown").IsValid() {
		t.Error("unknown type should be invalid")
	}
}
