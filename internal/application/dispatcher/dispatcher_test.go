package dispatcher

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/jinwill/docflow/internal/domain/event"
)

func TestDispatch_RunsHandlersInOrder(t *testing.T) {
	d := NewDispatcher()
	var order []string

	d.SubscribeNamed(event.TypeWorkflowCreated, "first", func(ctx context.Context, evt *event.Event) error {
		order = append(order, "first")
		return nil
	})
	d.SubscribeNamed(event.TypeWorkflowCreated, "second", func(ctx context.Context, evt *event.Event) error {
		order = append(order, "second")
		return nil
	})

	evt := event.NewEvent(event.TypeWorkflowCreated, "wf-1", "user-1", nil)
	if err := d.Dispatch(context.Background(), evt); err != nil {
		t.Fatalf("Dispatch() error: %v", err)
	}

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("handlers ran in order %v", order)
	}
}

func TestDispatch_StopsOnError(t *testing.T) {
	d := NewDispatcher()
	ran := false

	d.SubscribeNamed(event.TypeWorkflowRejected, "failing", func(ctx context.Context, evt *event.Event) error {
		return errors.New("boom")
	})
	d.SubscribeNamed(event.TypeWorkflowRejected, "later", func(ctx context.Context, evt *event.Event) error {
		ran = true
		return nil
	})

	evt := event.NewEvent(event.TypeWorkflowRejected, "wf-1", "user-1", nil)
	if err := d.Dispatch(context.Background(), evt); err == nil {
		t.Error("Dispatch() should return the handler error")
	}
	if ran {
		t.Error("handlers after a failure should not run")
	}
}

func TestDispatch_RecoversPanic(t *testing.T) {
	d := NewDispatcher()

	d.Subscribe(event.TypeStepApproved, func(ctx context.Context, evt *event.Event) error {
		panic("handler exploded")
	})

	evt := event.NewEvent(event.TypeStepApproved, "wf-1", "user-1", nil)
	if err := d.Dispatch(context.Background(), evt); err == nil {
		t.Error("Dispatch() should convert a panic to an error")
	}
}

func TestDispatchAsync_WaitsOnClose(t *testing.T) {
	d := NewDispatcher()

	var mu sync.Mutex
	count := 0

	d.Subscribe(event.TypeWorkflowCancelled, func(ctx context.Context, evt *event.Event) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	})

	evt := event.NewEvent(event.TypeWorkflowCancelled, "wf-1", "admin", nil)
	d.DispatchAsync(context.Background(), evt)
	d.DispatchAsync(context.Background(), evt)

	if err := d.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if count != 2 {
		t.Errorf("async handler ran %d times, want 2", count)
	}
}

func TestDispatch_AfterCloseFails(t *testing.T) {
	d := NewDispatcher()
	if err := d.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if err := d.Close(); err == nil {
		t.Error("second Close() should fail")
	}

	evt := event.NewEvent(event.TypeWorkflowCreated, "wf-1", "user-1", nil)
	if err := d.Dispatch(context.Background(), evt); err == nil {
		t.Error("Dispatch() after Close() should fail")
	}
}
