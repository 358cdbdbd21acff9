package service

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/jinwill/docflow/internal/application/port"
	"github.com/jinwill/docflow/internal/domain/entity"
	"github.com/jinwill/docflow/internal/domain/event"
)

type mockAuditRepo struct {
	records   []*entity.AuditRecord
	createErr error
}

func (m *mockAuditRepo) Create(ctx context.Context, record *entity.AuditRecord) error {
	if m.createErr != nil {
		return m.createErr
	}
	record.ID = int64(len(m.records) + 1)
	m.records = append(m.records, record)
	return nil
}

func (m *mockAuditRepo) Query(ctx context.Context, filter port.AuditFilter) ([]*entity.AuditRecord, error) {
	var out []*entity.AuditRecord
	for _, r := range m.records {
		if filter.ActorID != "" && r.ActorID != filter.ActorID {
			continue
		}
		if filter.Action != "" && r.Action != filter.Action {
			continue
		}
		if filter.EntityID != "" && r.EntityID != filter.EntityID {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func TestAuditService_HandleEvent(t *testing.T) {
	tests := []struct {
		name       string
		eventType  event.Type
		wantAction string
	}{
		{"created", event.TypeWorkflowCreated, entity.AuditWorkflowCreated},
		{"step approved", event.TypeStepApproved, entity.AuditWorkflowStepApproved},
		{"rejected", event.TypeWorkflowRejected, entity.AuditWorkflowRejected},
		{"cancelled", event.TypeWorkflowCancelled, entity.AuditWorkflowCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockAuditRepo{}
			svc := NewAuditService(repo, &mockLogger{})

			evt := event.NewEvent(tt.eventType, "wf-1", "alice", map[string]interface{}{
				"step_order": 2,
			})
			if err := svc.HandleEvent(context.Background(), evt); err != nil {
				t.Fatalf("HandleEvent() error = %v", err)
			}

			if len(repo.records) != 1 {
				t.Fatalf("got %d records, want 1", len(repo.records))
			}
			r := repo.records[0]
			if r.Action != tt.wantAction {
				t.Errorf("Action = %v, want %v", r.Action, tt.wantAction)
			}
			if r.ActorID != "alice" || r.EntityType != "workflow" || r.EntityID != "wf-1" {
				t.Errorf("unexpected record: %+v", r)
			}

			var details map[string]interface{}
			if err := json.Unmarshal([]byte(r.Details), &details); err != nil {
				t.Fatalf("Details is not valid JSON: %v", err)
			}
			if details["step_order"] != float64(2) {
				t.Errorf("Details step_order = %v", details["step_order"])
			}
		})
	}
}

func TestAuditService_Query(t *testing.T) {
	repo := &mockAuditRepo{}
	svc := NewAuditService(repo, &mockLogger{})
	ctx := context.Background()

	repo.Create(ctx, &entity.AuditRecord{ActorID: "alice", Action: entity.AuditWorkflowCreated, EntityID: "wf-1"})
	repo.Create(ctx, &entity.AuditRecord{ActorID: "bob", Action: entity.AuditWorkflowRejected, EntityID: "wf-1"})
	repo.Create(ctx, &entity.AuditRecord{ActorID: "alice", Action: entity.AuditWorkflowCreated, EntityID: "wf-2"})

	records, err := svc.Query(ctx, port.AuditFilter{ActorID: "alice"})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(records) != 2 {
		t.Errorf("got %d records, want 2", len(records))
	}

	records, err = svc.Query(ctx, port.AuditFilter{EntityID: "wf-1", Action: entity.AuditWorkflowRejected})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(records) != 1 || records[0].ActorID != "bob" {
		t.Errorf("unexpected records: %+v", records)
	}
}

func TestAuditService_ExportExcel(t *testing.T) {
	repo := &mockAuditRepo{}
	svc := NewAuditService(repo, &mockLogger{})
	ctx := context.Background()

	now := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	repo.Create(ctx, &entity.AuditRecord{
		ActorID:    "alice",
		Action:     entity.AuditWorkflowCreated,
		EntityType: "workflow",
		EntityID:   "wf-1",
		Details:    `{"document_id":"doc-1"}`,
		CreatedAt:  now,
	})
	repo.Create(ctx, &entity.AuditRecord{
		ActorID:    "bob",
		Action:     entity.AuditWorkflowRejected,
		EntityType: "workflow",
		EntityID:   "wf-1",
		CreatedAt:  now.Add(time.Hour),
	})

	var buf bytes.Buffer
	if err := svc.ExportExcel(ctx, port.AuditFilter{}, &buf); err != nil {
		t.Fatalf("ExportExcel() error = %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("exported file is not a valid workbook: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(auditSheetName)
	if err != nil {
		t.Fatalf("GetRows() error = %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want header plus 2 records", len(rows))
	}
	if rows[0][0] != "ID" || rows[0][3] != "Action" {
		t.Errorf("unexpected header row: %v", rows[0])
	}
	if rows[1][2] != "alice" || rows[1][3] != entity.AuditWorkflowCreated {
		t.Errorf("unexpected first record row: %v", rows[1])
	}
	if rows[2][2] != "bob" {
		t.Errorf("unexpected second record row: %v", rows[2])
	}
}
