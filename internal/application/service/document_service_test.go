package service

import (
	"context"
	"testing"
	"time"

	"github.com/jinwill/docflow/internal/domain/entity"
	"github.com/jinwill/docflow/internal/domain/errs"
)

type mockDocumentRepo struct {
	documents map[string]*entity.Document
}

func newMockDocumentRepo() *mockDocumentRepo {
	return &mockDocumentRepo{documents: make(map[string]*entity.Document)}
}

func (m *mockDocumentRepo) Create(ctx context.Context, doc *entity.Document) error {
	m.documents[doc.ID] = doc
	return nil
}

func (m *mockDocumentRepo) GetByID(ctx context.Context, id string) (*entity.Document, error) {
	return m.documents[id], nil
}

func (m *mockDocumentRepo) UpdateStatus(ctx context.Context, id, status string, approvedBy *string, approvedAt *time.Time) error {
	m.documents[id].Status = status
	return nil
}

func (m *mockDocumentRepo) List(ctx context.Context, ownerID string, limit, offset int) ([]*entity.Document, error) {
	var out []*entity.Document
	for _, d := range m.documents {
		if d.OwnerID == ownerID {
			out = append(out, d)
		}
	}
	return out, nil
}

func TestDocumentService_Create(t *testing.T) {
	repo := newMockDocumentRepo()
	svc := NewDocumentService(repo, &mockLogger{})
	ctx := context.Background()

	doc, err := svc.Create(ctx, "alice", "  Q3 budget  ")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if doc.ID == "" {
		t.Error("Create() should assign an ID")
	}
	if doc.Title != "Q3 budget" {
		t.Errorf("Title = %q, want trimmed", doc.Title)
	}
	if doc.Status != entity.DocumentStatusDraft {
		t.Errorf("Status = %v, want draft", doc.Status)
	}

	if _, err := svc.Create(ctx, "alice", "   "); !errs.IsKind(err, errs.KindValidation) {
		t.Errorf("Create() with blank title error = %v, want Validation", err)
	}
}

func TestDocumentService_GetVisibility(t *testing.T) {
	repo := newMockDocumentRepo()
	svc := NewDocumentService(repo, &mockLogger{})
	ctx := context.Background()

	doc, _ := svc.Create(ctx, "alice", "Q3 budget")

	if _, err := svc.Get(ctx, "alice", false, doc.ID); err != nil {
		t.Errorf("Get() by owner error = %v", err)
	}
	if _, err := svc.Get(ctx, "boss", true, doc.ID); err != nil {
		t.Errorf("Get() by admin error = %v", err)
	}
	if _, err := svc.Get(ctx, "bob", false, doc.ID); !errs.IsKind(err, errs.KindForbidden) {
		t.Errorf("Get() by stranger error = %v, want Forbidden", err)
	}
	if _, err := svc.Get(ctx, "alice", false, "doc-404"); !errs.IsKind(err, errs.KindNotFound) {
		t.Errorf("Get() missing error = %v, want NotFound", err)
	}
}
