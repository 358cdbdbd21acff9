package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jinwill/docflow/internal/application/dispatcher"
	"github.com/jinwill/docflow/internal/application/engine"
	"github.com/jinwill/docflow/internal/application/port"
	"github.com/jinwill/docflow/internal/domain/entity"
	"github.com/jinwill/docflow/internal/domain/errs"
	"github.com/jinwill/docflow/internal/domain/event"
)

type nopLogger struct{}

func (nopLogger) Info(msg string, keysAndValues ...interface{})  {}
func (nopLogger) Error(msg string, keysAndValues ...interface{}) {}

// mockEngine lets each test script the engine's behavior.
type mockEngine struct {
	createFunc  func(ctx context.Context, actor engine.Actor, req engine.CreateRequest) (*entity.Workflow, error)
	approveFunc func(ctx context.Context, actor engine.Actor, workflowID, comments string) (*engine.ApproveResult, error)
	rejectFunc  func(ctx context.Context, actor engine.Actor, workflowID, comments string) (*entity.Workflow, error)
	cancelFunc  func(ctx context.Context, actor engine.Actor, workflowID, reason string) (*entity.Workflow, error)
	getFunc     func(ctx context.Context, actor engine.Actor, workflowID string) (*engine.WorkflowDetail, error)
	listFunc    func(ctx context.Context, actor engine.Actor, filter engine.ListFilter) (*engine.WorkflowPage, error)
}

func (m *mockEngine) Create(ctx context.Context, actor engine.Actor, req engine.CreateRequest) (*entity.Workflow, error) {
	return m.createFunc(ctx, actor, req)
}

func (m *mockEngine) ApproveStep(ctx context.Context, actor engine.Actor, workflowID, comments string) (*engine.ApproveResult, error) {
	return m.approveFunc(ctx, actor, workflowID, comments)
}

func (m *mockEngine) Reject(ctx context.Context, actor engine.Actor, workflowID, comments string) (*entity.Workflow, error) {
	return m.rejectFunc(ctx, actor, workflowID, comments)
}

func (m *mockEngine) Cancel(ctx context.Context, actor engine.Actor, workflowID, reason string) (*entity.Workflow, error) {
	return m.cancelFunc(ctx, actor, workflowID, reason)
}

func (m *mockEngine) Get(ctx context.Context, actor engine.Actor, workflowID string) (*engine.WorkflowDetail, error) {
	return m.getFunc(ctx, actor, workflowID)
}

func (m *mockEngine) List(ctx context.Context, actor engine.Actor, filter engine.ListFilter) (*engine.WorkflowPage, error) {
	return m.listFunc(ctx, actor, filter)
}

type mockDocuments struct{}

func (mockDocuments) Create(ctx context.Context, ownerID, title string) (*entity.Document, error) {
	return &entity.Document{ID: "doc-1", OwnerID: ownerID, Title: title, Status: entity.DocumentStatusDraft}, nil
}

func (mockDocuments) Get(ctx context.Context, userID string, isAdmin bool, id string) (*entity.Document, error) {
	return nil, errs.NotFound("document %s not found", id)
}

func (mockDocuments) ListOwn(ctx context.Context, ownerID string, limit, offset int) ([]*entity.Document, error) {
	return nil, nil
}

type mockNotifications struct{}

func (mockNotifications) Register(dispatcher.Dispatcher) {}

func (mockNotifications) HandleEvent(context.Context, *event.Event) error { return nil }

func (mockNotifications) ListForRecipient(ctx context.Context, recipientID string, limit, offset int) ([]*entity.Notification, error) {
	return []*entity.Notification{{ID: 1, RecipientID: recipientID, Kind: entity.NotifyWorkflowAssigned}}, nil
}

type mockAudit struct{}

func (mockAudit) Register(dispatcher.Dispatcher) {}

func (mockAudit) HandleEvent(context.Context, *event.Event) error { return nil }

func (mockAudit) Query(ctx context.Context, filter port.AuditFilter) ([]*entity.AuditRecord, error) {
	return []*entity.AuditRecord{{ID: 1, ActorID: "alice", Action: entity.AuditWorkflowCreated}}, nil
}

func (mockAudit) ExportExcel(ctx context.Context, filter port.AuditFilter, w io.Writer) error {
	_, err := w.Write([]byte("PK"))
	return err
}

var testAuth = AuthConfig{Secret: "test-secret", TokenTTL: time.Hour}

func newTestServer(eng *mockEngine) *Server {
	return NewServer(DefaultServerConfig(), testAuth, eng, mockDocuments{}, mockNotifications{}, mockAudit{}, nopLogger{})
}

func doRequest(t *testing.T, s *Server, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func tokenFor(t *testing.T, userID, role string) string {
	t.Helper()
	token, _, err := GenerateToken(userID, role, testAuth)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return token
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v\nbody: %s", err, w.Body.String())
	}
	return resp
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(&mockEngine{})

	w := doRequest(t, s, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if resp := decodeResponse(t, w); !resp.Success {
		t.Error("health check should report success")
	}
}

func TestIssueToken(t *testing.T) {
	s := newTestServer(&mockEngine{})

	w := doRequest(t, s, http.MethodPost, "/api/auth/token", "", jsonBody{"user_id": "alice"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}

	w = doRequest(t, s, http.MethodPost, "/api/auth/token", "", jsonBody{"user_id": "alice", "role": "superuser"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown role: status = %d, want 400", w.Code)
	}

	w = doRequest(t, s, http.MethodPost, "/api/auth/token", "", jsonBody{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing user_id: status = %d, want 400", w.Code)
	}
}

type jsonBody map[string]interface{}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(&mockEngine{})

	w := doRequest(t, s, http.MethodGet, "/api/workflows", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/workflows", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	w2 := httptest.NewRecorder()
	s.Router().ServeHTTP(w2, req)
	if w2.Code != http.StatusUnauthorized {
		t.Errorf("bad token: status = %d, want 401", w2.Code)
	}
}

func TestAuthRejectsUnsignedToken(t *testing.T) {
	s := newTestServer(&mockEngine{})

	// A token with alg=none carries valid-looking claims but no signature;
	// only HS256 is accepted.
	claims := Claims{
		UserID: "alice",
		Role:   engine.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "alice",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	w := doRequest(t, s, http.MethodGet, "/api/workflows", unsigned, nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("alg=none token: status = %d, want 401", w.Code)
	}
}

func TestCreateWorkflow(t *testing.T) {
	eng := &mockEngine{
		createFunc: func(ctx context.Context, actor engine.Actor, req engine.CreateRequest) (*entity.Workflow, error) {
			if actor.ID != "alice" {
				t.Errorf("actor = %v, want alice from the token", actor.ID)
			}
			approver := req.ApproverIDs[0]
			return &entity.Workflow{
				ID:                "wf-1",
				DocumentID:        req.DocumentID,
				Type:              entity.WorkflowTypeApproval,
				Status:            entity.WorkflowStatusPending,
				RequesterID:       actor.ID,
				CurrentApproverID: &approver,
				Priority:          entity.PriorityMedium,
				CreatedAt:         time.Now(),
				UpdatedAt:         time.Now(),
			}, nil
		},
	}
	s := newTestServer(eng)

	w := doRequest(t, s, http.MethodPost, "/api/workflows", tokenFor(t, "alice", engine.RoleUser), jsonBody{
		"document_id":  "doc-1",
		"approver_ids": []string{"bob", "carol"},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", w.Code, w.Body.String())
	}

	resp := decodeResponse(t, w)
	data := resp.Data.(map[string]interface{})
	if data["id"] != "wf-1" || data["status"] != entity.WorkflowStatusPending {
		t.Errorf("unexpected workflow payload: %v", data)
	}
	if data["current_approver_id"] != "bob" {
		t.Errorf("current_approver_id = %v, want bob", data["current_approver_id"])
	}
}

func TestErrorKindMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"validation", errs.Validation("at least one approver is required"), http.StatusBadRequest},
		{"forbidden", errs.Forbidden("not the current approver"), http.StatusForbidden},
		{"not found", errs.NotFound("workflow missing"), http.StatusNotFound},
		{"conflict", errs.Conflict("document already has an active workflow"), http.StatusConflict},
		{"invalid state", errs.InvalidState("workflow is already cancelled"), http.StatusConflict},
		{"persistence", errs.Persistence(io.ErrUnexpectedEOF, "database exploded"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := &mockEngine{
				createFunc: func(ctx context.Context, actor engine.Actor, req engine.CreateRequest) (*entity.Workflow, error) {
					return nil, tt.err
				},
			}
			s := newTestServer(eng)

			w := doRequest(t, s, http.MethodPost, "/api/workflows", tokenFor(t, "alice", engine.RoleUser), jsonBody{
				"document_id":  "doc-1",
				"approver_ids": []string{"bob"},
			})
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}

			resp := decodeResponse(t, w)
			if resp.Success {
				t.Error("error responses must not report success")
			}
			// Storage details are never surfaced to clients.
			if tt.wantStatus == http.StatusInternalServerError && resp.Error != "internal error" {
				t.Errorf("persistence error leaked: %q", resp.Error)
			}
		})
	}
}

func TestApproveWorkflow_EmptyBodyAllowed(t *testing.T) {
	eng := &mockEngine{
		approveFunc: func(ctx context.Context, actor engine.Actor, workflowID, comments string) (*engine.ApproveResult, error) {
			return &engine.ApproveResult{
				Workflow: &entity.Workflow{
					ID:        workflowID,
					Status:    entity.WorkflowStatusApproved,
					CreatedAt: time.Now(),
					UpdatedAt: time.Now(),
				},
				IsCompleted: true,
			}, nil
		},
	}
	s := newTestServer(eng)

	w := doRequest(t, s, http.MethodPost, "/api/workflows/wf-1/approve", tokenFor(t, "bob", engine.RoleUser), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}

	resp := decodeResponse(t, w)
	data := resp.Data.(map[string]interface{})
	if data["is_completed"] != true {
		t.Error("response should carry is_completed")
	}
}

func TestAuditRoutes_AdminOnly(t *testing.T) {
	s := newTestServer(&mockEngine{})

	w := doRequest(t, s, http.MethodGet, "/api/audit", tokenFor(t, "alice", engine.RoleUser), nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("user on /api/audit: status = %d, want 403", w.Code)
	}

	w = doRequest(t, s, http.MethodGet, "/api/audit", tokenFor(t, "boss", engine.RoleAdmin), nil)
	if w.Code != http.StatusOK {
		t.Errorf("admin on /api/audit: status = %d, want 200", w.Code)
	}

	w = doRequest(t, s, http.MethodGet, "/api/audit/export", tokenFor(t, "boss", engine.RoleAdmin), nil)
	if w.Code != http.StatusOK {
		t.Errorf("admin on /api/audit/export: status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet" {
		t.Errorf("export Content-Type = %q", ct)
	}
}

func TestListNotifications(t *testing.T) {
	s := newTestServer(&mockEngine{})

	w := doRequest(t, s, http.MethodGet, "/api/notifications", tokenFor(t, "alice", engine.RoleUser), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	resp := decodeResponse(t, w)
	items := resp.Data.([]interface{})
	if len(items) != 1 {
		t.Errorf("got %d notifications, want 1", len(items))
	}
}

func TestListWorkflows_PassesFilter(t *testing.T) {
	var gotFilter engine.ListFilter
	eng := &mockEngine{
		listFunc: func(ctx context.Context, actor engine.Actor, filter engine.ListFilter) (*engine.WorkflowPage, error) {
			gotFilter = filter
			return &engine.WorkflowPage{Items: nil, Total: 0, Limit: 20, Offset: 0}, nil
		},
	}
	s := newTestServer(eng)

	path := "/api/workflows?status=pending&priority=high&assigned_to_me=true&overdue=true&limit=5&offset=10"
	w := doRequest(t, s, http.MethodGet, path, tokenFor(t, "alice", engine.RoleUser), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}

	want := engine.ListFilter{Status: "pending", Priority: "high", AssignedToMe: true, Overdue: true, Limit: 5, Offset: 10}
	if gotFilter != want {
		t.Errorf("filter = %+v, want %+v", gotFilter, want)
	}
}
