package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/jinwill/docflow/internal/application/port"
	"github.com/jinwill/docflow/internal/domain/entity"
	"github.com/jinwill/docflow/internal/infrastructure/persistence/sqlite"
)

// WorkflowRepository implements port.WorkflowRepository
type WorkflowRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewWorkflowRepository creates a new workflow repository
func NewWorkflowRepository(db *sql.DB, logger *zap.Logger) port.WorkflowRepository {
	return &WorkflowRepository{
		db:     db,
		logger: logger,
	}
}

const workflowColumns = `
	id, document_id, type, status, requester_id, current_approver_id,
	priority, due_date, comments, completed_at, created_at, updated_at
`

// Create inserts a new workflow
func (r *WorkflowRepository) Create(ctx context.Context, wf *entity.Workflow) error {
	query := `
		INSERT INTO workflows (
			id, document_id, type, status, requester_id, current_approver_id,
			priority, due_date, comments, completed_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	now := time.Now()
	if wf.CreatedAt.IsZero() {
		wf.CreatedAt = now
	}
	wf.UpdatedAt = now

	_, err := r.getExecutor(ctx).ExecContext(ctx, query,
		wf.ID,
		wf.DocumentID,
		wf.Type,
		wf.Status,
		wf.RequesterID,
		wf.CurrentApproverID,
		wf.Priority,
		wf.DueDate,
		wf.Comments,
		wf.CompletedAt,
		wf.CreatedAt,
		wf.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: document %s", port.ErrDuplicateActiveWorkflow, wf.DocumentID)
		}
		r.logger.Error("Failed to create workflow",
			zap.String("workflow_id", wf.ID),
			zap.String("document_id", wf.DocumentID),
			zap.Error(err))
		return fmt.Errorf("failed to create workflow: %w", err)
	}

	return nil
}

// isUniqueViolation reports whether err is a sqlite unique-constraint
// failure, such as the one-active-workflow-per-document index firing.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// GetByID retrieves a workflow by ID, nil when absent
func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*entity.Workflow, error) {
	query := `SELECT` + workflowColumns + `FROM workflows WHERE id = ?`

	wf, err := scanWorkflow(r.getExecutor(ctx).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get workflow",
			zap.String("workflow_id", id),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get workflow: %w", err)
	}

	return wf, nil
}

// GetActiveByDocumentID returns the pending or in_progress workflow for a
// document, nil when none exists
func (r *WorkflowRepository) GetActiveByDocumentID(ctx context.Context, documentID string) (*entity.Workflow, error) {
	query := `SELECT` + workflowColumns + `
		FROM workflows
		WHERE document_id = ? AND status IN (?, ?)
		LIMIT 1
	`

	wf, err := scanWorkflow(r.getExecutor(ctx).QueryRowContext(ctx, query,
		documentID, entity.WorkflowStatusPending, entity.WorkflowStatusInProgress))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get active workflow",
			zap.String("document_id", documentID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get active workflow: %w", err)
	}

	return wf, nil
}

// CompareAndSwap writes upd only if the row still holds expectedStatus and
// expectedApprover. Zero rows affected means a concurrent caller won.
func (r *WorkflowRepository) CompareAndSwap(ctx context.Context, id string, expectedStatus string, expectedApprover *string, upd entity.WorkflowUpdate) (bool, error) {
	query := `
		UPDATE workflows
		SET status = ?,
			current_approver_id = ?,
			completed_at = ?,
			comments = CASE
				WHEN ? = '' THEN comments
				WHEN comments IS NULL OR comments = '' THEN ?
				ELSE comments || ' | ' || ?
			END,
			updated_at = ?
		WHERE id = ?
			AND status = ?
			AND (current_approver_id = ? OR (current_approver_id IS NULL AND ? IS NULL))
	`

	result, err := r.getExecutor(ctx).ExecContext(ctx, query,
		upd.Status,
		upd.CurrentApproverID,
		upd.CompletedAt,
		upd.AppendComment,
		upd.AppendComment,
		upd.AppendComment,
		time.Now(),
		id,
		expectedStatus,
		expectedApprover,
		expectedApprover,
	)
	if err != nil {
		r.logger.Error("Failed to update workflow",
			zap.String("workflow_id", id),
			zap.Error(err))
		return false, fmt.Errorf("failed to update workflow: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return affected == 1, nil
}

// List returns a page of workflows ordered by created_at DESC plus the total
// row count for the filter
func (r *WorkflowRepository) List(ctx context.Context, filter port.WorkflowFilter) ([]*entity.Workflow, int, error) {
	conditions := []string{"1 = 1"}
	args := []interface{}{}

	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.Priority != "" {
		conditions = append(conditions, "priority = ?")
		args = append(args, filter.Priority)
	}
	if filter.AssignedTo != "" {
		conditions = append(conditions, "current_approver_id = ?")
		args = append(args, filter.AssignedTo)
	}
	if filter.VisibleTo != "" {
		conditions = append(conditions, "(requester_id = ? OR current_approver_id = ?)")
		args = append(args, filter.VisibleTo, filter.VisibleTo)
	}
	if filter.Overdue {
		conditions = append(conditions, "due_date IS NOT NULL AND due_date < ? AND completed_at IS NULL")
		args = append(args, time.Now())
	}

	where := strings.Join(conditions, " AND ")

	var total int
	countQuery := `SELECT COUNT(*) FROM workflows WHERE ` + where
	if err := r.getExecutor(ctx).QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		r.logger.Error("Failed to count workflows", zap.Error(err))
		return nil, 0, fmt.Errorf("failed to count workflows: %w", err)
	}

	query := `SELECT` + workflowColumns + `
		FROM workflows
		WHERE ` + where + `
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.getExecutor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list workflows", zap.Error(err))
		return nil, 0, fmt.Errorf("failed to list workflows: %w", err)
	}
	defer rows.Close()

	var workflows []*entity.Workflow
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan workflow: %w", err)
		}
		workflows = append(workflows, wf)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate workflows: %w", err)
	}

	return workflows, total, nil
}

// rowScanner covers *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanWorkflow(row rowScanner) (*entity.Workflow, error) {
	var wf entity.Workflow
	var currentApprover sql.NullString
	var comments sql.NullString
	var dueDate, completedAt sql.NullTime

	err := row.Scan(
		&wf.ID,
		&wf.DocumentID,
		&wf.Type,
		&wf.Status,
		&wf.RequesterID,
		&currentApprover,
		&wf.Priority,
		&dueDate,
		&comments,
		&completedAt,
		&wf.CreatedAt,
		&wf.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if currentApprover.Valid {
		wf.CurrentApproverID = &currentApprover.String
	}
	if comments.Valid {
		wf.Comments = comments.String
	}
	if dueDate.Valid {
		t := dueDate.Time
		wf.DueDate = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		wf.CompletedAt = &t
	}

	return &wf, nil
}

// getExecutor returns appropriate executor based on context
func (r *WorkflowRepository) getExecutor(ctx context.Context) executor {
	if tx := sqlite.ExtractTx(ctx); tx != nil {
		return tx
	}
	return r.db
}

// executor interface covers both *sql.DB and *sql.Tx
type executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Verify interface compliance
var _ port.WorkflowRepository = (*WorkflowRepository)(nil)
