package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jinwill/docflow/internal/application/port"
	"github.com/jinwill/docflow/internal/domain/entity"
	"github.com/jinwill/docflow/internal/infrastructure/persistence/sqlite"
)

// StepRepository implements port.StepRepository
type StepRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewStepRepository creates a new workflow step repository
func NewStepRepository(db *sql.DB, logger *zap.Logger) port.StepRepository {
	return &StepRepository{
		db:     db,
		logger: logger,
	}
}

const stepColumns = `
	id, workflow_id, step_order, approver_id, status, comments, decision_date, created_at
`

// Create inserts a new workflow step
func (r *StepRepository) Create(ctx context.Context, step *entity.WorkflowStep) error {
	query := `
		INSERT INTO workflow_steps (
			id, workflow_id, step_order, approver_id, status, comments, decision_date, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	if step.CreatedAt.IsZero() {
		step.CreatedAt = time.Now()
	}

	_, err := r.getExecutor(ctx).ExecContext(ctx, query,
		step.ID,
		step.WorkflowID,
		step.StepOrder,
		step.ApproverID,
		step.Status,
		step.Comments,
		step.DecisionDate,
		step.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create workflow step",
			zap.String("workflow_id", step.WorkflowID),
			zap.Int("step_order", step.StepOrder),
			zap.Error(err))
		return fmt.Errorf("failed to create workflow step: %w", err)
	}

	return nil
}

// GetByWorkflowID returns all steps of a workflow ordered by step_order
func (r *StepRepository) GetByWorkflowID(ctx context.Context, workflowID string) ([]*entity.WorkflowStep, error) {
	query := `SELECT` + stepColumns + `
		FROM workflow_steps
		WHERE workflow_id = ?
		ORDER BY step_order ASC
	`

	rows, err := r.getExecutor(ctx).QueryContext(ctx, query, workflowID)
	if err != nil {
		r.logger.Error("Failed to get workflow steps",
			zap.String("workflow_id", workflowID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get workflow steps: %w", err)
	}
	defer rows.Close()

	var steps []*entity.WorkflowStep
	for rows.Next() {
		step, err := scanStep(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow step: %w", err)
		}
		steps = append(steps, step)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate workflow steps: %w", err)
	}

	return steps, nil
}

// GetPendingByApprover returns the pending step assigned to approverID,
// nil when no such step exists
func (r *StepRepository) GetPendingByApprover(ctx context.Context, workflowID, approverID string) (*entity.WorkflowStep, error) {
	query := `SELECT` + stepColumns + `
		FROM workflow_steps
		WHERE workflow_id = ? AND approver_id = ? AND status = ?
		ORDER BY step_order ASC
		LIMIT 1
	`

	step, err := scanStep(r.getExecutor(ctx).QueryRowContext(ctx, query,
		workflowID, approverID, entity.StepStatusPending))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get pending step",
			zap.String("workflow_id", workflowID),
			zap.String("approver_id", approverID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get pending step: %w", err)
	}

	return step, nil
}

// GetNextPending returns the pending step with the smallest step_order
// strictly greater than afterOrder, nil when the chain is exhausted
func (r *StepRepository) GetNextPending(ctx context.Context, workflowID string, afterOrder int) (*entity.WorkflowStep, error) {
	query := `SELECT` + stepColumns + `
		FROM workflow_steps
		WHERE workflow_id = ? AND status = ? AND step_order > ?
		ORDER BY step_order ASC
		LIMIT 1
	`

	step, err := scanStep(r.getExecutor(ctx).QueryRowContext(ctx, query,
		workflowID, entity.StepStatusPending, afterOrder))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get next pending step",
			zap.String("workflow_id", workflowID),
			zap.Int("after_order", afterOrder),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get next pending step: %w", err)
	}

	return step, nil
}

// MarkDecided moves a step out of pending. Zero rows affected means the
// step was already decided.
func (r *StepRepository) MarkDecided(ctx context.Context, id string, status, comments string, decidedAt time.Time) (bool, error) {
	query := `
		UPDATE workflow_steps
		SET status = ?, comments = ?, decision_date = ?
		WHERE id = ? AND status = ?
	`

	result, err := r.getExecutor(ctx).ExecContext(ctx, query,
		status, comments, decidedAt, id, entity.StepStatusPending)
	if err != nil {
		r.logger.Error("Failed to mark step decided",
			zap.String("step_id", id),
			zap.String("status", status),
			zap.Error(err))
		return false, fmt.Errorf("failed to mark step decided: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return affected == 1, nil
}

func scanStep(row rowScanner) (*entity.WorkflowStep, error) {
	var step entity.WorkflowStep
	var comments sql.NullString
	var decisionDate sql.NullTime

	err := row.Scan(
		&step.ID,
		&step.WorkflowID,
		&step.StepOrder,
		&step.ApproverID,
		&step.Status,
		&comments,
		&decisionDate,
		&step.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if comments.Valid {
		step.Comments = comments.String
	}
	if decisionDate.Valid {
		t := decisionDate.Time
		step.DecisionDate = &t
	}

	return &step, nil
}

// getExecutor returns appropriate executor based on context
func (r *StepRepository) getExecutor(ctx context.Context) executor {
	if tx := sqlite.ExtractTx(ctx); tx != nil {
		return tx
	}
	return r.db
}

// Verify interface compliance
var _ port.StepRepository = (*StepRepository)(nil)
