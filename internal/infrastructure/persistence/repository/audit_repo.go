package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jinwill/docflow/internal/application/port"
	"github.com/jinwill/docflow/internal/domain/entity"
	"github.com/jinwill/docflow/internal/infrastructure/persistence/sqlite"
)

// AuditRepository implements port.AuditRepository. The table is append
// only; there is no update or delete path.
type AuditRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *sql.DB, logger *zap.Logger) port.AuditRepository {
	return &AuditRepository{
		db:     db,
		logger: logger,
	}
}

// Create appends an audit record
func (r *AuditRepository) Create(ctx context.Context, record *entity.AuditRecord) error {
	query := `
		INSERT INTO audit_records (
			actor_id, action, entity_type, entity_id, details, created_at
		) VALUES (?, ?, ?, ?, ?, ?)
	`

	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	result, err := r.getExecutor(ctx).ExecContext(ctx, query,
		record.ActorID,
		record.Action,
		record.EntityType,
		record.EntityID,
		record.Details,
		record.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create audit record",
			zap.String("action", record.Action),
			zap.String("entity_id", record.EntityID),
			zap.Error(err))
		return fmt.Errorf("failed to create audit record: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	record.ID = id
	return nil
}

// Query returns audit records matching the filter, newest first
func (r *AuditRepository) Query(ctx context.Context, filter port.AuditFilter) ([]*entity.AuditRecord, error) {
	conditions := []string{"1 = 1"}
	args := []interface{}{}

	if filter.ActorID != "" {
		conditions = append(conditions, "actor_id = ?")
		args = append(args, filter.ActorID)
	}
	if filter.Action != "" {
		conditions = append(conditions, "action = ?")
		args = append(args, filter.Action)
	}
	if filter.EntityType != "" {
		conditions = append(conditions, "entity_type = ?")
		args = append(args, filter.EntityType)
	}
	if filter.EntityID != "" {
		conditions = append(conditions, "entity_id = ?")
		args = append(args, filter.EntityID)
	}

	query := `
		SELECT id, actor_id, action, entity_type, entity_id, details, created_at
		FROM audit_records
		WHERE ` + strings.Join(conditions, " AND ") + `
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.getExecutor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to query audit records", zap.Error(err))
		return nil, fmt.Errorf("failed to query audit records: %w", err)
	}
	defer rows.Close()

	var records []*entity.AuditRecord
	for rows.Next() {
		var record entity.AuditRecord
		var details sql.NullString

		err := rows.Scan(
			&record.ID,
			&record.ActorID,
			&record.Action,
			&record.EntityType,
			&record.EntityID,
			&details,
			&record.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit record: %w", err)
		}
		if details.Valid {
			record.Details = details.String
		}
		records = append(records, &record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit records: %w", err)
	}

	return records, nil
}

// getExecutor returns appropriate executor based on context
func (r *AuditRepository) getExecutor(ctx context.Context) executor {
	if tx := sqlite.ExtractTx(ctx); tx != nil {
		return tx
	}
	return r.db
}

// Verify interface compliance
var _ port.AuditRepository = (*AuditRepository)(nil)
