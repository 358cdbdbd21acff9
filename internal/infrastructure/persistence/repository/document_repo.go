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

// DocumentRepository implements port.DocumentRepository
type DocumentRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDocumentRepository creates a new document repository
func NewDocumentRepository(db *sql.DB, logger *zap.Logger) port.DocumentRepository {
	return &DocumentRepository{
		db:     db,
		logger: logger,
	}
}

const documentColumns = `
	id, owner_id, title, status, approved_by, approved_at, created_at, updated_at
`

// Create inserts a new document
func (r *DocumentRepository) Create(ctx context.Context, doc *entity.Document) error {
	query := `
		INSERT INTO documents (
			id, owner_id, title, status, approved_by, approved_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	now := time.Now()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now

	_, err := r.getExecutor(ctx).ExecContext(ctx, query,
		doc.ID,
		doc.OwnerID,
		doc.Title,
		doc.Status,
		doc.ApprovedBy,
		doc.ApprovedAt,
		doc.CreatedAt,
		doc.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create document",
			zap.String("document_id", doc.ID),
			zap.Error(err))
		return fmt.Errorf("failed to create document: %w", err)
	}

	return nil
}

// GetByID retrieves a document by ID, nil when absent
func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*entity.Document, error) {
	query := `SELECT` + documentColumns + `FROM documents WHERE id = ?`

	doc, err := scanDocument(r.getExecutor(ctx).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get document",
			zap.String("document_id", id),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	return doc, nil
}

// UpdateStatus sets the document status and approval stamp
func (r *DocumentRepository) UpdateStatus(ctx context.Context, id, status string, approvedBy *string, approvedAt *time.Time) error {
	query := `
		UPDATE documents
		SET status = ?, approved_by = ?, approved_at = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.getExecutor(ctx).ExecContext(ctx, query,
		status, approvedBy, approvedAt, time.Now(), id)
	if err != nil {
		r.logger.Error("Failed to update document status",
			zap.String("document_id", id),
			zap.String("status", status),
			zap.Error(err))
		return fmt.Errorf("failed to update document status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("document %s not found", id)
	}

	return nil
}

// List returns a page of documents owned by ownerID, newest first
func (r *DocumentRepository) List(ctx context.Context, ownerID string, limit, offset int) ([]*entity.Document, error) {
	query := `SELECT` + documentColumns + `
		FROM documents
		WHERE owner_id = ?
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`

	rows, err := r.getExecutor(ctx).QueryContext(ctx, query, ownerID, limit, offset)
	if err != nil {
		r.logger.Error("Failed to list documents",
			zap.String("owner_id", ownerID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var documents []*entity.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		documents = append(documents, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate documents: %w", err)
	}

	return documents, nil
}

func scanDocument(row rowScanner) (*entity.Document, error) {
	var doc entity.Document
	var approvedBy sql.NullString
	var approvedAt sql.NullTime

	err := row.Scan(
		&doc.ID,
		&doc.OwnerID,
		&doc.Title,
		&doc.Status,
		&approvedBy,
		&approvedAt,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if approvedBy.Valid {
		doc.ApprovedBy = &approvedBy.String
	}
	if approvedAt.Valid {
		t := approvedAt.Time
		doc.ApprovedAt = &t
	}

	return &doc, nil
}

// getExecutor returns appropriate executor based on context
func (r *DocumentRepository) getExecutor(ctx context.Context) executor {
	if tx := sqlite.ExtractTx(ctx); tx != nil {
		return tx
	}
	return r.db
}

// Verify interface compliance
var _ port.DocumentRepository = (*DocumentRepository)(nil)
