package service

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/jinwill/docflow/internal/application/port"
	"github.com/jinwill/docflow/internal/domain/entity"
	"github.com/jinwill/docflow/internal/domain/errs"
	"github.com/jinwill/docflow/pkg/utils"
)

// DocumentService manages the documents that workflows run over
type DocumentService interface {
	Create(ctx context.Context, ownerID, title string) (*entity.Document, error)

	// Get returns the document; non-owners need the admin flag.
	Get(ctx context.Context, userID string, isAdmin bool, id string) (*entity.Document, error)

	// ListOwn returns the caller's documents, newest first.
	ListOwn(ctx context.Context, ownerID string, limit, offset int) ([]*entity.Document, error)
}

type documentServiceImpl struct {
	documentRepo port.DocumentRepository
	logger       Logger
}

// NewDocumentService creates a new DocumentService
func NewDocumentService(documentRepo port.DocumentRepository, logger Logger) DocumentService {
	return &documentServiceImpl{
		documentRepo: documentRepo,
		logger:       logger,
	}
}

// Create registers a new draft document
func (s *documentServiceImpl) Create(ctx context.Context, ownerID, title string) (*entity.Document, error) {
	title = strings.TrimSpace(utils.SanitizeString(title))
	if title == "" {
		return nil, errs.Validation("title is required")
	}

	doc := &entity.Document{
		ID:      uuid.NewString(),
		OwnerID: ownerID,
		Title:   title,
		Status:  entity.DocumentStatusDraft,
	}

	if err := s.documentRepo.Create(ctx, doc); err != nil {
		return nil, errs.Persistence(err, "create document")
	}

	s.logger.Info("Document created", "document_id", doc.ID, "owner_id", ownerID)
	return doc, nil
}

// Get returns the document; non-owners need the admin flag
func (s *documentServiceImpl) Get(ctx context.Context, userID string, isAdmin bool, id string) (*entity.Document, error) {
	doc, err := s.documentRepo.GetByID(ctx, id)
	if err != nil {
		return nil, errs.Persistence(err, "load document %s", id)
	}
	if doc == nil {
		return nil, errs.NotFound("document %s not found", id)
	}
	if !isAdmin && doc.OwnerID != userID {
		return nil, errs.Forbidden("document %s is not visible to %s", id, userID)
	}
	return doc, nil
}

// ListOwn returns the caller's documents, newest first
func (s *documentServiceImpl) ListOwn(ctx context.Context, ownerID string, limit, offset int) ([]*entity.Document, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	docs, err := s.documentRepo.List(ctx, ownerID, limit, offset)
	if err != nil {
		return nil, errs.Persistence(err, "list documents for %s", ownerID)
	}
	return docs, nil
}
