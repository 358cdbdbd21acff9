package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/jinwill/docflow/internal/application/dispatcher"
	"github.com/jinwill/docflow/internal/application/port"
	"github.com/jinwill/docflow/internal/domain/entity"
	"github.com/jinwill/docflow/internal/domain/errs"
	"github.com/jinwill/docflow/internal/domain/event"
)

const auditSheetName = "Audit Trail"

// AuditService records an immutable trail of workflow actions and exposes
// it for querying and spreadsheet export.
type AuditService interface {
	// Register subscribes the service to every workflow event type.
	Register(d dispatcher.Dispatcher)

	// HandleEvent is the dispatcher entry point for workflow events.
	HandleEvent(ctx context.Context, evt *event.Event) error

	// Query returns audit records matching the filter, newest first.
	Query(ctx context.Context, filter port.AuditFilter) ([]*entity.AuditRecord, error)

	// ExportExcel writes the matching records as an xlsx workbook.
	ExportExcel(ctx context.Context, filter port.AuditFilter, w io.Writer) error
}

type auditServiceImpl struct {
	auditRepo port.AuditRepository
	logger    Logger
}

// NewAuditService creates a new AuditService
func NewAuditService(auditRepo port.AuditRepository, logger Logger) AuditService {
	return &auditServiceImpl{
		auditRepo: auditRepo,
		logger:    logger,
	}
}

// Register subscribes the service to every workflow event type
func (s *auditServiceImpl) Register(d dispatcher.Dispatcher) {
	for _, t := range event.All() {
		d.SubscribeNamed(t, "audit", s.HandleEvent)
	}
}

// HandleEvent appends one audit record per workflow event
func (s *auditServiceImpl) HandleEvent(ctx context.Context, evt *event.Event) error {
	action, ok := actionFor(evt.Type)
	if !ok {
		return nil
	}

	details, err := json.Marshal(evt.Payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}

	record := &entity.AuditRecord{
		ActorID:    evt.ActorID,
		Action:     action,
		EntityType: "workflow",
		EntityID:   evt.WorkflowID,
		Details:    string(details),
		CreatedAt:  evt.Timestamp,
	}

	if err := s.auditRepo.Create(ctx, record); err != nil {
		s.logger.Error("Failed to write audit record",
			"event_type", evt.Type,
			"workflow_id", evt.WorkflowID,
			"error", err,
		)
		return fmt.Errorf("create audit record: %w", err)
	}
	return nil
}

// Query returns audit records matching the filter, newest first
func (s *auditServiceImpl) Query(ctx context.Context, filter port.AuditFilter) ([]*entity.AuditRecord, error) {
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 50
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	records, err := s.auditRepo.Query(ctx, filter)
	if err != nil {
		return nil, errs.Persistence(err, "query audit records")
	}
	return records, nil
}

// ExportExcel writes the matching audit records as an xlsx workbook
func (s *auditServiceImpl) ExportExcel(ctx context.Context, filter port.AuditFilter, w io.Writer) error {
	// Exports are bounded snapshots, not streaming dumps.
	if filter.Limit <= 0 || filter.Limit > 10000 {
		filter.Limit = 10000
	}

	records, err := s.auditRepo.Query(ctx, filter)
	if err != nil {
		return errs.Persistence(err, "query audit records for export")
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(auditSheetName)
	if err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	headers := []string{"ID", "Time", "Actor", "Action", "Entity Type", "Entity ID", "Details"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(auditSheetName, cell, h); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}

	for row, r := range records {
		values := []interface{}{
			r.ID,
			r.CreatedAt.Format(time.RFC3339),
			r.ActorID,
			r.Action,
			r.EntityType,
			r.EntityID,
			r.Details,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			if err := f.SetCellValue(auditSheetName, cell, v); err != nil {
				return fmt.Errorf("write row %d: %w", row+1, err)
			}
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}

	s.logger.Info("Audit export generated", "records", len(records))
	return nil
}

func actionFor(t event.Type) (string, bool) {
	switch t {
	case event.TypeWorkflowCreated:
		return entity.AuditWorkflowCreated, true
	case event.TypeStepApproved:
		return entity.AuditWorkflowStepApproved, true
	case event.TypeWorkflowRejected:
		return entity.AuditWorkflowRejected, true
	case event.TypeWorkflowCancelled:
		return entity.AuditWorkflowCancelled, true
	default:
		return "", false
	}
}
