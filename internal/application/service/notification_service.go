package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jinwill/docflow/internal/application/dispatcher"
	"github.com/jinwill/docflow/internal/application/port"
	"github.com/jinwill/docflow/internal/domain/entity"
	"github.com/jinwill/docflow/internal/domain/errs"
	"github.com/jinwill/docflow/internal/domain/event"
)

// NotificationService records in-app notifications for workflow events and
// delivers them through the configured sender. Delivery is best effort: a
// failed send marks the row FAILED but never propagates to the caller.
type NotificationService interface {
	// Register subscribes the service to every workflow event type.
	Register(d dispatcher.Dispatcher)

	// HandleEvent is the dispatcher entry point for workflow events.
	HandleEvent(ctx context.Context, evt *event.Event) error

	// ListForRecipient returns a recipient's notifications, newest first.
	ListForRecipient(ctx context.Context, recipientID string, limit, offset int) ([]*entity.Notification, error)
}

type notificationServiceImpl struct {
	notificationRepo port.NotificationRepository
	sender           port.MessageSender
	logger           Logger
}

// NewNotificationService creates a new NotificationService
func NewNotificationService(
	notificationRepo port.NotificationRepository,
	sender port.MessageSender,
	logger Logger,
) NotificationService {
	return &notificationServiceImpl{
		notificationRepo: notificationRepo,
		sender:           sender,
		logger:           logger,
	}
}

// Register subscribes the service to every workflow event type
func (s *notificationServiceImpl) Register(d dispatcher.Dispatcher) {
	for _, t := range event.All() {
		d.SubscribeNamed(t, "notifications", s.HandleEvent)
	}
}

// HandleEvent fans a workflow event out to its recipients
func (s *notificationServiceImpl) HandleEvent(ctx context.Context, evt *event.Event) error {
	for _, n := range s.notificationsFor(evt) {
		if err := s.deliver(ctx, n); err != nil {
			s.logger.Error("Failed to record notification",
				"event_type", evt.Type,
				"workflow_id", evt.WorkflowID,
				"recipient_id", n.RecipientID,
				"error", err,
			)
			return err
		}
	}
	return nil
}

// ListForRecipient returns a recipient's notifications, newest first
func (s *notificationServiceImpl) ListForRecipient(ctx context.Context, recipientID string, limit, offset int) ([]*entity.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	items, err := s.notificationRepo.ListByRecipient(ctx, recipientID, limit, offset)
	if err != nil {
		return nil, errs.Persistence(err, "list notifications for %s", recipientID)
	}
	return items, nil
}

// notificationsFor maps an event to the notifications it produces.
func (s *notificationServiceImpl) notificationsFor(evt *event.Event) []*entity.Notification {
	now := time.Now()

	build := func(recipientID, kind, message string) *entity.Notification {
		return &entity.Notification{
			WorkflowID:  evt.WorkflowID,
			RecipientID: recipientID,
			Kind:        kind,
			Message:     message,
			Status:      entity.NotificationStatusPending,
			CreatedAt:   now,
		}
	}

	switch evt.Type {
	case event.TypeWorkflowCreated:
		approver := evt.GetPayloadString("first_approver")
		if approver == "" {
			return nil
		}
		return []*entity.Notification{build(
			approver,
			entity.NotifyWorkflowAssigned,
			fmt.Sprintf("Document %s is awaiting your approval.", evt.GetPayloadString("document_id")),
		)}

	case event.TypeStepApproved:
		if evt.GetPayloadBool("is_completed") {
			return []*entity.Notification{build(
				evt.GetPayloadString("requester_id"),
				entity.NotifyWorkflowApproved,
				fmt.Sprintf("Workflow %s has been fully approved.", evt.WorkflowID),
			)}
		}
		next := evt.GetPayloadString("next_approver_id")
		if next == "" {
			return nil
		}
		return []*entity.Notification{build(
			next,
			entity.NotifyWorkflowAssigned,
			fmt.Sprintf("Workflow %s is awaiting your approval.", evt.WorkflowID),
		)}

	case event.TypeWorkflowRejected:
		return []*entity.Notification{build(
			evt.GetPayloadString("requester_id"),
			entity.NotifyWorkflowRejected,
			fmt.Sprintf("Workflow %s was rejected at step %d.", evt.WorkflowID, evt.GetPayloadInt("step_order")),
		)}

	case event.TypeWorkflowCancelled:
		var out []*entity.Notification
		reason := evt.GetPayloadString("reason")
		for _, approver := range evt.GetPayloadStrings("pending_approvers") {
			out = append(out, build(
				approver,
				entity.NotifyWorkflowCancelled,
				fmt.Sprintf("Workflow %s was cancelled: %s", evt.WorkflowID, reason),
			))
		}
		return out

	default:
		return nil
	}
}

// deliver stores the notification, then attempts outbound delivery. Send
// failures are recorded on the row, not returned.
func (s *notificationServiceImpl) deliver(ctx context.Context, n *entity.Notification) error {
	if err := s.notificationRepo.Create(ctx, n); err != nil {
		return fmt.Errorf("create notification: %w", err)
	}

	if s.sender == nil {
		return nil
	}

	subject := fmt.Sprintf("Workflow update: %s", n.Kind)
	if err := s.sender.Send(ctx, n.RecipientID, subject, n.Message); err != nil {
		s.logger.Error("Outbound delivery failed",
			"notification_id", n.ID,
			"recipient_id", n.RecipientID,
			"error", err,
		)
		if markErr := s.notificationRepo.MarkFailed(ctx, n.ID, err.Error()); markErr != nil {
			return fmt.Errorf("mark notification failed: %w", markErr)
		}
		return nil
	}

	if err := s.notificationRepo.MarkSent(ctx, n.ID, time.Now()); err != nil {
		return fmt.Errorf("mark notification sent: %w", err)
	}

	s.logger.Info("Notification delivered",
		"notification_id", n.ID,
		"recipient_id", n.RecipientID,
		"kind", n.Kind,
	)
	return nil
}
