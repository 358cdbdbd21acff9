package port

import "context"

// MessageSender delivers a notification message to a user over an external
// channel (email). Fire-and-forget from the engine's perspective; failures
// are recorded on the notification row, never escalated.
type MessageSender interface {
	Send(ctx context.Context, recipientID, subject, body string) error
}
