package entity

import "time"

// Notification is a persisted in-app notification. Email delivery is
// best-effort and recorded on the row; failures never surface to the
// workflow transition that produced them.
type Notification struct {
	ID          int64      `json:"id"`
	WorkflowID  string     `json:"workflow_id"`
	RecipientID string     `json:"recipient_id"`
	Kind        string     `json:"kind"`
	Message     string     `json:"message"`
	Status      string     `json:"status"`
	ErrorMsg    string     `json:"error_msg,omitempty"`
	SentAt      *time.Time `json:"sent_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}
