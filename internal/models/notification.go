package models

import "time"

// Notification type constants keyed by the transition that produced them.
const (
	NotificationApprovalRequired     = "APPROVAL_REQUIRED"
	NotificationRequestApproved      = "REQUEST_APPROVED"
	NotificationRequestRejected      = "REQUEST_REJECTED"
	NotificationModificationRequired = "MODIFICATION_REQUIRED"
	NotificationModificationSent     = "MODIFICATION_SENT"
	NotificationRequestCompleted     = "REQUEST_COMPLETED"
)

// Notification is a per-user message created as a side effect of a workflow
// transition. Read/delete mutations happen outside the engine.
type Notification struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	RequestID *string   `db:"request_id" json:"request_id,omitempty"`
	Type      string    `db:"type" json:"type"`
	Title     string    `db:"title" json:"title"`
	Message   string    `db:"message" json:"message"`
	Link      string    `db:"link" json:"link"`
	IsRead    bool      `db:"is_read" json:"is_read"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// NotificationFilter captures listing criteria for a user's notifications.
type NotificationFilter struct {
	UnreadOnly bool
	Page       int
	PageSize   int
}
