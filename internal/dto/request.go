package dto

import (
	"github.com/Jabarteley/academic-staff-service-request/internal/models"
)

// CreateRequestRequest is the payload for submitting a service request.
// Exactly the payload block matching RequestType is consulted; the others
// are ignored.
type CreateRequestRequest struct {
	RequestType models.RequestType        `json:"request_type" validate:"required"`
	Title       string                    `json:"title" validate:"required,max=200"`
	Description string                    `json:"description" validate:"max=4000"`
	Draft       bool                      `json:"draft"`
	Leave       *models.LeaveDetails      `json:"leave,omitempty"`
	Conference  *models.ConferenceDetails `json:"conference,omitempty"`
	Resource    *models.ResourceDetails   `json:"resource,omitempty"`
}

// ActionRequest carries an approver decision on a pending request.
type ActionRequest struct {
	Action  models.ApprovalAction `json:"action" validate:"required"`
	Comment string                `json:"comment" validate:"max=2000"`
}

// ResubmitRequest lets the requestor amend and re-route a bounced request.
type ResubmitRequest struct {
	Title       string                    `json:"title" validate:"omitempty,max=200"`
	Description string                    `json:"description" validate:"omitempty,max=4000"`
	Leave       *models.LeaveDetails      `json:"leave,omitempty"`
	Conference  *models.ConferenceDetails `json:"conference,omitempty"`
	Resource    *models.ResourceDetails   `json:"resource,omitempty"`
}

// CommentRequest carries an optional comment for cancel/complete actions.
type CommentRequest struct {
	Comment string `json:"comment" validate:"max=2000"`
}
