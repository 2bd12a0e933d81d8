package models

import (
	"encoding/json"
	"time"
)

// RequestStatus enumerates the request lifecycle states.
type RequestStatus string

const (
	StatusDraft                 RequestStatus = "DRAFT"
	StatusPending               RequestStatus = "PENDING"
	StatusApproved              RequestStatus = "APPROVED"
	StatusRejected              RequestStatus = "REJECTED"
	StatusModificationRequested RequestStatus = "MODIFICATION_REQUESTED"
	StatusCancelled             RequestStatus = "CANCELLED"
	StatusCompleted             RequestStatus = "COMPLETED"
)

var terminalStatuses = map[RequestStatus]bool{
	StatusApproved:  true,
	StatusRejected:  true,
	StatusCancelled: true,
	StatusCompleted: true,
}

// IsTerminal reports whether no further approval transitions are allowed.
func (s RequestStatus) IsTerminal() bool {
	return terminalStatuses[s]
}

// ApprovalAction is an action the current approver may take.
type ApprovalAction string

const (
	ActionApprove             ApprovalAction = "approve"
	ActionReject              ApprovalAction = "reject"
	ActionRequestModification ApprovalAction = "request_modification"
)

// IsValid reports whether the action is one of the supported approver actions.
func (a ApprovalAction) IsValid() bool {
	return a == ActionApprove || a == ActionReject || a == ActionRequestModification
}

// Request is a service request routed through an approval chain.
// While status is PENDING, CurrentApproverID is non-nil and WorkflowStage
// indexes the stage list resolved for this request; terminal states always
// carry a nil approver.
type Request struct {
	ID                string          `db:"id" json:"id"`
	RequestNumber     string          `db:"request_number" json:"request_number"`
	RequestType       RequestType     `db:"request_type" json:"request_type"`
	Title             string          `db:"title" json:"title"`
	Description       string          `db:"description" json:"description"`
	Status            RequestStatus   `db:"status" json:"status"`
	RequestorID       string          `db:"requestor_id" json:"requestor_id"`
	DepartmentID      *string         `db:"department_id" json:"department_id,omitempty"`
	CurrentApproverID *string         `db:"current_approver_id" json:"current_approver_id,omitempty"`
	WorkflowStage     int             `db:"workflow_stage" json:"workflow_stage"`
	Details           json.RawMessage `db:"details" json:"details,omitempty"`
	SubmittedAt       *time.Time      `db:"submitted_at" json:"submitted_at,omitempty"`
	CompletedAt       *time.Time      `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at" json:"updated_at"`
}

// LeaveDetails is the type-specific payload for LEAVE requests.
type LeaveDetails struct {
	LeaveType      string `json:"leave_type"`
	StartDate      string `json:"start_date"`
	EndDate        string `json:"end_date"`
	SubstituteName string `json:"substitute_name,omitempty"`
}

// ConferenceDetails is the payload for CONFERENCE_TRAINING requests.
type ConferenceDetails struct {
	EventName     string  `json:"event_name"`
	EventLocation string  `json:"event_location"`
	StartDate     string  `json:"start_date"`
	EndDate       string  `json:"end_date"`
	EstimatedCost float64 `json:"estimated_cost,omitempty"`
}

// ResourceItem is one line of a RESOURCE_REQUISITION request.
type ResourceItem struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Reason   string `json:"reason,omitempty"`
}

// ResourceDetails is the payload for RESOURCE_REQUISITION requests.
type ResourceDetails struct {
	Items []ResourceItem `json:"items"`
}

// RequestFilter captures filtering criteria for listing requests.
type RequestFilter struct {
	Status       *RequestStatus
	RequestType  *RequestType
	RequestorID  string
	ApproverID   string
	DepartmentID string
	Page         int
	PageSize     int
}

// TimelineEntry is one append-only audit record of a request transition.
type TimelineEntry struct {
	ID        string    `db:"id" json:"id"`
	RequestID string    `db:"request_id" json:"request_id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Action    string    `db:"action" json:"action"`
	Comment   *string   `db:"comment" json:"comment,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
