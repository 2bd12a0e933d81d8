package dto

import "github.com/Jabarteley/academic-staff-service-request/internal/models"

// StageInput is one stage definition in a workflow config upsert.
type StageInput struct {
	Role  models.UserRole `json:"role" validate:"required"`
	Label string          `json:"label" validate:"required,max=100"`
}

// UpsertWorkflowConfigRequest replaces the stage chain for a request type,
// optionally scoped to a single department.
type UpsertWorkflowConfigRequest struct {
	RequestType  models.RequestType `json:"request_type" validate:"required"`
	DepartmentID *string            `json:"department_id,omitempty"`
	Stages       []StageInput       `json:"stages" validate:"required,min=1,dive"`
}
