package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// RequestType enumerates the supported service request categories.
type RequestType string

const (
	TypeLeave              RequestType = "LEAVE"
	TypeConferenceTraining RequestType = "CONFERENCE_TRAINING"
	TypeResourceRequisition RequestType = "RESOURCE_REQUISITION"
	TypeGeneric            RequestType = "GENERIC"
)

var validRequestTypes = map[RequestType]bool{
	TypeLeave:               true,
	TypeConferenceTraining:  true,
	TypeResourceRequisition: true,
	TypeGeneric:             true,
}

// IsValid reports whether the request type is supported.
func (t RequestType) IsValid() bool {
	return validRequestTypes[t]
}

// Stage is one position in an ordered approval chain.
type Stage struct {
	Role  UserRole `json:"role"`
	Label string   `json:"label"`
}

// StageList is an ordered stage chain persisted as a JSONB column.
type StageList []Stage

// Value implements driver.Valuer for JSONB storage.
func (s StageList) Value() (driver.Value, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s)
}

// Scan implements sql.Scanner for JSONB columns.
func (s *StageList) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*s = nil
		return nil
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	default:
		return fmt.Errorf("unsupported stage list source type %T", src)
	}
}

// WorkflowConfig defines the approval chain for a request type, optionally
// overridden per department. A config without a department is the default
// for its type; routing fails closed when no default exists.
type WorkflowConfig struct {
	ID           string      `db:"id" json:"id"`
	RequestType  RequestType `db:"request_type" json:"request_type"`
	DepartmentID *string     `db:"department_id" json:"department_id,omitempty"`
	Stages       StageList   `db:"stages" json:"stages"`
	IsDefault    bool        `db:"is_default" json:"is_default"`
	CreatedAt    time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at" json:"updated_at"`
}
