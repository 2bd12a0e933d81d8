package dto

import "github.com/Jabarteley/academic-staff-service-request/internal/models"

// CreateUserRequest registers a staff member in the directory.
type CreateUserRequest struct {
	StaffNumber  string          `json:"staff_number" validate:"required,max=32"`
	Email        string          `json:"email" validate:"required,email"`
	Password     string          `json:"password" validate:"required,min=6"`
	FullName     string          `json:"full_name" validate:"required,max=200"`
	Role         models.UserRole `json:"role" validate:"required"`
	DepartmentID *string         `json:"department_id,omitempty"`
	FacultyID    *string         `json:"faculty_id,omitempty"`
}

// UpdateUserRequest mutates directory attributes of a staff member. Only
// non-nil fields are applied.
type UpdateUserRequest struct {
	FullName     *string          `json:"full_name,omitempty" validate:"omitempty,max=200"`
	Role         *models.UserRole `json:"role,omitempty"`
	DepartmentID *string          `json:"department_id,omitempty"`
	FacultyID    *string          `json:"faculty_id,omitempty"`
	Active       *bool            `json:"active,omitempty"`
}

// CreateFacultyRequest registers a faculty.
type CreateFacultyRequest struct {
	Name string `json:"name" validate:"required,max=200"`
	Code string `json:"code" validate:"required,max=16"`
}

// CreateDepartmentRequest registers a department.
type CreateDepartmentRequest struct {
	Name      string  `json:"name" validate:"required,max=200"`
	Code      string  `json:"code" validate:"required,max=16"`
	FacultyID *string `json:"faculty_id,omitempty"`
}

// AssignDeanRequest points a faculty at its dean.
type AssignDeanRequest struct {
	DeanID string `json:"dean_id" validate:"required"`
}

// AssignHODRequest points a department at its head.
type AssignHODRequest struct {
	HODID string `json:"hod_id" validate:"required"`
}
