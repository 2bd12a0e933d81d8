package models

import "time"

// UserRole represents the closed set of staff roles used by routing and RBAC.
type UserRole string

const (
	RoleAcademicStaff UserRole = "ACADEMIC_STAFF"
	RoleAdminOfficer  UserRole = "ADMIN_OFFICER"
	RoleDean          UserRole = "DEAN"
	RoleRegistrar     UserRole = "REGISTRAR"
	RoleSysAdmin      UserRole = "SYSADMIN"
)

var validRoles = map[UserRole]bool{
	RoleAcademicStaff: true,
	RoleAdminOfficer:  true,
	RoleDean:          true,
	RoleRegistrar:     true,
	RoleSysAdmin:      true,
}

// IsValid reports whether the role belongs to the closed role set.
func (r UserRole) IsValid() bool {
	return validRoles[r]
}

// User represents a staff member stored in the users table. A Dean's
// FacultyID identifies which faculty they approve for; an AdminOfficer is
// expected to match a department's HODID for that department's routing.
type User struct {
	ID           string     `db:"id" json:"id"`
	StaffNumber  string     `db:"staff_number" json:"staff_number"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"full_name"`
	Role         UserRole   `db:"role" json:"role"`
	DepartmentID *string    `db:"department_id" json:"department_id,omitempty"`
	FacultyID    *string    `db:"faculty_id" json:"faculty_id,omitempty"`
	Active       bool       `db:"active" json:"active"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role         *UserRole
	DepartmentID string
	Active       *bool
	Search       string
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
