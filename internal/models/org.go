package models

import "time"

// Faculty groups departments under a dean.
type Faculty struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Code      string    `db:"code" json:"code"`
	DeanID    *string   `db:"dean_id" json:"dean_id,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Department is the organizational unit requests are routed through.
// HODID points at the ADMIN_OFFICER who acts as head of department.
type Department struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Code      string    `db:"code" json:"code"`
	FacultyID *string   `db:"faculty_id" json:"faculty_id,omitempty"`
	HODID     *string   `db:"hod_id" json:"hod_id,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
