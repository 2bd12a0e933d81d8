package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/Jabarteley/academic-staff-service-request/internal/models"
)

// OrgRepository provides database access for faculties and departments.
type OrgRepository struct {
	db *sqlx.DB
}

// NewOrgRepository creates a new instance of OrgRepository.
func NewOrgRepository(db *sqlx.DB) *OrgRepository {
	return &OrgRepository{db: db}
}

// CreateFaculty inserts a faculty record.
func (r *OrgRepository) CreateFaculty(ctx context.Context, faculty *models.Faculty) error {
	if faculty.ID == "" {
		faculty.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	faculty.CreatedAt = now
	faculty.UpdatedAt = now

	const query = `INSERT INTO faculties (id, name, code, dean_id, created_at, updated_at) VALUES (:id, :name, :code, :dean_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, faculty); err != nil {
		return fmt.Errorf("create faculty: %w", err)
	}
	return nil
}

// FindFacultyByID returns a faculty by identifier.
func (r *OrgRepository) FindFacultyByID(ctx context.Context, id string) (*models.Faculty, error) {
	const query = `SELECT id, name, code, dean_id, created_at, updated_at FROM faculties WHERE id = $1 LIMIT 1`
	var faculty models.Faculty
	if err := r.db.GetContext(ctx, &faculty, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find faculty by id: %w", err)
	}
	return &faculty, nil
}

// ListFaculties returns all faculties ordered by name.
func (r *OrgRepository) ListFaculties(ctx context.Context) ([]models.Faculty, error) {
	const query = `SELECT id, name, code, dean_id, created_at, updated_at FROM faculties ORDER BY name`
	var faculties []models.Faculty
	if err := r.db.SelectContext(ctx, &faculties, query); err != nil {
		return nil, fmt.Errorf("list faculties: %w", err)
	}
	return faculties, nil
}

// AssignDean points a faculty at its dean.
func (r *OrgRepository) AssignDean(ctx context.Context, facultyID, deanID string) error {
	const query = `UPDATE faculties SET dean_id = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, facultyID, deanID, time.Now().UTC()); err != nil {
		return fmt.Errorf("assign dean: %w", err)
	}
	return nil
}

// CreateDepartment inserts a department record.
func (r *OrgRepository) CreateDepartment(ctx context.Context, department *models.Department) error {
	if department.ID == "" {
		department.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	department.CreatedAt = now
	department.UpdatedAt = now

	const query = `INSERT INTO departments (id, name, code, faculty_id, hod_id, created_at, updated_at) VALUES (:id, :name, :code, :faculty_id, :hod_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, department); err != nil {
		return fmt.Errorf("create department: %w", err)
	}
	return nil
}

// FindDepartmentByID returns a department by identifier.
func (r *OrgRepository) FindDepartmentByID(ctx context.Context, id string) (*models.Department, error) {
	const query = `SELECT id, name, code, faculty_id, hod_id, created_at, updated_at FROM departments WHERE id = $1 LIMIT 1`
	var department models.Department
	if err := r.db.GetContext(ctx, &department, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find department by id: %w", err)
	}
	return &department, nil
}

// ListDepartments returns all departments ordered by name.
func (r *OrgRepository) ListDepartments(ctx context.Context) ([]models.Department, error) {
	const query = `SELECT id, name, code, faculty_id, hod_id, created_at, updated_at FROM departments ORDER BY name`
	var departments []models.Department
	if err := r.db.SelectContext(ctx, &departments, query); err != nil {
		return nil, fmt.Errorf("list departments: %w", err)
	}
	return departments, nil
}

// AssignHOD points a department at its head.
func (r *OrgRepository) AssignHOD(ctx context.Context, departmentID, hodID string) error {
	const query = `UPDATE departments SET hod_id = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, departmentID, hodID, time.Now().UTC()); err != nil {
		return fmt.Errorf("assign hod: %w", err)
	}
	return nil
}
