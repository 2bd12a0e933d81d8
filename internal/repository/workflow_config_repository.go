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

const workflowConfigColumns = `id, request_type, department_id, stages, is_default, created_at, updated_at`

// WorkflowConfigRepository stores the per-type, per-department stage chains.
type WorkflowConfigRepository struct {
	db *sqlx.DB
}

// NewWorkflowConfigRepository creates a new instance of WorkflowConfigRepository.
func NewWorkflowConfigRepository(db *sqlx.DB) *WorkflowConfigRepository {
	return &WorkflowConfigRepository{db: db}
}

// FindByTypeAndDepartment returns the department-specific config for a
// request type. sql.ErrNoRows means no override exists for the department.
func (r *WorkflowConfigRepository) FindByTypeAndDepartment(ctx context.Context, requestType models.RequestType, departmentID string) (*models.WorkflowConfig, error) {
	query := `SELECT ` + workflowConfigColumns + ` FROM workflow_configs WHERE request_type = $1 AND department_id = $2 LIMIT 1`
	var cfg models.WorkflowConfig
	if err := r.db.GetContext(ctx, &cfg, query, requestType, departmentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find workflow config by type and department: %w", err)
	}
	return &cfg, nil
}

// FindDefaultByType returns the department-less default config for a type.
func (r *WorkflowConfigRepository) FindDefaultByType(ctx context.Context, requestType models.RequestType) (*models.WorkflowConfig, error) {
	query := `SELECT ` + workflowConfigColumns + ` FROM workflow_configs WHERE request_type = $1 AND department_id IS NULL LIMIT 1`
	var cfg models.WorkflowConfig
	if err := r.db.GetContext(ctx, &cfg, query, requestType); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find default workflow config: %w", err)
	}
	return &cfg, nil
}

// List returns every stored workflow config ordered by type then scope.
func (r *WorkflowConfigRepository) List(ctx context.Context) ([]models.WorkflowConfig, error) {
	query := `SELECT ` + workflowConfigColumns + ` FROM workflow_configs ORDER BY request_type, department_id NULLS FIRST`
	var configs []models.WorkflowConfig
	if err := r.db.SelectContext(ctx, &configs, query); err != nil {
		return nil, fmt.Errorf("list workflow configs: %w", err)
	}
	return configs, nil
}

// Upsert replaces the stage chain for a (type, department) scope. The
// department-less row for a type is its default.
func (r *WorkflowConfigRepository) Upsert(ctx context.Context, cfg *models.WorkflowConfig) error {
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = now
	}
	cfg.UpdatedAt = now
	cfg.IsDefault = cfg.DepartmentID == nil

	const query = `INSERT INTO workflow_configs (id, request_type, department_id, stages, is_default, created_at, updated_at)
		VALUES (:id, :request_type, :department_id, :stages, :is_default, :created_at, :updated_at)
		ON CONFLICT (request_type, COALESCE(department_id, '')) DO UPDATE
		SET stages = EXCLUDED.stages, is_default = EXCLUDED.is_default, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, cfg); err != nil {
		return fmt.Errorf("upsert workflow config: %w", err)
	}
	return nil
}
