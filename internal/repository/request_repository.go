package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/Jabarteley/academic-staff-service-request/internal/models"
	appErrors "github.com/Jabarteley/academic-staff-service-request/pkg/errors"
)

const requestColumns = `id, request_number, request_type, title, description, status, requestor_id, department_id, current_approver_id, workflow_stage, details, submitted_at, completed_at, created_at, updated_at`

// RequestRepository provides database access for service requests and their
// timeline. Every transition goes through ApplyTransition, which enforces
// the optimistic-concurrency guard.
type RequestRepository struct {
	db *sqlx.DB
}

// NewRequestRepository creates a new instance of RequestRepository.
func NewRequestRepository(db *sqlx.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

// Create inserts a new request, generating its human-readable number.
func (r *RequestRepository) Create(ctx context.Context, request *models.Request) error {
	if request.ID == "" {
		request.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	request.CreatedAt = now
	request.UpdatedAt = now

	if request.RequestNumber == "" {
		number, err := r.nextRequestNumber(ctx, now)
		if err != nil {
			return err
		}
		request.RequestNumber = number
	}

	const query = `INSERT INTO requests (id, request_number, request_type, title, description, status, requestor_id, department_id, current_approver_id, workflow_stage, details, submitted_at, completed_at, created_at, updated_at)
		VALUES (:id, :request_number, :request_type, :title, :description, :status, :requestor_id, :department_id, :current_approver_id, :workflow_stage, :details, :submitted_at, :completed_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, request); err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return nil
}

// nextRequestNumber issues REQ-YYYYMMDD-NNNN with a per-day counter.
func (r *RequestRepository) nextRequestNumber(ctx context.Context, now time.Time) (string, error) {
	const query = `SELECT COUNT(*) FROM requests WHERE created_at::date = $1::date`
	var count int
	if err := r.db.GetContext(ctx, &count, query, now); err != nil {
		return "", fmt.Errorf("count requests for number: %w", err)
	}
	return fmt.Sprintf("REQ-%s-%04d", now.Format("20060102"), count+1), nil
}

// FindByID returns a request by identifier.
func (r *RequestRepository) FindByID(ctx context.Context, id string) (*models.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM requests WHERE id = $1 LIMIT 1`
	var request models.Request
	if err := r.db.GetContext(ctx, &request, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find request by id: %w", err)
	}
	return &request, nil
}

// List returns requests matching the filter with total count.
func (r *RequestRepository) List(ctx context.Context, filter models.RequestFilter) ([]models.Request, int, error) {
	baseQuery := `FROM requests WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.RequestType != nil {
		conditions = append(conditions, fmt.Sprintf("request_type = $%d", len(args)+1))
		args = append(args, *filter.RequestType)
	}
	if filter.RequestorID != "" {
		conditions = append(conditions, fmt.Sprintf("requestor_id = $%d", len(args)+1))
		args = append(args, filter.RequestorID)
	}
	if filter.ApproverID != "" {
		conditions = append(conditions, fmt.Sprintf("current_approver_id = $%d", len(args)+1))
		args = append(args, filter.ApproverID)
	}
	if filter.DepartmentID != "" {
		conditions = append(conditions, fmt.Sprintf("department_id = $%d", len(args)+1))
		args = append(args, filter.DepartmentID)
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY created_at DESC LIMIT %d OFFSET %d", requestColumns, baseQuery, pageSize, offset)

	var requests []models.Request
	if err := r.db.SelectContext(ctx, &requests, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list requests: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count requests: %w", err)
	}

	return requests, total, nil
}

// UpdateContent replaces the editable fields of a request prior to
// resubmission. Routing fields are untouched.
func (r *RequestRepository) UpdateContent(ctx context.Context, id, title, description string, details json.RawMessage) error {
	const query = `UPDATE requests SET title = $2, description = $3, details = $4, updated_at = $5 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, title, description, details, time.Now().UTC()); err != nil {
		return fmt.Errorf("update request content: %w", err)
	}
	return nil
}

// TransitionParams describes one guarded state transition. Expected* fields
// must match the row as read or the update is refused; the timeline entry
// commits in the same transaction as the request mutation.
type TransitionParams struct {
	RequestID          string
	ExpectedStatus     models.RequestStatus
	ExpectedStage      int
	ExpectedApproverID *string

	NewStatus     models.RequestStatus
	NewStage      int
	NewApproverID *string
	SubmittedAt   *time.Time
	CompletedAt   *time.Time

	ActorID        string
	TimelineAction string
	Comment        *string
}

// ApplyTransition performs the compare-and-swap transition. It returns
// appErrors.ErrConcurrentUpdate when the row exists but no longer matches
// the expected (status, workflow_stage, current_approver_id) triple, and
// sql.ErrNoRows when the request does not exist.
func (r *RequestRepository) ApplyTransition(ctx context.Context, params TransitionParams) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transition: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now().UTC()
	const update = `UPDATE requests
		SET status = $1, workflow_stage = $2, current_approver_id = $3,
			submitted_at = COALESCE($4, submitted_at),
			completed_at = COALESCE($5, completed_at),
			updated_at = $6
		WHERE id = $7 AND status = $8 AND workflow_stage = $9
			AND current_approver_id IS NOT DISTINCT FROM $10`

	res, err := tx.ExecContext(ctx, update,
		params.NewStatus, params.NewStage, params.NewApproverID,
		params.SubmittedAt, params.CompletedAt, now,
		params.RequestID, params.ExpectedStatus, params.ExpectedStage, params.ExpectedApproverID,
	)
	if err != nil {
		return fmt.Errorf("apply transition: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("transition rows affected: %w", err)
	}
	if affected == 0 {
		var exists bool
		if err := tx.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM requests WHERE id = $1)`, params.RequestID); err != nil {
			return fmt.Errorf("check request existence: %w", err)
		}
		if !exists {
			return sql.ErrNoRows
		}
		return appErrors.ErrConcurrentUpdate
	}

	const appendEntry = `INSERT INTO request_timeline (id, request_id, user_id, action, comment, created_at) VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := tx.ExecContext(ctx, appendEntry, uuid.NewString(), params.RequestID, params.ActorID, params.TimelineAction, params.Comment, now); err != nil {
		return fmt.Errorf("append timeline entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transition: %w", err)
	}
	return nil
}
