package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/Jabarteley/academic-staff-service-request/internal/models"
)

// TimelineRepository reads and appends the per-request audit trail.
// Entries are append-only; there is no update or delete path.
type TimelineRepository struct {
	db *sqlx.DB
}

// NewTimelineRepository creates a new instance of TimelineRepository.
func NewTimelineRepository(db *sqlx.DB) *TimelineRepository {
	return &TimelineRepository{db: db}
}

// Append stores a timeline entry outside of a transition transaction,
// used for non-routing events such as draft creation.
func (r *TimelineRepository) Append(ctx context.Context, entry *models.TimelineEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO request_timeline (id, request_id, user_id, action, comment, created_at) VALUES (:id, :request_id, :user_id, :action, :comment, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("append timeline entry: %w", err)
	}
	return nil
}

// ListByRequest returns a request's timeline oldest first.
func (r *TimelineRepository) ListByRequest(ctx context.Context, requestID string) ([]models.TimelineEntry, error) {
	const query = `SELECT id, request_id, user_id, action, comment, created_at FROM request_timeline WHERE request_id = $1 ORDER BY created_at`
	var entries []models.TimelineEntry
	if err := r.db.SelectContext(ctx, &entries, query, requestID); err != nil {
		return nil, fmt.Errorf("list timeline entries: %w", err)
	}
	return entries, nil
}
