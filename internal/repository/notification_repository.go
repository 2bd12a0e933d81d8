package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/Jabarteley/academic-staff-service-request/internal/models"
)

// NotificationRepository provides database access for user notifications.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository creates a new instance of NotificationRepository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create inserts a notification record.
func (r *NotificationRepository) Create(ctx context.Context, notification *models.Notification) error {
	if notification.ID == "" {
		notification.ID = uuid.NewString()
	}
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO notifications (id, user_id, request_id, type, title, message, link, is_read, created_at) VALUES (:id, :user_id, :request_id, :type, :title, :message, :link, :is_read, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, notification); err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

// ListByUser returns a user's notifications, newest first.
func (r *NotificationRepository) ListByUser(ctx context.Context, userID string, filter models.NotificationFilter) ([]models.Notification, int, error) {
	baseQuery := `FROM notifications WHERE user_id = $1`
	args := []interface{}{userID}
	if filter.UnreadOnly {
		baseQuery += ` AND is_read = FALSE`
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

	listQuery := fmt.Sprintf("SELECT id, user_id, request_id, type, title, message, link, is_read, created_at %s ORDER BY created_at DESC LIMIT %d OFFSET %d", baseQuery, pageSize, offset)

	var notifications []models.Notification
	if err := r.db.SelectContext(ctx, &notifications, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list notifications: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count notifications: %w", err)
	}

	return notifications, total, nil
}

// CountUnread returns the number of unread notifications for a user.
func (r *NotificationRepository) CountUnread(ctx context.Context, userID string) (int, error) {
	const query = `SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND is_read = FALSE`
	var count int
	if err := r.db.GetContext(ctx, &count, query, userID); err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}

// MarkRead flags a single notification as read for its owner.
func (r *NotificationRepository) MarkRead(ctx context.Context, id, userID string) (int64, error) {
	const query = `UPDATE notifications SET is_read = TRUE WHERE id = $1 AND user_id = $2`
	res, err := r.db.ExecContext(ctx, query, id, userID)
	if err != nil {
		return 0, fmt.Errorf("mark notification read: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark notification rows affected: %w", err)
	}
	return affected, nil
}

// MarkAllRead flags every unread notification for a user as read.
func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID string) error {
	const query = `UPDATE notifications SET is_read = TRUE WHERE user_id = $1 AND is_read = FALSE`
	if _, err := r.db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("mark all notifications read: %w", err)
	}
	return nil
}

// Delete removes a notification owned by the user.
func (r *NotificationRepository) Delete(ctx context.Context, id, userID string) (int64, error) {
	const query = `DELETE FROM notifications WHERE id = $1 AND user_id = $2`
	res, err := r.db.ExecContext(ctx, query, id, userID)
	if err != nil {
		return 0, fmt.Errorf("delete notification: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete notification rows affected: %w", err)
	}
	return affected, nil
}
