package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Jabarteley/academic-staff-service-request/internal/models"
	appErrors "github.com/Jabarteley/academic-staff-service-request/pkg/errors"
	"github.com/Jabarteley/academic-staff-service-request/pkg/jobs"
)

const notificationJobType = "notification.deliver"

type notificationStore interface {
	Create(ctx context.Context, notification *models.Notification) error
	ListByUser(ctx context.Context, userID string, filter models.NotificationFilter) ([]models.Notification, int, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, id, userID string) (int64, error)
	MarkAllRead(ctx context.Context, userID string) error
	Delete(ctx context.Context, id, userID string) (int64, error)
}

// NotificationService persists workflow notifications through a background
// worker pool so transitions never block on delivery. Writes are
// at-least-once; a crash between the transition commit and the enqueue
// drops the notification, a redelivery after a write failure duplicates it.
type NotificationService struct {
	store  notificationStore
	queue  *jobs.Queue
	logger *zap.Logger
}

// NewNotificationService builds the service and its delivery queue.
func NewNotificationService(store notificationStore, cfg jobs.QueueConfig, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &NotificationService{
		store:  store,
		logger: logger,
	}
	cfg.Logger = logger
	s.queue = jobs.NewQueue("notifications", s.deliver, cfg)
	return s
}

// Start launches the delivery workers.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the workers.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// Dispatch enqueues a notification for asynchronous persistence. Failures
// are logged, never propagated: notification delivery must not fail a
// workflow transition.
func (s *NotificationService) Dispatch(notification models.Notification) {
	err := s.queue.Enqueue(jobs.Job{
		ID:      uuid.NewString(),
		Type:    notificationJobType,
		Payload: notification,
	})
	if err != nil {
		s.logger.Error("failed to enqueue notification",
			zap.String("user_id", notification.UserID),
			zap.String("type", notification.Type),
			zap.Error(err),
		)
	}
}

func (s *NotificationService) deliver(ctx context.Context, job jobs.Job) error {
	notification, ok := job.Payload.(models.Notification)
	if !ok {
		s.logger.Error("discarding notification job with unexpected payload", zap.String("job_id", job.ID))
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.store.Create(ctx, &notification); err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

// List returns the actor's notifications, newest first.
func (s *NotificationService) List(ctx context.Context, filter models.NotificationFilter, actor *models.JWTClaims) ([]models.Notification, int, error) {
	if actor == nil {
		return nil, 0, appErrors.ErrUnauthorized
	}
	notifications, total, err := s.store.ListByUser(ctx, actor.UserID, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	return notifications, total, nil
}

// UnreadCount returns the actor's unread notification count.
func (s *NotificationService) UnreadCount(ctx context.Context, actor *models.JWTClaims) (int, error) {
	if actor == nil {
		return 0, appErrors.ErrUnauthorized
	}
	count, err := s.store.CountUnread(ctx, actor.UserID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count notifications")
	}
	return count, nil
}

// MarkRead marks one of the actor's notifications as read.
func (s *NotificationService) MarkRead(ctx context.Context, id string, actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	affected, err := s.store.MarkRead(ctx, id, actor.UserID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notification read")
	}
	if affected == 0 {
		return appErrors.Clone(appErrors.ErrNotFound, "notification not found")
	}
	return nil
}

// MarkAllRead marks every unread notification of the actor as read.
func (s *NotificationService) MarkAllRead(ctx context.Context, actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if err := s.store.MarkAllRead(ctx, actor.UserID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notifications read")
	}
	return nil
}

// Delete removes one of the actor's notifications.
func (s *NotificationService) Delete(ctx context.Context, id string, actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	affected, err := s.store.Delete(ctx, id, actor.UserID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete notification")
	}
	if affected == 0 {
		return appErrors.Clone(appErrors.ErrNotFound, "notification not found")
	}
	return nil
}
