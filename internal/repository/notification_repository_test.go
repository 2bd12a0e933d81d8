package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jabarteley/academic-staff-service-request/internal/models"
)

func TestCreateNotification(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	mock.ExpectExec("INSERT INTO notifications").WillReturnResult(sqlmock.NewResult(1, 1))

	notification := &models.Notification{
		UserID:    "hod-1",
		RequestID: strPtr("req-1"),
		Type:      "APPROVAL_REQUIRED",
		Title:     "Approval required",
		Message:   "A request awaits your decision",
		Link:      "/requests/req-1",
	}
	require.NoError(t, repo.Create(context.Background(), notification))
	assert.NotEmpty(t, notification.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListNotificationsUnreadOnly(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "user_id", "request_id", "type", "title", "message", "link", "is_read", "created_at"}).
		AddRow("n1", "hod-1", "req-1", "APPROVAL_REQUIRED", "Approval required", "A request awaits your decision", "/requests/req-1", false, now)
	mock.ExpectQuery("SELECT .+ FROM notifications WHERE user_id = \\$1 AND is_read = FALSE ORDER BY created_at DESC").
		WithArgs("hod-1").
		WillReturnRows(rows)
	countRows := sqlmock.NewRows([]string{"count"}).AddRow(1)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND is_read = FALSE`)).
		WithArgs("hod-1").
		WillReturnRows(countRows)

	notifications, total, err := repo.ListByUser(context.Background(), "hod-1", models.NotificationFilter{UnreadOnly: true})
	require.NoError(t, err)
	assert.Len(t, notifications, 1)
	assert.Equal(t, 1, total)
	assert.False(t, notifications[0].IsRead)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountUnread(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	rows := sqlmock.NewRows([]string{"count"}).AddRow(4)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND is_read = FALSE`)).
		WithArgs("hod-1").
		WillReturnRows(rows)

	count, err := repo.CountUnread(context.Background(), "hod-1")
	require.NoError(t, err)
	assert.Equal(t, 4, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkReadScopedToOwner(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE notifications SET is_read = TRUE WHERE id = $1 AND user_id = $2`)).
		WithArgs("n1", "someone-else").
		WillReturnResult(sqlmock.NewResult(0, 0))

	affected, err := repo.MarkRead(context.Background(), "n1", "someone-else")
	require.NoError(t, err)
	assert.Zero(t, affected)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteNotification(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM notifications WHERE id = $1 AND user_id = $2`)).
		WithArgs("n1", "hod-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	affected, err := repo.Delete(context.Background(), "n1", "hod-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)
	assert.NoError(t, mock.ExpectationsWereMet())
}
