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

func TestAppendTimelineEntry(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTimelineRepository(db)

	mock.ExpectExec("INSERT INTO request_timeline").WillReturnResult(sqlmock.NewResult(1, 1))

	entry := &models.TimelineEntry{
		RequestID: "req-1",
		UserID:    "staff-1",
		Action:    "create",
		Comment:   strPtr("Draft created"),
	}
	require.NoError(t, repo.Append(context.Background(), entry))
	assert.NotEmpty(t, entry.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListTimelineByRequest(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTimelineRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "request_id", "user_id", "action", "comment", "created_at"}).
		AddRow("t1", "req-1", "staff-1", "create", "Request created and submitted", now).
		AddRow("t2", "req-1", "hod-1", "approve", nil, now.Add(time.Hour))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, request_id, user_id, action, comment, created_at FROM request_timeline WHERE request_id = $1 ORDER BY created_at`)).
		WithArgs("req-1").
		WillReturnRows(rows)

	entries, err := repo.ListByRequest(context.Background(), "req-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "approve", entries[1].Action)
	assert.Nil(t, entries[1].Comment)
	assert.NoError(t, mock.ExpectationsWereMet())
}
