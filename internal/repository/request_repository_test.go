package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jabarteley/academic-staff-service-request/internal/models"
	appErrors "github.com/Jabarteley/academic-staff-service-request/pkg/errors"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	return sqlxdb, mock, func() {
		db.Close()
	}
}

func strPtr(value string) *string {
	return &value
}

func requestRows(now time.Time) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "request_number", "request_type", "title", "description", "status",
		"requestor_id", "department_id", "current_approver_id", "workflow_stage",
		"details", "submitted_at", "completed_at", "created_at", "updated_at",
	}).AddRow(
		"req-1", "REQ-20260301-0001", string(models.TypeLeave), "Annual leave", "Two weeks off", string(models.StatusPending),
		"staff-1", "dept-1", "hod-1", 0,
		[]byte(`{"leave_type":"ANNUAL"}`), now, nil, now, now,
	)
}

func TestRequestFindByID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT `+requestColumns+` FROM requests WHERE id = $1 LIMIT 1`)).
		WithArgs("req-1").
		WillReturnRows(requestRows(time.Now()))

	request, err := repo.FindByID(context.Background(), "req-1")
	require.NoError(t, err)
	assert.Equal(t, "REQ-20260301-0001", request.RequestNumber)
	assert.Equal(t, models.StatusPending, request.Status)
	require.NotNil(t, request.CurrentApproverID)
	assert.Equal(t, "hod-1", *request.CurrentApproverID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestFindByIDNotFound(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	mock.ExpectQuery("SELECT .+ FROM requests WHERE id").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateRequestAssignsNumber(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	countRows := sqlmock.NewRows([]string{"count"}).AddRow(3)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM requests WHERE created_at::date = $1::date`)).
		WillReturnRows(countRows)
	mock.ExpectExec("INSERT INTO requests").WillReturnResult(sqlmock.NewResult(1, 1))

	request := &models.Request{
		RequestType: models.TypeLeave,
		Title:       "Annual leave",
		Status:      models.StatusDraft,
		RequestorID: "staff-1",
	}
	require.NoError(t, repo.Create(context.Background(), request))
	assert.NotEmpty(t, request.ID)
	assert.Regexp(t, `^REQ-\d{8}-0004$`, request.RequestNumber)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateContent(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE requests SET title = $2, description = $3, details = $4, updated_at = $5 WHERE id = $1`)).
		WithArgs("req-1", "New title", "New description", []byte(`{}`), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateContent(context.Background(), "req-1", "New title", "New description", []byte(`{}`))
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyTransitionCommitsTimeline(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE requests").
		WithArgs(
			string(models.StatusPending), 1, "dean-1",
			nil, nil, sqlmock.AnyArg(),
			"req-1", string(models.StatusPending), 0, "hod-1",
		).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO request_timeline").
		WithArgs(sqlmock.AnyArg(), "req-1", "hod-1", "approve", "Looks fine", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.ApplyTransition(context.Background(), TransitionParams{
		RequestID:          "req-1",
		ExpectedStatus:     models.StatusPending,
		ExpectedStage:      0,
		ExpectedApproverID: strPtr("hod-1"),
		NewStatus:          models.StatusPending,
		NewStage:           1,
		NewApproverID:      strPtr("dean-1"),
		ActorID:            "hod-1",
		TimelineAction:     "approve",
		Comment:            strPtr("Looks fine"),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyTransitionConcurrentUpdate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE requests").WillReturnResult(sqlmock.NewResult(0, 0))
	existsRows := sqlmock.NewRows([]string{"exists"}).AddRow(true)
	mock.ExpectQuery("SELECT EXISTS").WithArgs("req-1").WillReturnRows(existsRows)
	mock.ExpectRollback()

	err := repo.ApplyTransition(context.Background(), TransitionParams{
		RequestID:      "req-1",
		ExpectedStatus: models.StatusPending,
		NewStatus:      models.StatusApproved,
		ActorID:        "hod-1",
		TimelineAction: "approve",
	})
	assert.ErrorIs(t, err, appErrors.ErrConcurrentUpdate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyTransitionMissingRequest(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE requests").WillReturnResult(sqlmock.NewResult(0, 0))
	existsRows := sqlmock.NewRows([]string{"exists"}).AddRow(false)
	mock.ExpectQuery("SELECT EXISTS").WithArgs("missing").WillReturnRows(existsRows)
	mock.ExpectRollback()

	err := repo.ApplyTransition(context.Background(), TransitionParams{
		RequestID:      "missing",
		ExpectedStatus: models.StatusPending,
		NewStatus:      models.StatusApproved,
		ActorID:        "hod-1",
		TimelineAction: "approve",
	})
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListRequestsFilters(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT `+requestColumns+` FROM requests WHERE 1=1 AND current_approver_id = $1 ORDER BY created_at DESC LIMIT 20 OFFSET 0`)).
		WithArgs("hod-1").
		WillReturnRows(requestRows(time.Now()))
	countRows := sqlmock.NewRows([]string{"count"}).AddRow(1)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM requests WHERE 1=1 AND current_approver_id = $1`)).
		WithArgs("hod-1").
		WillReturnRows(countRows)

	requests, total, err := repo.List(context.Background(), models.RequestFilter{ApproverID: "hod-1"})
	require.NoError(t, err)
	assert.Len(t, requests, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}
