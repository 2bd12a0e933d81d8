package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jabarteley/academic-staff-service-request/internal/models"
)

const stagesJSON = `[{"role":"ADMIN_OFFICER","label":"Head of Department"},{"role":"DEAN","label":"Dean of Faculty"}]`

func TestFindWorkflowConfigByTypeAndDepartment(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewWorkflowConfigRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "request_type", "department_id", "stages", "is_default", "created_at", "updated_at"}).
		AddRow("cfg-1", string(models.TypeLeave), "dept-1", []byte(stagesJSON), false, now, now)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT `+workflowConfigColumns+` FROM workflow_configs WHERE request_type = $1 AND department_id = $2 LIMIT 1`)).
		WithArgs(string(models.TypeLeave), "dept-1").
		WillReturnRows(rows)

	cfg, err := repo.FindByTypeAndDepartment(context.Background(), models.TypeLeave, "dept-1")
	require.NoError(t, err)
	require.Len(t, cfg.Stages, 2)
	assert.Equal(t, models.RoleAdminOfficer, cfg.Stages[0].Role)
	assert.Equal(t, "Dean of Faculty", cfg.Stages[1].Label)
	assert.False(t, cfg.IsDefault)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindDefaultWorkflowConfig(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewWorkflowConfigRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "request_type", "department_id", "stages", "is_default", "created_at", "updated_at"}).
		AddRow("cfg-2", string(models.TypeGeneric), nil, []byte(stagesJSON), true, now, now)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT `+workflowConfigColumns+` FROM workflow_configs WHERE request_type = $1 AND department_id IS NULL LIMIT 1`)).
		WithArgs(string(models.TypeGeneric)).
		WillReturnRows(rows)

	cfg, err := repo.FindDefaultByType(context.Background(), models.TypeGeneric)
	require.NoError(t, err)
	assert.True(t, cfg.IsDefault)
	assert.Nil(t, cfg.DepartmentID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindDefaultWorkflowConfigMissing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewWorkflowConfigRepository(db)

	mock.ExpectQuery("SELECT .+ FROM workflow_configs WHERE request_type").
		WithArgs(string(models.TypeConferenceTraining)).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindDefaultByType(context.Background(), models.TypeConferenceTraining)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertWorkflowConfig(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewWorkflowConfigRepository(db)

	mock.ExpectExec("INSERT INTO workflow_configs").WillReturnResult(sqlmock.NewResult(1, 1))

	cfg := &models.WorkflowConfig{
		RequestType: models.TypeLeave,
		Stages: models.StageList{
			{Role: models.RoleAdminOfficer, Label: "Head of Department"},
		},
	}
	require.NoError(t, repo.Upsert(context.Background(), cfg))
	assert.NotEmpty(t, cfg.ID)
	assert.True(t, cfg.IsDefault)
	assert.NoError(t, mock.ExpectationsWereMet())
}
