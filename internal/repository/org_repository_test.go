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

func TestFindDepartmentByID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewOrgRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "name", "code", "faculty_id", "hod_id", "created_at", "updated_at"}).
		AddRow("dept-1", "Computer Science", "CSC", "fac-1", "hod-1", now, now)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, name, code, faculty_id, hod_id, created_at, updated_at FROM departments WHERE id = $1 LIMIT 1`)).
		WithArgs("dept-1").
		WillReturnRows(rows)

	department, err := repo.FindDepartmentByID(context.Background(), "dept-1")
	require.NoError(t, err)
	assert.Equal(t, "Computer Science", department.Name)
	require.NotNil(t, department.HODID)
	assert.Equal(t, "hod-1", *department.HODID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignDean(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewOrgRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE faculties SET dean_id = $2, updated_at = $3 WHERE id = $1`)).
		WithArgs("fac-1", "dean-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.AssignDean(context.Background(), "fac-1", "dean-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateDepartment(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewOrgRepository(db)

	mock.ExpectExec("INSERT INTO departments").WillReturnResult(sqlmock.NewResult(1, 1))

	department := &models.Department{Name: "Physics", Code: "PHY", FacultyID: strPtr("fac-1")}
	require.NoError(t, repo.CreateDepartment(context.Background(), department))
	assert.NotEmpty(t, department.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
