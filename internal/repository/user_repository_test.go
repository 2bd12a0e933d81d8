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

func userRows(now time.Time, id, email string, role models.UserRole) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "staff_number", "email", "password_hash", "full_name", "role",
		"department_id", "faculty_id", "active", "last_login", "created_at", "updated_at",
	}).AddRow(id, "STF-001", email, "hash", "Test User", string(role), "dept-1", "fac-1", true, now, now, now)
}

func TestFindUserByEmail(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT `+userColumns+` FROM users WHERE email = $1 LIMIT 1`)).
		WithArgs("hod@example.edu").
		WillReturnRows(userRows(time.Now(), "u1", "hod@example.edu", models.RoleAdminOfficer))

	user, err := repo.FindByEmail(context.Background(), "hod@example.edu")
	require.NoError(t, err)
	assert.Equal(t, "hod@example.edu", user.Email)
	assert.Equal(t, models.RoleAdminOfficer, user.Role)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindUserByStaffNumber(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT `+userColumns+` FROM users WHERE staff_number = $1 LIMIT 1`)).
		WithArgs("STF-001").
		WillReturnRows(userRows(time.Now(), "u1", "staff@example.edu", models.RoleAcademicStaff))

	user, err := repo.FindByStaffNumber(context.Background(), "STF-001")
	require.NoError(t, err)
	assert.Equal(t, "STF-001", user.StaffNumber)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindActiveByRole(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT `+userColumns+` FROM users WHERE role = $1 AND active = TRUE ORDER BY created_at LIMIT 1`)).
		WithArgs(string(models.RoleRegistrar)).
		WillReturnRows(userRows(time.Now(), "reg-1", "registrar@example.edu", models.RoleRegistrar))

	user, err := repo.FindActiveByRole(context.Background(), models.RoleRegistrar)
	require.NoError(t, err)
	assert.Equal(t, "reg-1", user.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindActiveByRoleNobodyHoldsIt(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery("SELECT .+ FROM users WHERE role").
		WithArgs(string(models.RoleDean)).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindActiveByRole(context.Background(), models.RoleDean)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindActiveByRoleAndFaculty(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT `+userColumns+` FROM users WHERE role = $1 AND faculty_id = $2 AND active = TRUE ORDER BY created_at LIMIT 1`)).
		WithArgs(string(models.RoleDean), "fac-1").
		WillReturnRows(userRows(time.Now(), "dean-1", "dean@example.edu", models.RoleDean))

	user, err := repo.FindActiveByRoleAndFaculty(context.Background(), models.RoleDean, "fac-1")
	require.NoError(t, err)
	assert.Equal(t, "dean-1", user.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUser(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec("INSERT INTO users").WillReturnResult(sqlmock.NewResult(1, 1))

	user := &models.User{
		StaffNumber:  "STF-002",
		Email:        "new@example.edu",
		PasswordHash: "hash",
		FullName:     "New User",
		Role:         models.RoleAcademicStaff,
		Active:       true,
	}
	require.NoError(t, repo.Create(context.Background(), user))
	assert.NotEmpty(t, user.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListUsersWithSearch(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery("SELECT .+ FROM users WHERE 1=1 AND \\(LOWER\\(email\\) LIKE").
		WithArgs("%dean%").
		WillReturnRows(userRows(time.Now(), "dean-1", "dean@example.edu", models.RoleDean))
	countRows := sqlmock.NewRows([]string{"count"}).AddRow(1)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM users WHERE 1=1`)).
		WithArgs("%dean%").
		WillReturnRows(countRows)

	users, total, err := repo.List(context.Background(), models.UserFilter{Search: "Dean"})
	require.NoError(t, err)
	assert.Len(t, users, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRevokeUserRefreshTokens(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE user_id = $1 AND revoked = FALSE`)).
		WithArgs("u1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, repo.RevokeUserRefreshTokens(context.Background(), "u1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAuditLog(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec("INSERT INTO audit_logs").WillReturnResult(sqlmock.NewResult(1, 1))

	log := &models.AuditLog{
		UserID:   strPtr("u1"),
		Action:   models.AuditActionLogin,
		Resource: "auth",
	}
	require.NoError(t, repo.CreateAuditLog(context.Background(), log))
	assert.NotEmpty(t, log.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
