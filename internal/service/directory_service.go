package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/Jabarteley/academic-staff-service-request/internal/dto"
	"github.com/Jabarteley/academic-staff-service-request/internal/models"
	appErrors "github.com/Jabarteley/academic-staff-service-request/pkg/errors"
)

type directoryUserStore interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByStaffNumber(ctx context.Context, staffNumber string) (*models.User, error)
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
}

type orgStore interface {
	CreateFaculty(ctx context.Context, faculty *models.Faculty) error
	FindFacultyByID(ctx context.Context, id string) (*models.Faculty, error)
	ListFaculties(ctx context.Context) ([]models.Faculty, error)
	AssignDean(ctx context.Context, facultyID, deanID string) error
	CreateDepartment(ctx context.Context, department *models.Department) error
	FindDepartmentByID(ctx context.Context, id string) (*models.Department, error)
	ListDepartments(ctx context.Context) ([]models.Department, error)
	AssignHOD(ctx context.Context, departmentID, hodID string) error
}

// DirectoryService manages the staff directory and the faculty/department
// tree the resolver walks. Dean and HOD assignments are validated against
// the assignee's role so routing never lands on a user who cannot act.
type DirectoryService struct {
	users     directoryUserStore
	org       orgStore
	audit     auditLogger
	validator *validator.Validate
	logger    *zap.Logger
}

func NewDirectoryService(users directoryUserStore, org orgStore, audit auditLogger, validate *validator.Validate, logger *zap.Logger) *DirectoryService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DirectoryService{
		users:     users,
		org:       org,
		audit:     audit,
		validator: validate,
		logger:    logger,
	}
}

// CreateUser registers a staff member with a bcrypt-hashed password.
func (s *DirectoryService) CreateUser(ctx context.Context, req dto.CreateUserRequest, actor *models.JWTClaims) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid user payload")
	}
	if !req.Role.IsValid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown role")
	}

	if existing, err := s.users.FindByEmail(ctx, req.Email); err == nil && existing != nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email is already registered")
	} else if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email")
	}
	if existing, err := s.users.FindByStaffNumber(ctx, req.StaffNumber); err == nil && existing != nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "staff number is already registered")
	} else if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check staff number")
	}

	if req.DepartmentID != nil {
		if _, err := s.org.FindDepartmentByID(ctx, *req.DepartmentID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrValidation, "department does not exist")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check department")
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		StaffNumber:  req.StaffNumber,
		Email:        req.Email,
		PasswordHash: string(hash),
		FullName:     req.FullName,
		Role:         req.Role,
		DepartmentID: req.DepartmentID,
		FacultyID:    req.FacultyID,
		Active:       true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}

	s.recordAudit(ctx, actor, models.AuditActionUserCreate, "user", user.ID)
	return user, nil
}

// UpdateUser applies partial changes to a user record.
func (s *DirectoryService) UpdateUser(ctx context.Context, id string, req dto.UpdateUserRequest, actor *models.JWTClaims) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid user payload")
	}

	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	if req.FullName != nil {
		user.FullName = *req.FullName
	}
	if req.Role != nil {
		if !req.Role.IsValid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown role")
		}
		user.Role = *req.Role
	}
	if req.DepartmentID != nil {
		if _, err := s.org.FindDepartmentByID(ctx, *req.DepartmentID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrValidation, "department does not exist")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check department")
		}
		user.DepartmentID = req.DepartmentID
	}
	if req.FacultyID != nil {
		user.FacultyID = req.FacultyID
	}
	if req.Active != nil {
		user.Active = *req.Active
	}
	user.UpdatedAt = time.Now().UTC()

	if err := s.users.Update(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update user")
	}

	s.recordAudit(ctx, actor, models.AuditActionUserUpdate, "user", user.ID)
	return user, nil
}

// GetUser returns a single user record.
func (s *DirectoryService) GetUser(ctx context.Context, id string) (*models.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}

// ListUsers returns users matching the filter with a total count.
func (s *DirectoryService) ListUsers(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	users, total, err := s.users.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}
	return users, total, nil
}

// CreateFaculty registers a faculty.
func (s *DirectoryService) CreateFaculty(ctx context.Context, req dto.CreateFacultyRequest) (*models.Faculty, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid faculty payload")
	}
	faculty := &models.Faculty{Name: req.Name, Code: req.Code}
	if err := s.org.CreateFaculty(ctx, faculty); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create faculty")
	}
	return faculty, nil
}

// ListFaculties returns all faculties.
func (s *DirectoryService) ListFaculties(ctx context.Context) ([]models.Faculty, error) {
	faculties, err := s.org.ListFaculties(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list faculties")
	}
	return faculties, nil
}

// AssignDean records a faculty's dean. The assignee must be an active user
// holding the DEAN role.
func (s *DirectoryService) AssignDean(ctx context.Context, facultyID string, req dto.AssignDeanRequest, actor *models.JWTClaims) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid dean assignment")
	}
	if _, err := s.org.FindFacultyByID(ctx, facultyID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "faculty not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load faculty")
	}
	if err := s.checkAssignee(ctx, req.DeanID, models.RoleDean); err != nil {
		return err
	}
	if err := s.org.AssignDean(ctx, facultyID, req.DeanID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to assign dean")
	}
	s.recordAudit(ctx, actor, models.AuditActionDeanAssign, "faculty", facultyID)
	return nil
}

// CreateDepartment registers a department under a faculty.
func (s *DirectoryService) CreateDepartment(ctx context.Context, req dto.CreateDepartmentRequest) (*models.Department, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid department payload")
	}
	if req.FacultyID != nil {
		if _, err := s.org.FindFacultyByID(ctx, *req.FacultyID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrValidation, "faculty does not exist")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load faculty")
		}
	}
	department := &models.Department{Name: req.Name, Code: req.Code, FacultyID: req.FacultyID}
	if err := s.org.CreateDepartment(ctx, department); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create department")
	}
	return department, nil
}

// ListDepartments returns all departments.
func (s *DirectoryService) ListDepartments(ctx context.Context) ([]models.Department, error) {
	departments, err := s.org.ListDepartments(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list departments")
	}
	return departments, nil
}

// AssignHOD records a department's head. The assignee must be an active
// user holding the ADMIN_OFFICER role.
func (s *DirectoryService) AssignHOD(ctx context.Context, departmentID string, req dto.AssignHODRequest, actor *models.JWTClaims) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid head-of-department assignment")
	}
	if _, err := s.org.FindDepartmentByID(ctx, departmentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "department not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load department")
	}
	if err := s.checkAssignee(ctx, req.HODID, models.RoleAdminOfficer); err != nil {
		return err
	}
	if err := s.org.AssignHOD(ctx, departmentID, req.HODID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to assign head of department")
	}
	s.recordAudit(ctx, actor, models.AuditActionHODAssign, "department", departmentID)
	return nil
}

func (s *DirectoryService) checkAssignee(ctx context.Context, userID string, role models.UserRole) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrValidation, "assignee does not exist")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignee")
	}
	if !user.Active {
		return appErrors.Clone(appErrors.ErrValidation, "assignee is deactivated")
	}
	if user.Role != role {
		return appErrors.Clone(appErrors.ErrValidation, "assignee does not hold the required role")
	}
	return nil
}

func (s *DirectoryService) recordAudit(ctx context.Context, actor *models.JWTClaims, action, resource, resourceID string) {
	if s.audit == nil || actor == nil {
		return
	}
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     action,
		Resource:   resource,
		ResourceID: &resourceID,
		IPAddress:  "system",
		UserAgent:  "directory-service",
	}); err != nil {
		s.logger.Warn("failed to record directory audit log", zap.Error(err))
	}
}
