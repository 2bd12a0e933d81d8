package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Jabarteley/academic-staff-service-request/internal/models"
	appErrors "github.com/Jabarteley/academic-staff-service-request/pkg/errors"
)

type resolverDirectory interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindActiveByRole(ctx context.Context, role models.UserRole) (*models.User, error)
	FindActiveByRoleAndFaculty(ctx context.Context, role models.UserRole, facultyID string) (*models.User, error)
}

// Resolution is the outcome of mapping a stage role to a concrete approver.
// FallbackUsed is set whenever the resolved user is not the precise match
// for the role and organizational context, so misrouted approvals stay
// discoverable.
type Resolution struct {
	ApproverID     string
	ApproverName   string
	Role           models.UserRole
	FallbackUsed   bool
	FallbackReason string
}

type resolutionFunc func(ctx context.Context, department *models.Department) (*Resolution, error)

// ApproverResolver maps (role, department) to a concrete active user. It is
// a pure read over the staff directory; each role resolves through a
// strategy registered in a lookup table so initiation and advancement share
// one code path.
type ApproverResolver struct {
	directory  resolverDirectory
	logger     *zap.Logger
	strategies map[models.UserRole]resolutionFunc
}

// NewApproverResolver builds the resolver with its per-role strategy table.
func NewApproverResolver(directory resolverDirectory, logger *zap.Logger) *ApproverResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &ApproverResolver{directory: directory, logger: logger}
	r.strategies = map[models.UserRole]resolutionFunc{
		models.RoleAdminOfficer: r.resolveAdminOfficer,
		models.RoleDean:         r.resolveDean,
		models.RoleRegistrar:    r.resolveRegistrar,
		models.RoleSysAdmin:     r.resolveSysAdmin,
	}
	return r
}

// Resolve returns the approver for a stage role within a department's
// context. It returns appErrors.ErrNoApprover only when every fallback is
// exhausted, which means no active SYSADMIN exists at all.
func (r *ApproverResolver) Resolve(ctx context.Context, role models.UserRole, department *models.Department) (*Resolution, error) {
	if strategy, ok := r.strategies[role]; ok {
		return strategy(ctx, department)
	}
	return r.resolveDirect(ctx, role)
}

// resolveAdminOfficer prefers the department's designated head, then any
// active admin officer, then the sysadmin last resort.
func (r *ApproverResolver) resolveAdminOfficer(ctx context.Context, department *models.Department) (*Resolution, error) {
	if department != nil && department.HODID != nil {
		hod, err := r.directory.FindByID(ctx, *department.HODID)
		if err == nil && hod.Active {
			return &Resolution{ApproverID: hod.ID, ApproverName: hod.FullName, Role: hod.Role}, nil
		}
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
	}

	reason := "department has no head of department"
	if department != nil && department.HODID != nil {
		reason = "designated head of department is missing or inactive"
	}

	officer, err := r.directory.FindActiveByRole(ctx, models.RoleAdminOfficer)
	if err == nil {
		return &Resolution{
			ApproverID:     officer.ID,
			ApproverName:   officer.FullName,
			Role:           officer.Role,
			FallbackUsed:   true,
			FallbackReason: reason,
		}, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	return r.sysAdminFallback(ctx, fmt.Sprintf("%s and no admin officer exists", reason))
}

// resolveDean looks for the dean of the department's faculty, then any
// dean, then the sysadmin last resort.
func (r *ApproverResolver) resolveDean(ctx context.Context, department *models.Department) (*Resolution, error) {
	if department != nil && department.FacultyID != nil {
		dean, err := r.directory.FindActiveByRoleAndFaculty(ctx, models.RoleDean, *department.FacultyID)
		if err == nil {
			return &Resolution{ApproverID: dean.ID, ApproverName: dean.FullName, Role: dean.Role}, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
	}

	reason := "department is not attached to a faculty"
	if department != nil && department.FacultyID != nil {
		reason = "faculty has no active dean"
	}

	dean, err := r.directory.FindActiveByRole(ctx, models.RoleDean)
	if err == nil {
		return &Resolution{
			ApproverID:     dean.ID,
			ApproverName:   dean.FullName,
			Role:           dean.Role,
			FallbackUsed:   true,
			FallbackReason: reason,
		}, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	return r.sysAdminFallback(ctx, fmt.Sprintf("%s and no dean exists", reason))
}

func (r *ApproverResolver) resolveRegistrar(ctx context.Context, _ *models.Department) (*Resolution, error) {
	registrar, err := r.directory.FindActiveByRole(ctx, models.RoleRegistrar)
	if err == nil {
		return &Resolution{ApproverID: registrar.ID, ApproverName: registrar.FullName, Role: registrar.Role}, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return r.sysAdminFallback(ctx, "no active registrar exists")
}

func (r *ApproverResolver) resolveSysAdmin(ctx context.Context, _ *models.Department) (*Resolution, error) {
	admin, err := r.directory.FindActiveByRole(ctx, models.RoleSysAdmin)
	if err == nil {
		return &Resolution{ApproverID: admin.ID, ApproverName: admin.FullName, Role: admin.Role}, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return nil, appErrors.Clone(appErrors.ErrNoApprover, "no active sysadmin exists")
}

// resolveDirect handles role values outside the strategy table.
func (r *ApproverResolver) resolveDirect(ctx context.Context, role models.UserRole) (*Resolution, error) {
	user, err := r.directory.FindActiveByRole(ctx, role)
	if err == nil {
		return &Resolution{ApproverID: user.ID, ApproverName: user.FullName, Role: user.Role}, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return r.sysAdminFallback(ctx, fmt.Sprintf("no active user holds role %s", role))
}

func (r *ApproverResolver) sysAdminFallback(ctx context.Context, reason string) (*Resolution, error) {
	admin, err := r.directory.FindActiveByRole(ctx, models.RoleSysAdmin)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNoApprover, reason+"; no sysadmin available as last resort")
		}
		return nil, err
	}
	r.logger.Warn("approver resolution degraded to sysadmin", zap.String("reason", reason))
	return &Resolution{
		ApproverID:     admin.ID,
		ApproverName:   admin.FullName,
		Role:           admin.Role,
		FallbackUsed:   true,
		FallbackReason: reason,
	}, nil
}
