package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/Jabarteley/academic-staff-service-request/internal/models"
	appErrors "github.com/Jabarteley/academic-staff-service-request/pkg/errors"
)

type requestReader interface {
	FindByID(ctx context.Context, id string) (*models.Request, error)
	List(ctx context.Context, filter models.RequestFilter) ([]models.Request, int, error)
}

type timelineReader interface {
	ListByRequest(ctx context.Context, requestID string) ([]models.TimelineEntry, error)
}

// RequestService serves the read side of requests: listings scoped to the
// caller, single-request views and timelines. Visibility follows the
// actor's relationship to the record, not just their role.
type RequestService struct {
	requests     requestReader
	timeline     timelineReader
	auditorRoles map[models.UserRole]bool
	logger       *zap.Logger
}

// NewRequestService builds the read-side service. auditorRoles lists roles
// granted read access to every request.
func NewRequestService(requests requestReader, timeline timelineReader, auditorRoles []models.UserRole, logger *zap.Logger) *RequestService {
	if logger == nil {
		logger = zap.NewNop()
	}
	roleSet := make(map[models.UserRole]bool, len(auditorRoles))
	for _, role := range auditorRoles {
		roleSet[role] = true
	}
	return &RequestService{
		requests:     requests,
		timeline:     timeline,
		auditorRoles: roleSet,
		logger:       logger,
	}
}

// List returns requests visible to the actor. Auditor roles and sysadmins
// see the unscoped listing; everyone else sees requests they created or are
// currently assigned to approve.
func (s *RequestService) List(ctx context.Context, filter models.RequestFilter, actor *models.JWTClaims) ([]models.Request, int, error) {
	if actor == nil {
		return nil, 0, appErrors.ErrUnauthorized
	}
	if !s.isAuditor(actor.Role) {
		// Scope down to own requests unless explicitly asking for the
		// approval inbox.
		if filter.ApproverID == actor.UserID {
			filter.RequestorID = ""
		} else {
			filter.RequestorID = actor.UserID
			filter.ApproverID = ""
		}
	}

	requests, total, err := s.requests.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list requests")
	}
	return requests, total, nil
}

// Get returns a single request if the actor may view it.
func (s *RequestService) Get(ctx context.Context, requestID string, actor *models.JWTClaims) (*models.Request, error) {
	request, err := s.requests.FindByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request")
	}
	if !s.canView(request, actor) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "you do not have access to this request")
	}
	return request, nil
}

// Timeline returns the audit trail of a request, oldest entry first.
func (s *RequestService) Timeline(ctx context.Context, requestID string, actor *models.JWTClaims) ([]models.TimelineEntry, error) {
	request, err := s.Get(ctx, requestID, actor)
	if err != nil {
		return nil, err
	}

	entries, err := s.timeline.ListByRequest(ctx, request.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timeline")
	}
	return entries, nil
}

func (s *RequestService) canView(request *models.Request, actor *models.JWTClaims) bool {
	if actor == nil {
		return false
	}
	if request.RequestorID == actor.UserID {
		return true
	}
	if request.CurrentApproverID != nil && *request.CurrentApproverID == actor.UserID {
		return true
	}
	return s.isAuditor(actor.Role)
}

func (s *RequestService) isAuditor(role models.UserRole) bool {
	if role == models.RoleSysAdmin {
		return true
	}
	return s.auditorRoles[role]
}
