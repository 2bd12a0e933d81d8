package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/Jabarteley/academic-staff-service-request/internal/dto"
	"github.com/Jabarteley/academic-staff-service-request/internal/models"
	"github.com/Jabarteley/academic-staff-service-request/internal/repository"
	appErrors "github.com/Jabarteley/academic-staff-service-request/pkg/errors"
)

const dateLayout = "2006-01-02"

type workflowRequestStore interface {
	Create(ctx context.Context, request *models.Request) error
	FindByID(ctx context.Context, id string) (*models.Request, error)
	UpdateContent(ctx context.Context, id, title, description string, details json.RawMessage) error
	ApplyTransition(ctx context.Context, params repository.TransitionParams) error
}

type workflowConfigStore interface {
	FindByTypeAndDepartment(ctx context.Context, requestType models.RequestType, departmentID string) (*models.WorkflowConfig, error)
	FindDefaultByType(ctx context.Context, requestType models.RequestType) (*models.WorkflowConfig, error)
}

type departmentReader interface {
	FindDepartmentByID(ctx context.Context, id string) (*models.Department, error)
}

type workflowUserReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type approverResolver interface {
	Resolve(ctx context.Context, role models.UserRole, department *models.Department) (*Resolution, error)
}

type timelineAppender interface {
	Append(ctx context.Context, entry *models.TimelineEntry) error
}

type notificationDispatcher interface {
	Dispatch(notification models.Notification)
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// ConfigCache caches resolved stage lists. A nil value disables caching.
type ConfigCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// WorkflowServiceConfig tunes engine behaviour.
type WorkflowServiceConfig struct {
	ConfigCacheTTL time.Duration
	CacheEnabled   bool
}

// WorkflowService owns the approval state machine: it routes new requests
// into their first stage, advances them on approval, terminates them on
// rejection and bounces them back to the requestor on modification
// requests. All transitions are guarded by the storage layer's
// compare-and-swap so two approvers can never both advance the same record.
type WorkflowService struct {
	requests      workflowRequestStore
	configs       workflowConfigStore
	departments   departmentReader
	users         workflowUserReader
	resolver      approverResolver
	timeline      timelineAppender
	notifications notificationDispatcher
	audit         auditLogger
	cache         ConfigCache
	metrics       *MetricsService
	validator     *validator.Validate
	logger        *zap.Logger
	cfg           WorkflowServiceConfig
}

// NewWorkflowService builds the engine with its collaborators.
func NewWorkflowService(
	requests workflowRequestStore,
	configs workflowConfigStore,
	departments departmentReader,
	users workflowUserReader,
	resolver approverResolver,
	timeline timelineAppender,
	notifications notificationDispatcher,
	audit auditLogger,
	cache ConfigCache,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg WorkflowServiceConfig,
) *WorkflowService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkflowService{
		requests:      requests,
		configs:       configs,
		departments:   departments,
		users:         users,
		resolver:      resolver,
		timeline:      timeline,
		notifications: notifications,
		audit:         audit,
		cache:         cache,
		metrics:       metrics,
		validator:     validate,
		logger:        logger,
		cfg:           cfg,
	}
}

// CreateRequest validates the payload and persists a new request. Unless
// the request is saved as a draft, routing is initiated immediately: the
// applicable workflow config is resolved, the stage-0 approver assigned and
// the request enters PENDING. No request row is written when routing fails.
func (s *WorkflowService) CreateRequest(ctx context.Context, req dto.CreateRequestRequest, actor *models.JWTClaims) (*models.Request, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request payload")
	}
	if !req.RequestType.IsValid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown request type %q", req.RequestType))
	}

	details, err := buildDetails(req.RequestType, req.Leave, req.Conference, req.Resource)
	if err != nil {
		return nil, err
	}

	requestor, err := s.users.FindByID(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "requestor no longer exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load requestor")
	}

	request := &models.Request{
		RequestType:  req.RequestType,
		Title:        req.Title,
		Description:  req.Description,
		Status:       models.StatusDraft,
		RequestorID:  requestor.ID,
		DepartmentID: requestor.DepartmentID,
		Details:      details,
	}

	if req.Draft {
		if err := s.requests.Create(ctx, request); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create request")
		}
		s.appendTimeline(ctx, request.ID, requestor.ID, "Draft created", nil)
		return request, nil
	}

	department, err := s.loadDepartment(ctx, requestor.DepartmentID)
	if err != nil {
		return nil, err
	}

	stages, err := s.resolveStages(ctx, req.RequestType, requestor.DepartmentID)
	if err != nil {
		return nil, err
	}

	resolution, err := s.resolveStageApprover(ctx, stages[0].Role, department)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	request.Status = models.StatusPending
	request.WorkflowStage = 0
	request.CurrentApproverID = &resolution.ApproverID
	request.SubmittedAt = &now

	if err := s.requests.Create(ctx, request); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create request")
	}

	s.recordFallback(ctx, request, resolution, stages[0])
	s.appendTimeline(ctx, request.ID, requestor.ID, "Request created and submitted", nil)
	s.notifyApprover(request, resolution.ApproverID, stages[0])
	s.metrics.RecordTransition("submit", "ok")

	return request, nil
}

// SubmitDraft routes a previously saved draft into its approval chain.
func (s *WorkflowService) SubmitDraft(ctx context.Context, requestID string, actor *models.JWTClaims) (*models.Request, error) {
	request, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if actor == nil || request.RequestorID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the requestor may submit this draft")
	}
	if request.Status != models.StatusDraft {
		return nil, appErrors.Clone(appErrors.ErrConflict, "request is not a draft")
	}

	department, err := s.loadDepartment(ctx, request.DepartmentID)
	if err != nil {
		return nil, err
	}

	stages, err := s.resolveStages(ctx, request.RequestType, request.DepartmentID)
	if err != nil {
		return nil, err
	}

	resolution, err := s.resolveStageApprover(ctx, stages[0].Role, department)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	err = s.requests.ApplyTransition(ctx, repository.TransitionParams{
		RequestID:          request.ID,
		ExpectedStatus:     models.StatusDraft,
		ExpectedStage:      request.WorkflowStage,
		ExpectedApproverID: nil,
		NewStatus:          models.StatusPending,
		NewStage:           0,
		NewApproverID:      &resolution.ApproverID,
		SubmittedAt:        &now,
		ActorID:            actor.UserID,
		TimelineAction:     "Request submitted",
	})
	if err != nil {
		return nil, s.mapTransitionError(err, "submit")
	}

	s.recordFallback(ctx, request, resolution, stages[0])
	s.notifyApprover(request, resolution.ApproverID, stages[0])
	s.metrics.RecordTransition("submit", "ok")

	return s.loadRequest(ctx, request.ID)
}

// ApplyAction executes an approver decision on a pending request. The
// acting user must be the current approver; reject and
// request_modification demand a comment.
func (s *WorkflowService) ApplyAction(ctx context.Context, requestID string, req dto.ActionRequest, actor *models.JWTClaims) (*models.Request, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !req.Action.IsValid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown action %q", req.Action))
	}

	request, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	if request.Status.IsTerminal() {
		return nil, appErrors.ErrFinalized
	}
	if request.Status != models.StatusPending {
		return nil, appErrors.Clone(appErrors.ErrConflict, "request is not pending approval")
	}
	if request.CurrentApproverID == nil || *request.CurrentApproverID != actor.UserID {
		return nil, appErrors.ErrNotCurrentApprover
	}
	if (req.Action == models.ActionReject || req.Action == models.ActionRequestModification) && req.Comment == "" {
		return nil, appErrors.ErrCommentRequired
	}

	switch req.Action {
	case models.ActionApprove:
		return s.approve(ctx, request, req.Comment, actor)
	case models.ActionReject:
		return s.reject(ctx, request, req.Comment, actor)
	default:
		return s.requestModification(ctx, request, req.Comment, actor)
	}
}

func (s *WorkflowService) approve(ctx context.Context, request *models.Request, comment string, actor *models.JWTClaims) (*models.Request, error) {
	stages, err := s.resolveStages(ctx, request.RequestType, request.DepartmentID)
	if err != nil {
		return nil, err
	}
	if request.WorkflowStage < 0 || request.WorkflowStage >= len(stages) {
		return nil, appErrors.Clone(appErrors.ErrNoWorkflow, "stored workflow stage no longer matches the configured chain")
	}

	nextStage := request.WorkflowStage + 1
	now := time.Now().UTC()

	if nextStage >= len(stages) {
		// Final stage approved.
		err = s.requests.ApplyTransition(ctx, repository.TransitionParams{
			RequestID:          request.ID,
			ExpectedStatus:     models.StatusPending,
			ExpectedStage:      request.WorkflowStage,
			ExpectedApproverID: request.CurrentApproverID,
			NewStatus:          models.StatusApproved,
			NewStage:           request.WorkflowStage,
			NewApproverID:      nil,
			CompletedAt:        &now,
			ActorID:            actor.UserID,
			TimelineAction:     "Request fully approved",
			Comment:            optionalComment(comment),
		})
		if err != nil {
			return nil, s.mapTransitionError(err, "approve")
		}

		s.notifications.Dispatch(models.Notification{
			UserID:    request.RequestorID,
			RequestID: &request.ID,
			Type:      models.NotificationRequestApproved,
			Title:     "Request approved",
			Message:   fmt.Sprintf("%s has been fully approved", request.RequestNumber),
			Link:      requestLink(request.ID),
		})
		s.metrics.RecordTransition("approve", "ok")
		return s.loadRequest(ctx, request.ID)
	}

	department, err := s.loadDepartment(ctx, request.DepartmentID)
	if err != nil {
		return nil, err
	}
	resolution, err := s.resolveStageApprover(ctx, stages[nextStage].Role, department)
	if err != nil {
		return nil, err
	}

	err = s.requests.ApplyTransition(ctx, repository.TransitionParams{
		RequestID:          request.ID,
		ExpectedStatus:     models.StatusPending,
		ExpectedStage:      request.WorkflowStage,
		ExpectedApproverID: request.CurrentApproverID,
		NewStatus:          models.StatusPending,
		NewStage:           nextStage,
		NewApproverID:      &resolution.ApproverID,
		ActorID:            actor.UserID,
		TimelineAction:     fmt.Sprintf("Approved; forwarded to %s", stages[nextStage].Label),
		Comment:            optionalComment(comment),
	})
	if err != nil {
		return nil, s.mapTransitionError(err, "approve")
	}

	s.recordFallback(ctx, request, resolution, stages[nextStage])
	s.notifyApprover(request, resolution.ApproverID, stages[nextStage])
	s.metrics.RecordTransition("approve", "ok")

	return s.loadRequest(ctx, request.ID)
}

func (s *WorkflowService) reject(ctx context.Context, request *models.Request, comment string, actor *models.JWTClaims) (*models.Request, error) {
	now := time.Now().UTC()
	err := s.requests.ApplyTransition(ctx, repository.TransitionParams{
		RequestID:          request.ID,
		ExpectedStatus:     models.StatusPending,
		ExpectedStage:      request.WorkflowStage,
		ExpectedApproverID: request.CurrentApproverID,
		NewStatus:          models.StatusRejected,
		NewStage:           request.WorkflowStage,
		NewApproverID:      nil,
		CompletedAt:        &now,
		ActorID:            actor.UserID,
		TimelineAction:     "Request rejected",
		Comment:            optionalComment(comment),
	})
	if err != nil {
		return nil, s.mapTransitionError(err, "reject")
	}

	s.notifications.Dispatch(models.Notification{
		UserID:    request.RequestorID,
		RequestID: &request.ID,
		Type:      models.NotificationRequestRejected,
		Title:     "Request rejected",
		Message:   fmt.Sprintf("%s was rejected: %s", request.RequestNumber, comment),
		Link:      requestLink(request.ID),
	})
	s.metrics.RecordTransition("reject", "ok")

	return s.loadRequest(ctx, request.ID)
}

func (s *WorkflowService) requestModification(ctx context.Context, request *models.Request, comment string, actor *models.JWTClaims) (*models.Request, error) {
	err := s.requests.ApplyTransition(ctx, repository.TransitionParams{
		RequestID:          request.ID,
		ExpectedStatus:     models.StatusPending,
		ExpectedStage:      request.WorkflowStage,
		ExpectedApproverID: request.CurrentApproverID,
		NewStatus:          models.StatusModificationRequested,
		NewStage:           request.WorkflowStage,
		NewApproverID:      &request.RequestorID,
		ActorID:            actor.UserID,
		TimelineAction:     "Modification requested",
		Comment:            optionalComment(comment),
	})
	if err != nil {
		return nil, s.mapTransitionError(err, "request_modification")
	}

	s.notifications.Dispatch(models.Notification{
		UserID:    request.RequestorID,
		RequestID: &request.ID,
		Type:      models.NotificationModificationRequired,
		Title:     "Modification requested",
		Message:   fmt.Sprintf("%s needs changes before it can proceed: %s", request.RequestNumber, comment),
		Link:      requestLink(request.ID),
	})
	s.notifications.Dispatch(models.Notification{
		UserID:    actor.UserID,
		RequestID: &request.ID,
		Type:      models.NotificationModificationSent,
		Title:     "Request returned to requestor",
		Message:   fmt.Sprintf("%s was returned to its requestor for modification", request.RequestNumber),
		Link:      requestLink(request.ID),
	})
	s.metrics.RecordTransition("request_modification", "ok")

	return s.loadRequest(ctx, request.ID)
}

// Resubmit re-routes a bounced request. The chain restarts at stage 0 so
// every approver sees the amended content.
func (s *WorkflowService) Resubmit(ctx context.Context, requestID string, req dto.ResubmitRequest, actor *models.JWTClaims) (*models.Request, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid resubmit payload")
	}

	request, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.RequestorID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the requestor may resubmit this request")
	}
	if request.Status != models.StatusModificationRequested {
		return nil, appErrors.Clone(appErrors.ErrConflict, "request is not awaiting modification")
	}

	title := request.Title
	if req.Title != "" {
		title = req.Title
	}
	description := request.Description
	if req.Description != "" {
		description = req.Description
	}
	details := request.Details
	if req.Leave != nil || req.Conference != nil || req.Resource != nil {
		details, err = buildDetails(request.RequestType, req.Leave, req.Conference, req.Resource)
		if err != nil {
			return nil, err
		}
	}
	if err := s.requests.UpdateContent(ctx, request.ID, title, description, details); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update request content")
	}

	department, err := s.loadDepartment(ctx, request.DepartmentID)
	if err != nil {
		return nil, err
	}
	stages, err := s.resolveStages(ctx, request.RequestType, request.DepartmentID)
	if err != nil {
		return nil, err
	}
	resolution, err := s.resolveStageApprover(ctx, stages[0].Role, department)
	if err != nil {
		return nil, err
	}

	err = s.requests.ApplyTransition(ctx, repository.TransitionParams{
		RequestID:          request.ID,
		ExpectedStatus:     models.StatusModificationRequested,
		ExpectedStage:      request.WorkflowStage,
		ExpectedApproverID: &request.RequestorID,
		NewStatus:          models.StatusPending,
		NewStage:           0,
		NewApproverID:      &resolution.ApproverID,
		ActorID:            actor.UserID,
		TimelineAction:     "Request resubmitted",
	})
	if err != nil {
		return nil, s.mapTransitionError(err, "resubmit")
	}

	s.recordFallback(ctx, request, resolution, stages[0])
	s.notifyApprover(request, resolution.ApproverID, stages[0])
	s.metrics.RecordTransition("resubmit", "ok")

	return s.loadRequest(ctx, request.ID)
}

// Cancel lets the requestor withdraw a request that has not reached a
// terminal state.
func (s *WorkflowService) Cancel(ctx context.Context, requestID, comment string, actor *models.JWTClaims) (*models.Request, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	request, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.RequestorID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the requestor may cancel this request")
	}
	if request.Status.IsTerminal() {
		return nil, appErrors.ErrFinalized
	}

	now := time.Now().UTC()
	err = s.requests.ApplyTransition(ctx, repository.TransitionParams{
		RequestID:          request.ID,
		ExpectedStatus:     request.Status,
		ExpectedStage:      request.WorkflowStage,
		ExpectedApproverID: request.CurrentApproverID,
		NewStatus:          models.StatusCancelled,
		NewStage:           request.WorkflowStage,
		NewApproverID:      nil,
		CompletedAt:        &now,
		ActorID:            actor.UserID,
		TimelineAction:     "Request cancelled",
		Comment:            optionalComment(comment),
	})
	if err != nil {
		return nil, s.mapTransitionError(err, "cancel")
	}
	s.metrics.RecordTransition("cancel", "ok")

	return s.loadRequest(ctx, request.ID)
}

// Complete marks an approved request as fulfilled. Restricted to registrar
// and sysadmin callers by the HTTP layer.
func (s *WorkflowService) Complete(ctx context.Context, requestID, comment string, actor *models.JWTClaims) (*models.Request, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	request, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.Status != models.StatusApproved {
		return nil, appErrors.Clone(appErrors.ErrConflict, "only approved requests can be completed")
	}

	now := time.Now().UTC()
	err = s.requests.ApplyTransition(ctx, repository.TransitionParams{
		RequestID:          request.ID,
		ExpectedStatus:     models.StatusApproved,
		ExpectedStage:      request.WorkflowStage,
		ExpectedApproverID: nil,
		NewStatus:          models.StatusCompleted,
		NewStage:           request.WorkflowStage,
		NewApproverID:      nil,
		CompletedAt:        &now,
		ActorID:            actor.UserID,
		TimelineAction:     "Request completed",
		Comment:            optionalComment(comment),
	})
	if err != nil {
		return nil, s.mapTransitionError(err, "complete")
	}

	s.notifications.Dispatch(models.Notification{
		UserID:    request.RequestorID,
		RequestID: &request.ID,
		Type:      models.NotificationRequestCompleted,
		Title:     "Request completed",
		Message:   fmt.Sprintf("%s has been completed", request.RequestNumber),
		Link:      requestLink(request.ID),
	})
	s.metrics.RecordTransition("complete", "ok")

	return s.loadRequest(ctx, request.ID)
}

// resolveStages returns the stage chain for a request type, preferring the
// department-specific config over the type default. A missing default or an
// empty chain fails closed.
func (s *WorkflowService) resolveStages(ctx context.Context, requestType models.RequestType, departmentID *string) (models.StageList, error) {
	cacheKey := configCacheKey(requestType, departmentID)
	if s.cacheEnabled() {
		var cached models.StageList
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil && len(cached) > 0 {
			s.metrics.RecordConfigCacheLookup(true)
			return cached, nil
		}
		s.metrics.RecordConfigCacheLookup(false)
	}

	var cfg *models.WorkflowConfig
	var err error
	if departmentID != nil {
		cfg, err = s.configs.FindByTypeAndDepartment(ctx, requestType, *departmentID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load workflow config")
		}
	}
	if cfg == nil {
		cfg, err = s.configs.FindDefaultByType(ctx, requestType)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNoWorkflow, fmt.Sprintf("no workflow configured for request type %s", requestType))
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load workflow config")
		}
	}
	if len(cfg.Stages) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNoWorkflow, fmt.Sprintf("workflow for request type %s has no stages", requestType))
	}

	if s.cacheEnabled() {
		if err := s.cache.Set(ctx, cacheKey, cfg.Stages, s.cfg.ConfigCacheTTL); err != nil {
			s.logger.Warn("failed to cache workflow config", zap.String("key", cacheKey), zap.Error(err))
		}
	}

	return cfg.Stages, nil
}

func (s *WorkflowService) resolveStageApprover(ctx context.Context, role models.UserRole, department *models.Department) (*Resolution, error) {
	resolution, err := s.resolver.Resolve(ctx, role, department)
	if err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "approver resolution failed")
	}
	return resolution, nil
}

func (s *WorkflowService) loadRequest(ctx context.Context, id string) (*models.Request, error) {
	request, err := s.requests.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request")
	}
	return request, nil
}

func (s *WorkflowService) loadDepartment(ctx context.Context, departmentID *string) (*models.Department, error) {
	if departmentID == nil {
		return nil, nil
	}
	department, err := s.departments.FindDepartmentByID(ctx, *departmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Snapshotted department was removed; resolution proceeds
			// through the fallback chains.
			return nil, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load department")
	}
	return department, nil
}

func (s *WorkflowService) mapTransitionError(err error, action string) error {
	if errors.Is(err, sql.ErrNoRows) {
		s.metrics.RecordTransition(action, "not_found")
		return appErrors.Clone(appErrors.ErrNotFound, "request not found")
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) && appErr.Code == appErrors.ErrConcurrentUpdate.Code {
		s.metrics.RecordTransition(action, "conflict")
		return err
	}
	s.metrics.RecordTransition(action, "error")
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply transition")
}

// recordFallback surfaces degraded approver resolutions so operators can
// discover misrouted approvals.
func (s *WorkflowService) recordFallback(ctx context.Context, request *models.Request, resolution *Resolution, stage models.Stage) {
	if resolution == nil || !resolution.FallbackUsed {
		return
	}

	s.logger.Warn("approver resolved through fallback",
		zap.String("request_id", request.ID),
		zap.String("stage_role", string(stage.Role)),
		zap.String("approver_id", resolution.ApproverID),
		zap.String("reason", resolution.FallbackReason),
	)
	s.metrics.RecordFallback(stage.Role)

	if s.audit == nil {
		return
	}
	payload, _ := json.Marshal(map[string]interface{}{
		"stageRole":  stage.Role,
		"approverId": resolution.ApproverID,
		"reason":     resolution.FallbackReason,
	})
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		Action:     models.AuditActionWorkflowFallback,
		Resource:   "request",
		ResourceID: &request.ID,
		NewValues:  payload,
		IPAddress:  "system",
		UserAgent:  "workflow-engine",
	}); err != nil {
		s.logger.Warn("failed to record fallback audit log", zap.Error(err))
	}
}

func (s *WorkflowService) appendTimeline(ctx context.Context, requestID, userID, action string, comment *string) {
	if err := s.timeline.Append(ctx, &models.TimelineEntry{
		RequestID: requestID,
		UserID:    userID,
		Action:    action,
		Comment:   comment,
	}); err != nil {
		s.logger.Warn("failed to append timeline entry", zap.String("request_id", requestID), zap.Error(err))
	}
}

func (s *WorkflowService) notifyApprover(request *models.Request, approverID string, stage models.Stage) {
	s.notifications.Dispatch(models.Notification{
		UserID:    approverID,
		RequestID: &request.ID,
		Type:      models.NotificationApprovalRequired,
		Title:     "Approval required",
		Message:   fmt.Sprintf("%s is awaiting your decision (%s)", request.RequestNumber, stage.Label),
		Link:      requestLink(request.ID),
	})
}

func (s *WorkflowService) cacheEnabled() bool {
	return s.cache != nil && s.cfg.CacheEnabled
}

func configCacheKey(requestType models.RequestType, departmentID *string) string {
	if departmentID != nil {
		return fmt.Sprintf("wfconfig:%s:%s", requestType, *departmentID)
	}
	return fmt.Sprintf("wfconfig:%s:default", requestType)
}

func requestLink(requestID string) string {
	return "/requests/" + requestID
}

func optionalComment(comment string) *string {
	if comment == "" {
		return nil
	}
	return &comment
}

// buildDetails validates and serialises the type-specific payload.
func buildDetails(requestType models.RequestType, leave *models.LeaveDetails, conference *models.ConferenceDetails, resource *models.ResourceDetails) (json.RawMessage, error) {
	switch requestType {
	case models.TypeLeave:
		if leave == nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "leave details are required")
		}
		if leave.LeaveType == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "leave type is required")
		}
		if err := validateDateRange(leave.StartDate, leave.EndDate); err != nil {
			return nil, err
		}
		return json.Marshal(leave)
	case models.TypeConferenceTraining:
		if conference == nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "conference details are required")
		}
		if conference.EventName == "" || conference.EventLocation == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "event name and location are required")
		}
		if err := validateDateRange(conference.StartDate, conference.EndDate); err != nil {
			return nil, err
		}
		return json.Marshal(conference)
	case models.TypeResourceRequisition:
		if resource == nil || len(resource.Items) == 0 {
			return nil, appErrors.Clone(appErrors.ErrValidation, "at least one requisition item is required")
		}
		for _, item := range resource.Items {
			if item.Name == "" {
				return nil, appErrors.Clone(appErrors.ErrValidation, "requisition item name is required")
			}
			if item.Quantity <= 0 {
				return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("requisition item %q needs a positive quantity", item.Name))
			}
		}
		return json.Marshal(resource)
	default:
		return nil, nil
	}
}

func validateDateRange(start, end string) error {
	startDate, err := time.Parse(dateLayout, start)
	if err != nil {
		return appErrors.Clone(appErrors.ErrValidation, "start date must be formatted YYYY-MM-DD")
	}
	endDate, err := time.Parse(dateLayout, end)
	if err != nil {
		return appErrors.Clone(appErrors.ErrValidation, "end date must be formatted YYYY-MM-DD")
	}
	if endDate.Before(startDate) {
		return appErrors.Clone(appErrors.ErrValidation, "end date must not precede start date")
	}
	return nil
}
