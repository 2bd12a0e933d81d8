package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/Jabarteley/academic-staff-service-request/internal/dto"
	"github.com/Jabarteley/academic-staff-service-request/internal/models"
	appErrors "github.com/Jabarteley/academic-staff-service-request/pkg/errors"
)

type workflowConfigAdminStore interface {
	List(ctx context.Context) ([]models.WorkflowConfig, error)
	Upsert(ctx context.Context, cfg *models.WorkflowConfig) error
}

// CacheInvalidator drops cached stage lists. A nil value is a no-op.
type CacheInvalidator interface {
	DeleteByPattern(ctx context.Context, pattern string) error
}

// WorkflowConfigService manages the approval-chain definitions consulted by
// the routing engine. Upserts invalidate the resolved-config cache so a new
// chain takes effect on the next submission.
type WorkflowConfigService struct {
	store     workflowConfigAdminStore
	cache     CacheInvalidator
	audit     auditLogger
	validator *validator.Validate
	logger    *zap.Logger
}

func NewWorkflowConfigService(store workflowConfigAdminStore, cache CacheInvalidator, audit auditLogger, validate *validator.Validate, logger *zap.Logger) *WorkflowConfigService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkflowConfigService{
		store:     store,
		cache:     cache,
		audit:     audit,
		validator: validate,
		logger:    logger,
	}
}

// List returns every configured workflow, defaults and overrides alike.
func (s *WorkflowConfigService) List(ctx context.Context) ([]models.WorkflowConfig, error) {
	configs, err := s.store.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list workflow configs")
	}
	return configs, nil
}

// Upsert creates or replaces the workflow for a request type, scoped to a
// department when one is given. In-flight requests keep the chain they were
// routed with; only future submissions see the new stages.
func (s *WorkflowConfigService) Upsert(ctx context.Context, req dto.UpsertWorkflowConfigRequest, actor *models.JWTClaims) (*models.WorkflowConfig, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid workflow config payload")
	}
	if !req.RequestType.IsValid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown request type %q", req.RequestType))
	}

	stages := make(models.StageList, 0, len(req.Stages))
	for i, stage := range req.Stages {
		if !stage.Role.IsValid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("stage %d has unknown role %q", i, stage.Role))
		}
		label := stage.Label
		if label == "" {
			label = string(stage.Role)
		}
		stages = append(stages, models.Stage{Role: stage.Role, Label: label})
	}

	cfg := &models.WorkflowConfig{
		RequestType:  req.RequestType,
		DepartmentID: req.DepartmentID,
		Stages:       stages,
		IsDefault:    req.DepartmentID == nil,
	}
	if err := s.store.Upsert(ctx, cfg); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to upsert workflow config")
	}

	if s.cache != nil {
		if err := s.cache.DeleteByPattern(ctx, fmt.Sprintf("wfconfig:%s:*", req.RequestType)); err != nil {
			s.logger.Warn("failed to invalidate workflow config cache",
				zap.String("request_type", string(req.RequestType)), zap.Error(err))
		}
	}

	s.recordAudit(ctx, cfg, actor)

	return cfg, nil
}

func (s *WorkflowConfigService) recordAudit(ctx context.Context, cfg *models.WorkflowConfig, actor *models.JWTClaims) {
	if s.audit == nil {
		return
	}
	payload, _ := json.Marshal(cfg)
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionConfigUpsert,
		Resource:   "workflow_config",
		ResourceID: &cfg.ID,
		NewValues:  payload,
		IPAddress:  "system",
		UserAgent:  "workflow-config-service",
	}); err != nil {
		s.logger.Warn("failed to record workflow config audit log", zap.Error(err))
	}
}
