package service

import (
	"context"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Jabarteley/academic-staff-service-request/internal/dto"
	"github.com/Jabarteley/academic-staff-service-request/internal/models"
	appErrors "github.com/Jabarteley/academic-staff-service-request/pkg/errors"
)

type stubConfigAdminStore struct {
	configs  []models.WorkflowConfig
	upserted *models.WorkflowConfig
}

func (s *stubConfigAdminStore) List(ctx context.Context) ([]models.WorkflowConfig, error) {
	return s.configs, nil
}

func (s *stubConfigAdminStore) Upsert(ctx context.Context, cfg *models.WorkflowConfig) error {
	cfg.ID = "cfg-1"
	s.upserted = cfg
	return nil
}

type stubInvalidator struct {
	patterns []string
}

func (s *stubInvalidator) DeleteByPattern(ctx context.Context, pattern string) error {
	s.patterns = append(s.patterns, pattern)
	return nil
}

func sysAdminClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "sys-1", Role: models.RoleSysAdmin}
}

func TestUpsertDefaultConfig(t *testing.T) {
	store := &stubConfigAdminStore{}
	invalidator := &stubInvalidator{}
	audit := &stubAudit{}
	svc := NewWorkflowConfigService(store, invalidator, audit, validator.New(), zap.NewNop())

	cfg, err := svc.Upsert(context.Background(), dto.UpsertWorkflowConfigRequest{
		RequestType: models.TypeLeave,
		Stages: []dto.StageInput{
			{Role: models.RoleAdminOfficer, Label: "Head of Department"},
			{Role: models.RoleDean, Label: "Dean"},
		},
	}, sysAdminClaims())
	require.NoError(t, err)

	assert.True(t, cfg.IsDefault)
	assert.Nil(t, cfg.DepartmentID)
	require.Len(t, cfg.Stages, 2)
	assert.Equal(t, models.RoleAdminOfficer, cfg.Stages[0].Role)

	require.Len(t, invalidator.patterns, 1)
	assert.Equal(t, "wfconfig:LEAVE:*", invalidator.patterns[0])
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionConfigUpsert, audit.logs[0].Action)
}

func TestUpsertDepartmentOverride(t *testing.T) {
	store := &stubConfigAdminStore{}
	svc := NewWorkflowConfigService(store, nil, nil, validator.New(), zap.NewNop())

	cfg, err := svc.Upsert(context.Background(), dto.UpsertWorkflowConfigRequest{
		RequestType:  models.TypeLeave,
		DepartmentID: strPtr("dept-1"),
		Stages:       []dto.StageInput{{Role: models.RoleDean, Label: "Dean"}},
	}, sysAdminClaims())
	require.NoError(t, err)
	assert.False(t, cfg.IsDefault)
	require.NotNil(t, cfg.DepartmentID)
}

func TestUpsertRejectsEmptyStages(t *testing.T) {
	svc := NewWorkflowConfigService(&stubConfigAdminStore{}, nil, nil, validator.New(), zap.NewNop())

	_, err := svc.Upsert(context.Background(), dto.UpsertWorkflowConfigRequest{
		RequestType: models.TypeLeave,
	}, sysAdminClaims())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestUpsertRejectsUnknownRole(t *testing.T) {
	svc := NewWorkflowConfigService(&stubConfigAdminStore{}, nil, nil, validator.New(), zap.NewNop())

	_, err := svc.Upsert(context.Background(), dto.UpsertWorkflowConfigRequest{
		RequestType: models.TypeLeave,
		Stages:      []dto.StageInput{{Role: "JANITOR", Label: "Janitor"}},
	}, sysAdminClaims())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestListConfigs(t *testing.T) {
	store := &stubConfigAdminStore{configs: []models.WorkflowConfig{{ID: "cfg-1", RequestType: models.TypeLeave}}}
	svc := NewWorkflowConfigService(store, nil, nil, validator.New(), zap.NewNop())

	configs, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, configs, 1)
}
