package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Jabarteley/academic-staff-service-request/internal/models"
	appErrors "github.com/Jabarteley/academic-staff-service-request/pkg/errors"
)

type stubRequestReader struct {
	requests   map[string]*models.Request
	lastFilter models.RequestFilter
}

func (s *stubRequestReader) FindByID(ctx context.Context, id string) (*models.Request, error) {
	if request, ok := s.requests[id]; ok {
		return request, nil
	}
	return nil, sql.ErrNoRows
}

func (s *stubRequestReader) List(ctx context.Context, filter models.RequestFilter) ([]models.Request, int, error) {
	s.lastFilter = filter
	out := make([]models.Request, 0, len(s.requests))
	for _, r := range s.requests {
		out = append(out, *r)
	}
	return out, len(out), nil
}

type stubTimelineReader struct {
	entries []models.TimelineEntry
}

func (s *stubTimelineReader) ListByRequest(ctx context.Context, requestID string) ([]models.TimelineEntry, error) {
	return s.entries, nil
}

func newReadFixture() (*RequestService, *stubRequestReader) {
	reader := &stubRequestReader{requests: map[string]*models.Request{
		"r1": {ID: "r1", RequestorID: "staff-1", CurrentApproverID: strPtr("hod-1"), Status: models.StatusPending},
	}}
	svc := NewRequestService(reader, &stubTimelineReader{entries: []models.TimelineEntry{{RequestID: "r1", Action: "Request created and submitted"}}}, []models.UserRole{models.RoleRegistrar}, zap.NewNop())
	return svc, reader
}

func TestGetVisibleToRequestor(t *testing.T) {
	svc, _ := newReadFixture()
	request, err := svc.Get(context.Background(), "r1", &models.JWTClaims{UserID: "staff-1", Role: models.RoleAcademicStaff})
	require.NoError(t, err)
	assert.Equal(t, "r1", request.ID)
}

func TestGetVisibleToCurrentApprover(t *testing.T) {
	svc, _ := newReadFixture()
	_, err := svc.Get(context.Background(), "r1", &models.JWTClaims{UserID: "hod-1", Role: models.RoleAdminOfficer})
	require.NoError(t, err)
}

func TestGetVisibleToAuditorAndSysAdmin(t *testing.T) {
	svc, _ := newReadFixture()

	_, err := svc.Get(context.Background(), "r1", &models.JWTClaims{UserID: "reg-9", Role: models.RoleRegistrar})
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), "r1", &models.JWTClaims{UserID: "sys-9", Role: models.RoleSysAdmin})
	require.NoError(t, err)
}

func TestGetHiddenFromUnrelatedUser(t *testing.T) {
	svc, _ := newReadFixture()
	_, err := svc.Get(context.Background(), "r1", &models.JWTClaims{UserID: "other", Role: models.RoleAcademicStaff})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestListScopesToOwnRequests(t *testing.T) {
	svc, reader := newReadFixture()

	_, _, err := svc.List(context.Background(), models.RequestFilter{}, &models.JWTClaims{UserID: "staff-1", Role: models.RoleAcademicStaff})
	require.NoError(t, err)
	assert.Equal(t, "staff-1", reader.lastFilter.RequestorID)
}

func TestListApprovalInboxKeepsApproverFilter(t *testing.T) {
	svc, reader := newReadFixture()

	_, _, err := svc.List(context.Background(), models.RequestFilter{ApproverID: "hod-1"}, &models.JWTClaims{UserID: "hod-1", Role: models.RoleAdminOfficer})
	require.NoError(t, err)
	assert.Equal(t, "hod-1", reader.lastFilter.ApproverID)
	assert.Empty(t, reader.lastFilter.RequestorID)
}

func TestListUnscopedForAuditor(t *testing.T) {
	svc, reader := newReadFixture()

	_, _, err := svc.List(context.Background(), models.RequestFilter{}, &models.JWTClaims{UserID: "reg-9", Role: models.RoleRegistrar})
	require.NoError(t, err)
	assert.Empty(t, reader.lastFilter.RequestorID)
}

func TestTimelineRequiresVisibility(t *testing.T) {
	svc, _ := newReadFixture()

	entries, err := svc.Timeline(context.Background(), "r1", &models.JWTClaims{UserID: "staff-1", Role: models.RoleAcademicStaff})
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	_, err = svc.Timeline(context.Background(), "r1", &models.JWTClaims{UserID: "other", Role: models.RoleAcademicStaff})
	require.Error(t, err)
}
