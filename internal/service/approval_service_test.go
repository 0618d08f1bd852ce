package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medibook/admin-api/internal/models"
	"github.com/medibook/admin-api/internal/repository"
	appErrors "github.com/medibook/admin-api/pkg/errors"
)

type stubApprovableStore struct {
	kind      models.EntityKind
	status    models.ApprovalStatus
	statusErr error
	casErr    error
	casCalls  []repository.ApprovalUpdate
	expected  []models.ApprovalStatus
}

func (s *stubApprovableStore) Kind() models.EntityKind { return s.kind }

func (s *stubApprovableStore) GetStatus(ctx context.Context, id string) (models.ApprovalStatus, error) {
	if s.statusErr != nil {
		return "", s.statusErr
	}
	return s.status, nil
}

func (s *stubApprovableStore) CompareAndSwapStatus(ctx context.Context, id string, expected models.ApprovalStatus, upd repository.ApprovalUpdate) error {
	s.expected = append(s.expected, expected)
	s.casCalls = append(s.casCalls, upd)
	return s.casErr
}

type stubAuditLogger struct {
	entries []*models.AuditLog
	err     error
}

func (s *stubAuditLogger) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	if s.err != nil {
		return s.err
	}
	s.entries = append(s.entries, log)
	return nil
}

type stubCacheInvalidator struct {
	patterns []string
}

func (s *stubCacheInvalidator) DeleteByPattern(ctx context.Context, pattern string) error {
	s.patterns = append(s.patterns, pattern)
	return nil
}

func adminClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin, Email: "admin@medibook.example"}
}

func reviewerClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "rev-1", Role: models.RoleReviewer}
}

func newApprovalFixture(store *stubApprovableStore) (*ApprovalService, *stubAuditLogger, *stubCacheInvalidator) {
	audit := &stubAuditLogger{}
	cache := &stubCacheInvalidator{}
	fixed := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	svc := NewApprovalService(audit, nil, []ApprovableStore{store},
		WithApprovalCache(cache),
		WithApprovalClock(func() time.Time { return fixed }))
	return svc, audit, cache
}

func TestApproveProvider(t *testing.T) {
	store := &stubApprovableStore{kind: models.KindProvider, status: models.StatusPendingApproval}
	svc, audit, cache := newApprovalFixture(store)

	decision, err := svc.Approve(context.Background(), models.KindProvider, "p1", adminClaims(), RequestMeta{IP: "10.0.0.1"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, decision.Status)
	assert.Equal(t, "admin-1", decision.ActorID)

	require.Len(t, store.casCalls, 1)
	assert.Equal(t, models.StatusPendingApproval, store.expected[0])
	require.NotNil(t, store.casCalls[0].ApprovedBy)
	assert.Equal(t, "admin-1", *store.casCalls[0].ApprovedBy)
	assert.Nil(t, store.casCalls[0].RejectedAt)

	require.Len(t, audit.entries, 1)
	assert.Equal(t, models.AuditActionApprove, audit.entries[0].Action)
	assert.Equal(t, "provider", audit.entries[0].Resource)
	assert.Equal(t, "10.0.0.1", audit.entries[0].IPAddress)

	assert.Equal(t, []string{"review:provider:*"}, cache.patterns)
}

func TestRejectRequiresReason(t *testing.T) {
	store := &stubApprovableStore{kind: models.KindProvider, status: models.StatusPendingApproval}
	svc, audit, _ := newApprovalFixture(store)

	_, err := svc.Reject(context.Background(), models.KindProvider, "p1", "   ", adminClaims(), RequestMeta{})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrMissingReason.Code, appErr.Code)
	assert.Empty(t, store.casCalls)
	assert.Empty(t, audit.entries)
}

func TestRejectRecordsReason(t *testing.T) {
	store := &stubApprovableStore{kind: models.KindRequirement, status: models.StatusPending}
	svc, audit, _ := newApprovalFixture(store)

	decision, err := svc.Reject(context.Background(), models.KindRequirement, "req-1", "license expired", reviewerClaims(), RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, decision.Status)
	assert.Equal(t, "license expired", decision.Reason)

	require.Len(t, store.casCalls, 1)
	assert.Equal(t, models.StatusPending, store.expected[0])
	require.NotNil(t, store.casCalls[0].RejectionReason)
	assert.Equal(t, "license expired", *store.casCalls[0].RejectionReason)
	assert.Nil(t, store.casCalls[0].ApprovedBy)

	require.Len(t, audit.entries, 1)
	assert.Equal(t, models.AuditActionReject, audit.entries[0].Action)
}

func TestDecideWithoutActor(t *testing.T) {
	store := &stubApprovableStore{kind: models.KindProvider, status: models.StatusPendingApproval}
	svc, _, _ := newApprovalFixture(store)

	_, err := svc.Approve(context.Background(), models.KindProvider, "p1", nil, RequestMeta{})
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
}

func TestDecideWithoutPermission(t *testing.T) {
	store := &stubApprovableStore{kind: models.KindProvider, status: models.StatusPendingApproval}
	svc, audit, _ := newApprovalFixture(store)

	// Reviewers may only decide requirement submissions.
	_, err := svc.Approve(context.Background(), models.KindProvider, "p1", reviewerClaims(), RequestMeta{})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
	assert.Empty(t, store.casCalls)
	assert.Empty(t, audit.entries)
}

func TestDecideOnTerminalStatus(t *testing.T) {
	store := &stubApprovableStore{kind: models.KindProvider, status: models.StatusApproved}
	svc, audit, _ := newApprovalFixture(store)

	_, err := svc.Approve(context.Background(), models.KindProvider, "p1", adminClaims(), RequestMeta{})
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErr.Code)
	assert.Empty(t, store.casCalls)
	assert.Empty(t, audit.entries)
}

func TestDecideLostRace(t *testing.T) {
	store := &stubApprovableStore{
		kind:   models.KindProvider,
		status: models.StatusPendingApproval,
		casErr: sql.ErrNoRows,
	}
	svc, audit, cache := newApprovalFixture(store)

	_, err := svc.Approve(context.Background(), models.KindProvider, "p1", adminClaims(), RequestMeta{})
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErr.Code)
	assert.Empty(t, audit.entries)
	assert.Empty(t, cache.patterns)
}

func TestDecideEntityNotFound(t *testing.T) {
	store := &stubApprovableStore{kind: models.KindProvider, statusErr: sql.ErrNoRows}
	svc, _, _ := newApprovalFixture(store)

	_, err := svc.Approve(context.Background(), models.KindProvider, "missing", adminClaims(), RequestMeta{})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestDecideUnknownKind(t *testing.T) {
	store := &stubApprovableStore{kind: models.KindProvider, status: models.StatusPendingApproval}
	svc, _, _ := newApprovalFixture(store)

	_, err := svc.Approve(context.Background(), models.EntityKind("invoice"), "x", &models.JWTClaims{UserID: "a", Role: models.RoleSuperAdmin}, RequestMeta{})
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestAuditFailureDoesNotFailDecision(t *testing.T) {
	store := &stubApprovableStore{kind: models.KindProvider, status: models.StatusPendingApproval}
	audit := &stubAuditLogger{err: assert.AnError}
	svc := NewApprovalService(audit, nil, []ApprovableStore{store})

	decision, err := svc.Approve(context.Background(), models.KindProvider, "p1", adminClaims(), RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, decision.Status)
}
