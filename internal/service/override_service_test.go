package service

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medibook/admin-api/internal/dto"
	"github.com/medibook/admin-api/internal/models"
	"github.com/medibook/admin-api/internal/session"
	"github.com/medibook/admin-api/pkg/config"
	appErrors "github.com/medibook/admin-api/pkg/errors"
)

type stubUserFinder struct {
	users map[string]*models.User
}

func (s *stubUserFinder) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if u, ok := s.users[email]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func overrideFixture(t *testing.T) (*OverrideService, *session.MemoryStore, *stubAuditLogger) {
	t.Helper()
	store := session.NewMemoryStore(0, nil)
	t.Cleanup(store.Close)
	users := &stubUserFinder{users: map[string]*models.User{
		"patient@medibook.example": {ID: "user-1", Email: "patient@medibook.example", Role: models.RoleUser, Active: true},
		"inactive@medibook.example": {ID: "user-2", Email: "inactive@medibook.example", Role: models.RoleUser, Active: false},
		"other.admin@medibook.example": {ID: "admin-2", Email: "other.admin@medibook.example", Role: models.RoleAdmin, Active: true},
	}}
	audit := &stubAuditLogger{}
	cfg := config.OverrideConfig{MinDuration: 5 * time.Minute, MaxDuration: 120 * time.Minute}
	svc := NewOverrideService(store, users, audit, cfg, nil)
	return svc, store, audit
}

func superClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "admin-1", Role: models.RoleSuperAdmin}
}

func initiateReq() dto.InitiateOverrideRequest {
	return dto.InitiateOverrideRequest{
		TargetEmail:     "patient@medibook.example",
		Reason:          "support ticket #4521",
		DurationMinutes: 30,
	}
}

func TestInitiateOverride(t *testing.T) {
	svc, store, audit := overrideFixture(t)
	ctx := context.Background()

	sess, err := svc.Initiate(ctx, initiateReq(), superClaims(), RequestMeta{IP: "10.0.0.1"})
	require.NoError(t, err)
	assert.Equal(t, "user-1", sess.TargetUserID)
	assert.Equal(t, 30*time.Minute, sess.ExpiresAt.Sub(sess.StartedAt))

	stored, err := store.Get(ctx, "admin-1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "user-1", stored.TargetUserID)

	require.Len(t, audit.entries, 1)
	assert.Equal(t, models.AuditActionOverrideStart, audit.entries[0].Action)
	assert.Equal(t, "override_session", audit.entries[0].Resource)
}

func TestInitiateOverrideRequiresPermission(t *testing.T) {
	svc, _, _ := overrideFixture(t)

	// Plain admins lack ACCESS_ANY_ACCOUNT.
	_, err := svc.Initiate(context.Background(), initiateReq(), adminClaims(), RequestMeta{})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestInitiateOverrideRequiresReason(t *testing.T) {
	svc, _, _ := overrideFixture(t)

	req := initiateReq()
	req.Reason = "  "
	_, err := svc.Initiate(context.Background(), req, superClaims(), RequestMeta{})
	assert.ErrorIs(t, err, appErrors.ErrMissingReason)
}

func TestInitiateOverrideDurationBounds(t *testing.T) {
	svc, _, _ := overrideFixture(t)

	for _, minutes := range []int{0, 4, 121, -10} {
		req := initiateReq()
		req.DurationMinutes = minutes
		_, err := svc.Initiate(context.Background(), req, superClaims(), RequestMeta{})
		appErr := appErrors.FromError(err)
		assert.Equal(t, appErrors.ErrDurationOutOfRange.Code, appErr.Code, "minutes=%d", minutes)
	}

	for _, minutes := range []int{5, 120} {
		svc, _, _ := overrideFixture(t)
		req := initiateReq()
		req.DurationMinutes = minutes
		_, err := svc.Initiate(context.Background(), req, superClaims(), RequestMeta{})
		assert.NoError(t, err, "minutes=%d", minutes)
	}
}

func TestInitiateOverrideTargetNotFound(t *testing.T) {
	svc, _, _ := overrideFixture(t)

	req := initiateReq()
	req.TargetEmail = "ghost@medibook.example"
	_, err := svc.Initiate(context.Background(), req, superClaims(), RequestMeta{})
	assert.ErrorIs(t, err, appErrors.ErrTargetNotFound)
}

func TestInitiateOverrideInactiveTarget(t *testing.T) {
	svc, _, _ := overrideFixture(t)

	req := initiateReq()
	req.TargetEmail = "inactive@medibook.example"
	_, err := svc.Initiate(context.Background(), req, superClaims(), RequestMeta{})
	assert.ErrorIs(t, err, appErrors.ErrTargetNotFound)
}

func TestInitiateOverrideAdminTarget(t *testing.T) {
	svc, _, _ := overrideFixture(t)

	req := initiateReq()
	req.TargetEmail = "other.admin@medibook.example"
	_, err := svc.Initiate(context.Background(), req, superClaims(), RequestMeta{})
	assert.ErrorIs(t, err, appErrors.ErrTargetIsAdmin)
}

func TestInitiateOverrideAlreadyActive(t *testing.T) {
	svc, _, _ := overrideFixture(t)
	ctx := context.Background()

	_, err := svc.Initiate(ctx, initiateReq(), superClaims(), RequestMeta{})
	require.NoError(t, err)

	_, err = svc.Initiate(ctx, initiateReq(), superClaims(), RequestMeta{})
	assert.ErrorIs(t, err, appErrors.ErrSessionAlreadyActive)
}

func TestInitiateOverrideConcurrentSingleWinner(t *testing.T) {
	svc, store, audit := overrideFixture(t)
	ctx := context.Background()

	const callers = 8
	start := make(chan struct{})
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = svc.Initiate(ctx, initiateReq(), superClaims(), RequestMeta{})
		}(i)
	}
	close(start)
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
		} else {
			assert.ErrorIs(t, err, appErrors.ErrSessionAlreadyActive)
		}
	}
	assert.Equal(t, 1, successes)

	sess, err := store.Get(ctx, "admin-1")
	require.NoError(t, err)
	require.NotNil(t, sess)
	require.Len(t, audit.entries, 1)
	assert.Equal(t, models.AuditActionOverrideStart, audit.entries[0].Action)
}

func TestInitiateOverrideAfterExpiry(t *testing.T) {
	svc, store, _ := overrideFixture(t)
	ctx := context.Background()

	expired := &models.OverrideSession{
		OriginalAdminID: "admin-1",
		TargetUserID:    "user-9",
		StartedAt:       time.Now().Add(-2 * time.Hour),
		ExpiresAt:       time.Now().Add(-time.Hour),
	}
	require.NoError(t, store.Put(ctx, expired))

	// The expired session no longer blocks a new one.
	sess, err := svc.Initiate(ctx, initiateReq(), superClaims(), RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, "user-1", sess.TargetUserID)
}

func TestGetActiveNoSession(t *testing.T) {
	svc, _, _ := overrideFixture(t)

	_, err := svc.GetActive(context.Background(), superClaims())
	assert.ErrorIs(t, err, appErrors.ErrNoActiveSession)
}

func TestEndOverride(t *testing.T) {
	svc, store, audit := overrideFixture(t)
	ctx := context.Background()

	_, err := svc.Initiate(ctx, initiateReq(), superClaims(), RequestMeta{})
	require.NoError(t, err)

	require.NoError(t, svc.End(ctx, superClaims(), RequestMeta{}))

	sess, err := store.Get(ctx, "admin-1")
	require.NoError(t, err)
	assert.Nil(t, sess)

	require.Len(t, audit.entries, 2)
	assert.Equal(t, models.AuditActionOverrideEnd, audit.entries[1].Action)
}

func TestEndOverrideNoSession(t *testing.T) {
	svc, _, _ := overrideFixture(t)

	err := svc.End(context.Background(), superClaims(), RequestMeta{})
	assert.ErrorIs(t, err, appErrors.ErrNoActiveSession)
}
