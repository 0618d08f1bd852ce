package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medibook/admin-api/internal/models"
	appErrors "github.com/medibook/admin-api/pkg/errors"
)

type stubUserStore struct {
	byID        map[string]*models.User
	deactivated []string
}

func (s *stubUserStore) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := s.byID[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (s *stubUserStore) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	var out []models.User
	for _, u := range s.byID {
		out = append(out, *u)
	}
	return out, len(out), nil
}

func (s *stubUserStore) Deactivate(ctx context.Context, id string) error {
	s.deactivated = append(s.deactivated, id)
	return nil
}

func userFixture() (*UserService, *stubUserStore, *stubAuditLogger) {
	store := &stubUserStore{byID: map[string]*models.User{
		"user-1": {ID: "user-1", Email: "patient@medibook.example", Role: models.RoleUser, Active: true},
	}}
	audit := &stubAuditLogger{}
	svc := NewUserService(store, audit, nil)
	return svc, store, audit
}

func TestListUsersRequiresPermission(t *testing.T) {
	svc, _, _ := userFixture()

	_, err := svc.List(context.Background(), models.UserFilter{}, adminClaims())
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	page, err := svc.List(context.Background(), models.UserFilter{}, superClaims())
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)
}

func TestDeactivateUser(t *testing.T) {
	svc, store, audit := userFixture()

	err := svc.Deactivate(context.Background(), "user-1", superClaims(), RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, []string{"user-1"}, store.deactivated)
	require.Len(t, audit.entries, 1)
	assert.Equal(t, models.AuditActionUserDeactivate, audit.entries[0].Action)
}

func TestDeactivateSelfRejected(t *testing.T) {
	svc, store, _ := userFixture()
	store.byID["admin-1"] = &models.User{ID: "admin-1", Role: models.RoleSuperAdmin, Active: true}

	err := svc.Deactivate(context.Background(), "admin-1", superClaims(), RequestMeta{})
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Empty(t, store.deactivated)
}

func TestDeactivateMissingUser(t *testing.T) {
	svc, _, _ := userFixture()

	err := svc.Deactivate(context.Background(), "ghost", superClaims(), RequestMeta{})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}
