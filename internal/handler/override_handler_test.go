package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medibook/admin-api/internal/models"
	"github.com/medibook/admin-api/internal/service"
	"github.com/medibook/admin-api/internal/session"
	"github.com/medibook/admin-api/pkg/config"
	"github.com/medibook/admin-api/pkg/response"
)

type userFinderMock struct {
	byEmail map[string]*models.User
}

func (m *userFinderMock) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if u, ok := m.byEmail[email]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func overrideFixture(t *testing.T) *OverrideHandler {
	t.Helper()
	store := session.NewMemoryStore(0, nil)
	t.Cleanup(store.Close)
	users := &userFinderMock{byEmail: map[string]*models.User{
		"patient@medibook.example": {ID: "user-9", Email: "patient@medibook.example", Role: models.RoleUser, Active: true},
	}}
	cfg := config.OverrideConfig{MinDuration: 5 * time.Minute, MaxDuration: 120 * time.Minute}
	svc := service.NewOverrideService(store, users, &auditSinkMock{}, cfg, nil)
	return NewOverrideHandler(svc)
}

func superadmin() *models.JWTClaims {
	return &models.JWTClaims{UserID: "root-1", Role: models.RoleSuperAdmin}
}

func TestOverrideHandlerLifecycle(t *testing.T) {
	handler := overrideFixture(t)

	body := []byte(`{"target_email":"patient@medibook.example","reason":"support ticket #88","duration_minutes":30}`)
	w := httptest.NewRecorder()
	c := testContext(w, http.MethodPost, "/override", body, superadmin())
	handler.Initiate(c)
	require.Equal(t, http.StatusCreated, w.Code)

	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	data := envelope.Data.(map[string]interface{})
	assert.Equal(t, "user-9", data["target_user_id"])

	w = httptest.NewRecorder()
	c = testContext(w, http.MethodGet, "/override", nil, superadmin())
	handler.GetActive(c)
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	c = testContext(w, http.MethodDelete, "/override", nil, superadmin())
	handler.End(c)
	c.Writer.WriteHeaderNow()
	require.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	c = testContext(w, http.MethodGet, "/override", nil, superadmin())
	handler.GetActive(c)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestOverrideHandlerRejectsOutOfRangeDuration(t *testing.T) {
	handler := overrideFixture(t)

	body := []byte(`{"target_email":"patient@medibook.example","reason":"ticket","duration_minutes":4}`)
	w := httptest.NewRecorder()
	c := testContext(w, http.MethodPost, "/override", body, superadmin())
	handler.Initiate(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOverrideHandlerForbiddenForAdmin(t *testing.T) {
	handler := overrideFixture(t)

	body := []byte(`{"target_email":"patient@medibook.example","reason":"ticket","duration_minutes":30}`)
	w := httptest.NewRecorder()
	c := testContext(w, http.MethodPost, "/override", body, &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})
	handler.Initiate(c)
	require.Equal(t, http.StatusForbidden, w.Code)
}
