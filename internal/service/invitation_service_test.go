package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/medibook/admin-api/internal/dto"
	"github.com/medibook/admin-api/internal/models"
	appErrors "github.com/medibook/admin-api/pkg/errors"
)

type stubInvitationStore struct {
	byID      map[string]*models.Invitation
	byToken   map[string]*models.Invitation
	hasOpen   bool
	created   []*models.Invitation
	accepted  []string
	reopened  []string
	revoked   []string
	markErr   error
	revokeErr error
}

func newStubInvitationStore() *stubInvitationStore {
	return &stubInvitationStore{
		byID:    make(map[string]*models.Invitation),
		byToken: make(map[string]*models.Invitation),
	}
}

func (s *stubInvitationStore) Create(ctx context.Context, inv *models.Invitation) error {
	if inv.ID == "" {
		inv.ID = "inv-1"
	}
	s.created = append(s.created, inv)
	s.byID[inv.ID] = inv
	s.byToken[inv.Token] = inv
	return nil
}

func (s *stubInvitationStore) FindByToken(ctx context.Context, token string) (*models.Invitation, error) {
	if inv, ok := s.byToken[token]; ok {
		return inv, nil
	}
	return nil, sql.ErrNoRows
}

func (s *stubInvitationStore) FindByID(ctx context.Context, id string) (*models.Invitation, error) {
	if inv, ok := s.byID[id]; ok {
		return inv, nil
	}
	return nil, sql.ErrNoRows
}

func (s *stubInvitationStore) HasOpenInvitation(ctx context.Context, email string, now time.Time) (bool, error) {
	return s.hasOpen, nil
}

func (s *stubInvitationStore) List(ctx context.Context, limit, offset int) ([]models.Invitation, error) {
	var out []models.Invitation
	for _, inv := range s.byID {
		out = append(out, *inv)
	}
	return out, nil
}

func (s *stubInvitationStore) MarkAccepted(ctx context.Context, id string, acceptedAt time.Time) error {
	if s.markErr != nil {
		return s.markErr
	}
	s.accepted = append(s.accepted, id)
	if inv, ok := s.byID[id]; ok {
		inv.AcceptedAt = &acceptedAt
	}
	return nil
}

func (s *stubInvitationStore) Reopen(ctx context.Context, id string) error {
	s.reopened = append(s.reopened, id)
	if inv, ok := s.byID[id]; ok && inv.RevokedAt == nil {
		inv.AcceptedAt = nil
	}
	return nil
}

func (s *stubInvitationStore) MarkRevoked(ctx context.Context, id string, revokedAt time.Time) error {
	if s.revokeErr != nil {
		return s.revokeErr
	}
	s.revoked = append(s.revoked, id)
	if inv, ok := s.byID[id]; ok {
		inv.RevokedAt = &revokedAt
	}
	return nil
}

type stubInvitationUsers struct {
	byEmail   map[string]*models.User
	created   []*models.User
	createErr error
}

func (s *stubInvitationUsers) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if u, ok := s.byEmail[email]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (s *stubInvitationUsers) Create(ctx context.Context, user *models.User) error {
	if s.createErr != nil {
		return s.createErr
	}
	if user.ID == "" {
		user.ID = "user-new"
	}
	s.created = append(s.created, user)
	return nil
}

func invitationFixture() (*InvitationService, *stubInvitationStore, *stubInvitationUsers, *stubAuditLogger) {
	store := newStubInvitationStore()
	users := &stubInvitationUsers{byEmail: make(map[string]*models.User)}
	audit := &stubAuditLogger{}
	svc := NewInvitationService(store, users, audit, nil, 72*time.Hour, nil)
	return svc, store, users, audit
}

func TestCreateInvitation(t *testing.T) {
	svc, store, _, audit := invitationFixture()

	resp, err := svc.Create(context.Background(), dto.CreateInvitationRequest{
		Email: "New.Reviewer@medibook.example",
		Role:  models.RoleReviewer,
	}, adminClaims(), RequestMeta{})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, models.InvitationPending, resp.Status)
	assert.Equal(t, "new.reviewer@medibook.example", resp.Email)

	require.Len(t, store.created, 1)
	assert.Equal(t, resp.Token, store.created[0].Token)
	require.Len(t, audit.entries, 1)
	assert.Equal(t, models.AuditActionInviteCreate, audit.entries[0].Action)
}

func TestCreateInvitationRequiresPermission(t *testing.T) {
	svc, _, _, _ := invitationFixture()

	_, err := svc.Create(context.Background(), dto.CreateInvitationRequest{
		Email: "x@medibook.example",
		Role:  models.RoleReviewer,
	}, reviewerClaims(), RequestMeta{})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestCreateInvitationExistingAccount(t *testing.T) {
	svc, _, users, _ := invitationFixture()
	users.byEmail["taken@medibook.example"] = &models.User{ID: "u1", Email: "taken@medibook.example"}

	_, err := svc.Create(context.Background(), dto.CreateInvitationRequest{
		Email: "taken@medibook.example",
		Role:  models.RoleAdmin,
	}, adminClaims(), RequestMeta{})
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestCreateInvitationAlreadyOpen(t *testing.T) {
	svc, store, _, _ := invitationFixture()
	store.hasOpen = true

	_, err := svc.Create(context.Background(), dto.CreateInvitationRequest{
		Email: "pending@medibook.example",
		Role:  models.RoleAdmin,
	}, adminClaims(), RequestMeta{})
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestAcceptInvitation(t *testing.T) {
	svc, store, users, audit := invitationFixture()
	inv := &models.Invitation{
		ID:        "inv-1",
		Email:     "new.reviewer@medibook.example",
		Role:      models.RoleReviewer,
		Token:     "tok-1",
		InvitedBy: "admin-1",
		ExpiresAt: time.Now().Add(time.Hour),
		CreatedAt: time.Now(),
	}
	store.byID[inv.ID] = inv
	store.byToken[inv.Token] = inv

	user, err := svc.Accept(context.Background(), dto.AcceptInvitationRequest{
		Token:    "tok-1",
		FullName: "Rita Reviewer",
		Password: "secret-password",
	}, RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, models.RoleReviewer, user.Role)
	assert.True(t, user.Active)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("secret-password")))

	assert.Equal(t, []string{"inv-1"}, store.accepted)
	require.Len(t, users.created, 1)
	require.Len(t, audit.entries, 1)
	assert.Equal(t, models.AuditActionInviteAccept, audit.entries[0].Action)
}

func TestAcceptExpiredInvitation(t *testing.T) {
	svc, store, _, _ := invitationFixture()
	inv := &models.Invitation{
		ID:        "inv-1",
		Email:     "late@medibook.example",
		Role:      models.RoleReviewer,
		Token:     "tok-1",
		ExpiresAt: time.Now().Add(-time.Hour),
	}
	store.byID[inv.ID] = inv
	store.byToken[inv.Token] = inv

	_, err := svc.Accept(context.Background(), dto.AcceptInvitationRequest{
		Token:    "tok-1",
		FullName: "Late Larry",
		Password: "secret-password",
	}, RequestMeta{})
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestAcceptInvitationRace(t *testing.T) {
	svc, store, users, _ := invitationFixture()
	inv := &models.Invitation{
		ID:        "inv-1",
		Email:     "raced@medibook.example",
		Role:      models.RoleAdmin,
		Token:     "tok-1",
		ExpiresAt: time.Now().Add(time.Hour),
	}
	store.byID[inv.ID] = inv
	store.byToken[inv.Token] = inv
	store.markErr = sql.ErrNoRows

	_, err := svc.Accept(context.Background(), dto.AcceptInvitationRequest{
		Token:    "tok-1",
		FullName: "Second Caller",
		Password: "secret-password",
	}, RequestMeta{})
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	assert.Empty(t, users.created)
}

func TestAcceptReopensInvitationOnCreateFailure(t *testing.T) {
	svc, store, users, audit := invitationFixture()
	users.createErr = errors.New("connection reset")
	inv := &models.Invitation{
		ID:        "inv-1",
		Email:     "retry@medibook.example",
		Role:      models.RoleReviewer,
		Token:     "tok-1",
		ExpiresAt: time.Now().Add(time.Hour),
	}
	store.byID[inv.ID] = inv
	store.byToken[inv.Token] = inv

	req := dto.AcceptInvitationRequest{
		Token:    "tok-1",
		FullName: "Retry Rita",
		Password: "secret-password",
	}
	_, err := svc.Accept(context.Background(), req, RequestMeta{})
	require.Error(t, err)

	// The token survives the failed account creation and works on retry.
	assert.Equal(t, []string{"inv-1"}, store.reopened)
	assert.Equal(t, models.InvitationPending, inv.Status(time.Now()))
	assert.Empty(t, audit.entries)

	users.createErr = nil
	user, err := svc.Accept(context.Background(), req, RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, "retry@medibook.example", user.Email)
}

func TestRevokeInvitation(t *testing.T) {
	svc, store, _, audit := invitationFixture()
	inv := &models.Invitation{
		ID:        "inv-1",
		Email:     "pending@medibook.example",
		Role:      models.RoleAdmin,
		Token:     "tok-1",
		ExpiresAt: time.Now().Add(time.Hour),
	}
	store.byID[inv.ID] = inv
	store.byToken[inv.Token] = inv

	require.NoError(t, svc.Revoke(context.Background(), "inv-1", adminClaims(), RequestMeta{}))
	assert.Equal(t, []string{"inv-1"}, store.revoked)
	require.Len(t, audit.entries, 1)
	assert.Equal(t, models.AuditActionInviteRevoke, audit.entries[0].Action)
}
