package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/medibook/admin-api/internal/dto"
	"github.com/medibook/admin-api/internal/models"
	appErrors "github.com/medibook/admin-api/pkg/errors"
)

type invitationStore interface {
	Create(ctx context.Context, inv *models.Invitation) error
	FindByToken(ctx context.Context, token string) (*models.Invitation, error)
	FindByID(ctx context.Context, id string) (*models.Invitation, error)
	HasOpenInvitation(ctx context.Context, email string, now time.Time) (bool, error)
	List(ctx context.Context, limit, offset int) ([]models.Invitation, error)
	MarkAccepted(ctx context.Context, id string, acceptedAt time.Time) error
	Reopen(ctx context.Context, id string) error
	MarkRevoked(ctx context.Context, id string, revokedAt time.Time) error
}

type invitationUserStore interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
}

// InvitationService manages staff onboarding through one-time invitation tokens.
type InvitationService struct {
	invitations invitationStore
	users       invitationUserStore
	audit       auditLogger
	validator   *validator.Validate
	ttl         time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

// InvitationServiceOption configures the service.
type InvitationServiceOption func(*InvitationService)

// WithInvitationClock overrides the time source, used by tests.
func WithInvitationClock(now func() time.Time) InvitationServiceOption {
	return func(s *InvitationService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewInvitationService constructs the service.
func NewInvitationService(invitations invitationStore, users invitationUserStore, audit auditLogger, validate *validator.Validate, ttl time.Duration, logger *zap.Logger, opts ...InvitationServiceOption) *InvitationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	svc := &InvitationService{
		invitations: invitations,
		users:       users,
		audit:       audit,
		validator:   validate,
		ttl:         ttl,
		logger:      logger,
		now:         time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// Create issues a new invitation. The one-time token is only returned here.
func (s *InvitationService) Create(ctx context.Context, req dto.CreateInvitationRequest, actor *models.JWTClaims, meta RequestMeta) (*dto.CreatedInvitationResponse, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !actor.HasPermission(models.PermManageInvitations) {
		return nil, appErrors.ErrForbidden
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid invitation payload")
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	now := s.now().UTC()

	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "an account with this email already exists")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing account")
	}

	open, err := s.invitations.HasOpenInvitation(ctx, email, now)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check open invitations")
	}
	if open {
		return nil, appErrors.Clone(appErrors.ErrConflict, "an open invitation already exists for this email")
	}

	token, err := generateInvitationToken()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate invitation token")
	}
	inv := &models.Invitation{
		Email:     email,
		Role:      req.Role,
		Token:     token,
		InvitedBy: actor.UserID,
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
	}
	if err := s.invitations.Create(ctx, inv); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create invitation")
	}

	s.emitInvitationAudit(ctx, models.AuditActionInviteCreate, actor.UserID, inv, meta)
	resp := &dto.CreatedInvitationResponse{
		InvitationResponse: dto.NewInvitationResponse(inv, now),
		Token:              token,
	}
	return resp, nil
}

// List returns invitations with their derived statuses.
func (s *InvitationService) List(ctx context.Context, actor *models.JWTClaims, limit, offset int) ([]dto.InvitationResponse, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !actor.HasPermission(models.PermManageInvitations) {
		return nil, appErrors.ErrForbidden
	}
	invitations, err := s.invitations.List(ctx, limit, offset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list invitations")
	}
	now := s.now().UTC()
	out := make([]dto.InvitationResponse, 0, len(invitations))
	for i := range invitations {
		out = append(out, dto.NewInvitationResponse(&invitations[i], now))
	}
	return out, nil
}

// Revoke closes an open invitation so its token can no longer be used.
func (s *InvitationService) Revoke(ctx context.Context, id string, actor *models.JWTClaims, meta RequestMeta) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if !actor.HasPermission(models.PermManageInvitations) {
		return appErrors.ErrForbidden
	}
	inv, err := s.invitations.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrNotFound
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load invitation")
	}
	now := s.now().UTC()
	if err := s.invitations.MarkRevoked(ctx, id, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrConflict, "invitation is no longer open")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to revoke invitation")
	}
	s.emitInvitationAudit(ctx, models.AuditActionInviteRevoke, actor.UserID, inv, meta)
	return nil
}

// Accept consumes an invitation token and creates the staff account.
// It is the one unauthenticated operation of the invitation flow.
func (s *InvitationService) Accept(ctx context.Context, req dto.AcceptInvitationRequest, meta RequestMeta) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid acceptance payload")
	}

	inv, err := s.invitations.FindByToken(ctx, req.Token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "invitation not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load invitation")
	}
	now := s.now().UTC()
	if status := inv.Status(now); status != models.InvitationPending {
		return nil, appErrors.Clone(appErrors.ErrConflict, "invitation is "+strings.ToLower(string(status)))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	// Closing the invitation first makes double acceptance race-safe: the
	// conditional update succeeds for exactly one caller.
	if err := s.invitations.MarkAccepted(ctx, inv.ID, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "invitation is no longer open")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to accept invitation")
	}

	user := &models.User{
		Email:        inv.Email,
		PasswordHash: string(hash),
		FullName:     strings.TrimSpace(req.FullName),
		Role:         inv.Role,
		Active:       true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		// Reopen the invitation so the token stays usable for a retry.
		if reopenErr := s.invitations.Reopen(ctx, inv.ID); reopenErr != nil {
			s.logger.Error("failed to reopen invitation after account creation error",
				zap.String("invitation_id", inv.ID),
				zap.Error(reopenErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create account")
	}

	s.emitInvitationAudit(ctx, models.AuditActionInviteAccept, user.ID, inv, meta)
	s.logger.Info("invitation accepted",
		zap.String("invitation_id", inv.ID),
		zap.String("user_id", user.ID),
		zap.String("role", string(user.Role)))
	return user, nil
}

func (s *InvitationService) emitInvitationAudit(ctx context.Context, action, actorID string, inv *models.Invitation, meta RequestMeta) {
	invID := inv.ID
	values, _ := json.Marshal(map[string]string{
		"email": inv.Email,
		"role":  string(inv.Role),
	})
	entry := &models.AuditLog{
		UserID:     &actorID,
		Action:     action,
		Resource:   "invitation",
		ResourceID: &invID,
		NewValues:  values,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Error("failed to record invitation audit entry",
			zap.String("invitation_id", invID),
			zap.Error(err))
	}
}

func generateInvitationToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
