package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/medibook/admin-api/internal/models"
	appErrors "github.com/medibook/admin-api/pkg/errors"
)

type userStore interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	Deactivate(ctx context.Context, id string) error
}

// UserPage is one page of accounts.
type UserPage struct {
	Items      []models.User     `json:"items"`
	Pagination models.Pagination `json:"pagination"`
}

// UserService manages platform accounts from the admin console.
type UserService struct {
	repo   userStore
	audit  auditLogger
	logger *zap.Logger
}

// NewUserService constructs the service.
func NewUserService(repo userStore, audit auditLogger, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{repo: repo, audit: audit, logger: logger}
}

// List returns accounts matching the filter.
func (s *UserService) List(ctx context.Context, filter models.UserFilter, actor *models.JWTClaims) (*UserPage, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !actor.HasPermission(models.PermManageUsers) {
		return nil, appErrors.ErrForbidden
	}
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}
	return &UserPage{
		Items:      items,
		Pagination: paginationFor(filter.Page, filter.PageSize, total),
	}, nil
}

// Get returns a single account.
func (s *UserService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.User, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !actor.HasPermission(models.PermManageUsers) {
		return nil, appErrors.ErrForbidden
	}
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}

// Deactivate disables an account. Accounts are never hard deleted.
func (s *UserService) Deactivate(ctx context.Context, id string, actor *models.JWTClaims, meta RequestMeta) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if !actor.HasPermission(models.PermManageUsers) {
		return appErrors.ErrForbidden
	}
	if id == actor.UserID {
		return appErrors.Clone(appErrors.ErrValidation, "cannot deactivate your own account")
	}
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrNotFound
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate user")
	}

	actorID := actor.UserID
	targetID := id
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     models.AuditActionUserDeactivate,
		Resource:   "user",
		ResourceID: &targetID,
		NewValues:  []byte(`{"active":false}`),
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record deactivation audit entry", zap.Error(err))
	}
	return nil
}
