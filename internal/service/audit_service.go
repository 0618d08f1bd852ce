package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/medibook/admin-api/internal/models"
	appErrors "github.com/medibook/admin-api/pkg/errors"
)

type auditQuerier interface {
	List(ctx context.Context, filter models.AuditFilter) ([]models.AuditLog, int, error)
}

// AuditPage is one page of the audit trail, newest first.
type AuditPage struct {
	Items      []models.AuditLog `json:"items"`
	Pagination models.Pagination `json:"pagination"`
}

// AuditService exposes the append-only audit trail to reviewers.
type AuditService struct {
	repo   auditQuerier
	logger *zap.Logger
}

// NewAuditService constructs the service.
func NewAuditService(repo auditQuerier, logger *zap.Logger) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditService{repo: repo, logger: logger}
}

// List returns audit entries matching the filter.
func (s *AuditService) List(ctx context.Context, filter models.AuditFilter, actor *models.JWTClaims) (*AuditPage, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !actor.HasPermission(models.PermViewAuditLogs) {
		return nil, appErrors.ErrForbidden
	}
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list audit entries")
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	return &AuditPage{
		Items:      items,
		Pagination: paginationFor(filter.Page, pageSize, total),
	}, nil
}
