package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/medibook/admin-api/internal/models"
	"github.com/medibook/admin-api/internal/repository"
	appErrors "github.com/medibook/admin-api/pkg/errors"
)

// ApprovableStore is the storage contract every reviewable entity family
// fulfils. CompareAndSwapStatus must return sql.ErrNoRows when the row no
// longer carries the expected status.
type ApprovableStore interface {
	Kind() models.EntityKind
	GetStatus(ctx context.Context, id string) (models.ApprovalStatus, error)
	CompareAndSwapStatus(ctx context.Context, id string, expected models.ApprovalStatus, upd repository.ApprovalUpdate) error
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type cacheInvalidator interface {
	DeleteByPattern(ctx context.Context, pattern string) error
}

type decisionMetrics interface {
	RecordDecision(kind models.EntityKind, outcome models.ApprovalStatus)
}

// RequestMeta carries transport-level detail into the audit trail.
type RequestMeta struct {
	IP        string
	UserAgent string
}

// ApprovalService applies approve and reject decisions across all
// reviewable entity families with optimistic concurrency.
type ApprovalService struct {
	stores  map[models.EntityKind]ApprovableStore
	audit   auditLogger
	cache   cacheInvalidator
	metrics decisionMetrics
	logger  *zap.Logger
	now     func() time.Time
}

// ApprovalServiceOption configures the service.
type ApprovalServiceOption func(*ApprovalService)

// WithApprovalCache enables review queue invalidation after decisions.
func WithApprovalCache(cache cacheInvalidator) ApprovalServiceOption {
	return func(s *ApprovalService) {
		s.cache = cache
	}
}

// WithApprovalMetrics enables decision counters.
func WithApprovalMetrics(metrics decisionMetrics) ApprovalServiceOption {
	return func(s *ApprovalService) {
		s.metrics = metrics
	}
}

// WithApprovalClock overrides the time source, used by tests.
func WithApprovalClock(now func() time.Time) ApprovalServiceOption {
	return func(s *ApprovalService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewApprovalService constructs the engine over the given entity stores.
func NewApprovalService(audit auditLogger, logger *zap.Logger, stores []ApprovableStore, opts ...ApprovalServiceOption) *ApprovalService {
	if logger == nil {
		logger = zap.NewNop()
	}
	byKind := make(map[models.EntityKind]ApprovableStore, len(stores))
	for _, store := range stores {
		if store != nil {
			byKind[store.Kind()] = store
		}
	}
	svc := &ApprovalService{
		stores: byKind,
		audit:  audit,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// Approve transitions the entity from its pending state to APPROVED.
func (s *ApprovalService) Approve(ctx context.Context, kind models.EntityKind, id string, actor *models.JWTClaims, meta RequestMeta) (*models.Decision, error) {
	return s.decide(ctx, kind, id, actor, meta, models.StatusApproved, "")
}

// Reject transitions the entity from its pending state to REJECTED.
// The reason is mandatory and is recorded on the entity and in the audit trail.
func (s *ApprovalService) Reject(ctx context.Context, kind models.EntityKind, id string, reason string, actor *models.JWTClaims, meta RequestMeta) (*models.Decision, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, appErrors.ErrMissingReason
	}
	return s.decide(ctx, kind, id, actor, meta, models.StatusRejected, reason)
}

func (s *ApprovalService) decide(ctx context.Context, kind models.EntityKind, id string, actor *models.JWTClaims, meta RequestMeta, target models.ApprovalStatus, reason string) (*models.Decision, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !actor.HasPermission(kind.Permission()) {
		return nil, appErrors.ErrForbidden
	}
	store, ok := s.stores[kind]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported entity kind: %s", kind))
	}

	current, err := store.GetStatus(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load entity status")
	}
	if !current.Pending() {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, fmt.Sprintf("entity is %s, not awaiting review", current))
	}

	now := s.now().UTC()
	actorID := actor.UserID
	upd := repository.ApprovalUpdate{
		Status:    target,
		DecidedAt: now,
	}
	if target == models.StatusApproved {
		upd.ApprovedAt = &now
		upd.ApprovedBy = &actorID
	} else {
		upd.RejectedAt = &now
		upd.RejectionReason = &reason
	}

	if err := store.CompareAndSwapStatus(ctx, id, current, upd); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "entity was decided concurrently")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply decision")
	}

	decision := &models.Decision{
		Kind:      kind,
		EntityID:  id,
		Status:    target,
		ActorID:   actorID,
		Reason:    reason,
		DecidedAt: now,
	}
	s.emitDecisionAudit(ctx, decision, current, meta)
	s.invalidateQueue(ctx, kind)
	if s.metrics != nil {
		s.metrics.RecordDecision(kind, target)
	}
	return decision, nil
}

func (s *ApprovalService) emitDecisionAudit(ctx context.Context, decision *models.Decision, previous models.ApprovalStatus, meta RequestMeta) {
	action := models.AuditActionApprove
	newValues := map[string]string{"status": string(decision.Status)}
	if decision.Status == models.StatusRejected {
		action = models.AuditActionReject
		newValues["rejection_reason"] = decision.Reason
	}
	oldJSON, _ := json.Marshal(map[string]string{"status": string(previous)})
	newJSON, _ := json.Marshal(newValues)

	actorID := decision.ActorID
	entityID := decision.EntityID
	entry := &models.AuditLog{
		UserID:     &actorID,
		Action:     action,
		Resource:   string(decision.Kind),
		ResourceID: &entityID,
		OldValues:  oldJSON,
		NewValues:  newJSON,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
		CreatedAt:  decision.DecidedAt,
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Error("failed to record decision audit entry",
			zap.String("kind", string(decision.Kind)),
			zap.String("entity_id", decision.EntityID),
			zap.Error(err))
	}
}

func (s *ApprovalService) invalidateQueue(ctx context.Context, kind models.EntityKind) {
	if s.cache == nil {
		return
	}
	pattern := fmt.Sprintf("review:%s:*", kind)
	if err := s.cache.DeleteByPattern(ctx, pattern); err != nil {
		s.logger.Warn("failed to invalidate review queue cache",
			zap.String("pattern", pattern),
			zap.Error(err))
	}
}
