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

	"github.com/medibook/admin-api/internal/dto"
	"github.com/medibook/admin-api/internal/models"
	"github.com/medibook/admin-api/internal/session"
	"github.com/medibook/admin-api/pkg/config"
	appErrors "github.com/medibook/admin-api/pkg/errors"
)

type userFinder interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
}

type overrideMetrics interface {
	RecordOverrideStart()
	RecordOverrideEnd()
}

// OverrideService manages time-boxed account override sessions. Each admin
// holds at most one live session; expiry is enforced by the session store.
type OverrideService struct {
	store   session.Store
	users   userFinder
	audit   auditLogger
	metrics overrideMetrics
	cfg     config.OverrideConfig
	logger  *zap.Logger
	now     func() time.Time
}

// OverrideServiceOption configures the service.
type OverrideServiceOption func(*OverrideService)

// WithOverrideMetrics enables session counters.
func WithOverrideMetrics(metrics overrideMetrics) OverrideServiceOption {
	return func(s *OverrideService) {
		s.metrics = metrics
	}
}

// WithOverrideClock overrides the time source, used by tests.
func WithOverrideClock(now func() time.Time) OverrideServiceOption {
	return func(s *OverrideService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewOverrideService constructs the service.
func NewOverrideService(store session.Store, users userFinder, audit auditLogger, cfg config.OverrideConfig, logger *zap.Logger, opts ...OverrideServiceOption) *OverrideService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MinDuration <= 0 {
		cfg.MinDuration = 5 * time.Minute
	}
	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = 120 * time.Minute
	}
	svc := &OverrideService{
		store:  store,
		users:  users,
		audit:  audit,
		cfg:    cfg,
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

// Initiate starts an override session against the target account.
func (s *OverrideService) Initiate(ctx context.Context, req dto.InitiateOverrideRequest, actor *models.JWTClaims, meta RequestMeta) (*models.OverrideSession, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !actor.HasPermission(models.PermAccessAnyAccount) {
		return nil, appErrors.ErrForbidden
	}
	if strings.TrimSpace(req.Reason) == "" {
		return nil, appErrors.ErrMissingReason
	}
	duration := time.Duration(req.DurationMinutes) * time.Minute
	if duration < s.cfg.MinDuration || duration > s.cfg.MaxDuration {
		return nil, appErrors.Clone(appErrors.ErrDurationOutOfRange,
			fmt.Sprintf("duration must be between %d and %d minutes",
				int(s.cfg.MinDuration.Minutes()), int(s.cfg.MaxDuration.Minutes())))
	}

	target, err := s.users.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(req.TargetEmail)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrTargetNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load target account")
	}
	if !target.Active {
		return nil, appErrors.ErrTargetNotFound
	}
	if models.IsAdminRole(target.Role) {
		return nil, appErrors.ErrTargetIsAdmin
	}

	now := s.now().UTC()
	sess := &models.OverrideSession{
		OriginalAdminID: actor.UserID,
		TargetUserID:    target.ID,
		TargetUserEmail: target.Email,
		Reason:          strings.TrimSpace(req.Reason),
		StartedAt:       now,
		ExpiresAt:       now.Add(duration),
	}
	// The conditional write is the single-session check: racing initiations
	// for the same admin see exactly one winner.
	stored, err := s.store.PutIfAbsent(ctx, sess)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store override session")
	}
	if !stored {
		return nil, appErrors.ErrSessionAlreadyActive
	}

	s.emitSessionAudit(ctx, models.AuditActionOverrideStart, sess, meta)
	if s.metrics != nil {
		s.metrics.RecordOverrideStart()
	}
	s.logger.Info("override session started",
		zap.String("admin_id", actor.UserID),
		zap.String("target_user_id", target.ID),
		zap.Time("expires_at", sess.ExpiresAt))
	return sess, nil
}

// GetActive returns the caller's live session.
func (s *OverrideService) GetActive(ctx context.Context, actor *models.JWTClaims) (*models.OverrideSession, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	sess, err := s.store.Get(ctx, actor.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load override session")
	}
	if sess == nil {
		return nil, appErrors.ErrNoActiveSession
	}
	return sess, nil
}

// End terminates the caller's live session before its deadline.
func (s *OverrideService) End(ctx context.Context, actor *models.JWTClaims, meta RequestMeta) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	sess, err := s.store.Get(ctx, actor.UserID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load override session")
	}
	if sess == nil {
		return appErrors.ErrNoActiveSession
	}
	if err := s.store.Delete(ctx, actor.UserID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to end override session")
	}

	s.emitSessionAudit(ctx, models.AuditActionOverrideEnd, sess, meta)
	if s.metrics != nil {
		s.metrics.RecordOverrideEnd()
	}
	s.logger.Info("override session ended",
		zap.String("admin_id", actor.UserID),
		zap.String("target_user_id", sess.TargetUserID))
	return nil
}

func (s *OverrideService) emitSessionAudit(ctx context.Context, action string, sess *models.OverrideSession, meta RequestMeta) {
	adminID := sess.OriginalAdminID
	targetID := sess.TargetUserID
	values, _ := json.Marshal(map[string]string{
		"target_user_id":    sess.TargetUserID,
		"target_user_email": sess.TargetUserEmail,
		"reason":            sess.Reason,
		"expires_at":        sess.ExpiresAt.Format(time.RFC3339),
	})
	entry := &models.AuditLog{
		UserID:     &adminID,
		Action:     action,
		Resource:   "override_session",
		ResourceID: &targetID,
		NewValues:  values,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Error("failed to record override audit entry",
			zap.String("admin_id", adminID),
			zap.Error(err))
	}
}
