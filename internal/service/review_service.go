package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/medibook/admin-api/internal/models"
	appErrors "github.com/medibook/admin-api/pkg/errors"
)

type providerLister interface {
	FindByID(ctx context.Context, id string) (*models.Provider, error)
	List(ctx context.Context, filter models.ProviderFilter) ([]models.Provider, int, error)
}

type organizationLister interface {
	FindByID(ctx context.Context, id string) (*models.Organization, error)
	List(ctx context.Context, filter models.OrganizationFilter) ([]models.Organization, int, error)
}

type requirementLister interface {
	FindByID(ctx context.Context, id string) (*models.RequirementSubmission, error)
	List(ctx context.Context, filter models.RequirementFilter) ([]models.RequirementSubmission, int, error)
}

type reviewCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

type cacheMetrics interface {
	RecordCacheOperation(hit bool)
}

// ProviderPage is a cached page of provider applications.
type ProviderPage struct {
	Items      []models.Provider `json:"items"`
	Pagination models.Pagination `json:"pagination"`
}

// OrganizationPage is a cached page of organization applications.
type OrganizationPage struct {
	Items      []models.Organization `json:"items"`
	Pagination models.Pagination     `json:"pagination"`
}

// RequirementPage is a cached page of requirement submissions.
type RequirementPage struct {
	Items      []models.RequirementSubmission `json:"items"`
	Pagination models.Pagination              `json:"pagination"`
}

// ReviewService serves the review queues. List results are cached; the
// approval engine invalidates the matching queue after each decision.
type ReviewService struct {
	providers     providerLister
	organizations organizationLister
	requirements  requirementLister
	cache         reviewCache
	cacheTTL      time.Duration
	metrics       cacheMetrics
	logger        *zap.Logger
}

// ReviewServiceOption configures the service.
type ReviewServiceOption func(*ReviewService)

// WithReviewCache caches list pages. Without it every call hits the database.
func WithReviewCache(cache reviewCache) ReviewServiceOption {
	return func(s *ReviewService) {
		s.cache = cache
	}
}

// WithReviewMetrics enables cache hit/miss counters.
func WithReviewMetrics(metrics cacheMetrics) ReviewServiceOption {
	return func(s *ReviewService) {
		s.metrics = metrics
	}
}

// NewReviewService constructs the service.
func NewReviewService(providers providerLister, organizations organizationLister, requirements requirementLister, cacheTTL time.Duration, logger *zap.Logger, opts ...ReviewServiceOption) *ReviewService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 2 * time.Minute
	}
	svc := &ReviewService{
		providers:     providers,
		organizations: organizations,
		requirements:  requirements,
		cacheTTL:      cacheTTL,
		logger:        logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// ListProviders returns a page of provider applications.
func (s *ReviewService) ListProviders(ctx context.Context, filter models.ProviderFilter) (*ProviderPage, error) {
	key := providerQueueKey(filter)
	if s.cache != nil {
		var cached ProviderPage
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			s.recordCache(true)
			return &cached, nil
		} else if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("review queue cache read failed", zap.String("key", key), zap.Error(err))
		}
		s.recordCache(false)
	}

	items, total, err := s.providers.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list providers")
	}
	page := &ProviderPage{
		Items:      items,
		Pagination: paginationFor(filter.Page, filter.PageSize, total),
	}
	s.storePage(ctx, key, page)
	return page, nil
}

// GetProvider returns a single provider application.
func (s *ReviewService) GetProvider(ctx context.Context, id string) (*models.Provider, error) {
	provider, err := s.providers.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load provider")
	}
	return provider, nil
}

// ListOrganizations returns a page of organization applications.
func (s *ReviewService) ListOrganizations(ctx context.Context, filter models.OrganizationFilter) (*OrganizationPage, error) {
	key := organizationQueueKey(filter)
	if s.cache != nil {
		var cached OrganizationPage
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			s.recordCache(true)
			return &cached, nil
		} else if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("review queue cache read failed", zap.String("key", key), zap.Error(err))
		}
		s.recordCache(false)
	}

	items, total, err := s.organizations.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list organizations")
	}
	page := &OrganizationPage{
		Items:      items,
		Pagination: paginationFor(filter.Page, filter.PageSize, total),
	}
	s.storePage(ctx, key, page)
	return page, nil
}

// GetOrganization returns a single organization application.
func (s *ReviewService) GetOrganization(ctx context.Context, id string) (*models.Organization, error) {
	org, err := s.organizations.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load organization")
	}
	return org, nil
}

// ListRequirements returns a page of requirement submissions.
func (s *ReviewService) ListRequirements(ctx context.Context, filter models.RequirementFilter) (*RequirementPage, error) {
	key := requirementQueueKey(filter)
	if s.cache != nil {
		var cached RequirementPage
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			s.recordCache(true)
			return &cached, nil
		} else if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("review queue cache read failed", zap.String("key", key), zap.Error(err))
		}
		s.recordCache(false)
	}

	items, total, err := s.requirements.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list requirement submissions")
	}
	page := &RequirementPage{
		Items:      items,
		Pagination: paginationFor(filter.Page, filter.PageSize, total),
	}
	s.storePage(ctx, key, page)
	return page, nil
}

// GetRequirement returns a single requirement submission.
func (s *ReviewService) GetRequirement(ctx context.Context, id string) (*models.RequirementSubmission, error) {
	submission, err := s.requirements.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load requirement submission")
	}
	return submission, nil
}

func (s *ReviewService) recordCache(hit bool) {
	if s.metrics != nil {
		s.metrics.RecordCacheOperation(hit)
	}
}

func (s *ReviewService) storePage(ctx context.Context, key string, page interface{}) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, page, s.cacheTTL); err != nil {
		s.logger.Warn("review queue cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func paginationFor(page, pageSize, total int) models.Pagination {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	return models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}
}

func providerQueueKey(f models.ProviderFilter) string {
	status := ""
	if f.Status != nil {
		status = string(*f.Status)
	}
	return fmt.Sprintf("review:%s:%s:%s:%s:p%d:n%d", models.KindProvider, status, f.Specialty, f.Search, f.Page, f.PageSize)
}

func organizationQueueKey(f models.OrganizationFilter) string {
	status := ""
	if f.Status != nil {
		status = string(*f.Status)
	}
	orgType := ""
	if f.Type != nil {
		orgType = string(*f.Type)
	}
	return fmt.Sprintf("review:%s:%s:%s:%s:p%d:n%d", models.KindOrganization, status, orgType, f.Search, f.Page, f.PageSize)
}

func requirementQueueKey(f models.RequirementFilter) string {
	status := ""
	if f.Status != nil {
		status = string(*f.Status)
	}
	req := ""
	if f.Requirement != nil {
		req = string(*f.Requirement)
	}
	return fmt.Sprintf("review:%s:%s:%s:%s:p%d:n%d", models.KindRequirement, status, req, f.ProviderID, f.Page, f.PageSize)
}
