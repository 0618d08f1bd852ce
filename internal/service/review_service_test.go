package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medibook/admin-api/internal/models"
	appErrors "github.com/medibook/admin-api/pkg/errors"
)

type stubProviderLister struct {
	items     []models.Provider
	total     int
	listCalls int
}

func (s *stubProviderLister) FindByID(ctx context.Context, id string) (*models.Provider, error) {
	for i := range s.items {
		if s.items[i].ID == id {
			return &s.items[i], nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *stubProviderLister) List(ctx context.Context, filter models.ProviderFilter) ([]models.Provider, int, error) {
	s.listCalls++
	return s.items, s.total, nil
}

type mapCache struct {
	data map[string][]byte
}

func (c *mapCache) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := c.data[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (c *mapCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if c.data == nil {
		c.data = make(map[string][]byte)
	}
	c.data[key] = raw
	return nil
}

func TestListProvidersCachesPage(t *testing.T) {
	providers := &stubProviderLister{
		items: []models.Provider{{ID: "p1", FullName: "Dr. Amina Yusuf"}},
		total: 1,
	}
	cache := &mapCache{}
	svc := NewReviewService(providers, nil, nil, time.Minute, nil, WithReviewCache(cache))

	pending := models.StatusPendingApproval
	filter := models.ProviderFilter{Status: &pending, Page: 1, PageSize: 20}

	page, err := svc.ListProviders(context.Background(), filter)
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)
	assert.Equal(t, 1, page.Pagination.TotalCount)
	assert.Equal(t, 1, providers.listCalls)

	// Second identical call is served from cache.
	page, err = svc.ListProviders(context.Background(), filter)
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)
	assert.Equal(t, 1, providers.listCalls)
}

func TestListProvidersDistinctFiltersDistinctKeys(t *testing.T) {
	providers := &stubProviderLister{items: nil, total: 0}
	cache := &mapCache{}
	svc := NewReviewService(providers, nil, nil, time.Minute, nil, WithReviewCache(cache))

	pending := models.StatusPendingApproval
	approved := models.StatusApproved
	_, err := svc.ListProviders(context.Background(), models.ProviderFilter{Status: &pending, Page: 1, PageSize: 20})
	require.NoError(t, err)
	_, err = svc.ListProviders(context.Background(), models.ProviderFilter{Status: &approved, Page: 1, PageSize: 20})
	require.NoError(t, err)
	assert.Equal(t, 2, providers.listCalls)
}

func TestListProvidersWithoutCache(t *testing.T) {
	providers := &stubProviderLister{items: nil, total: 0}
	svc := NewReviewService(providers, nil, nil, time.Minute, nil)

	_, err := svc.ListProviders(context.Background(), models.ProviderFilter{})
	require.NoError(t, err)
	_, err = svc.ListProviders(context.Background(), models.ProviderFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, providers.listCalls)
}

func TestGetProviderNotFound(t *testing.T) {
	providers := &stubProviderLister{}
	svc := NewReviewService(providers, nil, nil, time.Minute, nil)

	_, err := svc.GetProvider(context.Background(), "missing")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}
