package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/studentmarket-backend/internal/models"
	"github.com/ignatzorin/studentmarket-backend/internal/pkg/apperror"
	"github.com/ignatzorin/studentmarket-backend/internal/repository/common"
)

type memSettings struct {
	row   *models.PlatformSettings
	reads int
}

func (r *memSettings) Get(context.Context) (*models.PlatformSettings, error) {
	r.reads++
	if r.row == nil {
		return nil, common.ErrNotFound
	}
	s := *r.row
	return &s, nil
}

func (r *memSettings) Save(_ context.Context, s *models.PlatformSettings) error {
	row := *s
	r.row = &row
	return nil
}

func newSettingsFixture(t *testing.T) (*fixture, *memSettings, *SettingsService) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	f := newFixture(t)
	repo := &memSettings{}
	svc := NewSettingsService(f.store, repo, NewCacheService(ctx), decimal.NewFromInt(15), time.Minute)
	svc.clock = f.clock.Now
	return f, repo, svc
}

func TestSettingsService_CommissionRate_DefaultAndCached(t *testing.T) {
	ctx := context.Background()
	_, repo, svc := newSettingsFixture(t)

	rate, err := svc.CommissionRate(ctx)
	require.NoError(t, err)
	assert.Equal(t, "15.00", rate.StringFixed(2))

	_, err = svc.CommissionRate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, repo.reads, "second read is served from cache")
}

func TestSettingsService_UpdateCommissionRate(t *testing.T) {
	ctx := context.Background()
	f, repo, svc := newSettingsFixture(t)

	_, err := svc.CommissionRate(ctx)
	require.NoError(t, err)

	_, err = svc.UpdateCommissionRate(ctx, f.client.ID, decimal.NewFromInt(5))
	assert.True(t, apperror.IsForbidden(err))

	_, err = svc.UpdateCommissionRate(ctx, f.admin.ID, decimal.NewFromInt(120))
	assert.True(t, apperror.IsValidation(err))

	updated, err := svc.UpdateCommissionRate(ctx, f.admin.ID, decimal.RequireFromString("12.5"))
	require.NoError(t, err)
	assert.Equal(t, "12.50", updated.CommissionRate.StringFixed(2))

	rate, err := svc.CommissionRate(ctx)
	require.NoError(t, err)
	assert.Equal(t, "12.50", rate.StringFixed(2))
	assert.Equal(t, 2, repo.reads)

	current, err := svc.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "12.50", current.CommissionRate.StringFixed(2))

	require.Len(t, f.db.auditLog, 1)
	assert.Equal(t, "commission_rate_updated", f.db.auditLog[0].Action)
}

func TestSettingsService_RateChangeDoesNotTouchExistingOrders(t *testing.T) {
	ctx := context.Background()
	f, _, svc := newSettingsFixture(t)
	f.orders.commission = svc

	before := f.createOrder(t, "100.00", 5)
	_, err := svc.UpdateCommissionRate(ctx, f.admin.ID, decimal.NewFromInt(20))
	require.NoError(t, err)
	after := f.createOrder(t, "100.00", 5)

	assert.Equal(t, "15.00", f.order(t, before.Order.ID).CommissionRate.StringFixed(2))
	assert.Equal(t, "20.00", f.order(t, after.Order.ID).CommissionRate.StringFixed(2))
	assert.Equal(t, "15.00", before.Payment.CommissionAmount.StringFixed(2))
}

func TestCacheService_Expiry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	cache := NewCacheService(ctx)
	cache.now = func() time.Time { return now }

	cache.Set("k", 42, time.Minute)
	value, ok := cache.Get("k")
	require.True(t, ok)
	assert.Equal(t, 42, value)

	now = now.Add(2 * time.Minute)
	_, ok = cache.Get("k")
	assert.False(t, ok)

	calls := 0
	for i := 0; i < 2; i++ {
		value, err := cache.GetOrSet(ctx, "lazy", time.Minute, func() (interface{}, error) {
			calls++
			return "computed", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "computed", value)
	}
	assert.Equal(t, 1, calls)

	cache.Delete("lazy")
	_, ok = cache.Get("lazy")
	assert.False(t, ok)
}
