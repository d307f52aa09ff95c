package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ignatzorin/studentmarket-backend/internal/domain/policy"
	"github.com/ignatzorin/studentmarket-backend/internal/domain/valueobject"
	"github.com/ignatzorin/studentmarket-backend/internal/models"
	"github.com/ignatzorin/studentmarket-backend/internal/repository/common"
)

const commissionCacheKey = "settings:commission_rate"

// SettingsRepository — строка platform_settings.
type SettingsRepository interface {
	Get(ctx context.Context) (*models.PlatformSettings, error)
	Save(ctx context.Context, s *models.PlatformSettings) error
}

// SettingsService отдаёт ставку комиссии для новых заказов. Уже созданные
// заказы хранят свою ставку и от изменений не зависят.
type SettingsService struct {
	store       Store
	repo        SettingsRepository
	cache       *CacheService
	defaultRate decimal.Decimal
	ttl         time.Duration
	clock       Clock
}

func NewSettingsService(store Store, repo SettingsRepository, cache *CacheService, defaultRate decimal.Decimal, ttl time.Duration) *SettingsService {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &SettingsService{
		store:       store,
		repo:        repo,
		cache:       cache,
		defaultRate: defaultRate,
		ttl:         ttl,
		clock:       systemClock,
	}
}

// CommissionRate реализует CommissionSource.
func (s *SettingsService) CommissionRate(ctx context.Context) (decimal.Decimal, error) {
	value, err := s.cache.GetOrSet(ctx, commissionCacheKey, s.ttl, func() (interface{}, error) {
		settings, err := s.repo.Get(ctx)
		if errors.Is(err, common.ErrNotFound) {
			return s.defaultRate, nil
		}
		if err != nil {
			return nil, err
		}
		return settings.CommissionRate, nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return value.(decimal.Decimal), nil
}

// GetSettings возвращает действующие настройки.
func (s *SettingsService) GetSettings(ctx context.Context) (*models.PlatformSettings, error) {
	settings, err := s.repo.Get(ctx)
	if errors.Is(err, common.ErrNotFound) {
		return &models.PlatformSettings{CommissionRate: s.defaultRate}, nil
	}
	return settings, err
}

// UpdateCommissionRate меняет ставку для будущих заказов.
func (s *SettingsService) UpdateCommissionRate(ctx context.Context, adminID uuid.UUID, rate decimal.Decimal) (*models.PlatformSettings, error) {
	admin, err := loadActor(ctx, s.store.Users(), adminID)
	if err != nil {
		return nil, err
	}
	if err := policy.Authorize(policy.ActionModerate, admin, nil); err != nil {
		return nil, err
	}
	if err := valueobject.ValidatePercent("commission_rate", rate); err != nil {
		return nil, err
	}

	now := s.clock()
	settings := &models.PlatformSettings{CommissionRate: rate.Round(2), UpdatedAt: now}
	if err := s.repo.Save(ctx, settings); err != nil {
		return nil, err
	}
	s.cache.Delete(commissionCacheKey)

	if err := audit(ctx, s.store.Audit(), now, adminID, "commission_rate_updated", "platform_settings", uuid.Nil, map[string]interface{}{
		"commission_rate": settings.CommissionRate.StringFixed(2),
	}); err != nil {
		return nil, err
	}
	return settings, nil
}
