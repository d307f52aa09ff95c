package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/studentmarket-backend/internal/models"
	"github.com/ignatzorin/studentmarket-backend/internal/repository/common"
)

// SettingsRepository читает единственную строку platform_settings.
type SettingsRepository struct {
	db *sqlx.DB
}

func NewSettingsRepository(db *sqlx.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Get возвращает common.ErrNotFound, если настройки ещё не заданы.
func (r *SettingsRepository) Get(ctx context.Context) (*models.PlatformSettings, error) {
	var s models.PlatformSettings
	if err := r.db.GetContext(ctx, &s, `SELECT commission_rate, updated_at FROM platform_settings WHERE id = 1`); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("settings repository: get: %w", err)
	}
	return &s, nil
}

// Save создаёт или обновляет настройки.
func (r *SettingsRepository) Save(ctx context.Context, s *models.PlatformSettings) error {
	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO platform_settings (id, commission_rate, updated_at) VALUES (1, $1, $2)
		ON CONFLICT (id) DO UPDATE SET commission_rate = EXCLUDED.commission_rate, updated_at = EXCLUDED.updated_at
	`, s.CommissionRate, s.UpdatedAt); err != nil {
		return fmt.Errorf("settings repository: save: %w", err)
	}
	return nil
}
