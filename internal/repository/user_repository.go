package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/studentmarket-backend/internal/domain/valueobject"
	"github.com/ignatzorin/studentmarket-backend/internal/models"
	"github.com/ignatzorin/studentmarket-backend/internal/repository/common"
)

// ErrUserNotFound возвращается, если пользователь не найден.
var ErrUserNotFound = errors.New("user not found")

// UserRepository читает пользователей и меняет их статус блокировки.
type UserRepository struct {
	q sqlx.ExtContext
}

// NewUserRepository создаёт репозиторий поверх *sqlx.DB или *sqlx.Tx.
func NewUserRepository(q sqlx.ExtContext) *UserRepository {
	return &UserRepository{q: q}
}

// GetByID возвращает пользователя по идентификатору.
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return common.GetByID[models.User](ctx, r.q, "users", id, ErrUserNotFound)
}

// UpdateSuspension выставляет статус и дату окончания блокировки.
func (r *UserRepository) UpdateSuspension(ctx context.Context, id uuid.UUID, status valueobject.UserStatus, endDate *time.Time) error {
	result, err := r.q.ExecContext(ctx, `
		UPDATE users
		SET status = $2, suspension_end_date = $3, updated_at = NOW()
		WHERE id = $1
	`, id, status, endDate)
	if err != nil {
		return fmt.Errorf("user repository: update suspension: %w", err)
	}
	return common.ExpectAffected(result, ErrUserNotFound)
}
