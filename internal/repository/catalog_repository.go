package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/studentmarket-backend/internal/models"
	"github.com/ignatzorin/studentmarket-backend/internal/repository/common"
)

// ErrListingNotFound возвращается, если услуга не найдена.
var ErrListingNotFound = errors.New("listing not found")

// ListingRepository хранит услуги студентов.
type ListingRepository struct {
	q sqlx.ExtContext
}

func NewListingRepository(q sqlx.ExtContext) *ListingRepository {
	return &ListingRepository{q: q}
}

// Create сохраняет новую услугу.
func (r *ListingRepository) Create(ctx context.Context, l *models.Listing) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO listings (id, student_id, title, description, price, delivery_days, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, l.ID, l.StudentID, l.Title, l.Description, l.Price, l.DeliveryDays, l.IsActive, l.CreatedAt, l.UpdatedAt)
	if err != nil {
		return fmt.Errorf("listing repository: create: %w", err)
	}
	return nil
}

func (r *ListingRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	return common.GetByID[models.Listing](ctx, r.q, "listings", id, ErrListingNotFound)
}

// SetActive включает или снимает услугу с витрины.
func (r *ListingRepository) SetActive(ctx context.Context, id uuid.UUID, active bool, at time.Time) error {
	result, err := r.q.ExecContext(ctx, `UPDATE listings SET is_active = $2, updated_at = $3 WHERE id = $1`, id, active, at)
	if err != nil {
		return fmt.Errorf("listing repository: set active: %w", err)
	}
	return common.ExpectAffected(result, ErrListingNotFound)
}
