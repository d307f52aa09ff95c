package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/studentmarket-backend/internal/domain/valueobject"
	"github.com/ignatzorin/studentmarket-backend/internal/models"
	"github.com/ignatzorin/studentmarket-backend/internal/repository/common"
)

// ErrDisputeNotFound возвращается, если спор не найден.
var ErrDisputeNotFound = errors.New("dispute not found")

// DisputeRepository хранит споры по заказам.
type DisputeRepository struct {
	q sqlx.ExtContext
}

func NewDisputeRepository(q sqlx.ExtContext) *DisputeRepository {
	return &DisputeRepository{q: q}
}

// Create сохраняет спор. Второй открытый спор по заказу отсекается
// частичным уникальным индексом и возвращает common.ErrAlreadyExists.
func (r *DisputeRepository) Create(ctx context.Context, d *models.Dispute) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO disputes (id, order_id, opened_by, reason, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, d.ID, d.OrderID, d.OpenedBy, d.Reason, d.Status, d.CreatedAt)
	if err != nil {
		if common.IsUniqueViolation(err) {
			return common.ErrAlreadyExists
		}
		return fmt.Errorf("dispute repository: create: %w", err)
	}
	return nil
}

func (r *DisputeRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	return common.GetByID[models.Dispute](ctx, r.q, "disputes", id, ErrDisputeNotFound)
}

func (r *DisputeRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	return common.GetByIDForUpdate[models.Dispute](ctx, r.q, "disputes", id, ErrDisputeNotFound)
}

// GetOpenByOrderID возвращает открытый спор по заказу.
func (r *DisputeRepository) GetOpenByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Dispute, error) {
	var d models.Dispute
	err := sqlx.GetContext(ctx, r.q, &d, `
		SELECT * FROM disputes WHERE order_id = $1 AND status = $2
	`, orderID, valueobject.DisputeStatusOpen)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDisputeNotFound
		}
		return nil, fmt.Errorf("dispute repository: get open by order: %w", err)
	}
	return &d, nil
}

// ListByOrder возвращает все споры по заказу, новые первыми.
func (r *DisputeRepository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Dispute, error) {
	var disputes []models.Dispute
	if err := sqlx.SelectContext(ctx, r.q, &disputes, `
		SELECT * FROM disputes WHERE order_id = $1 ORDER BY created_at DESC
	`, orderID); err != nil {
		return nil, fmt.Errorf("dispute repository: list by order: %w", err)
	}
	return disputes, nil
}

// Update сохраняет решение по спору.
func (r *DisputeRepository) Update(ctx context.Context, d *models.Dispute) error {
	result, err := r.q.ExecContext(ctx, `
		UPDATE disputes SET
			status = $2,
			resolution = $3,
			refund_percentage = $4,
			resolution_notes = $5,
			admin_notes = $6,
			resolved_by = $7,
			resolved_at = $8
		WHERE id = $1
	`, d.ID, d.Status, d.Resolution, d.RefundPercentage, d.ResolutionNotes, d.AdminNotes, d.ResolvedBy, d.ResolvedAt)
	if err != nil {
		return fmt.Errorf("dispute repository: update: %w", err)
	}
	return common.ExpectAffected(result, ErrDisputeNotFound)
}
