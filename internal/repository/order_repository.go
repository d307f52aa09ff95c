package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/studentmarket-backend/internal/models"
	"github.com/ignatzorin/studentmarket-backend/internal/repository/common"
)

// ErrOrderNotFound возвращается, если заказ не найден.
var ErrOrderNotFound = errors.New("order not found")

// OrderRepository хранит заказы и историю сдач и доработок.
type OrderRepository struct {
	q sqlx.ExtContext
}

func NewOrderRepository(q sqlx.ExtContext) *OrderRepository {
	return &OrderRepository{q: q}
}

// Create сохраняет новый заказ.
func (r *OrderRepository) Create(ctx context.Context, o *models.Order) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO orders (
			id, listing_id, client_id, student_id, price, commission_rate, requirements,
			requirement_files, deadline, status, revision_count, max_revisions,
			delivery_count, revision_history_count, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`,
		o.ID, o.ListingID, o.ClientID, o.StudentID, o.Price, o.CommissionRate, o.Requirements,
		o.RequirementFiles, o.Deadline, o.Status, o.RevisionCount, o.MaxRevisions,
		o.DeliveryCount, o.RevisionHistoryCount, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("order repository: create: %w", err)
	}
	return nil
}

// GetByID возвращает заказ без блокировки.
func (r *OrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return common.GetByID[models.Order](ctx, r.q, "orders", id, ErrOrderNotFound)
}

// GetByIDForUpdate блокирует строку заказа до конца транзакции, чтобы
// параллельные сдачи и доработки выполнялись по очереди.
func (r *OrderRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return common.GetByIDForUpdate[models.Order](ctx, r.q, "orders", id, ErrOrderNotFound)
}

// Update сохраняет изменяемые поля заказа.
func (r *OrderRepository) Update(ctx context.Context, o *models.Order) error {
	result, err := r.q.ExecContext(ctx, `
		UPDATE orders SET
			status = $2,
			revision_count = $3,
			current_delivery_id = $4,
			delivery_count = $5,
			current_revision_id = $6,
			revision_history_count = $7,
			completed_at = $8,
			updated_at = $9
		WHERE id = $1
	`,
		o.ID, o.Status, o.RevisionCount, o.CurrentDeliveryID, o.DeliveryCount,
		o.CurrentRevisionID, o.RevisionHistoryCount, o.CompletedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("order repository: update: %w", err)
	}
	return common.ExpectAffected(result, ErrOrderNotFound)
}

// ListByParticipant возвращает заказы, где пользователь клиент или студент.
func (r *OrderRepository) ListByParticipant(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Order, error) {
	var orders []models.Order
	err := sqlx.SelectContext(ctx, r.q, &orders, `
		SELECT * FROM orders
		WHERE client_id = $1 OR student_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("order repository: list by participant: %w", err)
	}
	return orders, nil
}

// MarkAllDeliveriesNotCurrent снимает флаг текущей со всех сдач заказа.
func (r *OrderRepository) MarkAllDeliveriesNotCurrent(ctx context.Context, orderID uuid.UUID) error {
	if _, err := r.q.ExecContext(ctx, `
		UPDATE delivery_history SET is_current = FALSE WHERE order_id = $1 AND is_current
	`, orderID); err != nil {
		return fmt.Errorf("order repository: demote deliveries: %w", err)
	}
	return nil
}

// CreateDelivery добавляет запись о сдаче работы.
func (r *OrderRepository) CreateDelivery(ctx context.Context, d *models.DeliveryHistoryEntry) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO delivery_history (id, order_id, delivery_number, message, files, delivered_at, is_current)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, d.ID, d.OrderID, d.DeliveryNumber, d.Message, d.Files, d.DeliveredAt, d.IsCurrent)
	if err != nil {
		return fmt.Errorf("order repository: create delivery: %w", err)
	}
	return nil
}

// ListDeliveries возвращает сдачи по порядку номеров.
func (r *OrderRepository) ListDeliveries(ctx context.Context, orderID uuid.UUID) ([]models.DeliveryHistoryEntry, error) {
	var entries []models.DeliveryHistoryEntry
	if err := sqlx.SelectContext(ctx, r.q, &entries, `
		SELECT * FROM delivery_history WHERE order_id = $1 ORDER BY delivery_number ASC
	`, orderID); err != nil {
		return nil, fmt.Errorf("order repository: list deliveries: %w", err)
	}
	return entries, nil
}

// MarkAllRevisionsNotCurrent снимает флаг текущей со всех доработок заказа.
func (r *OrderRepository) MarkAllRevisionsNotCurrent(ctx context.Context, orderID uuid.UUID) error {
	if _, err := r.q.ExecContext(ctx, `
		UPDATE revision_history SET is_current = FALSE WHERE order_id = $1 AND is_current
	`, orderID); err != nil {
		return fmt.Errorf("order repository: demote revisions: %w", err)
	}
	return nil
}

// CreateRevision добавляет запрос на доработку.
func (r *OrderRepository) CreateRevision(ctx context.Context, rev *models.RevisionHistoryEntry) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO revision_history (id, order_id, revision_number, revision_reason, requested_by, requested_at, is_current)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, rev.ID, rev.OrderID, rev.RevisionNumber, rev.RevisionReason, rev.RequestedBy, rev.RequestedAt, rev.IsCurrent)
	if err != nil {
		return fmt.Errorf("order repository: create revision: %w", err)
	}
	return nil
}

func (r *OrderRepository) ListRevisions(ctx context.Context, orderID uuid.UUID) ([]models.RevisionHistoryEntry, error) {
	var entries []models.RevisionHistoryEntry
	if err := sqlx.SelectContext(ctx, r.q, &entries, `
		SELECT * FROM revision_history WHERE order_id = $1 ORDER BY revision_number ASC
	`, orderID); err != nil {
		return nil, fmt.Errorf("order repository: list revisions: %w", err)
	}
	return entries, nil
}
