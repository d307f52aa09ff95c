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

// ErrPaymentNotFound возвращается, если платёж не найден.
var ErrPaymentNotFound = errors.New("payment not found")

// PaymentRepository хранит платежи (списания, возвраты, выплаты).
type PaymentRepository struct {
	q sqlx.ExtContext
}

func NewPaymentRepository(q sqlx.ExtContext) *PaymentRepository {
	return &PaymentRepository{q: q}
}

// Create сохраняет платёж.
func (r *PaymentRepository) Create(ctx context.Context, p *models.Payment) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO payments (
			id, order_id, payment_intent_id, checkout_session_id, gateway_reference,
			amount, commission_amount, student_amount, refund_amount, type, status,
			metadata, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`,
		p.ID, p.OrderID, p.PaymentIntentID, p.CheckoutSessionID, p.GatewayReference,
		p.Amount, p.CommissionAmount, p.StudentAmount, p.RefundAmount, p.Type, p.Status,
		jsonOrNull(p.Metadata), p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("payment repository: create: %w", err)
	}
	return nil
}

// Update сохраняет изменяемые поля платежа.
func (r *PaymentRepository) Update(ctx context.Context, p *models.Payment) error {
	result, err := r.q.ExecContext(ctx, `
		UPDATE payments SET
			order_id = $2,
			payment_intent_id = $3,
			checkout_session_id = $4,
			gateway_reference = $5,
			refund_amount = $6,
			status = $7,
			metadata = $8,
			updated_at = $9
		WHERE id = $1
	`,
		p.ID, p.OrderID, p.PaymentIntentID, p.CheckoutSessionID, p.GatewayReference,
		p.RefundAmount, p.Status, jsonOrNull(p.Metadata), p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("payment repository: update: %w", err)
	}
	return common.ExpectAffected(result, ErrPaymentNotFound)
}

func (r *PaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	return common.GetByID[models.Payment](ctx, r.q, "payments", id, ErrPaymentNotFound)
}

// GetChargeForUpdate возвращает списание заказа, по которому получены деньги,
// а если такого нет, последнее списание. Строка блокируется.
func (r *PaymentRepository) GetChargeForUpdate(ctx context.Context, orderID uuid.UUID) (*models.Payment, error) {
	var p models.Payment
	err := sqlx.GetContext(ctx, r.q, &p, `
		SELECT * FROM payments
		WHERE order_id = $1 AND type = $2
		ORDER BY (status IN ($3, $4)) DESC, created_at DESC
		LIMIT 1
		FOR UPDATE
	`, orderID, valueobject.PaymentTypeCharge,
		valueobject.PaymentStatusSucceeded, valueobject.PaymentStatusPartiallyRefunded)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("payment repository: get charge: %w", err)
	}
	return &p, nil
}

// ListChargesForUpdate блокирует все списания заказа, от старых к новым.
func (r *PaymentRepository) ListChargesForUpdate(ctx context.Context, orderID uuid.UUID) ([]models.Payment, error) {
	var payments []models.Payment
	if err := sqlx.SelectContext(ctx, r.q, &payments, `
		SELECT * FROM payments
		WHERE order_id = $1 AND type = $2
		ORDER BY created_at ASC
		FOR UPDATE
	`, orderID, valueobject.PaymentTypeCharge); err != nil {
		return nil, fmt.Errorf("payment repository: list charges: %w", err)
	}
	return payments, nil
}

// GetByCheckoutSessionForUpdate ищет списание по сессии оплаты.
func (r *PaymentRepository) GetByCheckoutSessionForUpdate(ctx context.Context, sessionID string) (*models.Payment, error) {
	return r.getForUpdate(ctx, "checkout_session_id", sessionID)
}

// GetByIntentForUpdate ищет списание по идентификатору платежа в шлюзе.
func (r *PaymentRepository) GetByIntentForUpdate(ctx context.Context, intentID string) (*models.Payment, error) {
	return r.getForUpdate(ctx, "payment_intent_id", intentID)
}

func (r *PaymentRepository) getForUpdate(ctx context.Context, column, value string) (*models.Payment, error) {
	var p models.Payment
	query := fmt.Sprintf(`
		SELECT * FROM payments
		WHERE %s = $1 AND type = $2
		ORDER BY created_at DESC
		LIMIT 1
		FOR UPDATE
	`, column)
	if err := sqlx.GetContext(ctx, r.q, &p, query, value, valueobject.PaymentTypeCharge); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("payment repository: get by %s: %w", column, err)
	}
	return &p, nil
}

// ListByOrder возвращает все движения денег по заказу.
func (r *PaymentRepository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Payment, error) {
	var payments []models.Payment
	if err := sqlx.SelectContext(ctx, r.q, &payments, `
		SELECT * FROM payments WHERE order_id = $1 ORDER BY created_at ASC
	`, orderID); err != nil {
		return nil, fmt.Errorf("payment repository: list by order: %w", err)
	}
	return payments, nil
}

// jsonOrNull не даёт записать пустую строку в jsonb.
func jsonOrNull(raw []byte) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
