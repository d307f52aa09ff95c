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

// ErrMessageNotFound возвращается, если сообщение не найдено.
var ErrMessageNotFound = errors.New("message not found")

// MessageRepository хранит переписку по заказам.
type MessageRepository struct {
	q sqlx.ExtContext
}

func NewMessageRepository(q sqlx.ExtContext) *MessageRepository {
	return &MessageRepository{q: q}
}

func (r *MessageRepository) Create(ctx context.Context, m *models.Message) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO messages (id, order_id, sender_id, recipient_id, content, is_flagged, flag_reason, flagged_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, m.ID, m.OrderID, m.SenderID, m.RecipientID, m.Content, m.IsFlagged, m.FlagReason, m.FlaggedBy, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("message repository: create: %w", err)
	}
	return nil
}

func (r *MessageRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	return common.GetByID[models.Message](ctx, r.q, "messages", id, ErrMessageNotFound)
}

func (r *MessageRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	return common.GetByIDForUpdate[models.Message](ctx, r.q, "messages", id, ErrMessageNotFound)
}

// UpdateFlag сохраняет состояние пометки модерации.
func (r *MessageRepository) UpdateFlag(ctx context.Context, m *models.Message) error {
	result, err := r.q.ExecContext(ctx, `
		UPDATE messages SET is_flagged = $2, flag_reason = $3, flagged_by = $4 WHERE id = $1
	`, m.ID, m.IsFlagged, m.FlagReason, m.FlaggedBy)
	if err != nil {
		return fmt.Errorf("message repository: update flag: %w", err)
	}
	return common.ExpectAffected(result, ErrMessageNotFound)
}

// ListByOrder возвращает переписку по заказу в хронологическом порядке.
func (r *MessageRepository) ListByOrder(ctx context.Context, orderID uuid.UUID, limit, offset int) ([]models.Message, error) {
	var messages []models.Message
	if err := sqlx.SelectContext(ctx, r.q, &messages, `
		SELECT * FROM messages WHERE order_id = $1 ORDER BY created_at ASC LIMIT $2 OFFSET $3
	`, orderID, limit, offset); err != nil {
		return nil, fmt.Errorf("message repository: list by order: %w", err)
	}
	return messages, nil
}

// ListFlagged — очередь модерации.
func (r *MessageRepository) ListFlagged(ctx context.Context, limit, offset int) ([]models.Message, error) {
	var messages []models.Message
	if err := sqlx.SelectContext(ctx, r.q, &messages, `
		SELECT * FROM messages WHERE is_flagged ORDER BY created_at ASC LIMIT $1 OFFSET $2
	`, limit, offset); err != nil {
		return nil, fmt.Errorf("message repository: list flagged: %w", err)
	}
	return messages, nil
}
