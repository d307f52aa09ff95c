package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/studentmarket-backend/internal/models"
	"github.com/ignatzorin/studentmarket-backend/internal/repository/common"
)

// WebhookRepository ведёт журнал событий платёжного шлюза.
type WebhookRepository struct {
	q sqlx.ExtContext
}

func NewWebhookRepository(q sqlx.ExtContext) *WebhookRepository {
	return &WebhookRepository{q: q}
}

// Exists сообщает, что событие уже обработано.
func (r *WebhookRepository) Exists(ctx context.Context, externalEventID string) (bool, error) {
	var exists bool
	if err := sqlx.GetContext(ctx, r.q, &exists, `
		SELECT EXISTS(SELECT 1 FROM webhook_events WHERE external_event_id = $1 AND processed)
	`, externalEventID); err != nil {
		return false, fmt.Errorf("webhook repository: exists: %w", err)
	}
	return exists, nil
}

// Insert записывает событие. Повторная вставка того же external_event_id
// возвращает common.ErrAlreadyExists.
func (r *WebhookRepository) Insert(ctx context.Context, e *models.WebhookEvent) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO webhook_events (id, provider, external_event_id, event_type, payload, processed, created_at)
		VALUES ($1, $2, $3, $4, $5, FALSE, $6)
	`, e.ID, e.Provider, e.ExternalEventID, e.EventType, jsonOrNull(e.Payload), e.CreatedAt)
	if err != nil {
		if common.IsUniqueViolation(err) {
			return common.ErrAlreadyExists
		}
		return fmt.Errorf("webhook repository: insert: %w", err)
	}
	return nil
}

// MarkProcessed отмечает событие обработанным.
func (r *WebhookRepository) MarkProcessed(ctx context.Context, externalEventID string, at time.Time) error {
	result, err := r.q.ExecContext(ctx, `
		UPDATE webhook_events SET processed = TRUE, processed_at = $2 WHERE external_event_id = $1
	`, externalEventID, at)
	if err != nil {
		return fmt.Errorf("webhook repository: mark processed: %w", err)
	}
	return common.ExpectAffected(result, common.ErrNotFound)
}
