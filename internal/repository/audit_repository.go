package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/studentmarket-backend/internal/models"
)

// AuditRepository пишет журнал действий.
type AuditRepository struct {
	q sqlx.ExtContext
}

func NewAuditRepository(q sqlx.ExtContext) *AuditRepository {
	return &AuditRepository{q: q}
}

func (r *AuditRepository) Add(ctx context.Context, e *models.AuditLogEntry) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO audit_log (id, actor_id, action, entity_type, entity_id, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, e.ID, e.ActorID, e.Action, e.EntityType, e.EntityID, jsonOrNull(e.Details), e.CreatedAt)
	if err != nil {
		return fmt.Errorf("audit repository: add: %w", err)
	}
	return nil
}

// ListByEntity возвращает историю действий над сущностью.
func (r *AuditRepository) ListByEntity(ctx context.Context, entityType string, entityID uuid.UUID) ([]models.AuditLogEntry, error) {
	var entries []models.AuditLogEntry
	if err := sqlx.SelectContext(ctx, r.q, &entries, `
		SELECT * FROM audit_log WHERE entity_type = $1 AND entity_id = $2 ORDER BY created_at ASC
	`, entityType, entityID); err != nil {
		return nil, fmt.Errorf("audit repository: list by entity: %w", err)
	}
	return entries, nil
}
