package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/studentmarket-backend/internal/models"
)

// ViolationRepository хранит подтверждённые нарушения.
type ViolationRepository struct {
	q sqlx.ExtContext
}

func NewViolationRepository(q sqlx.ExtContext) *ViolationRepository {
	return &ViolationRepository{q: q}
}

func (r *ViolationRepository) Create(ctx context.Context, v *models.Violation) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO violations (
			id, user_id, message_id, violation_type, severity, penalty_type,
			suspension_days, admin_notes, confirmed_by, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, v.ID, v.UserID, v.MessageID, v.ViolationType, v.Severity, v.PenaltyType,
		v.SuspensionDays, v.AdminNotes, v.ConfirmedBy, v.CreatedAt)
	if err != nil {
		return fmt.Errorf("violation repository: create: %w", err)
	}
	return nil
}

// CountByUser возвращает число нарушений пользователя.
func (r *ViolationRepository) CountByUser(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int
	if err := sqlx.GetContext(ctx, r.q, &count, `SELECT COUNT(*) FROM violations WHERE user_id = $1`, userID); err != nil {
		return 0, fmt.Errorf("violation repository: count by user: %w", err)
	}
	return count, nil
}

func (r *ViolationRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Violation, error) {
	var violations []models.Violation
	if err := sqlx.SelectContext(ctx, r.q, &violations, `
		SELECT * FROM violations WHERE user_id = $1 ORDER BY created_at DESC
	`, userID); err != nil {
		return nil, fmt.Errorf("violation repository: list by user: %w", err)
	}
	return violations, nil
}
