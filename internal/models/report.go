package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ignatzorin/studentmarket-backend/internal/domain/valueobject"
)

// Violation — подтверждённое администратором нарушение правил.
type Violation struct {
	ID             uuid.UUID               `db:"id" json:"id"`
	UserID         uuid.UUID               `db:"user_id" json:"user_id"`
	MessageID      *uuid.UUID              `db:"message_id" json:"message_id,omitempty"`
	ViolationType  string                  `db:"violation_type" json:"violation_type"`
	Severity       valueobject.Severity    `db:"severity" json:"severity"`
	PenaltyType    valueobject.PenaltyType `db:"penalty_type" json:"penalty_type"`
	SuspensionDays *int                    `db:"suspension_days" json:"suspension_days,omitempty"`
	AdminNotes     string                  `db:"admin_notes" json:"admin_notes"`
	ConfirmedBy    uuid.UUID               `db:"confirmed_by" json:"confirmed_by"`
	CreatedAt      time.Time               `db:"created_at" json:"created_at"`
}

// AuditLogEntry — запись журнала действий администраторов и системы.
type AuditLogEntry struct {
	ID         uuid.UUID       `db:"id" json:"id"`
	ActorID    *uuid.UUID      `db:"actor_id" json:"actor_id,omitempty"`
	Action     string          `db:"action" json:"action"`
	EntityType string          `db:"entity_type" json:"entity_type"`
	EntityID   uuid.UUID       `db:"entity_id" json:"entity_id"`
	Details    json.RawMessage `db:"details" json:"details,omitempty"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
}

// PlatformSettings — настройки площадки, которые меняет администратор.
type PlatformSettings struct {
	CommissionRate decimal.Decimal `db:"commission_rate" json:"commission_rate"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}
