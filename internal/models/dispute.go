package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ignatzorin/studentmarket-backend/internal/domain/valueobject"
)

// Dispute — спор по одному заказу. Открытым может быть только один спор на заказ.
type Dispute struct {
	ID               uuid.UUID                      `db:"id" json:"id"`
	OrderID          uuid.UUID                      `db:"order_id" json:"order_id"`
	OpenedBy         uuid.UUID                      `db:"opened_by" json:"opened_by"`
	Reason           string                         `db:"reason" json:"reason"`
	Status           valueobject.DisputeStatus      `db:"status" json:"status"`
	Resolution       *valueobject.DisputeResolution `db:"resolution" json:"resolution,omitempty"`
	RefundPercentage *decimal.Decimal               `db:"refund_percentage" json:"refund_percentage,omitempty"`
	ResolutionNotes  *string                        `db:"resolution_notes" json:"resolution_notes,omitempty"`
	AdminNotes       *string                        `db:"admin_notes" json:"admin_notes,omitempty"`
	ResolvedBy       *uuid.UUID                     `db:"resolved_by" json:"resolved_by,omitempty"`
	CreatedAt        time.Time                      `db:"created_at" json:"created_at"`
	ResolvedAt       *time.Time                     `db:"resolved_at" json:"resolved_at,omitempty"`
}
