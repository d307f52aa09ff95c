package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/ignatzorin/studentmarket-backend/internal/domain/valueobject"
)

// DefaultMaxRevisions — лимит доработок, если не задан в конфигурации.
const DefaultMaxRevisions = 3

// Order — покупка услуги клиентом. Заказы не удаляются, completed и cancelled
// окончательны.
type Order struct {
	ID                   uuid.UUID               `db:"id" json:"id"`
	ListingID            uuid.UUID               `db:"listing_id" json:"service_id"`
	ClientID             uuid.UUID               `db:"client_id" json:"client_id"`
	StudentID            uuid.UUID               `db:"student_id" json:"student_id"`
	Price                decimal.Decimal         `db:"price" json:"price"`
	CommissionRate       decimal.Decimal         `db:"commission_rate" json:"commission_rate"`
	Requirements         string                  `db:"requirements" json:"requirements"`
	RequirementFiles     pq.StringArray          `db:"requirement_files" json:"requirement_files"`
	Deadline             time.Time               `db:"deadline" json:"deadline"`
	Status               valueobject.OrderStatus `db:"status" json:"status"`
	RevisionCount        int                     `db:"revision_count" json:"revision_count"`
	MaxRevisions         int                     `db:"max_revisions" json:"max_revisions"`
	CurrentDeliveryID    *uuid.UUID              `db:"current_delivery_id" json:"current_delivery_id,omitempty"`
	DeliveryCount        int                     `db:"delivery_count" json:"delivery_count"`
	CurrentRevisionID    *uuid.UUID              `db:"current_revision_id" json:"current_revision_id,omitempty"`
	RevisionHistoryCount int                     `db:"revision_history_count" json:"revision_history_count"`
	CreatedAt            time.Time               `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time               `db:"updated_at" json:"updated_at"`
	CompletedAt          *time.Time              `db:"completed_at" json:"completed_at,omitempty"`
}

// IsParticipant — клиент или студент заказа.
func (o *Order) IsParticipant(userID uuid.UUID) bool {
	return userID == o.ClientID || userID == o.StudentID
}

// Counterparty возвращает второго участника заказа.
func (o *Order) Counterparty(userID uuid.UUID) uuid.UUID {
	if userID == o.ClientID {
		return o.StudentID
	}
	return o.ClientID
}
