package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// DeliveryHistoryEntry — одна сдача работы. Текущей может быть только одна
// запись на заказ.
type DeliveryHistoryEntry struct {
	ID             uuid.UUID      `db:"id" json:"id"`
	OrderID        uuid.UUID      `db:"order_id" json:"order_id"`
	DeliveryNumber int            `db:"delivery_number" json:"delivery_number"`
	Message        string         `db:"message" json:"message"`
	Files          pq.StringArray `db:"files" json:"files"`
	DeliveredAt    time.Time      `db:"delivered_at" json:"delivered_at"`
	IsCurrent      bool           `db:"is_current" json:"is_current"`
}

// RevisionHistoryEntry — запрос клиента на доработку.
type RevisionHistoryEntry struct {
	ID             uuid.UUID `db:"id" json:"id"`
	OrderID        uuid.UUID `db:"order_id" json:"order_id"`
	RevisionNumber int       `db:"revision_number" json:"revision_number"`
	RevisionReason string    `db:"revision_reason" json:"revision_reason"`
	RequestedBy    uuid.UUID `db:"requested_by" json:"requested_by"`
	RequestedAt    time.Time `db:"requested_at" json:"requested_at"`
	IsCurrent      bool      `db:"is_current" json:"is_current"`
}
