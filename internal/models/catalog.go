package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Listing — услуга, которую студент продаёт на площадке.
type Listing struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	StudentID    uuid.UUID       `db:"student_id" json:"student_id"`
	Title        string          `db:"title" json:"title"`
	Description  string          `db:"description" json:"description"`
	Price        decimal.Decimal `db:"price" json:"price"`
	DeliveryDays int             `db:"delivery_days" json:"delivery_days"`
	IsActive     bool            `db:"is_active" json:"is_active"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}
