package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ignatzorin/studentmarket-backend/internal/domain/valueobject"
)

// Payment — одно движение денег по заказу: списание, возврат или выплата.
// Набор строк по заказу и есть история денег, отдельного баланса нет.
type Payment struct {
	ID                uuid.UUID                 `db:"id" json:"id"`
	OrderID           *uuid.UUID                `db:"order_id" json:"order_id,omitempty"`
	PaymentIntentID   *string                   `db:"payment_intent_id" json:"payment_intent_id,omitempty"`
	CheckoutSessionID *string                   `db:"checkout_session_id" json:"checkout_session_id,omitempty"`
	GatewayReference  *string                   `db:"gateway_reference" json:"gateway_reference,omitempty"`
	Amount            decimal.Decimal           `db:"amount" json:"amount"`
	CommissionAmount  decimal.Decimal           `db:"commission_amount" json:"commission_amount"`
	StudentAmount     decimal.Decimal           `db:"student_amount" json:"student_amount"`
	RefundAmount      decimal.Decimal           `db:"refund_amount" json:"refund_amount"`
	Type              valueobject.PaymentType   `db:"type" json:"type"`
	Status            valueobject.PaymentStatus `db:"status" json:"status"`
	Metadata          json.RawMessage           `db:"metadata" json:"metadata,omitempty"`
	CreatedAt         time.Time                 `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time                 `db:"updated_at" json:"updated_at"`
}

// RefundableAmount — сколько ещё можно вернуть по списанию.
func (p *Payment) RefundableAmount() decimal.Decimal {
	return p.Amount.Sub(p.RefundAmount)
}

// PendingOrderContext — данные заказа, который ещё не создан: оплата идёт
// раньше, заказ материализуется из вебхука.
type PendingOrderContext struct {
	ClientID         uuid.UUID       `json:"client_id"`
	StudentID        uuid.UUID       `json:"student_id"`
	ListingID        uuid.UUID       `json:"service_id"`
	Requirements     string          `json:"requirements"`
	RequirementFiles []string        `json:"requirement_files,omitempty"`
	Price            decimal.Decimal `json:"price"`
	CommissionRate   decimal.Decimal `json:"commission_rate"`
	DeliveryDays     int             `json:"delivery_days"`
	MaxRevisions     int             `json:"max_revisions"`
}

// PaymentMetadata — содержимое колонки metadata.
type PaymentMetadata struct {
	PendingOrder    *PendingOrderContext `json:"pending_order,omitempty"`
	RedirectURL     string               `json:"redirect_url,omitempty"`
	LastEventID     string               `json:"last_event_id,omitempty"`
	LastEventType   string               `json:"last_event_type,omitempty"`
	LastEventAt     *time.Time           `json:"last_event_at,omitempty"`
	GatewayPayload  json.RawMessage      `json:"gateway_payload,omitempty"`
	RefundedPayment *uuid.UUID           `json:"refunded_payment_id,omitempty"`
	Reason          string               `json:"reason,omitempty"`
}

// DecodeMetadata разбирает metadata; пустое значение даёт пустую структуру.
func (p *Payment) DecodeMetadata() (PaymentMetadata, error) {
	var meta PaymentMetadata
	if len(p.Metadata) == 0 || string(p.Metadata) == "null" {
		return meta, nil
	}
	if err := json.Unmarshal(p.Metadata, &meta); err != nil {
		return meta, fmt.Errorf("payment %s: decode metadata: %w", p.ID, err)
	}
	return meta, nil
}

// SetMetadata сериализует metadata в строку платежа.
func (p *Payment) SetMetadata(meta PaymentMetadata) error {
	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("payment %s: encode metadata: %w", p.ID, err)
	}
	p.Metadata = raw
	return nil
}

// WebhookEvent — обработанное событие платёжного шлюза. Уникальность
// external_event_id гарантирует однократную обработку.
type WebhookEvent struct {
	ID              uuid.UUID       `db:"id" json:"id"`
	Provider        string          `db:"provider" json:"provider"`
	ExternalEventID string          `db:"external_event_id" json:"external_event_id"`
	EventType       string          `db:"event_type" json:"event_type"`
	Payload         json.RawMessage `db:"payload" json:"payload"`
	Processed       bool            `db:"processed" json:"processed"`
	ProcessedAt     *time.Time      `db:"processed_at" json:"processed_at,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
}
