package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Message — сообщение в переписке по заказу. Помеченные сообщения попадают
// в очередь модерации.
type Message struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	OrderID     uuid.UUID  `db:"order_id" json:"order_id"`
	SenderID    uuid.UUID  `db:"sender_id" json:"sender_id"`
	RecipientID uuid.UUID  `db:"recipient_id" json:"recipient_id"`
	Content     string     `db:"content" json:"content"`
	IsFlagged   bool       `db:"is_flagged" json:"is_flagged"`
	FlagReason  *string    `db:"flag_reason" json:"flag_reason,omitempty"`
	FlaggedBy   *uuid.UUID `db:"flagged_by" json:"flagged_by,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

// Notification описывает событие, отправленное пользователю.
type Notification struct {
	ID        uuid.UUID       `db:"id" json:"id"`
	UserID    uuid.UUID       `db:"user_id" json:"user_id"`
	Kind      string          `db:"kind" json:"kind"`
	Payload   json.RawMessage `db:"payload" json:"payload"`
	IsRead    bool            `db:"is_read" json:"is_read"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}
