package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ignatzorin/studentmarket-backend/internal/domain/valueobject"
	"github.com/ignatzorin/studentmarket-backend/internal/models"
)

// UserRepository — чтение пользователей и изменение статуса блокировки.
type UserRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	UpdateSuspension(ctx context.Context, id uuid.UUID, status valueobject.UserStatus, endDate *time.Time) error
}

// ListingRepository — услуги студентов.
type ListingRepository interface {
	Create(ctx context.Context, l *models.Listing) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Listing, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool, at time.Time) error
}

// OrderRepository — заказы и история сдач и доработок.
type OrderRepository interface {
	Create(ctx context.Context, o *models.Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error)
	Update(ctx context.Context, o *models.Order) error
	ListByParticipant(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Order, error)
	MarkAllDeliveriesNotCurrent(ctx context.Context, orderID uuid.UUID) error
	CreateDelivery(ctx context.Context, d *models.DeliveryHistoryEntry) error
	ListDeliveries(ctx context.Context, orderID uuid.UUID) ([]models.DeliveryHistoryEntry, error)
	MarkAllRevisionsNotCurrent(ctx context.Context, orderID uuid.UUID) error
	CreateRevision(ctx context.Context, r *models.RevisionHistoryEntry) error
	ListRevisions(ctx context.Context, orderID uuid.UUID) ([]models.RevisionHistoryEntry, error)
}

// PaymentRepository — движения денег по заказам.
type PaymentRepository interface {
	Create(ctx context.Context, p *models.Payment) error
	Update(ctx context.Context, p *models.Payment) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	GetChargeForUpdate(ctx context.Context, orderID uuid.UUID) (*models.Payment, error)
	ListChargesForUpdate(ctx context.Context, orderID uuid.UUID) ([]models.Payment, error)
	GetByCheckoutSessionForUpdate(ctx context.Context, sessionID string) (*models.Payment, error)
	GetByIntentForUpdate(ctx context.Context, intentID string) (*models.Payment, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Payment, error)
}

// WebhookRepository — журнал событий шлюза для однократной обработки.
type WebhookRepository interface {
	Exists(ctx context.Context, externalEventID string) (bool, error)
	Insert(ctx context.Context, e *models.WebhookEvent) error
	MarkProcessed(ctx context.Context, externalEventID string, at time.Time) error
}

// DisputeRepository — споры по заказам.
type DisputeRepository interface {
	Create(ctx context.Context, d *models.Dispute) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error)
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Dispute, error)
	GetOpenByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Dispute, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Dispute, error)
	Update(ctx context.Context, d *models.Dispute) error
}

// ViolationRepository — подтверждённые нарушения.
type ViolationRepository interface {
	Create(ctx context.Context, v *models.Violation) error
	CountByUser(ctx context.Context, userID uuid.UUID) (int, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Violation, error)
}

// MessageRepository — переписка и пометки модерации.
type MessageRepository interface {
	Create(ctx context.Context, m *models.Message) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Message, error)
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Message, error)
	UpdateFlag(ctx context.Context, m *models.Message) error
	ListByOrder(ctx context.Context, orderID uuid.UUID, limit, offset int) ([]models.Message, error)
	ListFlagged(ctx context.Context, limit, offset int) ([]models.Message, error)
}

// AuditRepository — журнал действий.
type AuditRepository interface {
	Add(ctx context.Context, e *models.AuditLogEntry) error
	ListByEntity(ctx context.Context, entityType string, entityID uuid.UUID) ([]models.AuditLogEntry, error)
}

// Repositories — набор репозиториев, привязанный к пулу или к транзакции.
type Repositories interface {
	Users() UserRepository
	Listings() ListingRepository
	Orders() OrderRepository
	Payments() PaymentRepository
	Webhooks() WebhookRepository
	Disputes() DisputeRepository
	Violations() ViolationRepository
	Messages() MessageRepository
	Audit() AuditRepository
}

// Store открывает транзакции. Ошибка из fn откатывает все записи fn.
type Store interface {
	Repositories
	InTx(ctx context.Context, fn func(tx Repositories) error) error
}

// Notifier — диспетчер уведомлений. Ошибки доставки не возвращаются:
// уведомления не должны откатывать операцию, которая их вызвала.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, kind string, payload map[string]interface{})
}

// CommissionSource отдаёт текущую ставку комиссии площадки в процентах.
type CommissionSource interface {
	CommissionRate(ctx context.Context) (decimal.Decimal, error)
}
