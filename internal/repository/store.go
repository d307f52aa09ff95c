package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/studentmarket-backend/internal/repository/common"
)

// Set — репозитории, привязанные к одному исполнителю запросов:
// пулу соединений или открытой транзакции.
type Set struct {
	Users      *UserRepository
	Listings   *ListingRepository
	Orders     *OrderRepository
	Payments   *PaymentRepository
	Webhooks   *WebhookRepository
	Disputes   *DisputeRepository
	Violations *ViolationRepository
	Messages   *MessageRepository
	Audit      *AuditRepository
}

func newSet(q sqlx.ExtContext) *Set {
	return &Set{
		Users:      NewUserRepository(q),
		Listings:   NewListingRepository(q),
		Orders:     NewOrderRepository(q),
		Payments:   NewPaymentRepository(q),
		Webhooks:   NewWebhookRepository(q),
		Disputes:   NewDisputeRepository(q),
		Violations: NewViolationRepository(q),
		Messages:   NewMessageRepository(q),
		Audit:      NewAuditRepository(q),
	}
}

// Store раздаёт наборы репозиториев вне транзакции и внутри неё.
type Store struct {
	db   *sqlx.DB
	base *Set
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db, base: newSet(db)}
}

// Base — репозитории поверх пула, без транзакции.
func (s *Store) Base() *Set {
	return s.base
}

// InTx выполняет fn в одной транзакции. Ошибка или паника откатывают всё.
func (s *Store) InTx(ctx context.Context, fn func(*Set) error) error {
	return common.WithTransaction(ctx, s.db, func(tx *sqlx.Tx) error {
		return fn(newSet(tx))
	})
}
