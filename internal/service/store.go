package service

import (
	"context"

	"github.com/ignatzorin/studentmarket-backend/internal/repository"
)

// sqlStore связывает repository.Store с интерфейсами сервисного слоя.
type sqlStore struct {
	store *repository.Store
	setRepositories
}

// NewSQLStore оборачивает хранилище PostgreSQL.
func NewSQLStore(store *repository.Store) Store {
	return &sqlStore{store: store, setRepositories: setRepositories{set: store.Base()}}
}

func (s *sqlStore) InTx(ctx context.Context, fn func(tx Repositories) error) error {
	return s.store.InTx(ctx, func(set *repository.Set) error {
		return fn(setRepositories{set: set})
	})
}

type setRepositories struct {
	set *repository.Set
}

func (r setRepositories) Users() UserRepository           { return r.set.Users }
func (r setRepositories) Listings() ListingRepository     { return r.set.Listings }
func (r setRepositories) Orders() OrderRepository         { return r.set.Orders }
func (r setRepositories) Payments() PaymentRepository     { return r.set.Payments }
func (r setRepositories) Webhooks() WebhookRepository     { return r.set.Webhooks }
func (r setRepositories) Disputes() DisputeRepository     { return r.set.Disputes }
func (r setRepositories) Violations() ViolationRepository { return r.set.Violations }
func (r setRepositories) Messages() MessageRepository     { return r.set.Messages }
func (r setRepositories) Audit() AuditRepository          { return r.set.Audit }
