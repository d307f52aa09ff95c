package service

import (
	"context"

	"github.com/google/uuid"
)

// ChargeRequest — запрос на списание. Reference становится идентификатором
// платежа во внешнем шлюзе.
type ChargeRequest struct {
	AmountCents int64
	Reference   string
	Description string
	CustomerID  uuid.UUID
}

// ChargeResult — что вернул шлюз: идентификатор платежа и, для оплаты
// через страницу шлюза, сессия и ссылка на неё.
type ChargeResult struct {
	IntentID          string
	CheckoutSessionID string
	RedirectURL       string
}

// Beneficiary — реквизиты получателя выплаты.
type Beneficiary struct {
	UserID  uuid.UUID
	Name    string
	Email   string
	Bank    string
	Account string
}

// PayoutRequest — выплата студенту.
type PayoutRequest struct {
	AmountCents int64
	Payee       Beneficiary
	Reference   string
}

// PaymentGateway — внешний платёжный шлюз.
type PaymentGateway interface {
	Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
	Refund(ctx context.Context, intentID string, amountCents int64, reason string) (refundID string, err error)
	Payout(ctx context.Context, req PayoutRequest) (payoutID string, err error)
}

// EventLocker не даёт двум экземплярам сервиса обрабатывать одно событие
// шлюза одновременно. ok=false — событие уже обрабатывается.
type EventLocker interface {
	Lock(ctx context.Context, key string) (release func(), ok bool, err error)
}

type noopLocker struct{}

func (noopLocker) Lock(context.Context, string) (func(), bool, error) {
	return func() {}, true, nil
}
