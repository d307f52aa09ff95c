package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/studentmarket-backend/internal/domain/policy"
	"github.com/ignatzorin/studentmarket-backend/internal/domain/valueobject"
	"github.com/ignatzorin/studentmarket-backend/internal/logger"
	"github.com/ignatzorin/studentmarket-backend/internal/models"
	"github.com/ignatzorin/studentmarket-backend/internal/pkg/apperror"
	"github.com/ignatzorin/studentmarket-backend/internal/repository"
)

// PaymentService считает комиссию, проводит списания, возвраты и выплаты
// через шлюз и хранит след каждой операции в payments.
type PaymentService struct {
	store    Store
	gateway  PaymentGateway
	notifier Notifier
	locker   EventLocker
	clock    Clock
}

// NewPaymentService создаёт сервис расчётов.
func NewPaymentService(store Store, gateway PaymentGateway, notifier Notifier) *PaymentService {
	return &PaymentService{
		store:    store,
		gateway:  gateway,
		notifier: notifier,
		locker:   noopLocker{},
		clock:    systemClock,
	}
}

// WithLocker включает распределённую блокировку обработки вебхуков.
func (s *PaymentService) WithLocker(locker EventLocker) *PaymentService {
	if locker != nil {
		s.locker = locker
	}
	return s
}

// WithClock подменяет источник времени.
func (s *PaymentService) WithClock(clock Clock) *PaymentService {
	s.clock = clock
	return s
}

// CheckoutResult — созданный платёж и ссылка на оплату.
type CheckoutResult struct {
	Payment     *models.Payment `json:"payment"`
	RedirectURL string          `json:"redirect_url,omitempty"`
}

// chargeForOrder создаёт списание по уже существующему заказу. Платёж
// остаётся pending до подтверждения вебхуком. Прежние неоплаченные
// списания заказа помечаются failed: оплатить можно только последнюю ссылку.
func (s *PaymentService) chargeForOrder(ctx context.Context, tx Repositories, order *models.Order) (*CheckoutResult, error) {
	split, err := valueobject.CommissionSplit(order.Price, order.CommissionRate)
	if err != nil {
		return nil, err
	}
	if err := s.supersedePendingCharges(ctx, tx, order.ID); err != nil {
		return nil, err
	}

	paymentID := uuid.New()
	charge, err := s.gateway.Charge(ctx, ChargeRequest{
		AmountCents: valueobject.ToMinorUnits(order.Price),
		Reference:   paymentID.String(),
		Description: fmt.Sprintf("order %s", order.ID),
		CustomerID:  order.ClientID,
	})
	if err != nil {
		return nil, gatewayError("charge", err)
	}

	now := s.clock()
	orderID := order.ID
	payment := &models.Payment{
		ID:                paymentID,
		OrderID:           &orderID,
		PaymentIntentID:   strPtr(charge.IntentID),
		CheckoutSessionID: strPtr(charge.CheckoutSessionID),
		Amount:            order.Price,
		CommissionAmount:  split.Commission,
		StudentAmount:     split.Student,
		RefundAmount:      decimal.Zero,
		Type:              valueobject.PaymentTypeCharge,
		Status:            valueobject.PaymentStatusPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := payment.SetMetadata(models.PaymentMetadata{RedirectURL: charge.RedirectURL}); err != nil {
		return nil, err
	}
	if err := tx.Payments().Create(ctx, payment); err != nil {
		return nil, err
	}

	return &CheckoutResult{Payment: payment, RedirectURL: charge.RedirectURL}, nil
}

func (s *PaymentService) supersedePendingCharges(ctx context.Context, tx Repositories, orderID uuid.UUID) error {
	charges, err := tx.Payments().ListChargesForUpdate(ctx, orderID)
	if err != nil {
		return err
	}
	for i := range charges {
		if charges[i].Status != valueobject.PaymentStatusPending {
			continue
		}
		if err := s.failPendingCharge(ctx, tx, &charges[i], "superseded by a new checkout"); err != nil {
			return err
		}
	}
	return nil
}

func (s *PaymentService) failPendingCharge(ctx context.Context, tx Repositories, charge *models.Payment, reason string) error {
	meta, err := charge.DecodeMetadata()
	if err != nil {
		return err
	}
	meta.Reason = reason
	if err := charge.SetMetadata(meta); err != nil {
		return err
	}
	charge.Status = valueobject.PaymentStatusFailed
	charge.UpdatedAt = s.clock()
	return tx.Payments().Update(ctx, charge)
}

// createCheckout создаёт оплату до появления заказа. Данные заказа лежат
// в metadata платежа и материализуются вебхуком.
func (s *PaymentService) createCheckout(ctx context.Context, tx Repositories, pending models.PendingOrderContext) (*CheckoutResult, error) {
	split, err := valueobject.CommissionSplit(pending.Price, pending.CommissionRate)
	if err != nil {
		return nil, err
	}

	paymentID := uuid.New()
	charge, err := s.gateway.Charge(ctx, ChargeRequest{
		AmountCents: valueobject.ToMinorUnits(pending.Price),
		Reference:   paymentID.String(),
		Description: fmt.Sprintf("service %s", pending.ListingID),
		CustomerID:  pending.ClientID,
	})
	if err != nil {
		return nil, gatewayError("checkout", err)
	}

	now := s.clock()
	payment := &models.Payment{
		ID:                paymentID,
		PaymentIntentID:   strPtr(charge.IntentID),
		CheckoutSessionID: strPtr(charge.CheckoutSessionID),
		Amount:            pending.Price,
		CommissionAmount:  split.Commission,
		StudentAmount:     split.Student,
		RefundAmount:      decimal.Zero,
		Type:              valueobject.PaymentTypeCharge,
		Status:            valueobject.PaymentStatusPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := payment.SetMetadata(models.PaymentMetadata{PendingOrder: &pending, RedirectURL: charge.RedirectURL}); err != nil {
		return nil, err
	}
	if err := tx.Payments().Create(ctx, payment); err != nil {
		return nil, err
	}

	return &CheckoutResult{Payment: payment, RedirectURL: charge.RedirectURL}, nil
}

// payoutToStudent выплачивает студенту amount и записывает строку payout;
// commission — сколько площадка удержала из цены заказа.
func (s *PaymentService) payoutToStudent(ctx context.Context, tx Repositories, order *models.Order, amount, commission decimal.Decimal) (*models.Payment, error) {
	student, err := tx.Users().GetByID(ctx, order.StudentID)
	if err != nil {
		return nil, translate(err)
	}

	now := s.clock()
	orderID := order.ID
	payment := &models.Payment{
		ID:               uuid.New(),
		OrderID:          &orderID,
		Amount:           amount,
		CommissionAmount: commission,
		StudentAmount:    amount,
		RefundAmount:     decimal.Zero,
		Type:             valueobject.PaymentTypePayout,
		Status:           valueobject.PaymentStatusSucceeded,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if amount.IsPositive() {
		payoutID, err := s.gateway.Payout(ctx, PayoutRequest{
			AmountCents: valueobject.ToMinorUnits(amount),
			Payee:       beneficiaryOf(student),
			Reference:   payment.ID.String(),
		})
		if err != nil {
			return nil, gatewayError("payout", err)
		}
		payment.GatewayReference = strPtr(payoutID)
	}

	if err := tx.Payments().Create(ctx, payment); err != nil {
		return nil, err
	}
	return payment, nil
}

func beneficiaryOf(u *models.User) Beneficiary {
	b := Beneficiary{UserID: u.ID, Name: u.Username, Email: u.Email}
	if u.PayoutBank != nil {
		b.Bank = *u.PayoutBank
	}
	if u.PayoutAccount != nil {
		b.Account = *u.PayoutAccount
	}
	return b
}

// refundPayment возвращает клиенту amount (nil — весь остаток) по оплаченному
// списанию заказа. Исходный платёж меняется только после успешного ответа
// шлюза, а ошибка откатывает всю транзакцию вызывающего.
func (s *PaymentService) refundPayment(ctx context.Context, tx Repositories, order *models.Order, amount *decimal.Decimal, reason string) (*models.Payment, error) {
	charge, err := tx.Payments().GetChargeForUpdate(ctx, order.ID)
	if err != nil && !errors.Is(err, repository.ErrPaymentNotFound) {
		return nil, err
	}
	if charge == nil || !charge.Status.IsRefundable() {
		logger.Log.WithFields(logrus.Fields{
			"error":    "payment_not_found",
			"order_id": order.ID.String(),
		}).Error("refund: original charge not found")
		return nil, apperror.PaymentNotFound(fmt.Sprintf("no settled charge found for order %s", order.ID))
	}
	return s.refundCharge(ctx, tx, charge, amount, reason)
}

// refundCharge проводит возврат по конкретному списанию и пишет строку refund.
func (s *PaymentService) refundCharge(ctx context.Context, tx Repositories, charge *models.Payment, amount *decimal.Decimal, reason string) (*models.Payment, error) {
	refundable := charge.RefundableAmount()
	refundAmount := refundable
	if amount != nil {
		refundAmount = amount.Round(2)
	}
	if refundAmount.IsNegative() || refundAmount.GreaterThan(refundable) {
		return nil, apperror.ValidationField("amount", fmt.Sprintf("refund amount must be between 0 and %s", refundable.StringFixed(2)))
	}

	now := s.clock()
	refund := &models.Payment{
		ID:               uuid.New(),
		OrderID:          charge.OrderID,
		Amount:           refundAmount,
		CommissionAmount: decimal.Zero,
		StudentAmount:    decimal.Zero,
		RefundAmount:     decimal.Zero,
		Type:             valueobject.PaymentTypeRefund,
		Status:           valueobject.PaymentStatusSucceeded,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if refundAmount.IsPositive() {
		if charge.PaymentIntentID == nil {
			return nil, apperror.PaymentNotFound(fmt.Sprintf("charge %s has no gateway reference", charge.ID))
		}
		refundID, err := s.gateway.Refund(ctx, *charge.PaymentIntentID, valueobject.ToMinorUnits(refundAmount), reason)
		if err != nil {
			logger.Log.WithFields(logrus.Fields{
				"error":      err.Error(),
				"payment_id": charge.ID.String(),
			}).Error("refund: gateway call failed")
			return nil, gatewayError("refund", err)
		}
		refund.GatewayReference = strPtr(refundID)
	}

	chargeID := charge.ID
	if err := refund.SetMetadata(models.PaymentMetadata{RefundedPayment: &chargeID, Reason: reason}); err != nil {
		return nil, err
	}
	if err := tx.Payments().Create(ctx, refund); err != nil {
		return nil, err
	}

	charge.RefundAmount = charge.RefundAmount.Add(refundAmount)
	if charge.RefundAmount.GreaterThanOrEqual(charge.Amount) {
		charge.Status = valueobject.PaymentStatusRefunded
	} else if charge.RefundAmount.IsPositive() {
		charge.Status = valueobject.PaymentStatusPartiallyRefunded
	}
	charge.UpdatedAt = now
	if err := tx.Payments().Update(ctx, charge); err != nil {
		return nil, err
	}

	return refund, nil
}

// settleCancellation закрывает деньги отменяемого заказа: каждое оплаченное
// списание возвращается целиком, каждое ожидающее помечается failed.
func (s *PaymentService) settleCancellation(ctx context.Context, tx Repositories, order *models.Order, reason string) error {
	charges, err := tx.Payments().ListChargesForUpdate(ctx, order.ID)
	if err != nil {
		return err
	}
	for i := range charges {
		charge := &charges[i]
		switch {
		case charge.Status.IsRefundable():
			if _, err := s.refundCharge(ctx, tx, charge, nil, reason); err != nil {
				return err
			}
		case charge.Status == valueobject.PaymentStatusPending:
			if err := s.failPendingCharge(ctx, tx, charge, reason); err != nil {
				return err
			}
		}
	}
	return nil
}

// heldAmount — сколько денег клиента площадка держит по заказу: сумма
// оплаченных списаний за вычетом уже сделанных возвратов.
func (s *PaymentService) heldAmount(ctx context.Context, tx Repositories, orderID uuid.UUID) (decimal.Decimal, error) {
	charges, err := tx.Payments().ListChargesForUpdate(ctx, orderID)
	if err != nil {
		return decimal.Zero, err
	}
	held := decimal.Zero
	for _, c := range charges {
		if c.Status.IsRefundable() {
			held = held.Add(c.RefundableAmount())
		}
	}
	return held, nil
}

// studentShare делит удерживаемые деньги заказа по ставке комиссии заказа.
// Если часть оплаты уже вернули клиенту, выплата уменьшается соответственно.
func (s *PaymentService) studentShare(ctx context.Context, tx Repositories, order *models.Order) (valueobject.Split, error) {
	held, err := s.heldAmount(ctx, tx, order.ID)
	if err != nil {
		return valueobject.Split{}, err
	}
	if held.GreaterThan(order.Price) {
		held = order.Price
	}
	return valueobject.CommissionSplit(held, order.CommissionRate)
}

// ChargeForOrder повторно выставляет счёт по заказу, который ждёт оплаты.
func (s *PaymentService) ChargeForOrder(ctx context.Context, clientID, orderID uuid.UUID) (*CheckoutResult, error) {
	var result *CheckoutResult
	err := s.store.InTx(ctx, func(tx Repositories) error {
		order, err := tx.Orders().GetByIDForUpdate(ctx, orderID)
		if err != nil {
			return translate(err)
		}
		if order.ClientID != clientID {
			return apperror.Authorization("only the order's client can pay for it")
		}
		if order.Status != valueobject.OrderStatusPending {
			return apperror.State("order is already paid")
		}
		result, err = s.chargeForOrder(ctx, tx, order)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RefundPayment — ручной возврат администратором. amount=nil возвращает весь остаток.
func (s *PaymentService) RefundPayment(ctx context.Context, adminID, orderID uuid.UUID, amount *decimal.Decimal, reason string) (*models.Payment, error) {
	var (
		refund *models.Payment
		order  *models.Order
	)
	err := s.store.InTx(ctx, func(tx Repositories) error {
		admin, err := loadActor(ctx, tx.Users(), adminID)
		if err != nil {
			return err
		}
		if err := policy.Authorize(policy.ActionCancel, admin, nil); err != nil {
			return err
		}

		order, err = tx.Orders().GetByIDForUpdate(ctx, orderID)
		if err != nil {
			return translate(err)
		}

		refund, err = s.refundPayment(ctx, tx, order, amount, reason)
		if err != nil {
			return err
		}
		return audit(ctx, tx.Audit(), s.clock(), adminID, "payment_refunded", "order", order.ID, map[string]interface{}{
			"refund_id": refund.ID,
			"amount":    refund.Amount.StringFixed(2),
			"reason":    reason,
		})
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, order.ClientID, "payment_refunded", map[string]interface{}{
		"order_id": order.ID,
		"amount":   refund.Amount.StringFixed(2),
		"message":  fmt.Sprintf("A refund of %s has been issued for your order.", refund.Amount.StringFixed(2)),
	})
	return refund, nil
}

// PayoutToStudent выплачивает студенту его долю по завершённому заказу,
// если выплаты ещё не было.
func (s *PaymentService) PayoutToStudent(ctx context.Context, adminID, orderID uuid.UUID) (*models.Payment, error) {
	var payout *models.Payment
	err := s.store.InTx(ctx, func(tx Repositories) error {
		admin, err := loadActor(ctx, tx.Users(), adminID)
		if err != nil {
			return err
		}
		if err := policy.Authorize(policy.ActionCancel, admin, nil); err != nil {
			return err
		}
		order, err := tx.Orders().GetByIDForUpdate(ctx, orderID)
		if err != nil {
			return translate(err)
		}
		if order.Status != valueobject.OrderStatusCompleted {
			return apperror.State("payouts are only made for completed orders")
		}
		payments, err := tx.Payments().ListByOrder(ctx, order.ID)
		if err != nil {
			return err
		}
		for _, p := range payments {
			if p.Type == valueobject.PaymentTypePayout {
				return apperror.Duplicate("the student has already been paid for this order")
			}
		}
		split, err := s.studentShare(ctx, tx, order)
		if err != nil {
			return err
		}
		payout, err = s.payoutToStudent(ctx, tx, order, split.Student, split.Commission)
		return err
	})
	if err != nil {
		return nil, err
	}
	return payout, nil
}

// ListPayments возвращает движения денег по заказу его участникам и администраторам.
func (s *PaymentService) ListPayments(ctx context.Context, userID, orderID uuid.UUID) ([]models.Payment, error) {
	order, err := s.store.Orders().GetByID(ctx, orderID)
	if err != nil {
		return nil, translate(err)
	}
	user, err := loadActor(ctx, s.store.Users(), userID)
	if err != nil {
		return nil, err
	}
	if !order.IsParticipant(userID) && user.Role != valueobject.RoleAdmin {
		return nil, apperror.ErrForbidden
	}
	return s.store.Payments().ListByOrder(ctx, orderID)
}

func (s *PaymentService) notify(ctx context.Context, userID uuid.UUID, kind string, payload map[string]interface{}) {
	if s.notifier != nil {
		s.notifier.Notify(ctx, userID, kind, payload)
	}
}

func gatewayError(op string, err error) error {
	return apperror.Wrap(err, apperror.ErrCodeGateway, fmt.Sprintf("payment gateway %s failed", op))
}

func rawJSON(v interface{}) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return raw
}
