package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/studentmarket-backend/internal/domain/policy"
	"github.com/ignatzorin/studentmarket-backend/internal/domain/valueobject"
	"github.com/ignatzorin/studentmarket-backend/internal/logger"
	"github.com/ignatzorin/studentmarket-backend/internal/models"
	"github.com/ignatzorin/studentmarket-backend/internal/pkg/apperror"
	"github.com/ignatzorin/studentmarket-backend/internal/repository"
	"github.com/ignatzorin/studentmarket-backend/internal/repository/common"
)

// Типы событий шлюза, которые понимает обработчик.
const (
	EventCheckoutCompleted = "checkout.session.completed"
	EventPaymentSucceeded  = "payment_intent.succeeded"
	EventPaymentFailed     = "payment_intent.payment_failed"
	EventChargeRefunded    = "charge.refunded"
)

// WebhookEvent — событие шлюза в общем виде. Payload хранится как есть.
type WebhookEvent struct {
	Provider  string
	EventID   string
	EventType string
	Payload   json.RawMessage
}

// webhookPayload — поля payload, по которым ищется платёж.
type webhookPayload struct {
	CheckoutSessionID string `json:"checkout_session_id"`
	PaymentIntentID   string `json:"payment_intent_id"`
}

var errEventAlreadyProcessed = errors.New("webhook event already processed")

// HandleWebhook обрабатывает событие шлюза не более одного раза.
// processed=false значит, что событие уже было обработано (или
// обрабатывается другим экземпляром) и ничего не изменилось.
func (s *PaymentService) HandleWebhook(ctx context.Context, evt WebhookEvent) (processed bool, err error) {
	fields := map[string]string{}
	if strings.TrimSpace(evt.EventID) == "" {
		fields["event_id"] = "event_id is required"
	}
	if strings.TrimSpace(evt.EventType) == "" {
		fields["event_type"] = "event_type is required"
	}
	if len(fields) > 0 {
		return false, apperror.Validation(fields)
	}
	if evt.Provider == "" {
		evt.Provider = "generic"
	}

	log := logger.Log.WithFields(logrus.Fields{
		"event_id":   evt.EventID,
		"event_type": evt.EventType,
		"provider":   evt.Provider,
	})

	release, ok, err := s.locker.Lock(ctx, "webhook:"+evt.EventID)
	if err != nil {
		return false, fmt.Errorf("webhook: lock %s: %w", evt.EventID, err)
	}
	if !ok {
		log.Info("webhook: event is being processed by another worker")
		return false, nil
	}
	defer release()

	exists, err := s.store.Webhooks().Exists(ctx, evt.EventID)
	if err != nil {
		return false, err
	}
	if exists {
		log.Debug("webhook: duplicate delivery ignored")
		return false, nil
	}

	var box outbox
	err = s.store.InTx(ctx, func(tx Repositories) error {
		box = nil
		now := s.clock()

		if err := tx.Webhooks().Insert(ctx, &models.WebhookEvent{
			ID:              uuid.New(),
			Provider:        evt.Provider,
			ExternalEventID: evt.EventID,
			EventType:       evt.EventType,
			Payload:         evt.Payload,
			CreatedAt:       now,
		}); err != nil {
			if errors.Is(err, common.ErrAlreadyExists) {
				return errEventAlreadyProcessed
			}
			return err
		}

		if err := s.applyEvent(ctx, tx, evt, now, &box); err != nil {
			return err
		}
		return tx.Webhooks().MarkProcessed(ctx, evt.EventID, now)
	})
	if errors.Is(err, errEventAlreadyProcessed) {
		log.Debug("webhook: concurrent duplicate ignored")
		return false, nil
	}
	if err != nil {
		log.WithError(err).Error("webhook: processing failed")
		return false, err
	}

	box.flush(ctx, s.notifier)
	return true, nil
}

func (s *PaymentService) applyEvent(ctx context.Context, tx Repositories, evt WebhookEvent, now time.Time, box *outbox) error {
	switch evt.EventType {
	case EventCheckoutCompleted, EventPaymentSucceeded:
		return s.confirmCharge(ctx, tx, evt, now, box)
	case EventPaymentFailed:
		return s.failCharge(ctx, tx, evt, now, box)
	case EventChargeRefunded:
		return s.recordGatewayEvent(ctx, tx, evt, now)
	default:
		logger.Log.WithField("event_type", evt.EventType).Info("webhook: event type ignored")
		return nil
	}
}

// findCharge ищет списание по сессии оплаты или идентификатору платежа.
// nil без ошибки — платёж неизвестен, событие просто записывается.
func (s *PaymentService) findCharge(ctx context.Context, tx Repositories, evt WebhookEvent) (*models.Payment, error) {
	var payload webhookPayload
	if len(evt.Payload) > 0 {
		if err := json.Unmarshal(evt.Payload, &payload); err != nil {
			return nil, apperror.ValidationField("payload", "payload must be a JSON object")
		}
	}

	var (
		payment *models.Payment
		err     error
	)
	switch {
	case payload.CheckoutSessionID != "":
		payment, err = tx.Payments().GetByCheckoutSessionForUpdate(ctx, payload.CheckoutSessionID)
	case payload.PaymentIntentID != "":
		payment, err = tx.Payments().GetByIntentForUpdate(ctx, payload.PaymentIntentID)
	default:
		return nil, apperror.ValidationField("payload", "checkout_session_id or payment_intent_id is required")
	}
	if errors.Is(err, repository.ErrPaymentNotFound) {
		logger.Log.WithFields(logrus.Fields{
			"event_id":            evt.EventID,
			"checkout_session_id": payload.CheckoutSessionID,
			"payment_intent_id":   payload.PaymentIntentID,
		}).Warn("webhook: no payment matches event")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if payment.PaymentIntentID == nil && payload.PaymentIntentID != "" {
		payment.PaymentIntentID = strPtr(payload.PaymentIntentID)
	}
	return payment, nil
}

func stampEvent(payment *models.Payment, evt WebhookEvent, now time.Time) (models.PaymentMetadata, error) {
	meta, err := payment.DecodeMetadata()
	if err != nil {
		return meta, err
	}
	meta.LastEventID = evt.EventID
	meta.LastEventType = evt.EventType
	meta.LastEventAt = &now
	meta.GatewayPayload = evt.Payload
	return meta, nil
}

// confirmCharge отмечает списание успешным. Если заказа ещё нет, он
// создаётся из PendingOrderContext; если заказ ждал оплаты, он переходит
// в работу.
func (s *PaymentService) confirmCharge(ctx context.Context, tx Repositories, evt WebhookEvent, now time.Time, box *outbox) error {
	payment, err := s.findCharge(ctx, tx, evt)
	if err != nil || payment == nil {
		return err
	}
	switch payment.Status {
	case valueobject.PaymentStatusPending:
	case valueobject.PaymentStatusFailed:
		return s.refundLateCapture(ctx, tx, payment, evt, now, box)
	default:
		logger.Log.WithFields(logrus.Fields{
			"payment_id": payment.ID.String(),
			"status":     string(payment.Status),
		}).Info("webhook: charge already settled")
		return nil
	}

	meta, err := stampEvent(payment, evt, now)
	if err != nil {
		return err
	}

	if payment.OrderID == nil {
		if meta.PendingOrder == nil {
			logger.Log.WithField("payment_id", payment.ID.String()).Error("webhook: charge has neither order nor pending order data")
			return nil
		}
		order, err := s.materializeOrder(ctx, tx, meta.PendingOrder, now)
		if err != nil {
			return err
		}
		payment.OrderID = &order.ID
		box.add(order.StudentID, "order_created", map[string]interface{}{
			"order_id": order.ID,
			"deadline": order.Deadline,
			"message":  "You have a new paid order.",
		})
		box.add(order.ClientID, "payment_confirmed", map[string]interface{}{
			"order_id": order.ID,
			"amount":   payment.Amount.StringFixed(2),
		})
	} else {
		order, err := tx.Orders().GetByIDForUpdate(ctx, *payment.OrderID)
		if err != nil {
			return translate(err)
		}
		if order.Status != valueobject.OrderStatusPending {
			return s.refundLateCapture(ctx, tx, payment, evt, now, box)
		}
		if err := policy.RequireTransition(order, valueobject.OrderStatusInProgress); err != nil {
			return err
		}
		order.Status = valueobject.OrderStatusInProgress
		order.UpdatedAt = now
		if err := tx.Orders().Update(ctx, order); err != nil {
			return err
		}
		box.add(order.StudentID, "order_started", map[string]interface{}{
			"order_id": order.ID,
			"deadline": order.Deadline,
			"message":  "Payment received. The order is now in progress.",
		})
		box.add(order.ClientID, "payment_confirmed", map[string]interface{}{
			"order_id": order.ID,
			"amount":   payment.Amount.StringFixed(2),
		})
	}

	payment.Status = valueobject.PaymentStatusSucceeded
	payment.UpdatedAt = now
	if err := payment.SetMetadata(meta); err != nil {
		return err
	}
	return tx.Payments().Update(ctx, payment)
}

// refundLateCapture обрабатывает оплату по списанию, которое площадка уже
// закрыла: заказ отменён, ссылка заменена новой или заказ оплачен другим
// списанием. Деньги фиксируются и сразу возвращаются клиенту целиком.
func (s *PaymentService) refundLateCapture(ctx context.Context, tx Repositories, payment *models.Payment, evt WebhookEvent, now time.Time, box *outbox) error {
	meta, err := stampEvent(payment, evt, now)
	if err != nil {
		return err
	}
	payment.Status = valueobject.PaymentStatusSucceeded
	payment.UpdatedAt = now
	if err := payment.SetMetadata(meta); err != nil {
		return err
	}

	refund, err := s.refundCharge(ctx, tx, payment, nil, "payment received for a closed checkout")
	if err != nil {
		return err
	}

	entityType, entityID := "payment", payment.ID
	clientID := uuid.Nil
	if payment.OrderID != nil {
		order, err := tx.Orders().GetByID(ctx, *payment.OrderID)
		if err != nil {
			return translate(err)
		}
		entityType, entityID = "order", order.ID
		clientID = order.ClientID
	} else if meta.PendingOrder != nil {
		clientID = meta.PendingOrder.ClientID
	}

	logger.Log.WithFields(logrus.Fields{
		"payment_id": payment.ID.String(),
		"event_id":   evt.EventID,
		"amount":     refund.Amount.StringFixed(2),
	}).Warn("webhook: payment for a closed checkout refunded")

	if clientID != uuid.Nil {
		box.add(clientID, "payment_refunded", map[string]interface{}{
			"payment_id": payment.ID,
			"amount":     refund.Amount.StringFixed(2),
			"message":    fmt.Sprintf("Your payment of %s arrived after the checkout was closed and has been refunded.", refund.Amount.StringFixed(2)),
		})
	}
	return systemAudit(ctx, tx.Audit(), now, "late_payment_refunded", entityType, entityID, map[string]interface{}{
		"payment_id": payment.ID,
		"refund_id":  refund.ID,
		"amount":     refund.Amount.StringFixed(2),
	})
}

// materializeOrder создаёт оплаченный заказ из данных, сохранённых при оформлении.
func (s *PaymentService) materializeOrder(ctx context.Context, tx Repositories, pending *models.PendingOrderContext, now time.Time) (*models.Order, error) {
	maxRevisions := pending.MaxRevisions
	if maxRevisions <= 0 {
		maxRevisions = models.DefaultMaxRevisions
	}

	order := &models.Order{
		ID:               uuid.New(),
		ListingID:        pending.ListingID,
		ClientID:         pending.ClientID,
		StudentID:        pending.StudentID,
		Price:            pending.Price,
		CommissionRate:   pending.CommissionRate,
		Requirements:     pending.Requirements,
		RequirementFiles: pq.StringArray(pending.RequirementFiles),
		Deadline:         policy.DeadlineFor(now, pending.DeliveryDays),
		Status:           valueobject.OrderStatusInProgress,
		MaxRevisions:     maxRevisions,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := tx.Orders().Create(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *PaymentService) failCharge(ctx context.Context, tx Repositories, evt WebhookEvent, now time.Time, box *outbox) error {
	payment, err := s.findCharge(ctx, tx, evt)
	if err != nil || payment == nil {
		return err
	}
	if payment.Status != valueobject.PaymentStatusPending {
		return nil
	}

	meta, err := stampEvent(payment, evt, now)
	if err != nil {
		return err
	}
	payment.Status = valueobject.PaymentStatusFailed
	payment.UpdatedAt = now
	if err := payment.SetMetadata(meta); err != nil {
		return err
	}
	if err := tx.Payments().Update(ctx, payment); err != nil {
		return err
	}

	clientID := uuid.Nil
	if payment.OrderID != nil {
		order, err := tx.Orders().GetByID(ctx, *payment.OrderID)
		if err != nil {
			return translate(err)
		}
		clientID = order.ClientID
	} else if meta.PendingOrder != nil {
		clientID = meta.PendingOrder.ClientID
	}
	if clientID != uuid.Nil {
		box.add(clientID, "payment_failed", map[string]interface{}{
			"payment_id": payment.ID,
			"message":    "Your payment could not be completed.",
		})
	}
	return nil
}

// recordGatewayEvent сохраняет событие в metadata без изменения сумм:
// возвраты, инициированные площадкой, уже записаны строками refund.
func (s *PaymentService) recordGatewayEvent(ctx context.Context, tx Repositories, evt WebhookEvent, now time.Time) error {
	payment, err := s.findCharge(ctx, tx, evt)
	if err != nil || payment == nil {
		return err
	}
	meta, err := stampEvent(payment, evt, now)
	if err != nil {
		return err
	}
	payment.UpdatedAt = now
	if err := payment.SetMetadata(meta); err != nil {
		return err
	}
	return tx.Payments().Update(ctx, payment)
}
