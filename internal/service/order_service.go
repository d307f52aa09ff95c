package service

import (
	"context"
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
	"github.com/ignatzorin/studentmarket-backend/internal/validation"
)

// OrderService ведёт заказ по жизненному циклу: оплата, сдачи, доработки,
// приёмка и отмена администратором.
type OrderService struct {
	store        Store
	payments     *PaymentService
	commission   CommissionSource
	notifier     Notifier
	clock        Clock
	maxRevisions int
}

// NewOrderService создаёт сервис заказов. maxRevisions <= 0 — значение по умолчанию.
func NewOrderService(store Store, payments *PaymentService, commission CommissionSource, notifier Notifier, maxRevisions int) *OrderService {
	if maxRevisions <= 0 {
		maxRevisions = models.DefaultMaxRevisions
	}
	return &OrderService{
		store:        store,
		payments:     payments,
		commission:   commission,
		notifier:     notifier,
		clock:        systemClock,
		maxRevisions: maxRevisions,
	}
}

// WithClock подменяет источник времени.
func (s *OrderService) WithClock(clock Clock) *OrderService {
	s.clock = clock
	return s
}

// CreateOrderInput — данные заказа от клиента.
type CreateOrderInput struct {
	ServiceID        uuid.UUID `json:"service_id" validate:"required"`
	Requirements     string    `json:"requirements" validate:"notblank,max=10000"`
	RequirementFiles []string  `json:"requirement_files" validate:"max=20,dive,notblank"`
}

// CreateOrderResult — заказ и счёт на оплату.
type CreateOrderResult struct {
	Order       *models.Order   `json:"order"`
	Payment     *models.Payment `json:"payment"`
	RedirectURL string          `json:"redirect_url,omitempty"`
}

// DeliverInput — сдача работы студентом.
type DeliverInput struct {
	Message string   `json:"message" validate:"notblank,max=5000"`
	Files   []string `json:"files" validate:"max=20,dive,notblank"`
}

// RevisionInput — причина запроса доработки.
type RevisionInput struct {
	Reason string `json:"reason" validate:"notblank,max=5000"`
}

// CancelInput — причина отмены администратором.
type CancelInput struct {
	Reason string `json:"reason" validate:"notblank,max=5000"`
}

type orderParties struct {
	client  *models.User
	student *models.User
	listing *models.Listing
}

// prepareOrder проверяет клиента, услугу и продавца перед оформлением.
func (s *OrderService) prepareOrder(ctx context.Context, tx Repositories, clientID uuid.UUID, input CreateOrderInput, now time.Time) (*orderParties, error) {
	client, err := loadActor(ctx, tx.Users(), clientID)
	if err != nil {
		return nil, err
	}
	if err := policy.Authorize(policy.ActionCreateOrder, client, nil); err != nil {
		return nil, err
	}
	if err := policy.CheckSuspension(client, now, policy.SubjectSelf); err != nil {
		return nil, err
	}
	if err := validation.Struct(input); err != nil {
		return nil, err
	}

	listing, err := tx.Listings().GetByID(ctx, input.ServiceID)
	if err != nil {
		return nil, translate(err)
	}
	if !listing.IsActive {
		return nil, apperror.State("this service is not available for ordering")
	}

	student, err := tx.Users().GetByID(ctx, listing.StudentID)
	if err != nil {
		return nil, translate(err)
	}
	if err := policy.CheckSuspension(student, now, policy.SubjectSeller); err != nil {
		return nil, err
	}

	return &orderParties{client: client, student: student, listing: listing}, nil
}

// CreateOrder оформляет заказ в статусе pending и выставляет счёт. Заказ
// переходит в работу после подтверждения оплаты шлюзом.
func (s *OrderService) CreateOrder(ctx context.Context, clientID uuid.UUID, input CreateOrderInput) (*CreateOrderResult, error) {
	rate, err := s.commission.CommissionRate(ctx)
	if err != nil {
		return nil, fmt.Errorf("order service: commission rate: %w", err)
	}

	var result *CreateOrderResult
	err = s.store.InTx(ctx, func(tx Repositories) error {
		now := s.clock()
		parties, err := s.prepareOrder(ctx, tx, clientID, input, now)
		if err != nil {
			return err
		}

		order := &models.Order{
			ID:               uuid.New(),
			ListingID:        parties.listing.ID,
			ClientID:         clientID,
			StudentID:        parties.listing.StudentID,
			Price:            parties.listing.Price,
			CommissionRate:   rate,
			Requirements:     strings.TrimSpace(input.Requirements),
			RequirementFiles: pq.StringArray(input.RequirementFiles),
			Deadline:         policy.DeadlineFor(now, parties.listing.DeliveryDays),
			Status:           valueobject.OrderStatusPending,
			MaxRevisions:     s.maxRevisions,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := tx.Orders().Create(ctx, order); err != nil {
			return err
		}

		checkout, err := s.payments.chargeForOrder(ctx, tx, order)
		if err != nil {
			return err
		}
		result = &CreateOrderResult{Order: order, Payment: checkout.Payment, RedirectURL: checkout.RedirectURL}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Log.WithFields(logrus.Fields{
		"order_id":  result.Order.ID.String(),
		"client_id": clientID.String(),
	}).Info("order created")

	s.notify(ctx, result.Order.StudentID, "order_created", map[string]interface{}{
		"order_id": result.Order.ID,
		"deadline": result.Order.Deadline,
		"message":  "You have received a new order.",
	})
	return result, nil
}

// StartCheckout создаёт только оплату: заказ появится после подтверждения
// шлюзом и получит срок от момента оплаты.
func (s *OrderService) StartCheckout(ctx context.Context, clientID uuid.UUID, input CreateOrderInput) (*CheckoutResult, error) {
	rate, err := s.commission.CommissionRate(ctx)
	if err != nil {
		return nil, fmt.Errorf("order service: commission rate: %w", err)
	}

	var result *CheckoutResult
	err = s.store.InTx(ctx, func(tx Repositories) error {
		parties, err := s.prepareOrder(ctx, tx, clientID, input, s.clock())
		if err != nil {
			return err
		}
		result, err = s.payments.createCheckout(ctx, tx, models.PendingOrderContext{
			ClientID:         clientID,
			StudentID:        parties.listing.StudentID,
			ListingID:        parties.listing.ID,
			Requirements:     strings.TrimSpace(input.Requirements),
			RequirementFiles: input.RequirementFiles,
			Price:            parties.listing.Price,
			CommissionRate:   rate,
			DeliveryDays:     parties.listing.DeliveryDays,
			MaxRevisions:     s.maxRevisions,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// DeliverOrder — студент сдаёт работу до дедлайна.
func (s *OrderService) DeliverOrder(ctx context.Context, studentID, orderID uuid.UUID, input DeliverInput) (*models.Order, error) {
	if err := validation.Struct(input); err != nil {
		return nil, err
	}

	var order *models.Order
	err := s.store.InTx(ctx, func(tx Repositories) error {
		var err error
		order, err = tx.Orders().GetByIDForUpdate(ctx, orderID)
		if err != nil {
			return translate(err)
		}
		student, err := loadActor(ctx, tx.Users(), studentID)
		if err != nil {
			return err
		}
		if err := policy.Authorize(policy.ActionDeliver, student, order); err != nil {
			return err
		}
		if err := ensureNoOpenDispute(ctx, tx.Disputes(), order.ID); err != nil {
			return err
		}
		if !order.Status.IsDeliverable() {
			return apperror.State(fmt.Sprintf("work cannot be delivered while the order is %q", order.Status))
		}

		now := s.clock()
		if now.After(order.Deadline) {
			return apperror.Deadline(fmt.Sprintf("the delivery deadline passed on %s", order.Deadline.UTC().Format(time.RFC1123)))
		}

		if err := tx.Orders().MarkAllDeliveriesNotCurrent(ctx, order.ID); err != nil {
			return err
		}
		entry := &models.DeliveryHistoryEntry{
			ID:             uuid.New(),
			OrderID:        order.ID,
			DeliveryNumber: order.DeliveryCount + 1,
			Message:        strings.TrimSpace(input.Message),
			Files:          pq.StringArray(input.Files),
			DeliveredAt:    now,
			IsCurrent:      true,
		}
		if err := tx.Orders().CreateDelivery(ctx, entry); err != nil {
			return err
		}

		order.DeliveryCount = entry.DeliveryNumber
		order.CurrentDeliveryID = &entry.ID
		order.Status = valueobject.OrderStatusDelivered
		order.UpdatedAt = now
		return tx.Orders().Update(ctx, order)
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, order.ClientID, "order_delivered", map[string]interface{}{
		"order_id":        order.ID,
		"delivery_number": order.DeliveryCount,
		"message":         "The student has delivered your order.",
	})
	return order, nil
}

// RequestRevision — клиент возвращает сданную работу на доработку в пределах лимита.
func (s *OrderService) RequestRevision(ctx context.Context, clientID, orderID uuid.UUID, input RevisionInput) (*models.Order, error) {
	if err := validation.Struct(input); err != nil {
		return nil, err
	}

	var order *models.Order
	err := s.store.InTx(ctx, func(tx Repositories) error {
		var err error
		order, err = tx.Orders().GetByIDForUpdate(ctx, orderID)
		if err != nil {
			return translate(err)
		}
		client, err := loadActor(ctx, tx.Users(), clientID)
		if err != nil {
			return err
		}
		if err := policy.Authorize(policy.ActionRequestRevision, client, order); err != nil {
			return err
		}
		if err := ensureNoOpenDispute(ctx, tx.Disputes(), order.ID); err != nil {
			return err
		}
		if err := policy.RequireTransition(order, valueobject.OrderStatusRevisionRequested); err != nil {
			return err
		}
		if !policy.CanRequestRevision(order) {
			return apperror.LimitExceeded(fmt.Sprintf("the revision limit of %d has been reached", order.MaxRevisions))
		}

		now := s.clock()
		if err := tx.Orders().MarkAllRevisionsNotCurrent(ctx, order.ID); err != nil {
			return err
		}
		entry := &models.RevisionHistoryEntry{
			ID:             uuid.New(),
			OrderID:        order.ID,
			RevisionNumber: order.RevisionHistoryCount + 1,
			RevisionReason: strings.TrimSpace(input.Reason),
			RequestedBy:    clientID,
			RequestedAt:    now,
			IsCurrent:      true,
		}
		if err := tx.Orders().CreateRevision(ctx, entry); err != nil {
			return err
		}

		order.RevisionCount++
		order.RevisionHistoryCount = entry.RevisionNumber
		order.CurrentRevisionID = &entry.ID
		order.Status = valueobject.OrderStatusRevisionRequested
		order.UpdatedAt = now
		return tx.Orders().Update(ctx, order)
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, order.StudentID, "revision_requested", map[string]interface{}{
		"order_id":        order.ID,
		"revision_number": order.RevisionHistoryCount,
		"reason":          strings.TrimSpace(input.Reason),
	})
	return order, nil
}

// CompleteOrder — приёмка работы клиентом и выплата студенту его доли.
func (s *OrderService) CompleteOrder(ctx context.Context, clientID, orderID uuid.UUID) (*models.Order, error) {
	var (
		order  *models.Order
		payout *models.Payment
	)
	err := s.store.InTx(ctx, func(tx Repositories) error {
		var err error
		order, err = tx.Orders().GetByIDForUpdate(ctx, orderID)
		if err != nil {
			return translate(err)
		}
		client, err := loadActor(ctx, tx.Users(), clientID)
		if err != nil {
			return err
		}
		if err := policy.Authorize(policy.ActionComplete, client, order); err != nil {
			return err
		}
		if err := ensureNoOpenDispute(ctx, tx.Disputes(), order.ID); err != nil {
			return err
		}
		if err := policy.RequireTransition(order, valueobject.OrderStatusCompleted); err != nil {
			return err
		}

		now := s.clock()
		order.Status = valueobject.OrderStatusCompleted
		order.CompletedAt = &now
		order.UpdatedAt = now
		if err := tx.Orders().Update(ctx, order); err != nil {
			return err
		}

		split, err := s.payments.studentShare(ctx, tx, order)
		if err != nil {
			return err
		}
		payout, err = s.payments.payoutToStudent(ctx, tx, order, split.Student, split.Commission)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, order.StudentID, "order_completed", map[string]interface{}{
		"order_id": order.ID,
		"payout":   payout.Amount.StringFixed(2),
		"message":  fmt.Sprintf("The client accepted your work. %s has been paid out.", payout.Amount.StringFixed(2)),
	})
	s.notify(ctx, order.ClientID, "order_completed", map[string]interface{}{
		"order_id": order.ID,
		"message":  "You have accepted the delivery. The order is complete.",
	})
	return order, nil
}

// CancelOrder — отмена администратором из любого незавершённого статуса.
// Оплаченное списание возвращается клиенту, неоплаченное помечается failed.
func (s *OrderService) CancelOrder(ctx context.Context, adminID, orderID uuid.UUID, input CancelInput) (*models.Order, error) {
	if err := validation.Struct(input); err != nil {
		return nil, err
	}
	reason := strings.TrimSpace(input.Reason)

	var order *models.Order
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
		if err := policy.RequireForcedTransition(order, valueobject.OrderStatusCancelled); err != nil {
			return err
		}
		if err := ensureNoOpenDispute(ctx, tx.Disputes(), order.ID); err != nil {
			return err
		}

		now := s.clock()
		if err := s.payments.settleCancellation(ctx, tx, order, reason); err != nil {
			return err
		}

		order.Status = valueobject.OrderStatusCancelled
		order.UpdatedAt = now
		if err := tx.Orders().Update(ctx, order); err != nil {
			return err
		}
		return audit(ctx, tx.Audit(), now, adminID, "order_cancelled", "order", order.ID, map[string]interface{}{
			"reason": reason,
		})
	})
	if err != nil {
		return nil, err
	}

	payload := map[string]interface{}{
		"order_id": order.ID,
		"reason":   reason,
		"message":  fmt.Sprintf("The order was cancelled by an administrator. Reason: %s", reason),
	}
	s.notify(ctx, order.ClientID, "order_cancelled", payload)
	s.notify(ctx, order.StudentID, "order_cancelled", payload)
	return order, nil
}

// CanRequestRevision отвечает, доступна ли сейчас доработка по заказу.
func (s *OrderService) CanRequestRevision(ctx context.Context, orderID uuid.UUID) (bool, error) {
	order, err := s.store.Orders().GetByID(ctx, orderID)
	if err != nil {
		return false, translate(err)
	}
	return policy.CanRequestRevision(order), nil
}

// GetOrder доступен участникам заказа и администраторам.
func (s *OrderService) GetOrder(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.store.Orders().GetByID(ctx, orderID)
	if err != nil {
		return nil, translate(err)
	}
	if err := s.checkReadAccess(ctx, userID, order); err != nil {
		return nil, err
	}
	return order, nil
}

// ListOrders — заказы, где пользователь клиент или студент.
func (s *OrderService) ListOrders(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Order, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.Orders().ListByParticipant(ctx, userID, limit, offset)
}

// ListDeliveries — история сдач по заказу.
func (s *OrderService) ListDeliveries(ctx context.Context, userID, orderID uuid.UUID) ([]models.DeliveryHistoryEntry, error) {
	if _, err := s.GetOrder(ctx, userID, orderID); err != nil {
		return nil, err
	}
	return s.store.Orders().ListDeliveries(ctx, orderID)
}

// ListRevisions — история запросов доработки по заказу.
func (s *OrderService) ListRevisions(ctx context.Context, userID, orderID uuid.UUID) ([]models.RevisionHistoryEntry, error) {
	if _, err := s.GetOrder(ctx, userID, orderID); err != nil {
		return nil, err
	}
	return s.store.Orders().ListRevisions(ctx, orderID)
}

func (s *OrderService) checkReadAccess(ctx context.Context, userID uuid.UUID, order *models.Order) error {
	if order.IsParticipant(userID) {
		return nil
	}
	user, err := loadActor(ctx, s.store.Users(), userID)
	if err != nil {
		return err
	}
	if user.Role != valueobject.RoleAdmin {
		return apperror.ErrForbidden
	}
	return nil
}

func (s *OrderService) notify(ctx context.Context, userID uuid.UUID, kind string, payload map[string]interface{}) {
	if s.notifier != nil {
		s.notifier.Notify(ctx, userID, kind, payload)
	}
}

// ensureNoOpenDispute замораживает заказ, пока по нему идёт спор.
func ensureNoOpenDispute(ctx context.Context, disputes DisputeRepository, orderID uuid.UUID) error {
	_, err := disputes.GetOpenByOrderID(ctx, orderID)
	switch {
	case err == nil:
		return apperror.State("the order has an open dispute awaiting admin resolution")
	case errors.Is(err, repository.ErrDisputeNotFound):
		return nil
	default:
		return err
	}
}
