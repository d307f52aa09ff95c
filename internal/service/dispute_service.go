package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/studentmarket-backend/internal/domain/policy"
	"github.com/ignatzorin/studentmarket-backend/internal/domain/valueobject"
	"github.com/ignatzorin/studentmarket-backend/internal/logger"
	"github.com/ignatzorin/studentmarket-backend/internal/models"
	"github.com/ignatzorin/studentmarket-backend/internal/pkg/apperror"
	"github.com/ignatzorin/studentmarket-backend/internal/repository"
	"github.com/ignatzorin/studentmarket-backend/internal/repository/common"
	"github.com/ignatzorin/studentmarket-backend/internal/validation"
)

// DisputeService открывает споры и проводит решение администратора через
// расчёты и статус заказа.
type DisputeService struct {
	store    Store
	payments *PaymentService
	notifier Notifier
	clock    Clock
}

func NewDisputeService(store Store, payments *PaymentService, notifier Notifier) *DisputeService {
	return &DisputeService{store: store, payments: payments, notifier: notifier, clock: systemClock}
}

// WithClock подменяет источник времени.
func (s *DisputeService) WithClock(clock Clock) *DisputeService {
	s.clock = clock
	return s
}

type CreateDisputeInput struct {
	Reason string `json:"reason" validate:"notblank,max=5000"`
}

// ResolveDisputeInput — решение администратора. RefundPercentage нужен
// только для partial_refund.
type ResolveDisputeInput struct {
	Resolution       valueobject.DisputeResolution `json:"resolution" validate:"required,oneof=release_to_student refund_to_client partial_refund"`
	ResolutionNotes  string                        `json:"resolution_notes" validate:"max=5000"`
	AdminNotes       string                        `json:"admin_notes" validate:"max=5000"`
	RefundPercentage *decimal.Decimal              `json:"refund_percentage"`
}

// CreateDispute открывает спор по заказу. Второй открытый спор по тому же
// заказу невозможен.
func (s *DisputeService) CreateDispute(ctx context.Context, userID, orderID uuid.UUID, input CreateDisputeInput) (*models.Dispute, error) {
	if err := validation.Struct(input); err != nil {
		return nil, err
	}

	var (
		dispute *models.Dispute
		order   *models.Order
		opener  *models.User
	)
	err := s.store.InTx(ctx, func(tx Repositories) error {
		var err error
		order, err = tx.Orders().GetByIDForUpdate(ctx, orderID)
		if err != nil {
			return translate(err)
		}
		opener, err = loadActor(ctx, tx.Users(), userID)
		if err != nil {
			return err
		}
		if err := policy.Authorize(policy.ActionOpenDispute, opener, order); err != nil {
			return err
		}
		if order.Status.IsTerminal() {
			return apperror.State(fmt.Sprintf("a dispute cannot be opened on a %s order", order.Status))
		}

		_, err = tx.Disputes().GetOpenByOrderID(ctx, order.ID)
		switch {
		case err == nil:
			return apperror.Duplicate("an open dispute already exists for this order")
		case !errors.Is(err, repository.ErrDisputeNotFound):
			return err
		}

		dispute = &models.Dispute{
			ID:        uuid.New(),
			OrderID:   order.ID,
			OpenedBy:  userID,
			Reason:    strings.TrimSpace(input.Reason),
			Status:    valueobject.DisputeStatusOpen,
			CreatedAt: s.clock(),
		}
		if err := tx.Disputes().Create(ctx, dispute); err != nil {
			if errors.Is(err, common.ErrAlreadyExists) {
				return apperror.Duplicate("an open dispute already exists for this order")
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Log.WithFields(logrus.Fields{
		"dispute_id": dispute.ID.String(),
		"order_id":   order.ID.String(),
		"opened_by":  userID.String(),
	}).Info("dispute opened")

	payload := map[string]interface{}{
		"dispute_id": dispute.ID,
		"order_id":   order.ID,
		"reason":     dispute.Reason,
		"message":    "A dispute has been opened on your order. An administrator will review it.",
	}
	if opener.Role == valueobject.RoleAdmin && !order.IsParticipant(userID) {
		s.notify(ctx, order.ClientID, "dispute_opened", payload)
		s.notify(ctx, order.StudentID, "dispute_opened", payload)
	} else {
		s.notify(ctx, order.Counterparty(userID), "dispute_opened", payload)
	}
	return dispute, nil
}

// ResolveDispute — решение администратора. Любая ошибка оставляет спор
// открытым, а заказ и платежи нетронутыми.
func (s *DisputeService) ResolveDispute(ctx context.Context, disputeID, adminID uuid.UUID, input ResolveDisputeInput) (*models.Dispute, error) {
	var (
		dispute *models.Dispute
		order   *models.Order
	)
	err := s.store.InTx(ctx, func(tx Repositories) error {
		admin, err := loadActor(ctx, tx.Users(), adminID)
		if err != nil {
			return err
		}
		if err := policy.Authorize(policy.ActionResolveDispute, admin, nil); err != nil {
			return err
		}
		if err := validateResolution(input); err != nil {
			return err
		}

		dispute, err = tx.Disputes().GetByIDForUpdate(ctx, disputeID)
		if err != nil {
			return translate(err)
		}
		if dispute.Status != valueobject.DisputeStatusOpen {
			return apperror.State("this dispute has already been resolved")
		}
		order, err = tx.Orders().GetByIDForUpdate(ctx, dispute.OrderID)
		if err != nil {
			return translate(err)
		}

		outcome := input.Resolution.OrderOutcome()
		if err := policy.RequireForcedTransition(order, outcome); err != nil {
			return err
		}
		if outcome == valueobject.OrderStatusCompleted && order.Status == valueobject.OrderStatusPending {
			return apperror.State("the order has not been paid, so funds cannot be released")
		}

		if err := s.applyResolution(ctx, tx, order, input); err != nil {
			return err
		}

		now := s.clock()
		order.Status = outcome
		order.UpdatedAt = now
		if outcome == valueobject.OrderStatusCompleted {
			order.CompletedAt = &now
		}
		if err := tx.Orders().Update(ctx, order); err != nil {
			return err
		}

		resolution := input.Resolution
		dispute.Status = valueobject.DisputeStatusResolved
		dispute.Resolution = &resolution
		dispute.RefundPercentage = nil
		if resolution == valueobject.ResolutionPartialRefund {
			p := input.RefundPercentage.Round(2)
			dispute.RefundPercentage = &p
		}
		dispute.ResolutionNotes = strPtr(strings.TrimSpace(input.ResolutionNotes))
		dispute.AdminNotes = strPtr(strings.TrimSpace(input.AdminNotes))
		dispute.ResolvedBy = &adminID
		dispute.ResolvedAt = &now
		if err := tx.Disputes().Update(ctx, dispute); err != nil {
			return err
		}

		return audit(ctx, tx.Audit(), now, adminID, "dispute_resolved", "dispute", dispute.ID, map[string]interface{}{
			"order_id":   order.ID,
			"resolution": string(resolution),
		})
	})
	if err != nil {
		return nil, err
	}

	logger.Log.WithFields(logrus.Fields{
		"dispute_id": dispute.ID.String(),
		"order_id":   order.ID.String(),
		"resolution": string(input.Resolution),
	}).Info("dispute resolved")

	summary := fmt.Sprintf("Dispute resolved. Resolution: %s.", humanResolution(input.Resolution))
	if notes := strings.TrimSpace(input.ResolutionNotes); notes != "" {
		summary += " Notes: " + notes
	}
	payload := map[string]interface{}{
		"dispute_id": dispute.ID,
		"order_id":   order.ID,
		"resolution": string(input.Resolution),
		"message":    summary,
	}
	s.notify(ctx, order.ClientID, "dispute_resolved", payload)
	s.notify(ctx, order.StudentID, "dispute_resolved", payload)
	return dispute, nil
}

// applyResolution проводит деньги по решению спора внутри транзакции.
func (s *DisputeService) applyResolution(ctx context.Context, tx Repositories, order *models.Order, input ResolveDisputeInput) error {
	reason := "dispute resolution"

	switch input.Resolution {
	case valueobject.ResolutionReleaseToStudent:
		split, err := s.payments.studentShare(ctx, tx, order)
		if err != nil {
			return err
		}
		_, err = s.payments.payoutToStudent(ctx, tx, order, split.Student, split.Commission)
		return err

	case valueobject.ResolutionRefundToClient:
		if order.Status == valueobject.OrderStatusPending {
			return s.payments.settleCancellation(ctx, tx, order, reason)
		}
		_, err := s.payments.refundPayment(ctx, tx, order, nil, reason)
		return err

	case valueobject.ResolutionPartialRefund:
		held, err := s.payments.heldAmount(ctx, tx, order.ID)
		if err != nil {
			return err
		}
		refund, payout, err := valueobject.RefundSplit(decimal.Min(held, order.Price), *input.RefundPercentage)
		if err != nil {
			return err
		}
		if _, err := s.payments.refundPayment(ctx, tx, order, &refund, reason); err != nil {
			return err
		}
		_, err = s.payments.payoutToStudent(ctx, tx, order, payout, decimal.Zero)
		return err
	}
	return apperror.ValidationField("resolution", "unknown resolution")
}

func validateResolution(input ResolveDisputeInput) error {
	if err := validation.Struct(input); err != nil {
		return err
	}
	if input.Resolution != valueobject.ResolutionPartialRefund {
		return nil
	}
	if input.RefundPercentage == nil {
		return apperror.ValidationField("refund_percentage", "refund_percentage is required for a partial refund")
	}
	return valueobject.ValidatePercent("refund_percentage", *input.RefundPercentage)
}

func humanResolution(r valueobject.DisputeResolution) string {
	switch r {
	case valueobject.ResolutionReleaseToStudent:
		return "funds released to the student"
	case valueobject.ResolutionRefundToClient:
		return "full refund to the client"
	case valueobject.ResolutionPartialRefund:
		return "partial refund"
	}
	return string(r)
}

// GetDispute доступен участникам заказа и администраторам.
func (s *DisputeService) GetDispute(ctx context.Context, userID, disputeID uuid.UUID) (*models.Dispute, error) {
	dispute, err := s.store.Disputes().GetByID(ctx, disputeID)
	if err != nil {
		return nil, translate(err)
	}
	if err := s.checkOrderAccess(ctx, userID, dispute.OrderID); err != nil {
		return nil, err
	}
	return dispute, nil
}

// ListDisputes — все споры по заказу, от новых к старым.
func (s *DisputeService) ListDisputes(ctx context.Context, userID, orderID uuid.UUID) ([]models.Dispute, error) {
	if err := s.checkOrderAccess(ctx, userID, orderID); err != nil {
		return nil, err
	}
	return s.store.Disputes().ListByOrder(ctx, orderID)
}

func (s *DisputeService) checkOrderAccess(ctx context.Context, userID, orderID uuid.UUID) error {
	order, err := s.store.Orders().GetByID(ctx, orderID)
	if err != nil {
		return translate(err)
	}
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

func (s *DisputeService) notify(ctx context.Context, userID uuid.UUID, kind string, payload map[string]interface{}) {
	if s.notifier != nil {
		s.notifier.Notify(ctx, userID, kind, payload)
	}
}
