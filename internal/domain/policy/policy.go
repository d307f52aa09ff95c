// Package policy — общие правила доступа: кто и в каком статусе заказа может
// выполнить действие, и кого не пускает блокировка аккаунта.
package policy

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/studentmarket-backend/internal/domain/valueobject"
	"github.com/ignatzorin/studentmarket-backend/internal/models"
	"github.com/ignatzorin/studentmarket-backend/internal/pkg/apperror"
)

type Action string

const (
	ActionCreateOrder     Action = "create_order"
	ActionDeliver         Action = "deliver"
	ActionRequestRevision Action = "request_revision"
	ActionComplete        Action = "complete"
	ActionCancel          Action = "cancel"
	ActionOpenDispute     Action = "open_dispute"
	ActionResolveDispute  Action = "resolve_dispute"
	ActionModerate        Action = "moderate"
	ActionCreateListing   Action = "create_listing"
)

// Authorize проверяет роль и причастность к заказу. order может быть nil для
// действий, не привязанных к заказу.
func Authorize(action Action, actor *models.User, order *models.Order) error {
	if actor == nil {
		return apperror.ErrUnauthorized
	}

	switch action {
	case ActionCreateOrder:
		if actor.Role != valueobject.RoleClient {
			return apperror.Authorization("only clients can place orders")
		}
	case ActionCreateListing:
		if actor.Role != valueobject.RoleStudent {
			return apperror.Authorization("only students can offer services")
		}
	case ActionDeliver:
		if actor.Role != valueobject.RoleStudent || !isParty(order.StudentID, actor.ID) {
			return apperror.Authorization("only the order's student can deliver work")
		}
	case ActionRequestRevision, ActionComplete:
		if actor.Role != valueobject.RoleClient || !isParty(order.ClientID, actor.ID) {
			return apperror.Authorization("only the order's client can perform this action")
		}
	case ActionOpenDispute:
		if actor.Role == valueobject.RoleAdmin {
			return nil
		}
		if !isParty(order.ClientID, actor.ID) && !isParty(order.StudentID, actor.ID) {
			return apperror.Authorization("only the order's participants or an admin can open a dispute")
		}
	case ActionCancel, ActionResolveDispute, ActionModerate:
		if actor.Role != valueobject.RoleAdmin {
			return apperror.Authorization("admin role required")
		}
	default:
		return apperror.Authorization(fmt.Sprintf("unknown action %q", action))
	}
	return nil
}

func isParty(owner, actor uuid.UUID) bool {
	return owner != uuid.Nil && owner == actor
}

// RequireTransition проверяет переход участника заказа по графу статусов.
func RequireTransition(order *models.Order, to valueobject.OrderStatus) error {
	if !order.Status.CanTransitionTo(to) {
		return apperror.State(fmt.Sprintf("order in status %q cannot move to %q", order.Status, to))
	}
	return nil
}

// RequireForcedTransition — то же для администратора и разрешения спора.
func RequireForcedTransition(order *models.Order, to valueobject.OrderStatus) error {
	if !order.Status.CanForceTransitionTo(to) {
		return apperror.State(fmt.Sprintf("order in status %q is final and cannot become %q", order.Status, to))
	}
	return nil
}

// CanRequestRevision не зависит от того, кто спрашивает.
func CanRequestRevision(order *models.Order) bool {
	return order.Status == valueobject.OrderStatusDelivered && order.RevisionCount < order.MaxRevisions
}

// DeadlineFor считает срок сдачи в календарных днях.
func DeadlineFor(createdAt time.Time, deliveryDays int) time.Time {
	return createdAt.AddDate(0, 0, deliveryDays)
}
