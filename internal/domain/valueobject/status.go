package valueobject

type OrderStatus string

const (
	OrderStatusPending           OrderStatus = "pending"
	OrderStatusInProgress        OrderStatus = "in_progress"
	OrderStatusDelivered         OrderStatus = "delivered"
	OrderStatusRevisionRequested OrderStatus = "revision_requested"
	OrderStatusCompleted         OrderStatus = "completed"
	OrderStatusCancelled         OrderStatus = "cancelled"
)

// orderTransitions — переходы, доступные участникам заказа (клиенту, студенту)
// и системе подтверждения оплаты. Отмена и принудительное завершение идут
// через CanForceTransitionTo.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:           {OrderStatusInProgress},
	OrderStatusInProgress:        {OrderStatusDelivered},
	OrderStatusDelivered:         {OrderStatusRevisionRequested, OrderStatusCompleted},
	OrderStatusRevisionRequested: {OrderStatusDelivered},
	OrderStatusCompleted:         {},
	OrderStatusCancelled:         {},
}

func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusPending, OrderStatusInProgress, OrderStatusDelivered,
		OrderStatusRevisionRequested, OrderStatusCompleted, OrderStatusCancelled:
		return true
	}
	return false
}

// IsTerminal — completed и cancelled неизменяемы.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

func (s OrderStatus) CanTransitionTo(newStatus OrderStatus) bool {
	for _, status := range orderTransitions[s] {
		if status == newStatus {
			return true
		}
	}
	return false
}

// CanForceTransitionTo — переходы администратора и разрешения спора:
// любой нетерминальный статус может стать completed или cancelled.
func (s OrderStatus) CanForceTransitionTo(newStatus OrderStatus) bool {
	if !s.IsValid() || s.IsTerminal() {
		return false
	}
	return newStatus == OrderStatusCompleted || newStatus == OrderStatusCancelled
}

// IsDeliverable — статусы, в которых студент может сдать работу.
func (s OrderStatus) IsDeliverable() bool {
	return s == OrderStatusInProgress || s == OrderStatusRevisionRequested
}

type Role string

const (
	RoleClient  Role = "client"
	RoleStudent Role = "student"
	RoleAdmin   Role = "admin"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleClient, RoleStudent, RoleAdmin:
		return true
	}
	return false
}

type UserStatus string

const (
	UserStatusActive    UserStatus = "active"
	UserStatusSuspended UserStatus = "suspended"
)

func (s UserStatus) IsValid() bool {
	return s == UserStatusActive || s == UserStatusSuspended
}

type PaymentType string

const (
	PaymentTypeCharge PaymentType = "charge"
	PaymentTypeRefund PaymentType = "refund"
	PaymentTypePayout PaymentType = "payout"
)

type PaymentStatus string

const (
	PaymentStatusPending           PaymentStatus = "pending"
	PaymentStatusSucceeded         PaymentStatus = "succeeded"
	PaymentStatusFailed            PaymentStatus = "failed"
	PaymentStatusPartiallyRefunded PaymentStatus = "partially_refunded"
	PaymentStatusRefunded          PaymentStatus = "refunded"
)

// IsRefundable — по платежу были получены деньги и их ещё можно вернуть.
func (s PaymentStatus) IsRefundable() bool {
	return s == PaymentStatusSucceeded || s == PaymentStatusPartiallyRefunded
}

type DisputeStatus string

const (
	DisputeStatusOpen     DisputeStatus = "open"
	DisputeStatusResolved DisputeStatus = "resolved"
)

type DisputeResolution string

const (
	ResolutionReleaseToStudent DisputeResolution = "release_to_student"
	ResolutionRefundToClient   DisputeResolution = "refund_to_client"
	ResolutionPartialRefund    DisputeResolution = "partial_refund"
)

func (r DisputeResolution) IsValid() bool {
	switch r {
	case ResolutionReleaseToStudent, ResolutionRefundToClient, ResolutionPartialRefund:
		return true
	}
	return false
}

// OrderOutcome — статус заказа после разрешения спора.
func (r DisputeResolution) OrderOutcome() OrderStatus {
	if r == ResolutionRefundToClient {
		return OrderStatusCancelled
	}
	return OrderStatusCompleted
}

type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityMinor    Severity = "minor"
	SeverityMajor    Severity = "major"
	SeverityCritical Severity = "critical"
)

func (s Severity) IsValid() bool {
	switch s {
	case SeverityWarning, SeverityMinor, SeverityMajor, SeverityCritical:
		return true
	}
	return false
}

type PenaltyType string

const (
	PenaltyWarning        PenaltyType = "warning"
	PenaltyTempSuspension PenaltyType = "temp_suspension"
	PenaltyPermanentBan   PenaltyType = "permanent_ban"
)

func (p PenaltyType) IsValid() bool {
	switch p {
	case PenaltyWarning, PenaltyTempSuspension, PenaltyPermanentBan:
		return true
	}
	return false
}

// Rank упорядочивает наказания по строгости.
func (p PenaltyType) Rank() int {
	switch p {
	case PenaltyWarning:
		return 1
	case PenaltyTempSuspension:
		return 2
	case PenaltyPermanentBan:
		return 3
	}
	return 0
}
