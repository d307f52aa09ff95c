package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/studentmarket-backend/internal/domain/policy"
	"github.com/ignatzorin/studentmarket-backend/internal/domain/valueobject"
	"github.com/ignatzorin/studentmarket-backend/internal/logger"
	"github.com/ignatzorin/studentmarket-backend/internal/models"
	"github.com/ignatzorin/studentmarket-backend/internal/pkg/apperror"
	"github.com/ignatzorin/studentmarket-backend/internal/validation"
)

// ViolationService — модерация помеченных сообщений и наказания авторов.
// Статус блокировки пользователя меняется только здесь.
type ViolationService struct {
	store      Store
	notifier   Notifier
	escalation policy.Escalation
	clock      Clock
}

func NewViolationService(store Store, notifier Notifier, escalation policy.Escalation) *ViolationService {
	return &ViolationService{store: store, notifier: notifier, escalation: escalation, clock: systemClock}
}

// WithClock подменяет источник времени.
func (s *ViolationService) WithClock(clock Clock) *ViolationService {
	s.clock = clock
	return s
}

// ConfirmViolationInput — решение модератора по помеченному сообщению.
type ConfirmViolationInput struct {
	ViolationType  string                  `json:"violation_type" validate:"notblank,max=100"`
	Severity       valueobject.Severity    `json:"severity" validate:"required,oneof=warning minor major critical"`
	PenaltyType    valueobject.PenaltyType `json:"penalty_type" validate:"required,oneof=warning temp_suspension permanent_ban"`
	SuspensionDays *int                    `json:"suspension_days" validate:"omitempty,gt=0,max=3650"`
	AdminNotes     string                  `json:"admin_notes" validate:"max=5000"`
}

// CalculateSuggestedPenalty предлагает наказание по числу прежних нарушений.
func (s *ViolationService) CalculateSuggestedPenalty(ctx context.Context, userID uuid.UUID) (policy.Penalty, error) {
	if _, err := s.store.Users().GetByID(ctx, userID); err != nil {
		return policy.Penalty{}, translate(err)
	}
	count, err := s.store.Violations().CountByUser(ctx, userID)
	if err != nil {
		return policy.Penalty{}, err
	}
	return s.escalation.Suggest(count), nil
}

// SuggestPenaltyFor — CalculateSuggestedPenalty для модератора.
func (s *ViolationService) SuggestPenaltyFor(ctx context.Context, adminID, userID uuid.UUID) (policy.Penalty, error) {
	if err := s.requireModerator(ctx, adminID); err != nil {
		return policy.Penalty{}, err
	}
	return s.CalculateSuggestedPenalty(ctx, userID)
}

// ConfirmViolation записывает нарушение автора сообщения и применяет
// наказание. Пометка сообщения при этом не снимается.
func (s *ViolationService) ConfirmViolation(ctx context.Context, messageID, adminID uuid.UUID, input ConfirmViolationInput) (*models.Violation, error) {
	var (
		violation *models.Violation
		endDate   string
	)
	err := s.store.InTx(ctx, func(tx Repositories) error {
		admin, err := loadActor(ctx, tx.Users(), adminID)
		if err != nil {
			return err
		}
		if err := policy.Authorize(policy.ActionModerate, admin, nil); err != nil {
			return err
		}
		if err := validateViolation(input); err != nil {
			return err
		}

		message, err := tx.Messages().GetByIDForUpdate(ctx, messageID)
		if err != nil {
			return translate(err)
		}
		if !message.IsFlagged {
			return apperror.State("only flagged messages can be confirmed as violations")
		}
		offender, err := tx.Users().GetByID(ctx, message.SenderID)
		if err != nil {
			return translate(err)
		}

		now := s.clock()
		msgID := message.ID
		violation = &models.Violation{
			ID:            uuid.New(),
			UserID:        offender.ID,
			MessageID:     &msgID,
			ViolationType: strings.TrimSpace(input.ViolationType),
			Severity:      input.Severity,
			PenaltyType:   input.PenaltyType,
			AdminNotes:    strings.TrimSpace(input.AdminNotes),
			ConfirmedBy:   adminID,
			CreatedAt:     now,
		}
		if input.PenaltyType == valueobject.PenaltyTempSuspension {
			days := *input.SuspensionDays
			violation.SuspensionDays = &days
		}
		if err := tx.Violations().Create(ctx, violation); err != nil {
			return err
		}

		days := 0
		if violation.SuspensionDays != nil {
			days = *violation.SuspensionDays
		}
		if end, ok := policy.SuspensionFor(input.PenaltyType, days, now); ok {
			end = strongerSuspension(offender, end, now)
			if err := tx.Users().UpdateSuspension(ctx, offender.ID, valueobject.UserStatusSuspended, end); err != nil {
				return err
			}
			if end != nil {
				endDate = end.UTC().Format("January 2, 2006")
			}
		}

		return audit(ctx, tx.Audit(), now, adminID, "violation_confirmed", "user", offender.ID, map[string]interface{}{
			"violation_id":    violation.ID,
			"message_id":      message.ID,
			"violation_type":  violation.ViolationType,
			"severity":        string(violation.Severity),
			"penalty_type":    string(violation.PenaltyType),
			"suspension_days": violation.SuspensionDays,
		})
	})
	if err != nil {
		return nil, err
	}

	logger.Log.WithFields(logrus.Fields{
		"violation_id": violation.ID.String(),
		"user_id":      violation.UserID.String(),
		"penalty_type": string(violation.PenaltyType),
	}).Info("violation confirmed")

	s.notify(ctx, violation.UserID, "violation_confirmed", map[string]interface{}{
		"violation_id": violation.ID,
		"penalty_type": string(violation.PenaltyType),
		"admin_notes":  violation.AdminNotes,
		"message":      penaltyMessage(violation, endDate),
	})
	return violation, nil
}

// strongerSuspension не даёт новому наказанию ослабить уже действующее.
func strongerSuspension(user *models.User, end *time.Time, now time.Time) *time.Time {
	if !policy.IsSuspended(user, now) {
		return end
	}
	if user.SuspensionEndDate == nil {
		return nil
	}
	if end != nil && user.SuspensionEndDate.After(*end) {
		current := *user.SuspensionEndDate
		return &current
	}
	return end
}

func penaltyMessage(v *models.Violation, endDate string) string {
	switch v.PenaltyType {
	case valueobject.PenaltyTempSuspension:
		if endDate == "" {
			return fmt.Sprintf("A policy violation (%s) was confirmed on your account. Your account remains permanently banned.", v.ViolationType)
		}
		return fmt.Sprintf("A policy violation (%s) was confirmed on your account. Your account is suspended until %s.", v.ViolationType, endDate)
	case valueobject.PenaltyPermanentBan:
		return fmt.Sprintf("A policy violation (%s) was confirmed on your account. Your account has been permanently banned.", v.ViolationType)
	}
	return fmt.Sprintf("A policy violation (%s) was confirmed on your account. This is a warning.", v.ViolationType)
}

func validateViolation(input ConfirmViolationInput) error {
	if err := validation.Struct(input); err != nil {
		return err
	}
	if input.PenaltyType == valueobject.PenaltyTempSuspension && input.SuspensionDays == nil {
		return apperror.ValidationField("suspension_days", "suspension_days is required for a temporary suspension")
	}
	return nil
}

// DismissFlag снимает пометку без нарушения.
func (s *ViolationService) DismissFlag(ctx context.Context, messageID, adminID uuid.UUID) (*models.Message, error) {
	var message *models.Message
	err := s.store.InTx(ctx, func(tx Repositories) error {
		admin, err := loadActor(ctx, tx.Users(), adminID)
		if err != nil {
			return err
		}
		if err := policy.Authorize(policy.ActionModerate, admin, nil); err != nil {
			return err
		}
		message, err = tx.Messages().GetByIDForUpdate(ctx, messageID)
		if err != nil {
			return translate(err)
		}
		if !message.IsFlagged {
			return apperror.State("this message is not flagged")
		}

		previousReason := ""
		if message.FlagReason != nil {
			previousReason = *message.FlagReason
		}
		message.IsFlagged = false
		message.FlagReason = nil
		message.FlaggedBy = nil
		if err := tx.Messages().UpdateFlag(ctx, message); err != nil {
			return err
		}
		return audit(ctx, tx.Audit(), s.clock(), adminID, "flag_dismissed", "message", message.ID, map[string]interface{}{
			"flag_reason": previousReason,
		})
	})
	if err != nil {
		return nil, err
	}
	return message, nil
}

// ListViolations — история нарушений пользователя для модератора.
func (s *ViolationService) ListViolations(ctx context.Context, adminID, userID uuid.UUID) ([]models.Violation, error) {
	if err := s.requireModerator(ctx, adminID); err != nil {
		return nil, err
	}
	return s.store.Violations().ListByUser(ctx, userID)
}

// ListFlagged — очередь модерации.
func (s *ViolationService) ListFlagged(ctx context.Context, adminID uuid.UUID, limit, offset int) ([]models.Message, error) {
	if err := s.requireModerator(ctx, adminID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.Messages().ListFlagged(ctx, limit, offset)
}

// AuditTrail — журнал действий над сущностью.
func (s *ViolationService) AuditTrail(ctx context.Context, adminID uuid.UUID, entityType string, entityID uuid.UUID) ([]models.AuditLogEntry, error) {
	if err := s.requireModerator(ctx, adminID); err != nil {
		return nil, err
	}
	return s.store.Audit().ListByEntity(ctx, entityType, entityID)
}

func (s *ViolationService) requireModerator(ctx context.Context, adminID uuid.UUID) error {
	admin, err := loadActor(ctx, s.store.Users(), adminID)
	if err != nil {
		return err
	}
	return policy.Authorize(policy.ActionModerate, admin, nil)
}

func (s *ViolationService) notify(ctx context.Context, userID uuid.UUID, kind string, payload map[string]interface{}) {
	if s.notifier != nil {
		s.notifier.Notify(ctx, userID, kind, payload)
	}
}
