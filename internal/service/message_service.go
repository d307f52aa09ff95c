package service

import (
	"context"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/studentmarket-backend/internal/domain/policy"
	"github.com/ignatzorin/studentmarket-backend/internal/domain/valueobject"
	"github.com/ignatzorin/studentmarket-backend/internal/logger"
	"github.com/ignatzorin/studentmarket-backend/internal/models"
	"github.com/ignatzorin/studentmarket-backend/internal/pkg/apperror"
	"github.com/ignatzorin/studentmarket-backend/internal/validation"
)

// Попытки увести сделку с площадки: e-mail, телефон, мессенджеры.
var (
	emailPattern     = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	phonePattern     = regexp.MustCompile(`\+?\d[\d\s\-()]{8,}\d`)
	messengerPattern = regexp.MustCompile(`(?i)\b(telegram|whatsapp|wechat|signal|skype|discord)\b|t\.me/`)
)

// MessageService — переписка участников заказа и пометки для модерации.
type MessageService struct {
	store    Store
	notifier Notifier
	clock    Clock
}

func NewMessageService(store Store, notifier Notifier) *MessageService {
	return &MessageService{store: store, notifier: notifier, clock: systemClock}
}

// WithClock подменяет источник времени.
func (s *MessageService) WithClock(clock Clock) *MessageService {
	s.clock = clock
	return s
}

type SendMessageInput struct {
	Content string `json:"content" validate:"notblank,max=5000"`
}

type ReportMessageInput struct {
	Reason string `json:"reason" validate:"notblank,max=5000"`
}

// detectContactSharing возвращает причину автоматической пометки или "".
func detectContactSharing(content string) string {
	switch {
	case emailPattern.MatchString(content):
		return "auto: email address shared"
	case messengerPattern.MatchString(content):
		return "auto: external messenger mentioned"
	case phonePattern.MatchString(content):
		return "auto: phone number shared"
	}
	return ""
}

// SendMessage отправляет сообщение второму участнику заказа. Сообщения
// с контактами помечаются для модерации, но доставляются.
func (s *MessageService) SendMessage(ctx context.Context, senderID, orderID uuid.UUID, input SendMessageInput) (*models.Message, error) {
	sender, err := loadActor(ctx, s.store.Users(), senderID)
	if err != nil {
		return nil, err
	}
	now := s.clock()
	if err := policy.CheckSuspension(sender, now, policy.SubjectSelf); err != nil {
		return nil, err
	}
	if err := validation.Struct(input); err != nil {
		return nil, err
	}

	order, err := s.store.Orders().GetByID(ctx, orderID)
	if err != nil {
		return nil, translate(err)
	}
	if !order.IsParticipant(senderID) {
		return nil, apperror.Authorization("only the order's participants can exchange messages")
	}

	content := strings.TrimSpace(input.Content)
	message := &models.Message{
		ID:          uuid.New(),
		OrderID:     order.ID,
		SenderID:    senderID,
		RecipientID: order.Counterparty(senderID),
		Content:     content,
		CreatedAt:   now,
	}
	if reason := detectContactSharing(content); reason != "" {
		message.IsFlagged = true
		message.FlagReason = strPtr(reason)
		logger.Log.WithFields(logrus.Fields{
			"message_id": message.ID.String(),
			"sender_id":  senderID.String(),
			"reason":     reason,
		}).Info("message flagged automatically")
	}
	if err := s.store.Messages().Create(ctx, message); err != nil {
		return nil, err
	}

	s.notify(ctx, message.RecipientID, "new_message", map[string]interface{}{
		"order_id":   order.ID,
		"message_id": message.ID,
		"sender_id":  senderID,
	})
	return message, nil
}

// ReportMessage — получатель отправляет сообщение на модерацию.
func (s *MessageService) ReportMessage(ctx context.Context, reporterID, messageID uuid.UUID, input ReportMessageInput) (*models.Message, error) {
	if err := validation.Struct(input); err != nil {
		return nil, err
	}

	var message *models.Message
	err := s.store.InTx(ctx, func(tx Repositories) error {
		var err error
		message, err = tx.Messages().GetByIDForUpdate(ctx, messageID)
		if err != nil {
			return translate(err)
		}
		reporter, err := loadActor(ctx, tx.Users(), reporterID)
		if err != nil {
			return err
		}
		if message.RecipientID != reporterID && reporter.Role != valueobject.RoleAdmin {
			return apperror.Authorization("only the recipient can report this message")
		}
		if message.IsFlagged {
			return nil
		}

		reporterRef := reporterID
		message.IsFlagged = true
		message.FlagReason = strPtr(strings.TrimSpace(input.Reason))
		message.FlaggedBy = &reporterRef
		return tx.Messages().UpdateFlag(ctx, message)
	})
	if err != nil {
		return nil, err
	}
	return message, nil
}

// ListMessages — переписка по заказу для участников и администраторов.
func (s *MessageService) ListMessages(ctx context.Context, userID, orderID uuid.UUID, limit, offset int) ([]models.Message, error) {
	order, err := s.store.Orders().GetByID(ctx, orderID)
	if err != nil {
		return nil, translate(err)
	}
	if !order.IsParticipant(userID) {
		user, err := loadActor(ctx, s.store.Users(), userID)
		if err != nil {
			return nil, err
		}
		if user.Role != valueobject.RoleAdmin {
			return nil, apperror.ErrForbidden
		}
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.Messages().ListByOrder(ctx, orderID, limit, offset)
}

func (s *MessageService) notify(ctx context.Context, userID uuid.UUID, kind string, payload map[string]interface{}) {
	if s.notifier != nil {
		s.notifier.Notify(ctx, userID, kind, payload)
	}
}
