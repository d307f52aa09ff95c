package service

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/studentmarket-backend/internal/logger"
	"github.com/ignatzorin/studentmarket-backend/internal/models"
	"github.com/ignatzorin/studentmarket-backend/internal/pkg/apperror"
	"github.com/ignatzorin/studentmarket-backend/internal/repository"
)

// NotificationRepository описывает взаимодействие сервиса с хранилищем уведомлений.
type NotificationRepository interface {
	Create(ctx context.Context, notification *models.Notification) error
	List(ctx context.Context, userID uuid.UUID, limit, offset int, unreadOnly bool) ([]models.Notification, error)
	MarkAsRead(ctx context.Context, userID, id uuid.UUID) error
	MarkAllAsRead(ctx context.Context, userID uuid.UUID) error
	CountUnread(ctx context.Context, userID uuid.UUID) (int, error)
}

// Pusher доставляет событие в открытые WebSocket-соединения пользователя.
type Pusher interface {
	Push(userID uuid.UUID, event string, data interface{}) error
}

// NotificationService сохраняет уведомления и отправляет их онлайн-клиентам.
// Реализует Notifier: ошибки только логируются.
type NotificationService struct {
	repo   NotificationRepository
	pusher Pusher
}

// NewNotificationService создаёт новый сервис уведомлений. pusher может быть nil.
func NewNotificationService(repo NotificationRepository, pusher Pusher) *NotificationService {
	return &NotificationService{repo: repo, pusher: pusher}
}

// Notify сохраняет уведомление и пытается доставить его сразу.
func (s *NotificationService) Notify(ctx context.Context, userID uuid.UUID, kind string, payload map[string]interface{}) {
	log := logger.Log.WithFields(logrus.Fields{
		"user_id": userID.String(),
		"kind":    kind,
	})

	raw, err := json.Marshal(payload)
	if err != nil {
		log.WithError(err).Error("notification: marshal payload")
		return
	}

	notification := &models.Notification{
		UserID:  userID,
		Kind:    kind,
		Payload: raw,
	}
	if err := s.repo.Create(ctx, notification); err != nil {
		log.WithError(err).Error("notification: save failed")
	}

	if s.pusher == nil {
		return
	}
	if err := s.pusher.Push(userID, kind, notification); err != nil {
		log.WithError(err).Warn("notification: push failed")
	}
}

// ListNotifications возвращает список уведомлений пользователя.
func (s *NotificationService) ListNotifications(ctx context.Context, userID uuid.UUID, limit, offset int, unreadOnly bool) ([]models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	return s.repo.List(ctx, userID, limit, offset, unreadOnly)
}

// MarkAsRead отмечает уведомление как прочитанное. Чужое уведомление
// неотличимо от несуществующего.
func (s *NotificationService) MarkAsRead(ctx context.Context, userID, id uuid.UUID) error {
	if err := s.repo.MarkAsRead(ctx, userID, id); err != nil {
		if errors.Is(err, repository.ErrNotificationNotFound) {
			return apperror.NotFound("notification not found")
		}
		return err
	}
	return nil
}

// MarkAllAsRead отмечает все уведомления пользователя как прочитанные.
func (s *NotificationService) MarkAllAsRead(ctx context.Context, userID uuid.UUID) error {
	return s.repo.MarkAllAsRead(ctx, userID)
}

// CountUnread возвращает количество непрочитанных уведомлений.
func (s *NotificationService) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.repo.CountUnread(ctx, userID)
}
