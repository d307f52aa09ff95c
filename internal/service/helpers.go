package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/studentmarket-backend/internal/models"
	"github.com/ignatzorin/studentmarket-backend/internal/pkg/apperror"
	"github.com/ignatzorin/studentmarket-backend/internal/repository"
)

// Clock — источник текущего времени, подменяется в тестах.
type Clock func() time.Time

func systemClock() time.Time {
	return time.Now().UTC()
}

// translate заменяет ошибки "не найдено" из репозиториев на бизнес-ошибки.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrOrderNotFound):
		return apperror.ErrOrderNotFound
	case errors.Is(err, repository.ErrListingNotFound):
		return apperror.ErrListingNotFound
	case errors.Is(err, repository.ErrDisputeNotFound):
		return apperror.ErrDisputeNotFound
	case errors.Is(err, repository.ErrMessageNotFound):
		return apperror.ErrMessageNotFound
	case errors.Is(err, repository.ErrUserNotFound):
		return apperror.ErrUserNotFound
	case errors.Is(err, repository.ErrPaymentNotFound):
		return apperror.ErrPaymentNotFound
	}
	return err
}

// loadActor читает пользователя, от имени которого выполняется действие.
func loadActor(ctx context.Context, users UserRepository, id uuid.UUID) (*models.User, error) {
	user, err := users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, apperror.ErrUnauthorized
		}
		return nil, err
	}
	return user, nil
}

// audit добавляет запись в журнал внутри текущей транзакции.
func audit(ctx context.Context, repo AuditRepository, now time.Time, actorID uuid.UUID, action, entityType string, entityID uuid.UUID, details map[string]interface{}) error {
	actor := actorID
	return writeAudit(ctx, repo, now, &actor, action, entityType, entityID, details)
}

// systemAudit — запись без пользователя-инициатора, например по событию шлюза.
func systemAudit(ctx context.Context, repo AuditRepository, now time.Time, action, entityType string, entityID uuid.UUID, details map[string]interface{}) error {
	return writeAudit(ctx, repo, now, nil, action, entityType, entityID, details)
}

func writeAudit(ctx context.Context, repo AuditRepository, now time.Time, actor *uuid.UUID, action, entityType string, entityID uuid.UUID, details map[string]interface{}) error {
	raw, err := json.Marshal(details)
	if err != nil {
		return err
	}
	return repo.Add(ctx, &models.AuditLogEntry{
		ID:         uuid.New(),
		ActorID:    actor,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Details:    raw,
		CreatedAt:  now,
	})
}

// pendingNotification копится внутри транзакции и отправляется после коммита.
type pendingNotification struct {
	userID  uuid.UUID
	kind    string
	payload map[string]interface{}
}

type outbox []pendingNotification

func (o *outbox) add(userID uuid.UUID, kind string, payload map[string]interface{}) {
	*o = append(*o, pendingNotification{userID: userID, kind: kind, payload: payload})
}

func (o outbox) flush(ctx context.Context, n Notifier) {
	if n == nil {
		return
	}
	for _, p := range o {
		n.Notify(ctx, p.userID, p.kind, p.payload)
	}
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
