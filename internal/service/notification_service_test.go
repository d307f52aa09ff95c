package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/studentmarket-backend/internal/models"
	"github.com/ignatzorin/studentmarket-backend/internal/pkg/apperror"
	"github.com/ignatzorin/studentmarket-backend/internal/repository"
)

type mockNotificationRepo struct {
	mock.Mock
}

func (m *mockNotificationRepo) Create(ctx context.Context, n *models.Notification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

func (m *mockNotificationRepo) List(ctx context.Context, userID uuid.UUID, limit, offset int, unreadOnly bool) ([]models.Notification, error) {
	args := m.Called(ctx, userID, limit, offset, unreadOnly)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Notification), args.Error(1)
}

func (m *mockNotificationRepo) MarkAsRead(ctx context.Context, userID, id uuid.UUID) error {
	return m.Called(ctx, userID, id).Error(0)
}

func (m *mockNotificationRepo) MarkAllAsRead(ctx context.Context, userID uuid.UUID) error {
	return m.Called(ctx, userID).Error(0)
}

func (m *mockNotificationRepo) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

type mockPusher struct {
	mock.Mock
}

func (m *mockPusher) Push(userID uuid.UUID, event string, data interface{}) error {
	return m.Called(userID, event, data).Error(0)
}

func TestNotificationService_NotifySavesAndPushes(t *testing.T) {
	repo := new(mockNotificationRepo)
	pusher := new(mockPusher)
	svc := NewNotificationService(repo, pusher)
	userID := uuid.New()

	repo.On("Create", mock.Anything, mock.MatchedBy(func(n *models.Notification) bool {
		var payload map[string]interface{}
		return n.UserID == userID && n.Kind == "order_delivered" &&
			json.Unmarshal(n.Payload, &payload) == nil && payload["message"] == "delivered"
	})).Return(nil)
	pusher.On("Push", userID, "order_delivered", mock.Anything).Return(nil)

	svc.Notify(context.Background(), userID, "order_delivered", map[string]interface{}{"message": "delivered"})

	repo.AssertExpectations(t)
	pusher.AssertExpectations(t)
}

func TestNotificationService_NotifySwallowsFailures(t *testing.T) {
	repo := new(mockNotificationRepo)
	pusher := new(mockPusher)
	svc := NewNotificationService(repo, pusher)
	userID := uuid.New()

	repo.On("Create", mock.Anything, mock.Anything).Return(errors.New("db down"))
	pusher.On("Push", userID, "payment_failed", mock.Anything).Return(errors.New("offline"))

	assert.NotPanics(t, func() {
		svc.Notify(context.Background(), userID, "payment_failed", nil)
	})
	pusher.AssertExpectations(t)
}

func TestNotificationService_WithoutPusher(t *testing.T) {
	repo := new(mockNotificationRepo)
	repo.On("Create", mock.Anything, mock.Anything).Return(nil)

	NewNotificationService(repo, nil).Notify(context.Background(), uuid.New(), "new_message", map[string]interface{}{})
	repo.AssertNumberOfCalls(t, "Create", 1)
}

func TestNotificationService_ListClampsPaging(t *testing.T) {
	repo := new(mockNotificationRepo)
	svc := NewNotificationService(repo, nil)
	userID := uuid.New()

	repo.On("List", mock.Anything, userID, 20, 0, true).Return([]models.Notification{{UserID: userID}}, nil)

	list, err := svc.ListNotifications(context.Background(), userID, 500, -3, true)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	repo.AssertExpectations(t)
}

func TestNotificationService_MarkAsReadNotFound(t *testing.T) {
	repo := new(mockNotificationRepo)
	svc := NewNotificationService(repo, nil)
	userID, id := uuid.New(), uuid.New()

	repo.On("MarkAsRead", mock.Anything, userID, id).Return(repository.ErrNotificationNotFound)

	err := svc.MarkAsRead(context.Background(), userID, id)
	assert.True(t, apperror.IsNotFound(err))
}
