package policy

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/ignatzorin/studentmarket-backend/internal/domain/valueobject"
	"github.com/ignatzorin/studentmarket-backend/internal/models"
	"github.com/ignatzorin/studentmarket-backend/internal/pkg/apperror"
)

func user(role valueobject.Role) *models.User {
	return &models.User{ID: uuid.New(), Role: role, Status: valueobject.UserStatusActive}
}

func TestCanRequestRevision(t *testing.T) {
	order := &models.Order{Status: valueobject.OrderStatusDelivered, MaxRevisions: 3}

	for count := 0; count < 3; count++ {
		order.RevisionCount = count
		assert.True(t, CanRequestRevision(order), "revision count %d", count)
	}
	order.RevisionCount = 3
	assert.False(t, CanRequestRevision(order))

	for _, status := range []valueobject.OrderStatus{
		valueobject.OrderStatusPending,
		valueobject.OrderStatusInProgress,
		valueobject.OrderStatusRevisionRequested,
		valueobject.OrderStatusCompleted,
	} {
		order.Status = status
		order.RevisionCount = 0
		assert.False(t, CanRequestRevision(order), status)
	}
}

func TestAuthorize(t *testing.T) {
	client := user(valueobject.RoleClient)
	student := user(valueobject.RoleStudent)
	admin := user(valueobject.RoleAdmin)
	stranger := user(valueobject.RoleClient)
	order := &models.Order{ClientID: client.ID, StudentID: student.ID}

	assert.NoError(t, Authorize(ActionDeliver, student, order))
	assert.True(t, apperror.IsForbidden(Authorize(ActionDeliver, client, order)))
	assert.True(t, apperror.IsForbidden(Authorize(ActionDeliver, user(valueobject.RoleStudent), order)))

	assert.NoError(t, Authorize(ActionComplete, client, order))
	assert.True(t, apperror.IsForbidden(Authorize(ActionComplete, stranger, order)))

	assert.NoError(t, Authorize(ActionOpenDispute, client, order))
	assert.NoError(t, Authorize(ActionOpenDispute, student, order))
	assert.NoError(t, Authorize(ActionOpenDispute, admin, order))
	assert.True(t, apperror.IsForbidden(Authorize(ActionOpenDispute, stranger, order)))

	assert.NoError(t, Authorize(ActionResolveDispute, admin, nil))
	assert.True(t, apperror.IsForbidden(Authorize(ActionResolveDispute, client, nil)))
	assert.True(t, apperror.IsForbidden(Authorize(ActionCreateOrder, student, nil)))
	assert.True(t, apperror.IsForbidden(Authorize(ActionCreateListing, client, nil)))
}

func TestCheckSuspension(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	u := user(valueobject.RoleClient)

	assert.NoError(t, CheckSuspension(u, now, SubjectSelf))

	end := now.AddDate(0, 0, 7)
	u.Status = valueobject.UserStatusSuspended
	u.SuspensionEndDate = &end

	err := CheckSuspension(u, now, SubjectSelf)
	assert.True(t, apperror.IsSuspended(err))
	assert.Contains(t, err.Error(), "will end on March 8, 2026")

	err = CheckSuspension(u, now, SubjectSeller)
	assert.Contains(t, err.Error(), "The student offering this service")
	assert.Contains(t, err.Error(), "will end on")

	// истёкшая блокировка не мешает
	assert.NoError(t, CheckSuspension(u, end.Add(time.Second), SubjectSelf))

	u.SuspensionEndDate = nil
	err = CheckSuspension(u, now, SubjectSelf)
	assert.True(t, apperror.IsSuspended(err))
	assert.Contains(t, err.Error(), "permanently")
	assert.NotContains(t, err.Error(), "will end on")
}

func TestDeadlineFor(t *testing.T) {
	created := time.Date(2026, 1, 30, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, 96*time.Hour, DeadlineFor(created, 4).Sub(created))
	assert.Equal(t, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), DeadlineFor(created, 30))
}
