package valueobject

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrderStatus_CanTransitionTo(t *testing.T) {
	allowed := [][2]OrderStatus{
		{OrderStatusPending, OrderStatusInProgress},
		{OrderStatusInProgress, OrderStatusDelivered},
		{OrderStatusDelivered, OrderStatusRevisionRequested},
		{OrderStatusRevisionRequested, OrderStatusDelivered},
		{OrderStatusDelivered, OrderStatusCompleted},
	}
	for _, pair := range allowed {
		assert.True(t, pair[0].CanTransitionTo(pair[1]), "%s -> %s", pair[0], pair[1])
	}

	denied := [][2]OrderStatus{
		{OrderStatusPending, OrderStatusDelivered},
		{OrderStatusInProgress, OrderStatusCompleted},
		{OrderStatusRevisionRequested, OrderStatusCompleted},
		{OrderStatusPending, OrderStatusCancelled},
		{OrderStatusCompleted, OrderStatusInProgress},
		{OrderStatusCancelled, OrderStatusPending},
	}
	for _, pair := range denied {
		assert.False(t, pair[0].CanTransitionTo(pair[1]), "%s -> %s", pair[0], pair[1])
	}
}

func TestOrderStatus_CanForceTransitionTo(t *testing.T) {
	for _, s := range []OrderStatus{OrderStatusPending, OrderStatusInProgress, OrderStatusDelivered, OrderStatusRevisionRequested} {
		assert.True(t, s.CanForceTransitionTo(OrderStatusCancelled), s)
		assert.True(t, s.CanForceTransitionTo(OrderStatusCompleted), s)
		assert.False(t, s.CanForceTransitionTo(OrderStatusDelivered), s)
	}
	assert.False(t, OrderStatusCompleted.CanForceTransitionTo(OrderStatusCancelled))
	assert.False(t, OrderStatusCancelled.CanForceTransitionTo(OrderStatusCompleted))
	assert.False(t, OrderStatus("archived").CanForceTransitionTo(OrderStatusCancelled))
}

func TestDisputeResolution(t *testing.T) {
	assert.True(t, ResolutionPartialRefund.IsValid())
	assert.False(t, DisputeResolution("split").IsValid())
	assert.Equal(t, OrderStatusCancelled, ResolutionRefundToClient.OrderOutcome())
	assert.Equal(t, OrderStatusCompleted, ResolutionReleaseToStudent.OrderOutcome())
	assert.Equal(t, OrderStatusCompleted, ResolutionPartialRefund.OrderOutcome())
}

func TestPenaltyType_Rank(t *testing.T) {
	assert.Less(t, PenaltyWarning.Rank(), PenaltyTempSuspension.Rank())
	assert.Less(t, PenaltyTempSuspension.Rank(), PenaltyPermanentBan.Rank())
	assert.Zero(t, PenaltyType("").Rank())
}
