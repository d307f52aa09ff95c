package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/studentmarket-backend/internal/domain/valueobject"
	"github.com/ignatzorin/studentmarket-backend/internal/logger"
	"github.com/ignatzorin/studentmarket-backend/internal/pkg/apperror"
)

func TestPaymentService_RefundPayment_GatewayFailureKeepsCharge(t *testing.T) {
	f := newFixture(t)
	order := f.paidOrder(t, "80.00")
	before := f.paymentsOf(order.ID, valueobject.PaymentTypeCharge)[0]
	f.gateway.refundErr = assert.AnError

	_, err := f.payments.RefundPayment(context.Background(), f.admin.ID, order.ID, nil, "duplicate purchase")

	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.ErrCodeGateway))
	after := f.paymentsOf(order.ID, valueobject.PaymentTypeCharge)[0]
	assert.Equal(t, before, after)
	assert.Empty(t, f.paymentsOf(order.ID, valueobject.PaymentTypeRefund))
	assert.Empty(t, f.db.auditLog)
}

func TestPaymentService_RefundPayment_PartialThenRest(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	order := f.paidOrder(t, "60.00")

	part := decimal.RequireFromString("25")
	refund, err := f.payments.RefundPayment(ctx, f.admin.ID, order.ID, &part, "late delivery")
	require.NoError(t, err)
	assert.Equal(t, "25.00", refund.Amount.StringFixed(2))
	assert.Equal(t, valueobject.PaymentStatusPartiallyRefunded, f.paymentsOf(order.ID, valueobject.PaymentTypeCharge)[0].Status)

	tooMuch := decimal.RequireFromString("40")
	_, err = f.payments.RefundPayment(ctx, f.admin.ID, order.ID, &tooMuch, "again")
	require.Error(t, err)
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Contains(t, appErr.Fields, "amount")

	rest, err := f.payments.RefundPayment(ctx, f.admin.ID, order.ID, nil, "close out")
	require.NoError(t, err)
	assert.Equal(t, "35.00", rest.Amount.StringFixed(2))

	charge := f.paymentsOf(order.ID, valueobject.PaymentTypeCharge)[0]
	assert.Equal(t, valueobject.PaymentStatusRefunded, charge.Status)
	assert.Equal(t, []int64{2500, 3500}, f.gateway.refunds)
	assert.Len(t, f.paymentsOf(order.ID, valueobject.PaymentTypeRefund), 2)

	meta, err := f.paymentsOf(order.ID, valueobject.PaymentTypeRefund)[0].DecodeMetadata()
	require.NoError(t, err)
	require.NotNil(t, meta.RefundedPayment)
	assert.Equal(t, charge.ID, *meta.RefundedPayment)
	assert.Equal(t, "late delivery", meta.Reason)
}

func TestPaymentService_RefundPayment_NoSettledChargeIsLogged(t *testing.T) {
	hook := logtest.NewLocal(logger.Log)
	defer hook.Reset()

	f := newFixture(t)
	result := f.createOrder(t, "15.00", 3)

	_, err := f.payments.RefundPayment(context.Background(), f.admin.ID, result.Order.ID, nil, "refund")
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.ErrCodePaymentNotFound))

	found := false
	for _, entry := range hook.AllEntries() {
		if entry.Data["error"] == "payment_not_found" {
			found = true
			assert.Equal(t, result.Order.ID.String(), entry.Data["order_id"])
		}
	}
	assert.True(t, found, "refund without a charge must log an error field")
	assert.Empty(t, f.gateway.refunds)
}

func TestPaymentService_RefundPayment_AdminOnly(t *testing.T) {
	f := newFixture(t)
	order := f.paidOrder(t, "15.00")

	_, err := f.payments.RefundPayment(context.Background(), f.client.ID, order.ID, nil, "mine")
	assert.True(t, apperror.IsForbidden(err))
	assert.Empty(t, f.gateway.refunds)
}

func TestPaymentService_HandleWebhook_Idempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	result := f.createOrder(t, "45.00", 5)
	evt := WebhookEvent{
		EventID:   "evt_1",
		EventType: EventCheckoutCompleted,
		Payload:   []byte(`{"checkout_session_id":"` + *result.Payment.CheckoutSessionID + `"}`),
	}

	processed, err := f.payments.HandleWebhook(ctx, evt)
	require.NoError(t, err)
	assert.True(t, processed)
	sent := len(f.notifier.sent)

	processed, err = f.payments.HandleWebhook(ctx, evt)
	require.NoError(t, err)
	assert.False(t, processed)
	assert.Len(t, f.notifier.sent, sent)

	assert.Len(t, f.db.webhooks, 1)
	stored := f.db.webhooks["evt_1"]
	assert.True(t, stored.Processed)
	assert.Equal(t, "generic", stored.Provider)

	charge := f.paymentsOf(result.Order.ID, valueobject.PaymentTypeCharge)[0]
	assert.Equal(t, valueobject.PaymentStatusSucceeded, charge.Status)
	meta, err := charge.DecodeMetadata()
	require.NoError(t, err)
	assert.Equal(t, "evt_1", meta.LastEventID)
	assert.Equal(t, valueobject.OrderStatusInProgress, f.order(t, result.Order.ID).Status)
}

func TestPaymentService_HandleWebhook_SecondConfirmationIsNoop(t *testing.T) {
	f := newFixture(t)
	order := f.paidOrder(t, "45.00")
	sent := len(f.notifier.sent)
	charge := f.paymentsOf(order.ID, valueobject.PaymentTypeCharge)[0]

	processed, err := f.payments.HandleWebhook(context.Background(), WebhookEvent{
		EventID:   "evt_other",
		EventType: EventCheckoutCompleted,
		Payload:   []byte(`{"payment_intent_id":"` + *charge.PaymentIntentID + `"}`),
	})
	require.NoError(t, err)
	assert.True(t, processed)
	assert.Len(t, f.notifier.sent, sent)
	assert.Equal(t, charge, f.paymentsOf(order.ID, valueobject.PaymentTypeCharge)[0])
}

func TestPaymentService_StartCheckout_MaterializesOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	listing := f.addListing(t, "70.00", 4)

	checkout, err := f.orders.StartCheckout(ctx, f.client.ID, CreateOrderInput{
		ServiceID:        listing.ID,
		Requirements:     "Slides for Friday",
		RequirementFiles: []string{"requirements/brief.pdf"},
	})
	require.NoError(t, err)
	assert.Nil(t, checkout.Payment.OrderID)
	assert.Empty(t, f.db.orders)

	f.clock.Advance(time.Hour)
	processed, err := f.payments.HandleWebhook(ctx, WebhookEvent{
		Provider:  "midtrans",
		EventID:   "tx_1:settlement",
		EventType: EventCheckoutCompleted,
		Payload:   []byte(`{"checkout_session_id":"` + *checkout.Payment.CheckoutSessionID + `"}`),
	})
	require.NoError(t, err)
	require.True(t, processed)

	require.Len(t, f.db.orders, 1)
	var orderID uuid.UUID
	for id := range f.db.orders {
		orderID = id
	}
	order := f.order(t, orderID)
	assert.Equal(t, valueobject.OrderStatusInProgress, order.Status)
	assert.Equal(t, f.client.ID, order.ClientID)
	assert.Equal(t, f.student.ID, order.StudentID)
	assert.Equal(t, []string{"requirements/brief.pdf"}, []string(order.RequirementFiles))
	assert.True(t, order.Deadline.Equal(f.clock.now.AddDate(0, 0, 4)))
	assert.True(t, order.CommissionRate.Equal(decimal.NewFromInt(10)))

	charges := f.paymentsOf(orderID, valueobject.PaymentTypeCharge)
	require.Len(t, charges, 1)
	assert.Equal(t, valueobject.PaymentStatusSucceeded, charges[0].Status)
	assert.Equal(t, []string{"order_created"}, f.notifier.kinds(f.student.ID))
	assert.Equal(t, []string{"payment_confirmed"}, f.notifier.kinds(f.client.ID))
}

func TestPaymentService_HandleWebhook_PaymentFailed(t *testing.T) {
	f := newFixture(t)
	result := f.createOrder(t, "45.00", 5)

	processed, err := f.payments.HandleWebhook(context.Background(), WebhookEvent{
		EventID:   "evt_fail",
		EventType: EventPaymentFailed,
		Payload:   []byte(`{"payment_intent_id":"` + *result.Payment.PaymentIntentID + `"}`),
	})
	require.NoError(t, err)
	assert.True(t, processed)

	assert.Equal(t, valueobject.PaymentStatusFailed, f.paymentsOf(result.Order.ID, valueobject.PaymentTypeCharge)[0].Status)
	assert.Equal(t, valueobject.OrderStatusPending, f.order(t, result.Order.ID).Status)
	assert.Equal(t, []string{"payment_failed"}, f.notifier.kinds(f.client.ID))
}

func TestPaymentService_HandleWebhook_UnknownPaymentIsRecorded(t *testing.T) {
	f := newFixture(t)

	processed, err := f.payments.HandleWebhook(context.Background(), WebhookEvent{
		EventID:   "evt_unknown",
		EventType: EventPaymentSucceeded,
		Payload:   []byte(`{"payment_intent_id":"pi_nobody"}`),
	})
	require.NoError(t, err)
	assert.True(t, processed)
	assert.True(t, f.db.webhooks["evt_unknown"].Processed)
	assert.Empty(t, f.notifier.sent)
}

func TestPaymentService_HandleWebhook_Validation(t *testing.T) {
	f := newFixture(t)

	_, err := f.payments.HandleWebhook(context.Background(), WebhookEvent{EventType: EventPaymentSucceeded})
	assert.True(t, apperror.IsValidation(err))

	_, err = f.payments.HandleWebhook(context.Background(), WebhookEvent{
		EventID:   "evt_bad",
		EventType: EventPaymentSucceeded,
		Payload:   []byte(`{}`),
	})
	assert.True(t, apperror.IsValidation(err))
	assert.Empty(t, f.db.webhooks, "rejected event is not recorded")
}

type busyLocker struct{}

func (busyLocker) Lock(context.Context, string) (func(), bool, error) {
	return nil, false, nil
}

func TestPaymentService_HandleWebhook_LockedElsewhere(t *testing.T) {
	f := newFixture(t)
	result := f.createOrder(t, "45.00", 5)
	f.payments.WithLocker(busyLocker{})

	processed, err := f.payments.HandleWebhook(context.Background(), WebhookEvent{
		EventID:   "evt_busy",
		EventType: EventPaymentSucceeded,
		Payload:   []byte(`{"payment_intent_id":"` + *result.Payment.PaymentIntentID + `"}`),
	})
	require.NoError(t, err)
	assert.False(t, processed)
	assert.Empty(t, f.db.webhooks)
	assert.Equal(t, valueobject.OrderStatusPending, f.order(t, result.Order.ID).Status)
}

func TestPaymentService_ChargeForOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	result := f.createOrder(t, "45.00", 5)
	stranger := f.addUser(valueobject.RoleClient)

	_, err := f.payments.ChargeForOrder(ctx, stranger.ID, result.Order.ID)
	assert.True(t, apperror.IsForbidden(err))

	again, err := f.payments.ChargeForOrder(ctx, f.client.ID, result.Order.ID)
	require.NoError(t, err)
	assert.NotEqual(t, result.Payment.ID, again.Payment.ID)

	require.Len(t, f.gateway.charges, 2)
	assert.Equal(t, result.Payment.ID.String(), f.gateway.charges[0].Reference)
	assert.Equal(t, again.Payment.ID.String(), f.gateway.charges[1].Reference)
	assert.NotEqual(t, *result.Payment.PaymentIntentID, *again.Payment.PaymentIntentID)

	charges := f.paymentsOf(result.Order.ID, valueobject.PaymentTypeCharge)
	require.Len(t, charges, 2)
	assert.Equal(t, valueobject.PaymentStatusFailed, charges[0].Status, "the old checkout link is closed")
	meta, err := charges[0].DecodeMetadata()
	require.NoError(t, err)
	assert.Equal(t, "superseded by a new checkout", meta.Reason)
	assert.Equal(t, valueobject.PaymentStatusPending, charges[1].Status)

	f.confirmPayment(t, *again.Payment.PaymentIntentID)
	assert.Equal(t, valueobject.OrderStatusInProgress, f.order(t, result.Order.ID).Status)

	_, err = f.payments.ChargeForOrder(ctx, f.client.ID, result.Order.ID)
	assert.True(t, apperror.Is(err, apperror.ErrCodeInvalidState))
}

func TestPaymentService_PaymentThroughReplacedLinkIsRefunded(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	result := f.createOrder(t, "50.00", 5)
	_, err := f.payments.ChargeForOrder(ctx, f.client.ID, result.Order.ID)
	require.NoError(t, err)

	processed, err := f.payments.HandleWebhook(ctx, WebhookEvent{
		EventID:   "evt_old_link",
		EventType: EventCheckoutCompleted,
		Payload:   []byte(fmt.Sprintf(`{"checkout_session_id":%q}`, *result.Payment.CheckoutSessionID)),
	})
	require.NoError(t, err)
	assert.True(t, processed)

	assert.Equal(t, []int64{5000}, f.gateway.refunds)
	assert.Equal(t, valueobject.OrderStatusPending, f.order(t, result.Order.ID).Status)
	charges := f.paymentsOf(result.Order.ID, valueobject.PaymentTypeCharge)
	assert.Equal(t, valueobject.PaymentStatusRefunded, charges[0].Status)
	assert.Equal(t, valueobject.PaymentStatusPending, charges[1].Status)

	_, err = f.orders.CancelOrder(ctx, f.admin.ID, result.Order.ID, CancelInput{Reason: "client gave up"})
	require.NoError(t, err)
	assert.Equal(t, []int64{5000}, f.gateway.refunds, "nothing else was captured")
	assert.Equal(t, valueobject.PaymentStatusFailed, f.paymentsOf(result.Order.ID, valueobject.PaymentTypeCharge)[1].Status)
}

func TestPaymentService_CancelAfterRebillingRefundsCapturedCharge(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	result := f.createOrder(t, "50.00", 5)
	again, err := f.payments.ChargeForOrder(ctx, f.client.ID, result.Order.ID)
	require.NoError(t, err)

	processed, err := f.payments.HandleWebhook(ctx, WebhookEvent{
		EventID:   "evt_new_link",
		EventType: EventCheckoutCompleted,
		Payload:   []byte(fmt.Sprintf(`{"checkout_session_id":%q}`, *again.Payment.CheckoutSessionID)),
	})
	require.NoError(t, err)
	require.True(t, processed)

	_, err = f.orders.CancelOrder(ctx, f.admin.ID, result.Order.ID, CancelInput{Reason: "student unavailable"})
	require.NoError(t, err)

	assert.Equal(t, []int64{5000}, f.gateway.refunds)
	charges := f.paymentsOf(result.Order.ID, valueobject.PaymentTypeCharge)
	assert.Equal(t, valueobject.PaymentStatusFailed, charges[0].Status)
	assert.Equal(t, valueobject.PaymentStatusRefunded, charges[1].Status)
	assert.True(t, charges[1].RefundAmount.Equal(decimal.NewFromInt(50)))
}

func TestPaymentService_RefundPrefersSettledCharge(t *testing.T) {
	f := newFixture(t)
	order := f.paidOrder(t, "40.00")
	f.addCharge(order.ID, "40.00", valueobject.PaymentStatusFailed)

	_, err := f.payments.RefundPayment(context.Background(), f.admin.ID, order.ID, nil, "goodwill")
	require.NoError(t, err)

	assert.Equal(t, []int64{4000}, f.gateway.refunds)
	charges := f.paymentsOf(order.ID, valueobject.PaymentTypeCharge)
	assert.Equal(t, valueobject.PaymentStatusRefunded, charges[0].Status)
	assert.Equal(t, valueobject.PaymentStatusFailed, charges[1].Status)
}

func TestPaymentService_LatePaymentForCancelledOrderIsRefunded(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	result := f.createOrder(t, "30.00", 5)
	_, err := f.orders.CancelOrder(ctx, f.admin.ID, result.Order.ID, CancelInput{Reason: "never paid"})
	require.NoError(t, err)

	f.confirmPayment(t, *result.Payment.PaymentIntentID)

	assert.Equal(t, valueobject.OrderStatusCancelled, f.order(t, result.Order.ID).Status)
	assert.Equal(t, []int64{3000}, f.gateway.refunds)
	charge := f.paymentsOf(result.Order.ID, valueobject.PaymentTypeCharge)[0]
	assert.Equal(t, valueobject.PaymentStatusRefunded, charge.Status)
	assert.True(t, charge.RefundAmount.Equal(decimal.NewFromInt(30)))
	require.Len(t, f.paymentsOf(result.Order.ID, valueobject.PaymentTypeRefund), 1)
	assert.Contains(t, f.notifier.kinds(f.client.ID), "payment_refunded")

	require.Len(t, f.db.auditLog, 2)
	late := f.db.auditLog[1]
	assert.Equal(t, "late_payment_refunded", late.Action)
	assert.Nil(t, late.ActorID)
	assert.Equal(t, result.Order.ID, late.EntityID)

	processed, err := f.payments.HandleWebhook(ctx, WebhookEvent{
		EventID:   "evt_retry",
		EventType: EventPaymentSucceeded,
		Payload:   []byte(fmt.Sprintf(`{"payment_intent_id":%q}`, *result.Payment.PaymentIntentID)),
	})
	require.NoError(t, err)
	assert.True(t, processed)
	assert.Len(t, f.gateway.refunds, 1, "a refunded charge is not refunded twice")
}

func TestPaymentService_LatePaymentRefundFailureIsRetried(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	result := f.createOrder(t, "30.00", 5)
	_, err := f.orders.CancelOrder(ctx, f.admin.ID, result.Order.ID, CancelInput{Reason: "never paid"})
	require.NoError(t, err)
	f.gateway.refundErr = assert.AnError

	_, err = f.payments.HandleWebhook(ctx, WebhookEvent{
		EventID:   "evt_late",
		EventType: EventPaymentSucceeded,
		Payload:   []byte(fmt.Sprintf(`{"payment_intent_id":%q}`, *result.Payment.PaymentIntentID)),
	})
	require.Error(t, err)
	assert.Equal(t, valueobject.PaymentStatusFailed, f.paymentsOf(result.Order.ID, valueobject.PaymentTypeCharge)[0].Status)
	assert.NotContains(t, f.db.webhooks, "evt_late", "the event stays unrecorded so the gateway retries it")
}

func TestPaymentService_PayoutToStudent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	order := f.deliveredOrder(t, "50.00")

	_, err := f.payments.PayoutToStudent(ctx, f.admin.ID, order.ID)
	assert.True(t, apperror.Is(err, apperror.ErrCodeInvalidState), "order is not completed yet")

	_, err = f.orders.CompleteOrder(ctx, f.client.ID, order.ID)
	require.NoError(t, err)

	_, err = f.payments.PayoutToStudent(ctx, f.admin.ID, order.ID)
	assert.True(t, apperror.Is(err, apperror.ErrCodeDuplicate))
	assert.Len(t, f.gateway.payouts, 1)
}

func TestPaymentService_ListPayments(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	order := f.paidOrder(t, "50.00")

	list, err := f.payments.ListPayments(ctx, f.student.ID, order.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	stranger := f.addUser(valueobject.RoleStudent)
	_, err = f.payments.ListPayments(ctx, stranger.ID, order.ID)
	assert.True(t, apperror.IsForbidden(err))
}
