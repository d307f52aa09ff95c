package payment

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/studentmarket-backend/internal/service"
)

func TestToGross(t *testing.T) {
	gross, err := toGross(10000)
	require.NoError(t, err)
	assert.Equal(t, int64(100), gross)

	_, err = toGross(495)
	assert.ErrorIs(t, err, ErrFractionalAmount)
}

func TestMidtransGateway_RejectsFractionalAmounts(t *testing.T) {
	ctx := context.Background()
	g := NewMidtransGateway(MidtransConfig{ServerKey: testServerKey, IrisKey: "iris-test"})

	_, err := g.Charge(ctx, service.ChargeRequest{AmountCents: 1050, Reference: uuid.NewString(), CustomerID: uuid.New()})
	assert.ErrorIs(t, err, ErrFractionalAmount)

	_, err = g.Refund(ctx, "order-1", 495, "partial dispute refund")
	assert.ErrorIs(t, err, ErrFractionalAmount)

	_, err = g.Payout(ctx, service.PayoutRequest{
		AmountCents: 4505,
		Reference:   uuid.NewString(),
		Payee: service.Beneficiary{
			UserID:  uuid.New(),
			Name:    "Student",
			Bank:    "bca",
			Account: "1234567890",
		},
	})
	assert.ErrorIs(t, err, ErrFractionalAmount)
}
