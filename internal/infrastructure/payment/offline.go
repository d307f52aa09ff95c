package payment

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/studentmarket-backend/internal/domain/valueobject"
	"github.com/ignatzorin/studentmarket-backend/internal/logger"
	"github.com/ignatzorin/studentmarket-backend/internal/service"
)

// OfflineGateway используется, когда ключи шлюза не заданы. Деньги никуда
// не уходят: платежи подтверждаются вебхуками, отправленными вручную.
type OfflineGateway struct {
	baseURL string
}

func NewOfflineGateway(baseURL string) *OfflineGateway {
	return &OfflineGateway{baseURL: baseURL}
}

func (g *OfflineGateway) Charge(_ context.Context, req service.ChargeRequest) (*service.ChargeResult, error) {
	if req.AmountCents <= 0 {
		return nil, fmt.Errorf("offline gateway: invalid amount %d", req.AmountCents)
	}
	session := "cs_" + uuid.NewString()
	logger.Log.WithFields(logrus.Fields{
		"reference": req.Reference,
		"session":   session,
		"amount":    valueobject.FromMinorUnits(req.AmountCents).StringFixed(2),
	}).Info("offline gateway: charge created")

	return &service.ChargeResult{
		IntentID:          req.Reference,
		CheckoutSessionID: session,
		RedirectURL:       g.baseURL + "/checkout/" + session,
	}, nil
}

func (g *OfflineGateway) Refund(_ context.Context, intentID string, amountCents int64, reason string) (string, error) {
	id := "re_" + uuid.NewString()
	logger.Log.WithFields(logrus.Fields{
		"intent_id": intentID,
		"refund_id": id,
		"amount":    valueobject.FromMinorUnits(amountCents).StringFixed(2),
		"reason":    reason,
	}).Info("offline gateway: refund recorded")
	return id, nil
}

func (g *OfflineGateway) Payout(_ context.Context, req service.PayoutRequest) (string, error) {
	id := "po_" + uuid.NewString()
	logger.Log.WithFields(logrus.Fields{
		"reference": req.Reference,
		"payee":     req.Payee.UserID.String(),
		"payout_id": id,
		"amount":    valueobject.FromMinorUnits(req.AmountCents).StringFixed(2),
	}).Info("offline gateway: payout recorded")
	return id, nil
}
