// Package payment — адаптеры платёжных шлюзов.
package payment

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	midtrans "github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"
	"github.com/midtrans/midtrans-go/iris"
	"github.com/midtrans/midtrans-go/snap"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/studentmarket-backend/internal/logger"
	"github.com/ignatzorin/studentmarket-backend/internal/service"
)

// Суммы хранятся в минорных единицах, Midtrans принимает целые рупии.
const minorPerUnit = 100

// MidtransConfig — ключи доступа к Midtrans.
type MidtransConfig struct {
	ServerKey  string
	IrisKey    string
	Production bool
}

// MidtransGateway реализует service.PaymentGateway: оплата через Snap,
// возвраты через Core API, выплаты через Iris.
type MidtransGateway struct {
	snap    snap.Client
	core    coreapi.Client
	iris    iris.Client
	payouts bool
}

func NewMidtransGateway(cfg MidtransConfig) *MidtransGateway {
	env := midtrans.Sandbox
	if cfg.Production {
		env = midtrans.Production
	}

	g := &MidtransGateway{}
	g.snap.New(cfg.ServerKey, env)
	g.core.New(cfg.ServerKey, env)
	if cfg.IrisKey != "" {
		g.iris.New(cfg.IrisKey, env)
		g.payouts = true
	}
	return g
}

// Charge создаёт Snap-транзакцию. Reference становится order_id в Midtrans,
// по нему же приходят уведомления.
func (g *MidtransGateway) Charge(_ context.Context, req service.ChargeRequest) (*service.ChargeResult, error) {
	gross, err := toGross(req.AmountCents)
	if err != nil {
		return nil, err
	}
	if gross <= 0 {
		return nil, fmt.Errorf("midtrans: amount %d is below the minimum", req.AmountCents)
	}

	resp, mErr := g.snap.CreateTransaction(&snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  req.Reference,
			GrossAmt: gross,
		},
		CustomerDetail: &midtrans.CustomerDetails{
			FName: req.CustomerID.String(),
		},
		Items: &[]midtrans.ItemDetails{{
			ID:    req.Reference,
			Price: gross,
			Qty:   1,
			Name:  truncate(req.Description, 50),
		}},
	})
	if mErr != nil {
		return nil, fmt.Errorf("midtrans: create transaction %s: %w", req.Reference, mErr)
	}

	return &service.ChargeResult{
		IntentID:          req.Reference,
		CheckoutSessionID: resp.Token,
		RedirectURL:       resp.RedirectURL,
	}, nil
}

// Refund возвращает деньги по транзакции. Ключ возврата генерируется
// на каждый вызов и служит идентификатором возврата.
func (g *MidtransGateway) Refund(_ context.Context, intentID string, amountCents int64, reason string) (string, error) {
	gross, err := toGross(amountCents)
	if err != nil {
		return "", err
	}
	refundKey := uuid.NewString()
	_, mErr := g.core.RefundTransaction(intentID, &coreapi.RefundReq{
		RefundKey: refundKey,
		Amount:    gross,
		Reason:    reason,
	})
	if mErr != nil {
		return "", fmt.Errorf("midtrans: refund %s: %w", intentID, mErr)
	}

	logger.Log.WithFields(logrus.Fields{
		"order_id":   intentID,
		"refund_key": refundKey,
		"amount":     amountCents,
	}).Info("midtrans: refund accepted")
	return refundKey, nil
}

// Payout создаёт выплату через Iris.
func (g *MidtransGateway) Payout(_ context.Context, req service.PayoutRequest) (string, error) {
	if !g.payouts {
		return "", fmt.Errorf("midtrans: payouts are not configured")
	}
	if req.Payee.Account == "" || req.Payee.Bank == "" {
		return "", fmt.Errorf("midtrans: payee %s has no bank account", req.Payee.UserID)
	}
	gross, err := toGross(req.AmountCents)
	if err != nil {
		return "", err
	}

	resp, mErr := g.iris.CreatePayout(iris.CreatePayoutReq{
		Payouts: []iris.CreatePayoutDetailReq{{
			BeneficiaryName:    req.Payee.Name,
			BeneficiaryAccount: req.Payee.Account,
			BeneficiaryBank:    req.Payee.Bank,
			BeneficiaryEmail:   req.Payee.Email,
			Amount:             strconv.FormatInt(gross, 10),
			Notes:              truncate("payout "+req.Reference, 100),
		}},
	})
	if mErr != nil {
		return "", fmt.Errorf("midtrans: payout %s: %w", req.Reference, mErr)
	}
	if resp == nil || len(resp.Payouts) == 0 {
		return "", fmt.Errorf("midtrans: payout %s: empty response", req.Reference)
	}
	return resp.Payouts[0].ReferenceNo, nil
}

// ErrFractionalAmount — Midtrans принимает только целые суммы.
var ErrFractionalAmount = errors.New("midtrans: amount has a fractional part")

func toGross(cents int64) (int64, error) {
	if cents%minorPerUnit != 0 {
		return 0, fmt.Errorf("%w: %d minor units", ErrFractionalAmount, cents)
	}
	return cents / minorPerUnit, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
