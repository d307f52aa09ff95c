package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/ignatzorin/studentmarket-backend/internal/http/handlers/common"
	"github.com/ignatzorin/studentmarket-backend/internal/http/response"
	"github.com/ignatzorin/studentmarket-backend/internal/service"
)

// PaymentHandler — оплата заказов и ручные операции администратора.
type PaymentHandler struct {
	payments *service.PaymentService
}

func NewPaymentHandler(payments *service.PaymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

type refundRequest struct {
	Amount *decimal.Decimal `json:"amount"`
	Reason string           `json:"reason"`
}

// PayOrder обрабатывает POST /orders/:id/pay — новый счёт по неоплаченному заказу.
func (h *PaymentHandler) PayOrder(c *gin.Context) {
	userID, ok := common.CurrentUserID(c)
	if !ok {
		return
	}
	orderID, ok := common.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	result, err := h.payments.ChargeForOrder(c.Request.Context(), userID, orderID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// ListPayments обрабатывает GET /orders/:id/payments.
func (h *PaymentHandler) ListPayments(c *gin.Context) {
	userID, ok := common.CurrentUserID(c)
	if !ok {
		return
	}
	orderID, ok := common.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	payments, err := h.payments.ListPayments(c.Request.Context(), userID, orderID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, payments)
}

// Refund обрабатывает POST /admin/orders/:id/refund.
func (h *PaymentHandler) Refund(c *gin.Context) {
	userID, ok := common.CurrentUserID(c)
	if !ok {
		return
	}
	orderID, ok := common.ParseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req refundRequest
	if !common.BindJSON(c, &req) {
		return
	}

	refund, err := h.payments.RefundPayment(c.Request.Context(), userID, orderID, req.Amount, req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, refund)
}

// Payout обрабатывает POST /admin/orders/:id/payout.
func (h *PaymentHandler) Payout(c *gin.Context) {
	userID, ok := common.CurrentUserID(c)
	if !ok {
		return
	}
	orderID, ok := common.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	payout, err := h.payments.PayoutToStudent(c.Request.Context(), userID, orderID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, payout)
}
