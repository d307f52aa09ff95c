package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/studentmarket-backend/internal/http/handlers/common"
	"github.com/ignatzorin/studentmarket-backend/internal/http/response"
	"github.com/ignatzorin/studentmarket-backend/internal/service"
)

// OrderHandler обслуживает жизненный цикл заказа.
type OrderHandler struct {
	orders *service.OrderService
}

// NewOrderHandler создаёт новый хэндлер.
func NewOrderHandler(orders *service.OrderService) *OrderHandler {
	return &OrderHandler{orders: orders}
}

// CreateOrder обрабатывает POST /orders.
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	userID, ok := common.CurrentUserID(c)
	if !ok {
		return
	}
	var req service.CreateOrderInput
	if !common.BindJSON(c, &req) {
		return
	}

	result, err := h.orders.CreateOrder(c.Request.Context(), userID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// StartCheckout обрабатывает POST /checkout. Заказ появится после
// подтверждения оплаты.
func (h *OrderHandler) StartCheckout(c *gin.Context) {
	userID, ok := common.CurrentUserID(c)
	if !ok {
		return
	}
	var req service.CreateOrderInput
	if !common.BindJSON(c, &req) {
		return
	}

	result, err := h.orders.StartCheckout(c.Request.Context(), userID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// ListOrders обрабатывает GET /orders.
func (h *OrderHandler) ListOrders(c *gin.Context) {
	userID, ok := common.CurrentUserID(c)
	if !ok {
		return
	}
	limit, offset := common.GetPagination(c)

	orders, err := h.orders.ListOrders(c.Request.Context(), userID, limit, offset)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Paginated(c, orders, len(orders), limit, offset)
}

// GetOrder обрабатывает GET /orders/:id.
func (h *OrderHandler) GetOrder(c *gin.Context) {
	userID, ok := common.CurrentUserID(c)
	if !ok {
		return
	}
	orderID, ok := common.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(c.Request.Context(), userID, orderID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, order)
}

// DeliverOrder обрабатывает POST /orders/:id/deliver.
func (h *OrderHandler) DeliverOrder(c *gin.Context) {
	userID, ok := common.CurrentUserID(c)
	if !ok {
		return
	}
	orderID, ok := common.ParseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req service.DeliverInput
	if !common.BindJSON(c, &req) {
		return
	}

	order, err := h.orders.DeliverOrder(c.Request.Context(), userID, orderID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, order)
}

// RequestRevision обрабатывает POST /orders/:id/revisions.
func (h *OrderHandler) RequestRevision(c *gin.Context) {
	userID, ok := common.CurrentUserID(c)
	if !ok {
		return
	}
	orderID, ok := common.ParseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req service.RevisionInput
	if !common.BindJSON(c, &req) {
		return
	}

	order, err := h.orders.RequestRevision(c.Request.Context(), userID, orderID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, order)
}

// CompleteOrder обрабатывает POST /orders/:id/complete.
func (h *OrderHandler) CompleteOrder(c *gin.Context) {
	userID, ok := common.CurrentUserID(c)
	if !ok {
		return
	}
	orderID, ok := common.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	order, err := h.orders.CompleteOrder(c.Request.Context(), userID, orderID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, order)
}

// CancelOrder обрабатывает POST /admin/orders/:id/cancel.
func (h *OrderHandler) CancelOrder(c *gin.Context) {
	userID, ok := common.CurrentUserID(c)
	if !ok {
		return
	}
	orderID, ok := common.ParseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req service.CancelInput
	if !common.BindJSON(c, &req) {
		return
	}

	order, err := h.orders.CancelOrder(c.Request.Context(), userID, orderID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, order)
}

// RevisionEligibility обрабатывает GET /orders/:id/revision-eligibility.
func (h *OrderHandler) RevisionEligibility(c *gin.Context) {
	userID, ok := common.CurrentUserID(c)
	if !ok {
		return
	}
	orderID, ok := common.ParseUUIDParam(c, "id")
	if !ok {
		return
	}
	if _, err := h.orders.GetOrder(c.Request.Context(), userID, orderID); err != nil {
		response.Error(c, err)
		return
	}

	allowed, err := h.orders.CanRequestRevision(c.Request.Context(), orderID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"can_request_revision": allowed})
}

// ListDeliveries обрабатывает GET /orders/:id/deliveries.
func (h *OrderHandler) ListDeliveries(c *gin.Context) {
	userID, ok := common.CurrentUserID(c)
	if !ok {
		return
	}
	orderID, ok := common.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	deliveries, err := h.orders.ListDeliveries(c.Request.Context(), userID, orderID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, deliveries)
}

// ListRevisions обрабатывает GET /orders/:id/revisions.
func (h *OrderHandler) ListRevisions(c *gin.Context) {
	userID, ok := common.CurrentUserID(c)
	if !ok {
		return
	}
	orderID, ok := common.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	revisions, err := h.orders.ListRevisions(c.Request.Context(), userID, orderID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, revisions)
}
