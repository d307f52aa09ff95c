package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/studentmarket-backend/internal/http/handlers/common"
	"github.com/ignatzorin/studentmarket-backend/internal/http/response"
	"github.com/ignatzorin/studentmarket-backend/internal/service"
)

// DisputeHandler — споры по заказам.
type DisputeHandler struct {
	disputes *service.DisputeService
}

func NewDisputeHandler(disputes *service.DisputeService) *DisputeHandler {
	return &DisputeHandler{disputes: disputes}
}

// CreateDispute обрабатывает POST /orders/:id/disputes.
func (h *DisputeHandler) CreateDispute(c *gin.Context) {
	userID, ok := common.CurrentUserID(c)
	if !ok {
		return
	}
	orderID, ok := common.ParseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req service.CreateDisputeInput
	if !common.BindJSON(c, &req) {
		return
	}

	dispute, err := h.disputes.CreateDispute(c.Request.Context(), userID, orderID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dispute)
}

// ListDisputes обрабатывает GET /orders/:id/disputes.
func (h *DisputeHandler) ListDisputes(c *gin.Context) {
	userID, ok := common.CurrentUserID(c)
	if !ok {
		return
	}
	orderID, ok := common.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	disputes, err := h.disputes.ListDisputes(c.Request.Context(), userID, orderID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, disputes)
}

// GetDispute обрабатывает GET /disputes/:id.
func (h *DisputeHandler) GetDispute(c *gin.Context) {
	userID, ok := common.CurrentUserID(c)
	if !ok {
		return
	}
	disputeID, ok := common.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	dispute, err := h.disputes.GetDispute(c.Request.Context(), userID, disputeID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, dispute)
}

// ResolveDispute обрабатывает POST /admin/disputes/:id/resolve.
func (h *DisputeHandler) ResolveDispute(c *gin.Context) {
	userID, ok := common.CurrentUserID(c)
	if !ok {
		return
	}
	disputeID, ok := common.ParseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req service.ResolveDisputeInput
	if !common.BindJSON(c, &req) {
		return
	}

	dispute, err := h.disputes.ResolveDispute(c.Request.Context(), disputeID, userID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, dispute)
}
