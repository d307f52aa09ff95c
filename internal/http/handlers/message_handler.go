package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/studentmarket-backend/internal/http/handlers/common"
	"github.com/ignatzorin/studentmarket-backend/internal/http/response"
	"github.com/ignatzorin/studentmarket-backend/internal/service"
)

// MessageHandler — переписка по заказу.
type MessageHandler struct {
	messages *service.MessageService
}

func NewMessageHandler(messages *service.MessageService) *MessageHandler {
	return &MessageHandler{messages: messages}
}

// SendMessage обрабатывает POST /orders/:id/messages.
func (h *MessageHandler) SendMessage(c *gin.Context) {
	userID, ok := common.CurrentUserID(c)
	if !ok {
		return
	}
	orderID, ok := common.ParseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req service.SendMessageInput
	if !common.BindJSON(c, &req) {
		return
	}

	message, err := h.messages.SendMessage(c.Request.Context(), userID, orderID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, message)
}

// ListMessages обрабатывает GET /orders/:id/messages.
func (h *MessageHandler) ListMessages(c *gin.Context) {
	userID, ok := common.CurrentUserID(c)
	if !ok {
		return
	}
	orderID, ok := common.ParseUUIDParam(c, "id")
	if !ok {
		return
	}
	limit, offset := common.GetPagination(c)

	messages, err := h.messages.ListMessages(c.Request.Context(), userID, orderID, limit, offset)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Paginated(c, messages, len(messages), limit, offset)
}

// ReportMessage обрабатывает POST /messages/:id/report.
func (h *MessageHandler) ReportMessage(c *gin.Context) {
	userID, ok := common.CurrentUserID(c)
	if !ok {
		return
	}
	messageID, ok := common.ParseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req service.ReportMessageInput
	if !common.BindJSON(c, &req) {
		return
	}

	message, err := h.messages.ReportMessage(c.Request.Context(), userID, messageID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, message)
}
