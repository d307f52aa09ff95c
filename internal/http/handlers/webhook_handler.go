package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/studentmarket-backend/internal/http/response"
	"github.com/ignatzorin/studentmarket-backend/internal/infrastructure/payment"
	"github.com/ignatzorin/studentmarket-backend/internal/logger"
	"github.com/ignatzorin/studentmarket-backend/internal/pkg/apperror"
	"github.com/ignatzorin/studentmarket-backend/internal/service"
)

const maxWebhookBody = 1 << 20

// WebhookProcessor — обработка события шлюза.
type WebhookProcessor interface {
	HandleWebhook(ctx context.Context, evt service.WebhookEvent) (bool, error)
}

// WebhookHandler принимает уведомления платёжных шлюзов. Аутентификация —
// подпись тела запроса, а не токен пользователя.
type WebhookHandler struct {
	processor         WebhookProcessor
	webhookSecret     string
	midtransServerKey string
}

func NewWebhookHandler(processor WebhookProcessor, webhookSecret, midtransServerKey string) *WebhookHandler {
	return &WebhookHandler{
		processor:         processor,
		webhookSecret:     webhookSecret,
		midtransServerKey: midtransServerKey,
	}
}

// Payments обрабатывает POST /webhooks/payments.
func (h *WebhookHandler) Payments(c *gin.Context) {
	body, ok := readBody(c)
	if !ok {
		return
	}
	evt, err := payment.ParseGenericEvent(body, c.GetHeader("X-Webhook-Signature"), h.webhookSecret)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.process(c, evt)
}

// Midtrans обрабатывает POST /webhooks/midtrans.
func (h *WebhookHandler) Midtrans(c *gin.Context) {
	if h.midtransServerKey == "" {
		c.AbortWithStatus(http.StatusNotFound)
		return
	}
	body, ok := readBody(c)
	if !ok {
		return
	}
	evt, err := payment.ParseMidtransNotification(body, h.midtransServerKey)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.process(c, evt)
}

func (h *WebhookHandler) process(c *gin.Context, evt service.WebhookEvent) {
	processed, err := h.processor.HandleWebhook(c.Request.Context(), evt)
	if err != nil {
		logger.Log.WithFields(logrus.Fields{
			"event_id":   evt.EventID,
			"event_type": evt.EventType,
			"provider":   evt.Provider,
			"error":      err.Error(),
		}).Error("webhook: processing failed")
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"event_id": evt.EventID, "processed": processed})
}

func readBody(c *gin.Context) ([]byte, bool) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody+1))
	if err != nil {
		response.Error(c, apperror.ValidationField("body", "cannot read request body"))
		return nil, false
	}
	if len(body) > maxWebhookBody {
		response.Error(c, apperror.ValidationField("body", "request body is too large"))
		return nil, false
	}
	return body, true
}
