package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ignatzorin/studentmarket-backend/internal/pkg/apperror"
	"github.com/ignatzorin/studentmarket-backend/internal/service"
)

// ProviderMidtrans и ProviderGeneric — значения WebhookEvent.Provider.
const (
	ProviderMidtrans = "midtrans"
	ProviderGeneric  = "generic"
)

// midtransNotification — HTTP-уведомление Midtrans о смене статуса.
type midtransNotification struct {
	TransactionTime   string `json:"transaction_time"`
	TransactionStatus string `json:"transaction_status"`
	TransactionID     string `json:"transaction_id"`
	StatusCode        string `json:"status_code"`
	SignatureKey      string `json:"signature_key"`
	OrderID           string `json:"order_id"`
	GrossAmount       string `json:"gross_amount"`
	PaymentType       string `json:"payment_type"`
	FraudStatus       string `json:"fraud_status"`
}

// MidtransSignature — SHA512(order_id + status_code + gross_amount + server_key).
func MidtransSignature(orderID, statusCode, grossAmount, serverKey string) string {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(sum[:])
}

// ParseMidtransNotification проверяет подпись уведомления и переводит его
// в событие шлюза. Идентификатор события включает статус: одна транзакция
// присылает несколько уведомлений, и каждое обрабатывается один раз.
func ParseMidtransNotification(body []byte, serverKey string) (service.WebhookEvent, error) {
	var n midtransNotification
	if err := json.Unmarshal(body, &n); err != nil {
		return service.WebhookEvent{}, apperror.ValidationField("body", "invalid notification payload")
	}
	if n.OrderID == "" || n.TransactionStatus == "" {
		return service.WebhookEvent{}, apperror.ValidationField("order_id", "order_id and transaction_status are required")
	}

	expected := MidtransSignature(n.OrderID, n.StatusCode, n.GrossAmount, serverKey)
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(n.SignatureKey))) {
		return service.WebhookEvent{}, apperror.ErrInvalidSignature
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return service.WebhookEvent{}, apperror.ValidationField("body", "invalid notification payload")
	}
	raw["payment_intent_id"] = n.OrderID
	payload, err := json.Marshal(raw)
	if err != nil {
		return service.WebhookEvent{}, fmt.Errorf("midtrans: encode payload: %w", err)
	}

	eventID := n.TransactionID
	if eventID == "" {
		eventID = n.OrderID
	}
	return service.WebhookEvent{
		Provider:  ProviderMidtrans,
		EventID:   eventID + ":" + n.TransactionStatus,
		EventType: midtransEventType(n.TransactionStatus, n.FraudStatus),
		Payload:   payload,
	}, nil
}

func midtransEventType(status, fraud string) string {
	switch status {
	case "settlement":
		return service.EventCheckoutCompleted
	case "capture":
		if fraud == "" || fraud == "accept" {
			return service.EventCheckoutCompleted
		}
		return "midtrans.capture_" + fraud
	case "deny", "cancel", "expire", "failure":
		return service.EventPaymentFailed
	case "refund", "partial_refund":
		return service.EventChargeRefunded
	}
	return "midtrans." + status
}

// genericEvent — формат событий для шлюзов без собственного адаптера.
type genericEvent struct {
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
}

// SignPayload — hex(HMAC-SHA256(secret, body)).
func SignPayload(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// ParseGenericEvent проверяет подпись X-Webhook-Signature и разбирает
// событие вида {"event_id", "event_type", "payload"}. Пустой secret отключает проверку.
func ParseGenericEvent(body []byte, signature, secret string) (service.WebhookEvent, error) {
	if secret != "" {
		expected := SignPayload(body, secret)
		if !hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(signature)))) {
			return service.WebhookEvent{}, apperror.ErrInvalidSignature
		}
	}

	var e genericEvent
	if err := json.Unmarshal(body, &e); err != nil {
		return service.WebhookEvent{}, apperror.ValidationField("body", "invalid event payload")
	}
	payload := e.Payload
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}
	return service.WebhookEvent{
		Provider:  ProviderGeneric,
		EventID:   e.EventID,
		EventType: e.EventType,
		Payload:   payload,
	}, nil
}
