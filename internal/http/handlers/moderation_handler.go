package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/studentmarket-backend/internal/http/handlers/common"
	"github.com/ignatzorin/studentmarket-backend/internal/http/response"
	"github.com/ignatzorin/studentmarket-backend/internal/service"
)

// ModerationHandler — административные маршруты модерации.
type ModerationHandler struct {
	violations *service.ViolationService
}

func NewModerationHandler(violations *service.ViolationService) *ModerationHandler {
	return &ModerationHandler{violations: violations}
}

// ListFlagged обрабатывает GET /admin/messages/flagged.
func (h *ModerationHandler) ListFlagged(c *gin.Context) {
	adminID, ok := common.CurrentUserID(c)
	if !ok {
		return
	}
	limit, offset := common.GetPagination(c)

	messages, err := h.violations.ListFlagged(c.Request.Context(), adminID, limit, offset)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Paginated(c, messages, len(messages), limit, offset)
}

// ConfirmViolation обрабатывает POST /admin/messages/:id/violation.
func (h *ModerationHandler) ConfirmViolation(c *gin.Context) {
	adminID, ok := common.CurrentUserID(c)
	if !ok {
		return
	}
	messageID, ok := common.ParseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req service.ConfirmViolationInput
	if !common.BindJSON(c, &req) {
		return
	}

	violation, err := h.violations.ConfirmViolation(c.Request.Context(), messageID, adminID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, violation)
}

// DismissFlag обрабатывает POST /admin/messages/:id/dismiss.
func (h *ModerationHandler) DismissFlag(c *gin.Context) {
	adminID, ok := common.CurrentUserID(c)
	if !ok {
		return
	}
	messageID, ok := common.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	message, err := h.violations.DismissFlag(c.Request.Context(), messageID, adminID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, message)
}

// SuggestPenalty обрабатывает GET /admin/users/:id/suggested-penalty.
func (h *ModerationHandler) SuggestPenalty(c *gin.Context) {
	adminID, ok := common.CurrentUserID(c)
	if !ok {
		return
	}
	userID, ok := common.ParseUUIDParam(c, "id")
	if !ok {
		return
	}
	penalty, err := h.violations.SuggestPenaltyFor(c.Request.Context(), adminID, userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, penalty)
}

// ListViolations обрабатывает GET /admin/users/:id/violations.
func (h *ModerationHandler) ListViolations(c *gin.Context) {
	adminID, ok := common.CurrentUserID(c)
	if !ok {
		return
	}
	userID, ok := common.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	violations, err := h.violations.ListViolations(c.Request.Context(), adminID, userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, violations)
}

// AuditTrail обрабатывает GET /admin/audit?entity_type=order&entity_id=...
func (h *ModerationHandler) AuditTrail(c *gin.Context) {
	adminID, ok := common.CurrentUserID(c)
	if !ok {
		return
	}
	entityType := c.Query("entity_type")
	if entityType == "" {
		response.BadRequest(c, "entity_type", "entity_type is required")
		return
	}
	entityID, err := uuid.Parse(c.Query("entity_id"))
	if err != nil {
		response.BadRequest(c, "entity_id", "entity_id must be a valid UUID")
		return
	}

	entries, err := h.violations.AuditTrail(c.Request.Context(), adminID, entityType, entityID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, entries)
}
