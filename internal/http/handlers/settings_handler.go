package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/ignatzorin/studentmarket-backend/internal/http/handlers/common"
	"github.com/ignatzorin/studentmarket-backend/internal/http/response"
	"github.com/ignatzorin/studentmarket-backend/internal/pkg/apperror"
	"github.com/ignatzorin/studentmarket-backend/internal/service"
)

// SettingsHandler — настройки площадки.
type SettingsHandler struct {
	settings *service.SettingsService
}

func NewSettingsHandler(settings *service.SettingsService) *SettingsHandler {
	return &SettingsHandler{settings: settings}
}

type commissionRequest struct {
	CommissionRate *decimal.Decimal `json:"commission_rate"`
}

// GetSettings обрабатывает GET /settings.
func (h *SettingsHandler) GetSettings(c *gin.Context) {
	settings, err := h.settings.GetSettings(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, settings)
}

// UpdateCommissionRate обрабатывает PUT /admin/settings/commission.
func (h *SettingsHandler) UpdateCommissionRate(c *gin.Context) {
	adminID, ok := common.CurrentUserID(c)
	if !ok {
		return
	}
	var req commissionRequest
	if !common.BindJSON(c, &req) {
		return
	}
	if req.CommissionRate == nil {
		response.Error(c, apperror.ValidationField("commission_rate", "commission_rate is required"))
		return
	}

	settings, err := h.settings.UpdateCommissionRate(c.Request.Context(), adminID, *req.CommissionRate)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, settings)
}
