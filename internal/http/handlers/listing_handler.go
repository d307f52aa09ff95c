package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/studentmarket-backend/internal/http/handlers/common"
	"github.com/ignatzorin/studentmarket-backend/internal/http/response"
	"github.com/ignatzorin/studentmarket-backend/internal/service"
)

// ListingHandler — услуги студентов.
type ListingHandler struct {
	listings *service.ListingService
}

func NewListingHandler(listings *service.ListingService) *ListingHandler {
	return &ListingHandler{listings: listings}
}

// CreateService обрабатывает POST /services.
func (h *ListingHandler) CreateService(c *gin.Context) {
	userID, ok := common.CurrentUserID(c)
	if !ok {
		return
	}
	var req service.CreateServiceInput
	if !common.BindJSON(c, &req) {
		return
	}

	listing, err := h.listings.CreateService(c.Request.Context(), userID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, listing)
}

// GetService обрабатывает GET /services/:id.
func (h *ListingHandler) GetService(c *gin.Context) {
	id, ok := common.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	listing, err := h.listings.GetService(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, listing)
}

// DeactivateService обрабатывает DELETE /services/:id.
func (h *ListingHandler) DeactivateService(c *gin.Context) {
	userID, ok := common.CurrentUserID(c)
	if !ok {
		return
	}
	id, ok := common.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	listing, err := h.listings.DeactivateService(c.Request.Context(), userID, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, listing)
}
