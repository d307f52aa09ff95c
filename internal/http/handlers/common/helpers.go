package common

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/studentmarket-backend/internal/http/middleware"
	"github.com/ignatzorin/studentmarket-backend/internal/http/response"
	"github.com/ignatzorin/studentmarket-backend/internal/pkg/apperror"
)

// CurrentUserID извлекает userID, положенный AuthMiddleware. При ошибке
// ответ уже отправлен.
func CurrentUserID(c *gin.Context) (uuid.UUID, bool) {
	raw, exists := c.Get(middleware.ContextUserIDKey)
	if !exists {
		response.Unauthorized(c)
		return uuid.Nil, false
	}

	userID, ok := raw.(uuid.UUID)
	if !ok || userID == uuid.Nil {
		response.Unauthorized(c)
		return uuid.Nil, false
	}
	return userID, true
}

// ParseUUIDParam разбирает UUID из пути. При ошибке ответ уже отправлен.
func ParseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	parsed, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.BadRequest(c, name, name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return parsed, true
}

// BindJSON декодирует тело запроса. Проверка полей остаётся сервисам.
func BindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		response.Error(c, apperror.ValidationField("body", "malformed JSON body"))
		return false
	}
	return true
}

// ParseIntQuery safely reads an integer query parameter with a fallback value
func ParseIntQuery(c *gin.Context, key string, fallback int) int {
	if v := c.Query(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

// GetPagination extracts limit and offset from query parameters with defaults
func GetPagination(c *gin.Context) (limit, offset int) {
	limit = ParseIntQuery(c, "limit", 20)
	offset = ParseIntQuery(c, "offset", 0)
	if limit > 100 {
		limit = 100
	}
	if limit < 1 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return
}
