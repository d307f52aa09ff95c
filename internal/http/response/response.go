// Package response — единый конверт ответов API.
package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/studentmarket-backend/internal/logger"
	"github.com/ignatzorin/studentmarket-backend/internal/pkg/apperror"
)

type Response struct {
	Success bool              `json:"success"`
	Data    interface{}       `json:"data,omitempty"`
	Errors  map[string]string `json:"errors,omitempty"`
	Code    string            `json:"code,omitempty"`
}

type PaginatedResponse struct {
	Success    bool        `json:"success"`
	Data       interface{} `json:"data"`
	Pagination Pagination  `json:"pagination"`
}

type Pagination struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Count  int `json:"count"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Success: true, Data: data})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{Success: true, Data: data})
}

func Paginated(c *gin.Context, data interface{}, count, limit, offset int) {
	c.JSON(http.StatusOK, PaginatedResponse{
		Success:    true,
		Data:       data,
		Pagination: Pagination{Limit: limit, Offset: offset, Count: count},
	})
}

// Error отдаёт бизнес-ошибку с её статусом и картой полей. Остальные
// ошибки логируются и скрываются за 500.
func Error(c *gin.Context, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		c.AbortWithStatusJSON(appErr.HTTPStatus, Response{
			Success: false,
			Errors:  appErr.ErrorMap(),
			Code:    string(appErr.Code),
		})
		return
	}

	logger.Log.WithFields(logrus.Fields{
		"error":  err.Error(),
		"path":   c.Request.URL.Path,
		"method": c.Request.Method,
	}).Error("request failed")

	c.AbortWithStatusJSON(http.StatusInternalServerError, Response{
		Success: false,
		Errors:  map[string]string{"general": "internal server error"},
		Code:    string(apperror.ErrCodeInternal),
	})
}

func BadRequest(c *gin.Context, field, message string) {
	Error(c, apperror.ValidationField(field, message))
}

func Unauthorized(c *gin.Context) {
	Error(c, apperror.ErrUnauthorized)
}
