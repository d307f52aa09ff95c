package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/studentmarket-backend/internal/pkg/apperror"
)

func render(t *testing.T, err error) (int, Response) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/x", nil)

	Error(c, err)

	var body Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w.Code, body
}

func TestError_Validation(t *testing.T) {
	code, body := render(t, apperror.Validation(map[string]string{"severity": "severity is required"}))

	assert.Equal(t, http.StatusBadRequest, code)
	assert.False(t, body.Success)
	assert.Equal(t, "VALIDATION_ERROR", body.Code)
	assert.Equal(t, "severity is required", body.Errors["severity"])
}

func TestError_BusinessKinds(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{apperror.Suspension("suspended"), http.StatusForbidden},
		{apperror.Duplicate("dispute already open"), http.StatusConflict},
		{apperror.LimitExceeded("no revisions left"), http.StatusUnprocessableEntity},
		{apperror.PaymentNotFound("no charge"), http.StatusNotFound},
	}
	for _, tt := range tests {
		code, body := render(t, tt.err)
		assert.Equal(t, tt.status, code)
		assert.NotEmpty(t, body.Errors["general"])
	}
}

func TestError_InternalIsMasked(t *testing.T) {
	code, body := render(t, errors.New("pq: connection refused"))

	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "internal server error", body.Errors["general"])
}
