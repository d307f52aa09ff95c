package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	ErrCodeNotFound        ErrorCode = "NOT_FOUND"
	ErrCodeUnauthorized    ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden       ErrorCode = "FORBIDDEN"
	ErrCodeBadRequest      ErrorCode = "BAD_REQUEST"
	ErrCodeConflict        ErrorCode = "CONFLICT"
	ErrCodeInternal        ErrorCode = "INTERNAL_ERROR"
	ErrCodeValidation      ErrorCode = "VALIDATION_ERROR"
	ErrCodeDatabaseError   ErrorCode = "DATABASE_ERROR"
	ErrCodeInvalidState    ErrorCode = "INVALID_STATE"
	ErrCodeSuspended       ErrorCode = "ACCOUNT_SUSPENDED"
	ErrCodeDeadlinePassed  ErrorCode = "DEADLINE_PASSED"
	ErrCodeLimitExceeded   ErrorCode = "LIMIT_EXCEEDED"
	ErrCodeDuplicate       ErrorCode = "DUPLICATE"
	ErrCodePaymentNotFound ErrorCode = "PAYMENT_NOT_FOUND"
	ErrCodeGateway         ErrorCode = "GATEWAY_ERROR"
)

// AppError — ожидаемая бизнес-ошибка. Fields заполняется для ошибок валидации
// (ключ — имя поля во внешнем API).
type AppError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Fields     map[string]string
	Cause      error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// ErrorMap возвращает ошибки в форме {поле: сообщение}.
func (e *AppError) ErrorMap() map[string]string {
	if len(e.Fields) > 0 {
		out := make(map[string]string, len(e.Fields))
		for k, v := range e.Fields {
			out[k] = v
		}
		return out
	}
	return map[string]string{"general": e.Message}
}

func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
	}
}

func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
		Cause:      err,
	}
}

// Validation создаёт ошибку валидации с сообщениями по полям.
func Validation(fields map[string]string) *AppError {
	err := New(ErrCodeValidation, "validation failed")
	err.Fields = fields
	return err
}

// ValidationField — ошибка валидации одного поля.
func ValidationField(field, message string) *AppError {
	return Validation(map[string]string{field: message})
}

func Authorization(message string) *AppError   { return New(ErrCodeForbidden, message) }
func State(message string) *AppError           { return New(ErrCodeInvalidState, message) }
func Suspension(message string) *AppError      { return New(ErrCodeSuspended, message) }
func Deadline(message string) *AppError        { return New(ErrCodeDeadlinePassed, message) }
func LimitExceeded(message string) *AppError   { return New(ErrCodeLimitExceeded, message) }
func Duplicate(message string) *AppError       { return New(ErrCodeDuplicate, message) }
func PaymentNotFound(message string) *AppError { return New(ErrCodePaymentNotFound, message) }
func NotFound(message string) *AppError        { return New(ErrCodeNotFound, message) }

func codeToHTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeNotFound, ErrCodePaymentNotFound:
		return http.StatusNotFound
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeForbidden, ErrCodeSuspended:
		return http.StatusForbidden
	case ErrCodeBadRequest, ErrCodeValidation:
		return http.StatusBadRequest
	case ErrCodeConflict, ErrCodeInvalidState, ErrCodeDuplicate:
		return http.StatusConflict
	case ErrCodeDeadlinePassed, ErrCodeLimitExceeded:
		return http.StatusUnprocessableEntity
	case ErrCodeGateway:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Is проверяет, что в цепочке err есть AppError с указанным кодом.
func Is(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

func IsNotFound(err error) bool {
	return Is(err, ErrCodeNotFound)
}

func IsForbidden(err error) bool {
	return Is(err, ErrCodeForbidden)
}

func IsValidation(err error) bool {
	return Is(err, ErrCodeValidation)
}

func IsSuspended(err error) bool {
	return Is(err, ErrCodeSuspended)
}

var (
	ErrOrderNotFound    = New(ErrCodeNotFound, "order not found")
	ErrListingNotFound  = New(ErrCodeNotFound, "service not found")
	ErrDisputeNotFound  = New(ErrCodeNotFound, "dispute not found")
	ErrMessageNotFound  = New(ErrCodeNotFound, "message not found")
	ErrUserNotFound     = New(ErrCodeNotFound, "user not found")
	ErrPaymentNotFound  = New(ErrCodeNotFound, "payment not found")
	ErrUnauthorized     = New(ErrCodeUnauthorized, "authentication required")
	ErrForbidden        = New(ErrCodeForbidden, "insufficient permissions")
	ErrInvalidSignature = New(ErrCodeUnauthorized, "invalid webhook signature")
)
