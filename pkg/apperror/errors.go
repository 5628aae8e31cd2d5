package apperror

import (
	"errors"
	"net/http"
)

var (
	ErrNotFound     = errors.New("resource not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrBadRequest   = errors.New("bad request")
	ErrInternal     = errors.New("internal server error")

	// Engine error taxonomy. Everything here except broadcast failures is
	// returned to the caller as a typed failure; broadcast errors are logged
	// and swallowed inside the broadcaster.
	ErrValidation           = errors.New("validation failed")
	ErrInvalidDayTransition = errors.New("day number does not match expected next day")
	ErrConcurrencyExhausted = errors.New("concurrent update retries exhausted")
	ErrSyncFailed           = errors.New("partner sync commit failed")
	ErrTimeout              = errors.New("operation deadline exceeded")
)

// AppError is a custom error type that can hold an HTTP status code
type AppError struct {
	Code    int
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError
func New(code int, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// MapErrorToStatus maps common errors to HTTP status codes
func MapErrorToStatus(err error) int {
	if errors.Is(err, ErrNotFound) {
		return http.StatusNotFound
	}
	if errors.Is(err, ErrUnauthorized) {
		return http.StatusUnauthorized
	}
	if errors.Is(err, ErrForbidden) {
		return http.StatusForbidden
	}
	if errors.Is(err, ErrBadRequest) || errors.Is(err, ErrValidation) {
		return http.StatusBadRequest
	}
	if errors.Is(err, ErrInvalidDayTransition) {
		// Stale client: refetch current state and retry
		return http.StatusConflict
	}
	if errors.Is(err, ErrConcurrencyExhausted) {
		return http.StatusServiceUnavailable
	}
	if errors.Is(err, ErrSyncFailed) {
		return http.StatusBadGateway
	}
	if errors.Is(err, ErrTimeout) {
		return http.StatusGatewayTimeout
	}
	// Default to internal server error
	return http.StatusInternalServerError
}
