package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound          = errors.New("resource not found")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
	ErrBadRequest        = errors.New("bad request")
	ErrConflict          = errors.New("conflict")
	ErrInternal          = errors.New("internal server error")
	ErrInvalidInput      = errors.New("invalid input")
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
)

// Domain errors wrap the sentinels above so MapErrorToStatus keeps working.
var (
	ErrPostNotFound           = fmt.Errorf("post not found: %w", ErrNotFound)
	ErrCommentNotFound        = fmt.Errorf("comment not found: %w", ErrNotFound)
	ErrParentNotFound         = fmt.Errorf("parent comment not found: %w", ErrNotFound)
	ErrTargetNotFound         = fmt.Errorf("interaction target not found: %w", ErrNotFound)
	ErrInvalidInteractionType = fmt.Errorf("invalid interaction type: %w", ErrInvalidInput)
)

// AppError pairs a client-facing message and HTTP status with the taxonomy
// sentinel it wraps, so errors.Is and Kind still see the sentinel.
type AppError struct {
	Code    int
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return http.StatusText(e.Code)
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

// Invalid builds an InvalidArgument error with a client-facing message.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrInvalidInput)
}

// Kind names the taxonomy bucket of err, used on the websocket error frame.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrForbidden):
		return "unauthorized"
	case errors.Is(err, ErrBadRequest), errors.Is(err, ErrInvalidInput):
		return "invalid_argument"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrRateLimitExceeded):
		return "rate_limited"
	}
	return "internal"
}

// MapErrorToStatus maps common errors to HTTP status codes
func MapErrorToStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Code != 0 {
		return appErr.Code
	}
	if errors.Is(err, ErrNotFound) {
		return http.StatusNotFound
	}
	if errors.Is(err, ErrUnauthorized) {
		return http.StatusUnauthorized
	}
	if errors.Is(err, ErrForbidden) {
		return http.StatusForbidden
	}
	if errors.Is(err, ErrBadRequest) || errors.Is(err, ErrInvalidInput) {
		return http.StatusBadRequest
	}
	if errors.Is(err, ErrConflict) {
		return http.StatusConflict
	}
	if errors.Is(err, ErrRateLimitExceeded) {
		return http.StatusTooManyRequests
	}
	// Default to internal server error
	return http.StatusInternalServerError
}
