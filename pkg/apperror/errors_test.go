package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapErrorToStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"comment not found", ErrCommentNotFound, http.StatusNotFound},
		{"wrapped parent not found", fmt.Errorf("create: %w", ErrParentNotFound), http.StatusNotFound},
		{"interaction type", ErrInvalidInteractionType, http.StatusBadRequest},
		{"invalid helper", Invalid("content too long"), http.StatusBadRequest},
		{"forbidden", ErrForbidden, http.StatusForbidden},
		{"unauthorized", ErrUnauthorized, http.StatusUnauthorized},
		{"conflict", ErrConflict, http.StatusConflict},
		{"rate limited", ErrRateLimitExceeded, http.StatusTooManyRequests},
		{"app error code wins", New(http.StatusTeapot, "teapot", nil), http.StatusTeapot},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MapErrorToStatus(tt.err))
		})
	}
}

func TestKind(t *testing.T) {
	assert.Equal(t, "not_found", Kind(ErrTargetNotFound))
	assert.Equal(t, "invalid_argument", Kind(ErrInvalidInteractionType))
	assert.Equal(t, "unauthorized", Kind(ErrForbidden))
	assert.Equal(t, "rate_limited", Kind(ErrRateLimitExceeded))
	assert.Equal(t, "internal", Kind(errors.New("db down")))
}

func TestAppError(t *testing.T) {
	err := New(http.StatusForbidden, "only the author can do that", ErrForbidden)
	wrapped := fmt.Errorf("edit: %w", err)

	assert.Equal(t, "only the author can do that", err.Error())
	assert.ErrorIs(t, wrapped, ErrForbidden)
	assert.Equal(t, http.StatusForbidden, MapErrorToStatus(wrapped))
	assert.Equal(t, "unauthorized", Kind(wrapped))

	assert.Equal(t, "bad request", New(http.StatusBadRequest, "", ErrBadRequest).Error())
	assert.Equal(t, "Conflict", New(http.StatusConflict, "", nil).Error())
}
