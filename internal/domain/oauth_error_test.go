package domain

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewOAuthError_NormalisesStatus(t *testing.T) {
	tests := []struct {
		name           string
		status         int
		message        string
		expectedStatus int
		expectedMsg    string
	}{
		{"provider rejection kept", http.StatusUnauthorized, "invalid_grant", http.StatusUnauthorized, "invalid_grant"},
		{"server error kept", http.StatusServiceUnavailable, "down", http.StatusServiceUnavailable, "down"},
		{"success status replaced", http.StatusOK, "odd", http.StatusBadGateway, "odd"},
		{"zero status replaced", 0, "", http.StatusBadGateway, "Bad Gateway"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewOAuthError(tt.status, tt.message, nil)
			assert.Equal(t, tt.expectedStatus, err.StatusCode)
			assert.Equal(t, tt.expectedMsg, err.Message)
		})
	}
}

func TestAsOAuthError(t *testing.T) {
	assert.Nil(t, AsOAuthError(nil))

	original := NewOAuthError(http.StatusForbidden, "access_denied", nil)
	wrapped := fmt.Errorf("exchange: %w", original)
	assert.Same(t, original, AsOAuthError(wrapped))

	network := errors.New("dial tcp: connection refused")
	converted := AsOAuthError(network)
	assert.Equal(t, http.StatusBadGateway, converted.StatusCode)
	assert.ErrorIs(t, converted, network)
}

func TestError_HTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, NewValidationError("X", "x", nil).HTTPStatus())
	assert.Equal(t, http.StatusNotFound, NewNotFoundError("X", "x").HTTPStatus())
	assert.Equal(t, http.StatusUnauthorized, NewAuthenticationError("X", "x").HTTPStatus())
	assert.Equal(t, http.StatusForbidden, NewAuthorizationError("X", "x").HTTPStatus())
	assert.Equal(t, http.StatusBadGateway, NewExternalServiceError("X", "x", nil).HTTPStatus())
	assert.Equal(t, http.StatusInternalServerError, NewInternalError("X", "x", nil).HTTPStatus())
	assert.True(t, IsNotFound(fmt.Errorf("lookup: %w", NewNotFoundError("X", "x"))))
}
