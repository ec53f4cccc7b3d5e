package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/wa-oauth-gateway/internal/domain"
)

func TestErrorSanitizer_Respond(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		err          error
		name         string
		expectedBody map[string]interface{}
		expectedCode int
		expectedLog  string
	}{
		{
			name:         "oauth error keeps provider status and message",
			err:          domain.NewOAuthError(http.StatusUnauthorized, "Token expired", nil),
			expectedCode: http.StatusUnauthorized,
			expectedBody: map[string]interface{}{"error": "Token expired"},
			expectedLog:  "WARN",
		},
		{
			name:         "wrapped oauth error",
			err:          fmt.Errorf("login: %w", domain.NewOAuthError(http.StatusBadRequest, "Invalid grant", nil)),
			expectedCode: http.StatusBadRequest,
			expectedBody: map[string]interface{}{"error": "Invalid grant"},
			expectedLog:  "WARN",
		},
		{
			name: "validation error exposes field",
			err: domain.NewValidationError("INVALID_REDIRECT", "redirect uri rejected",
				map[string]interface{}{"field": "redirectUri", "token": "tok-secret"}),
			expectedCode: http.StatusBadRequest,
			expectedBody: map[string]interface{}{
				"error": "Invalid input provided",
				"code":  "INVALID_REDIRECT",
				"field": "redirectUri",
			},
			expectedLog: "WARN",
		},
		{
			name:         "internal error hides its message",
			err:          domain.NewInternalError("COOKIE_SIGNING_FAILED", "Failed to sign cookie", assert.AnError),
			expectedCode: http.StatusInternalServerError,
			expectedBody: map[string]interface{}{
				"error": "An error occurred while processing your request",
				"code":  "COOKIE_SIGNING_FAILED",
			},
			expectedLog: "ERROR",
		},
		{
			name:         "unknown error",
			err:          assert.AnError,
			expectedCode: http.StatusInternalServerError,
			expectedBody: map[string]interface{}{"error": "An unexpected error occurred. Please try again later."},
			expectedLog:  "ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var logs bytes.Buffer
			sanitizer := NewErrorSanitizer(slog.New(slog.NewJSONHandler(&logs, nil)))

			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request, _ = http.NewRequestWithContext(context.Background(), http.MethodGet, "/oauth/login", nil)

			sanitizer.Respond(c, tt.err)

			assert.True(t, c.IsAborted())
			assert.Equal(t, tt.expectedCode, w.Code)
			assert.Contains(t, w.Header().Get("Content-Type"), "application/json")

			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.expectedBody, body)

			assert.Contains(t, logs.String(), `"level":"`+tt.expectedLog+`"`)
			assert.NotContains(t, logs.String(), "tok-secret")
		})
	}
}

func TestIsSensitiveField(t *testing.T) {
	for _, field := range []string{"token", "access_token", "code", "secret", "api_secret", "cookie", "authorization", "jwt"} {
		assert.True(t, isSensitiveField(field), field)
	}
	for _, field := range []string{"field", "value", "locale", "path"} {
		assert.False(t, isSensitiveField(field), field)
	}
}
