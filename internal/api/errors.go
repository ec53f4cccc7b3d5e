package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ericfisherdev/wa-oauth-gateway/internal/api/middleware"
	"github.com/ericfisherdev/wa-oauth-gateway/internal/domain"
)

// ErrorSanitizer writes {"error": message} responses without leaking internal
// details, and logs the full error server-side with the request ID.
type ErrorSanitizer struct {
	logger *slog.Logger
}

// NewErrorSanitizer creates a new error sanitizer with structured logging
func NewErrorSanitizer(logger *slog.Logger) *ErrorSanitizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &ErrorSanitizer{logger: logger}
}

// Respond writes err to the client.
//
// OAuth provider errors keep their status and message. Domain errors map to
// their HTTP status with a generic message per type. Anything else is a 500.
func (s *ErrorSanitizer) Respond(c *gin.Context, err error) {
	status, body := s.sanitize(err)
	s.log(c, err, status)
	c.AbortWithStatusJSON(status, body)
}

func (s *ErrorSanitizer) sanitize(err error) (int, gin.H) {
	var oauthErr *domain.OAuthError
	if errors.As(err, &oauthErr) {
		return oauthErr.StatusCode, gin.H{"error": oauthErr.Message}
	}

	var domainErr *domain.Error
	if errors.As(err, &domainErr) {
		body := gin.H{"error": publicMessage(domainErr), "code": domainErr.Code}
		if domainErr.Type == domain.ValidationError {
			if field, ok := domainErr.Details["field"]; ok {
				body["field"] = field
			}
		}
		return domainErr.HTTPStatus(), body
	}

	return http.StatusInternalServerError, gin.H{"error": "An unexpected error occurred. Please try again later."}
}

func publicMessage(err *domain.Error) string {
	switch err.Type {
	case domain.ValidationError:
		return "Invalid input provided"
	case domain.NotFoundError:
		return "Requested resource not found"
	case domain.AuthenticationError:
		return "Authentication required"
	case domain.AuthorizationError:
		return "Access denied"
	case domain.ExternalServiceError:
		return "External service temporarily unavailable"
	default:
		return "An error occurred while processing your request"
	}
}

func (s *ErrorSanitizer) log(c *gin.Context, err error, status int) {
	attrs := []any{
		slog.String("request_id", middleware.GetRequestID(c)),
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
		slog.Int("status", status),
		slog.String("error", err.Error()),
	}

	var domainErr *domain.Error
	if errors.As(err, &domainErr) {
		attrs = append(attrs,
			slog.String("error_type", string(domainErr.Type)),
			slog.String("error_code", domainErr.Code),
		)
		for key, value := range domainErr.Details {
			if !isSensitiveField(key) {
				attrs = append(attrs, slog.Any(fmt.Sprintf("detail_%s", key), value))
			}
		}
	}

	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	s.logger.Log(c.Request.Context(), level, "request failed", attrs...)
}

// isSensitiveField checks if a field contains sensitive information that shouldn't be logged
func isSensitiveField(field string) bool {
	switch field {
	case "token", "access_token", "code", "secret", "api_secret", "cookie", "authorization", "jwt":
		return true
	}
	return false
}
