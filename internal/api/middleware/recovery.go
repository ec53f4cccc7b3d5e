package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
)

// RecoveryConfig holds configuration for the recovery middleware.
type RecoveryConfig struct {
	Logger *slog.Logger
	// PrintStack adds the goroutine stack to the log record.
	PrintStack bool
}

// RecoveryMiddleware turns a panic into a 500 {"error"} response.
func RecoveryMiddleware(config RecoveryConfig) gin.HandlerFunc {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		attrs := []any{
			slog.String("request_id", GetRequestID(c)),
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.String("panic", fmt.Sprint(recovered)),
		}
		if config.PrintStack {
			attrs = append(attrs, slog.String("stack", string(debug.Stack())))
		}
		logger.ErrorContext(c.Request.Context(), "panic recovered", attrs...)

		abortWithError(c, http.StatusInternalServerError, "Internal server error")
	})
}

// DefaultRecoveryMiddleware logs panics with their stack.
func DefaultRecoveryMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return RecoveryMiddleware(RecoveryConfig{Logger: logger, PrintStack: true})
}
