package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ericfisherdev/wa-oauth-gateway/internal/health"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	healthService *health.Service
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(healthService *health.Service) *HealthHandler {
	return &HealthHandler{
		healthService: healthService,
	}
}

// RegisterRoutes registers health check routes.
func (h *HealthHandler) RegisterRoutes(router gin.IRouter) {
	router.GET("/ping", PingHandler)

	group := router.Group("/health")
	{
		group.GET("", h.HealthCheck)
		group.GET("/live", h.Liveness)
		group.GET("/ready", h.Readiness)
	}
}

// HealthCheck runs every registered check.
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	h.render(c, h.healthService.Check(ctx))
}

// Liveness returns the liveness status
func (h *HealthHandler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, h.healthService.Liveness())
}

// Readiness runs the critical checks.
func (h *HealthHandler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	h.render(c, h.healthService.Readiness(ctx))
}

func (h *HealthHandler) render(c *gin.Context, response health.Response) {
	status := http.StatusOK
	if response.Status == health.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, response)
}

// PingHandler provides a simple ping endpoint
func PingHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "pong",
		"time":    time.Now().Unix(),
	})
}
