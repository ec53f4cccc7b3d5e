package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/wa-oauth-gateway/internal/api"
	"github.com/ericfisherdev/wa-oauth-gateway/internal/health"
	helpers "github.com/ericfisherdev/wa-oauth-gateway/internal/testutil"
)

type fixedChecker struct {
	name     string
	status   health.Status
	critical bool
}

func (f fixedChecker) Name() string   { return f.name }
func (f fixedChecker) Critical() bool { return f.critical }
func (f fixedChecker) Check(context.Context) health.Check {
	return health.Check{Name: f.name, Status: f.status}
}

func newHealthHelper(t *testing.T, checkers ...health.Checker) *helpers.HTTPTestHelper {
	t.Helper()
	service := health.NewService("test", "testing")
	for _, c := range checkers {
		service.Register(c)
	}
	router := helpers.NewTestRouter()
	api.NewHealthHandler(service).RegisterRoutes(router)
	return helpers.NewHTTPTestHelper(t, router)
}

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name        string
		checkers    []health.Checker
		path        string
		wantStatus  int
		wantOverall health.Status
	}{
		{
			name:        "all healthy",
			checkers:    []health.Checker{fixedChecker{name: "redis", status: health.StatusHealthy, critical: true}},
			path:        "/health",
			wantStatus:  http.StatusOK,
			wantOverall: health.StatusHealthy,
		},
		{
			name:        "optional dependency down",
			checkers:    []health.Checker{fixedChecker{name: "provider", status: health.StatusUnhealthy}},
			path:        "/health",
			wantStatus:  http.StatusOK,
			wantOverall: health.StatusDegraded,
		},
		{
			name:        "critical dependency down",
			checkers:    []health.Checker{fixedChecker{name: "policies", status: health.StatusUnhealthy, critical: true}},
			path:        "/health/ready",
			wantStatus:  http.StatusServiceUnavailable,
			wantOverall: health.StatusUnhealthy,
		},
		{
			name:        "readiness ignores optional checks",
			checkers:    []health.Checker{fixedChecker{name: "provider", status: health.StatusUnhealthy}},
			path:        "/health/ready",
			wantStatus:  http.StatusOK,
			wantOverall: health.StatusHealthy,
		},
		{
			name:        "liveness runs no checks",
			checkers:    []health.Checker{fixedChecker{name: "policies", status: health.StatusUnhealthy, critical: true}},
			path:        "/health/live",
			wantStatus:  http.StatusOK,
			wantOverall: health.StatusHealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHealthHelper(t, tt.checkers...)

			w := h.GET(tt.path, nil)

			h.AssertStatus(w, tt.wantStatus)
			var response health.Response
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
			assert.Equal(t, tt.wantOverall, response.Status)
		})
	}
}

func TestPing(t *testing.T) {
	h := newHealthHelper(t)

	w := h.GET("/ping", nil)

	h.AssertStatus(w, http.StatusOK)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "pong", body["message"])
}
