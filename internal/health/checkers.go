package health

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ericfisherdev/wa-oauth-gateway/internal/repository"
)

// RedisChecker pings redis.
type RedisChecker struct {
	client *redis.Client
}

// NewRedisChecker creates a critical redis checker.
func NewRedisChecker(client *redis.Client) *RedisChecker {
	return &RedisChecker{client: client}
}

// Name returns the checker name.
func (r *RedisChecker) Name() string { return "redis" }

// Critical reports true: redis backs rate limiting and profile caching.
func (r *RedisChecker) Critical() bool { return true }

// Check pings the server.
func (r *RedisChecker) Check(ctx context.Context) Check {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return Check{Status: StatusUnhealthy, Error: fmt.Sprintf("ping failed: %v", err)}
	}
	return Check{Status: StatusHealthy, Message: "PONG"}
}

// PolicyChecker reports how many resource policies are loaded.
type PolicyChecker struct {
	policies repository.PolicyRepository
}

// NewPolicyChecker creates a policy checker.
func NewPolicyChecker(policies repository.PolicyRepository) *PolicyChecker {
	return &PolicyChecker{policies: policies}
}

// Name returns the checker name.
func (p *PolicyChecker) Name() string { return "policies" }

// Critical reports true: without policies every resource is locked.
func (p *PolicyChecker) Critical() bool { return true }

// Check counts the loaded policies. An empty set is degraded.
func (p *PolicyChecker) Check(ctx context.Context) Check {
	policies, err := p.policies.List(ctx)
	if err != nil {
		return Check{Status: StatusUnhealthy, Error: err.Error()}
	}
	check := Check{
		Status:  StatusHealthy,
		Details: map[string]interface{}{"count": len(policies)},
	}
	if len(policies) == 0 {
		check.Status = StatusDegraded
		check.Message = "no resource policies loaded"
	}
	return check
}

// HTTPChecker checks that an HTTP endpoint answers.
type HTTPChecker struct {
	name    string
	url     string
	timeout time.Duration
	client  *http.Client
}

// NewHTTPChecker creates a non-critical checker for url. Any response below
// 500 counts as reachable.
func NewHTTPChecker(name, url string, timeout time.Duration) *HTTPChecker {
	return &HTTPChecker{
		name:    name,
		url:     url,
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
	}
}

// Name returns the checker name.
func (h *HTTPChecker) Name() string { return h.name }

// Critical reports false: a slow provider degrades logins but the gateway
// still serves unlocked content.
func (h *HTTPChecker) Critical() bool { return false }

// Check performs a GET against the endpoint.
func (h *HTTPChecker) Check(ctx context.Context) Check {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return Check{Status: StatusUnhealthy, Error: fmt.Sprintf("failed to create request: %v", err)}
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return Check{Status: StatusUnhealthy, Error: fmt.Sprintf("request failed: %v", err)}
	}
	_ = resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return Check{Status: StatusUnhealthy, Error: fmt.Sprintf("got HTTP %d", resp.StatusCode)}
	}
	return Check{Status: StatusHealthy, Message: fmt.Sprintf("HTTP %d", resp.StatusCode)}
}
