package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ericfisherdev/wa-oauth-gateway/internal/api"
	"github.com/ericfisherdev/wa-oauth-gateway/internal/domain"
	"github.com/ericfisherdev/wa-oauth-gateway/internal/health"
	"github.com/ericfisherdev/wa-oauth-gateway/internal/session"
)

// GatewayClient talks to a running gateway the way a browser would: the
// access token travels in the token cookie.
type GatewayClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// NewGatewayClient creates a new gateway client
func NewGatewayClient(baseURL, token string) *GatewayClient {
	return &GatewayClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
			// Login and logout answer with redirects the CLI reports, not follows.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// NewGatewayClientFromProfile creates a gateway client from a profile
func NewGatewayClientFromProfile(profile *Profile) *GatewayClient {
	if profile == nil {
		return nil
	}
	return NewGatewayClient(profile.ServerURL, profile.Token)
}

// APIError represents an API error response
type APIError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

// doRequest performs an HTTP request, attaching the token cookie when set.
func (c *GatewayClient) doRequest(ctx context.Context, method, endpoint string, query url.Values) (*http.Response, error) {
	fullURL, err := url.JoinPath(c.BaseURL, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to join URL path: %w", err)
	}
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if c.Token != "" {
		req.AddCookie(&http.Cookie{Name: session.TokenCookieName, Value: url.QueryEscape(c.Token)})
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	return resp, nil
}

// handleResponse processes the HTTP response and handles errors
// Note: This function automatically closes the response body
//
//nolint:bodyclose // Response body is closed by this function
func (c *GatewayClient) handleResponse(resp *http.Response, result interface{}) error {
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiError := &APIError{StatusCode: resp.StatusCode}

		var errorResp map[string]interface{}
		if json.Unmarshal(body, &errorResp) == nil {
			if msg, ok := errorResp["error"].(string); ok {
				apiError.Message = msg
			}
		}
		if apiError.Message == "" {
			apiError.Message = strings.TrimSpace(string(body))
		}
		if apiError.Message == "" {
			apiError.Message = http.StatusText(resp.StatusCode)
		}

		return apiError
	}

	if result != nil && len(body) > 0 {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}

	return nil
}

// Health fetches the full health report. An unhealthy gateway answers 503
// with a report, which is returned together with the error.
func (c *GatewayClient) Health(ctx context.Context) (*health.Response, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return nil, err
	}

	var report health.Response
	if resp.StatusCode == http.StatusServiceUnavailable {
		defer func() { _ = resp.Body.Close() }()
		if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
			return nil, &APIError{StatusCode: resp.StatusCode, Message: "gateway unhealthy"}
		}
		return &report, &APIError{StatusCode: resp.StatusCode, Message: "gateway unhealthy"}
	}

	if err := c.handleResponse(resp, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// User returns the profile behind the client's token.
func (c *GatewayClient) User(ctx context.Context) (*domain.UserProfile, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, api.RoutePrefix+api.UserRoute, nil)
	if err != nil {
		return nil, err
	}

	var user domain.UserProfile
	if err := c.handleResponse(resp, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Access asks whether the client's token may read target, which is either a
// resource ID or a URL.
func (c *GatewayClient) Access(ctx context.Context, target string) (bool, error) {
	query := url.Values{}
	if strings.Contains(target, "/") {
		query.Set(api.RedirectURIParam, target)
	} else if target != "" {
		query.Set(api.ResourceParam, target)
	}

	resp, err := c.doRequest(ctx, http.MethodGet, api.RoutePrefix+api.AccessRoute, query)
	if err != nil {
		return false, err
	}

	var result struct {
		Authenticated bool `json:"authenticated"`
	}
	if err := c.handleResponse(resp, &result); err != nil {
		return false, err
	}
	return result.Authenticated, nil
}

// TestConnection checks that the gateway answers its ping endpoint.
func (c *GatewayClient) TestConnection(ctx context.Context) error {
	resp, err := c.doRequest(ctx, http.MethodGet, "/ping", nil)
	if err != nil {
		return err
	}
	return c.handleResponse(resp, nil)
}
