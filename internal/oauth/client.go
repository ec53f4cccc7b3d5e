// Package oauth talks to the OAuth provider: it builds login URLs, exchanges
// authorization codes for access tokens and fetches the current user.
package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/ericfisherdev/wa-oauth-gateway/internal/domain"
	"github.com/ericfisherdev/wa-oauth-gateway/internal/settings"
)

const (
	authorizePath = "/oauth/authorize"
	tokenPath     = "/oauth/token"
	userPath      = "/api/v1/users/current"

	// RoleParam carries the required role to the provider's login screen.
	RoleParam = "accessible_for"

	// DefaultTimeout bounds every call to the provider.
	DefaultTimeout = 10 * time.Second

	maxProfileBytes = 1 << 20
)

// Provider operations, as reported to an Observer.
const (
	OpExchange = "exchange"
	OpUser     = "user"
)

// Client is the OAuth provider as seen by the login flow.
// Errors returned by ExchangeCode and GetUser are *domain.OAuthError.
type Client interface {
	LoginURL(redirectURI, requiredRole string) string
	ExchangeCode(ctx context.Context, redirectURI, code string) (string, error)
	GetUser(ctx context.Context, token string) (*domain.UserProfile, error)
}

// Observer is told about every provider call. status is 0 when no HTTP
// response was received.
type Observer func(operation string, status int, elapsed time.Duration)

// Option configures a ProviderClient.
type Option func(*ProviderClient)

// WithHTTPClient replaces the HTTP client used for provider calls.
func WithHTTPClient(client *http.Client) Option {
	return func(c *ProviderClient) {
		c.httpClient = client
	}
}

// WithTimeout sets the timeout of the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *ProviderClient) {
		c.httpClient = &http.Client{Timeout: timeout}
	}
}

// WithObserver registers a hook called after each provider call.
func WithObserver(observer Observer) Option {
	return func(c *ProviderClient) {
		c.observe = observer
	}
}

// ProviderClient is a Client for one provider endpoint and credential pair.
type ProviderClient struct {
	creds      settings.Credentials
	httpClient *http.Client
	observe    Observer
	now        func() time.Time
}

// NewProviderClient creates a client for creds.
func NewProviderClient(creds settings.Credentials, opts ...Option) *ProviderClient {
	c := &ProviderClient{
		creds:      creds,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		observe:    func(string, int, time.Duration) {},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *ProviderClient) config(redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.creds.ClientID,
		ClientSecret: c.creds.ClientSecret,
		RedirectURL:  redirectURI,
		Endpoint: oauth2.Endpoint{
			AuthURL:   c.creds.Endpoint + authorizePath,
			TokenURL:  c.creds.Endpoint + tokenPath,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

func (c *ProviderClient) context(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

// LoginURL returns the provider's authorization URL. The provider redirects
// back to redirectURI with a code; requiredRole, when set, scopes the login.
func (c *ProviderClient) LoginURL(redirectURI, requiredRole string) string {
	var opts []oauth2.AuthCodeOption
	if requiredRole != "" {
		opts = append(opts, oauth2.SetAuthURLParam(RoleParam, requiredRole))
	}
	return c.config(redirectURI).AuthCodeURL("", opts...)
}

// ExchangeCode trades an authorization code for an access token.
func (c *ProviderClient) ExchangeCode(ctx context.Context, redirectURI, code string) (string, error) {
	if strings.TrimSpace(code) == "" {
		return "", domain.NewOAuthError(http.StatusBadRequest, "missing authorization code", nil)
	}

	start := c.now()
	token, err := c.config(redirectURI).Exchange(c.context(ctx), code)
	if err != nil {
		oauthErr := exchangeError(err)
		c.observe(OpExchange, statusOf(err), c.now().Sub(start))
		return "", oauthErr
	}
	c.observe(OpExchange, http.StatusOK, c.now().Sub(start))

	if token.AccessToken == "" {
		return "", domain.NewOAuthError(http.StatusBadGateway, "provider returned an empty access token", nil)
	}
	return token.AccessToken, nil
}

// GetUser fetches the profile of the user owning token.
func (c *ProviderClient) GetUser(ctx context.Context, token string) (*domain.UserProfile, error) {
	if token == "" {
		return nil, domain.NewOAuthError(http.StatusUnauthorized, "missing access token", nil)
	}

	ctx = c.context(ctx)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.creds.Endpoint+userPath, nil)
	if err != nil {
		return nil, domain.NewOAuthError(http.StatusInternalServerError, "failed to build user request", err)
	}
	req.Header.Set("Accept", "application/json")

	httpClient := c.config("").Client(ctx, &oauth2.Token{AccessToken: token, TokenType: "Bearer"})
	httpClient.Timeout = c.httpClient.Timeout

	start := c.now()
	resp, err := httpClient.Do(req)
	if err != nil {
		c.observe(OpUser, 0, c.now().Sub(start))
		return nil, domain.AsOAuthError(err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	c.observe(OpUser, resp.StatusCode, c.now().Sub(start))

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProfileBytes))
	if err != nil {
		return nil, domain.NewOAuthError(http.StatusBadGateway, "failed to read user response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, domain.NewOAuthError(resp.StatusCode, providerMessage(body), nil)
	}

	var profile domain.UserProfile
	if err := json.Unmarshal(body, &profile); err != nil {
		return nil, domain.NewOAuthError(http.StatusBadGateway, "invalid user response", err)
	}
	return &profile, nil
}

func exchangeError(err error) *domain.OAuthError {
	var retrieveErr *oauth2.RetrieveError
	if !errors.As(err, &retrieveErr) {
		return domain.AsOAuthError(err)
	}

	message := retrieveErr.ErrorDescription
	if message == "" {
		message = retrieveErr.ErrorCode
	}
	if message == "" {
		message = providerMessage(retrieveErr.Body)
	}
	status := http.StatusBadGateway
	if retrieveErr.Response != nil {
		status = retrieveErr.Response.StatusCode
	}
	return domain.NewOAuthError(status, message, err)
}

func statusOf(err error) int {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
		return retrieveErr.Response.StatusCode
	}
	return 0
}

// providerMessage extracts a human readable message from an error body.
func providerMessage(body []byte) string {
	var payload struct {
		Error            interface{} `json:"error"`
		ErrorDescription string      `json:"error_description"`
		Message          string      `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		switch {
		case payload.ErrorDescription != "":
			return payload.ErrorDescription
		case payload.Message != "":
			return payload.Message
		}
		if s, ok := payload.Error.(string); ok && s != "" {
			return s
		}
	}

	text := strings.TrimSpace(string(body))
	if len(text) > 200 {
		text = text[:200]
	}
	return text
}

// String describes the client without its secret.
func (c *ProviderClient) String() string {
	return fmt.Sprintf("oauth.ProviderClient{client_id=%s endpoint=%s}", c.creds.ClientID, c.creds.Endpoint)
}
