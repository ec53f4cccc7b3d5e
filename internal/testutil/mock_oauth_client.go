package testutil

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/ericfisherdev/wa-oauth-gateway/internal/domain"
)

// MockOAuthClient is an in-memory OAuth provider. Codes map to tokens and
// tokens map to profiles; anything else is rejected like the real provider
// would.
type MockOAuthClient struct {
	mu sync.Mutex

	Endpoint string
	Codes    map[string]string
	Users    map[string]*domain.UserProfile

	// ExchangeErr and UserErr, when set, are returned instead.
	ExchangeErr error
	UserErr     error

	// Calls records "exchange:<code>" and "user:<token>" in order.
	Calls []string
}

// NewMockOAuthClient creates a mock provider at https://login.example.com.
func NewMockOAuthClient() *MockOAuthClient {
	return &MockOAuthClient{
		Endpoint: "https://login.example.com",
		Codes:    make(map[string]string),
		Users:    make(map[string]*domain.UserProfile),
	}
}

// AddUser registers a profile reachable through code and token.
func (m *MockOAuthClient) AddUser(code, token string, user *domain.UserProfile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if code != "" {
		m.Codes[code] = token
	}
	m.Users[token] = user
}

// LoginURL builds a provider login URL the way the real client does.
func (m *MockOAuthClient) LoginURL(redirectURI, requiredRole string) string {
	q := url.Values{}
	q.Set("client_id", "test-client")
	q.Set("redirect_uri", redirectURI)
	q.Set("response_type", "code")
	if requiredRole != "" {
		q.Set("accessible_for", requiredRole)
	}
	return m.Endpoint + "/oauth/authorize?" + q.Encode()
}

// ExchangeCode trades a registered code for its token.
func (m *MockOAuthClient) ExchangeCode(_ context.Context, _ string, code string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, "exchange:"+code)

	if m.ExchangeErr != nil {
		return "", m.ExchangeErr
	}
	token, ok := m.Codes[code]
	if !ok {
		return "", domain.NewOAuthError(http.StatusBadRequest, "The authorization code is invalid", nil)
	}
	return token, nil
}

// GetUser returns the profile registered for token.
func (m *MockOAuthClient) GetUser(_ context.Context, token string) (*domain.UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, "user:"+token)

	if m.UserErr != nil {
		return nil, m.UserErr
	}
	user, ok := m.Users[token]
	if !ok {
		return nil, domain.NewOAuthError(http.StatusUnauthorized, "Invalid access token", nil)
	}
	return user, nil
}

// CallLog returns a copy of the recorded calls.
func (m *MockOAuthClient) CallLog() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.Calls...)
}

// CountCalls returns how many recorded calls start with prefix.
func (m *MockOAuthClient) CountCalls(prefix string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, call := range m.Calls {
		if strings.HasPrefix(call, prefix) {
			n++
		}
	}
	return n
}
