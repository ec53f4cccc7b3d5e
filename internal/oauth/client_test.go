package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/wa-oauth-gateway/internal/domain"
	"github.com/ericfisherdev/wa-oauth-gateway/internal/settings"
)

type fakeProvider struct {
	server    *httptest.Server
	exchanges atomic.Int32
	userCalls atomic.Int32
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()
	p := &fakeProvider{}

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		p.exchanges.Add(1)
		require.NoError(t, r.ParseForm())
		w.Header().Set("Content-Type", "application/json")

		if r.PostForm.Get("client_id") != "client" || r.PostForm.Get("client_secret") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid_client"}`))
			return
		}

		switch r.PostForm.Get("code") {
		case "good":
			_, _ = w.Write([]byte(`{"access_token":"tok-1","token_type":"bearer","expires_in":86400}`))
		case "empty":
			_, _ = w.Write([]byte(`{"token_type":"bearer"}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"The authorization code is invalid"}`))
		}
	})
	mux.HandleFunc("/api/v1/users/current", func(w http.ResponseWriter, r *http.Request) {
		p.userCalls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		switch r.Header.Get("Authorization") {
		case "Bearer tok-1":
			_, _ = w.Write([]byte(`{"id":42,"email":"reader@example.com","roles":["subscriber"]}`))
		case "Bearer broken":
			_, _ = w.Write([]byte(`not json`))
		default:
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid_token","message":"Token expired"}`))
		}
	})

	p.server = httptest.NewServer(mux)
	t.Cleanup(p.server.Close)
	return p
}

func (p *fakeProvider) client(opts ...Option) *ProviderClient {
	return NewProviderClient(settings.Credentials{
		ClientID:     "client",
		ClientSecret: "secret",
		Endpoint:     p.server.URL,
	}, opts...)
}

func TestProviderClient_LoginURL(t *testing.T) {
	client := NewProviderClient(settings.Credentials{ClientID: "client", ClientSecret: "secret", Endpoint: "https://login.example.com"})
	callback := "https://site.example.com/wp-json/bp-wa-oauth/v1/oauth/login"

	raw := client.LoginURL(callback, "subscriber")
	u, err := url.Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, "login.example.com", u.Host)
	assert.Equal(t, "/oauth/authorize", u.Path)
	assert.Equal(t, "client", u.Query().Get("client_id"))
	assert.Equal(t, callback, u.Query().Get("redirect_uri"))
	assert.Equal(t, "code", u.Query().Get("response_type"))
	assert.Equal(t, "subscriber", u.Query().Get(RoleParam))
	assert.NotContains(t, raw, "secret")

	noRole, err := url.Parse(client.LoginURL(callback, ""))
	require.NoError(t, err)
	assert.False(t, noRole.Query().Has(RoleParam))
}

func TestProviderClient_ExchangeCode(t *testing.T) {
	provider := newFakeProvider(t)

	var observed []string
	client := provider.client(WithObserver(func(op string, status int, _ time.Duration) {
		observed = append(observed, op)
		assert.Equal(t, http.StatusOK, status)
	}))

	token, err := client.ExchangeCode(context.Background(), "https://site/cb", "good")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)
	assert.Equal(t, int32(1), provider.exchanges.Load())
	assert.Equal(t, []string{OpExchange}, observed)
}

func TestProviderClient_ExchangeCode_Errors(t *testing.T) {
	provider := newFakeProvider(t)

	tests := []struct {
		name           string
		client         *ProviderClient
		code           string
		expectedStatus int
		expectedMsg    string
		expectedCalls  int32
	}{
		{
			name:           "rejected code",
			client:         provider.client(),
			code:           "bad",
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "The authorization code is invalid",
			expectedCalls:  1,
		},
		{
			name:           "missing code",
			client:         provider.client(),
			code:           "",
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "missing authorization code",
			expectedCalls:  0,
		},
		{
			name: "wrong credentials",
			client: NewProviderClient(settings.Credentials{
				ClientID: "client", ClientSecret: "nope", Endpoint: provider.server.URL,
			}),
			code:           "good",
			expectedStatus: http.StatusUnauthorized,
			expectedMsg:    "invalid_client",
			expectedCalls:  1,
		},
		{
			name:           "empty token",
			client:         provider.client(),
			code:           "empty",
			expectedStatus: http.StatusBadGateway,
			expectedCalls:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider.exchanges.Store(0)

			_, err := tt.client.ExchangeCode(context.Background(), "https://site/cb", tt.code)
			require.Error(t, err)

			var oauthErr *domain.OAuthError
			require.True(t, errors.As(err, &oauthErr))
			assert.Equal(t, tt.expectedStatus, oauthErr.StatusCode)
			if tt.expectedMsg != "" {
				assert.Equal(t, tt.expectedMsg, oauthErr.Message)
			}
			assert.Equal(t, tt.expectedCalls, provider.exchanges.Load())
		})
	}
}

func TestProviderClient_ExchangeCode_NetworkFailure(t *testing.T) {
	provider := newFakeProvider(t)
	endpoint := provider.server.URL
	provider.server.Close()

	client := NewProviderClient(settings.Credentials{ClientID: "client", ClientSecret: "secret", Endpoint: endpoint})
	_, err := client.ExchangeCode(context.Background(), "https://site/cb", "good")

	var oauthErr *domain.OAuthError
	require.True(t, errors.As(err, &oauthErr))
	assert.Equal(t, http.StatusBadGateway, oauthErr.StatusCode)
}

func TestProviderClient_GetUser(t *testing.T) {
	provider := newFakeProvider(t)
	client := provider.client()

	profile, err := client.GetUser(context.Background(), "tok-1")
	require.NoError(t, err)
	assert.Equal(t, "42", profile.ID)
	assert.Equal(t, "reader@example.com", profile.Email)
	assert.True(t, profile.HasRole("subscriber"))

	out, err := json.Marshal(profile)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":42,"email":"reader@example.com","roles":["subscriber"]}`, string(out))
}

func TestProviderClient_GetUser_Errors(t *testing.T) {
	provider := newFakeProvider(t)
	client := provider.client()

	tests := []struct {
		name           string
		token          string
		expectedStatus int
		expectedMsg    string
	}{
		{name: "expired token", token: "stale", expectedStatus: http.StatusUnauthorized, expectedMsg: "Token expired"},
		{name: "missing token", token: "", expectedStatus: http.StatusUnauthorized, expectedMsg: "missing access token"},
		{name: "malformed profile", token: "broken", expectedStatus: http.StatusBadGateway, expectedMsg: "invalid user response"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.GetUser(context.Background(), tt.token)

			var oauthErr *domain.OAuthError
			require.True(t, errors.As(err, &oauthErr))
			assert.Equal(t, tt.expectedStatus, oauthErr.StatusCode)
			assert.Equal(t, tt.expectedMsg, oauthErr.Message)
		})
	}
}

func TestProviderClient_GetUser_Timeout(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer slow.Close()

	client := NewProviderClient(
		settings.Credentials{ClientID: "c", ClientSecret: "s", Endpoint: slow.URL},
		WithTimeout(50*time.Millisecond),
	)

	start := time.Now()
	_, err := client.GetUser(context.Background(), "tok")
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)

	var oauthErr *domain.OAuthError
	require.True(t, errors.As(err, &oauthErr))
	assert.Equal(t, http.StatusBadGateway, oauthErr.StatusCode)
}

func TestProviderClient_StringHidesSecret(t *testing.T) {
	client := NewProviderClient(settings.Credentials{ClientID: "c", ClientSecret: "hunter2", Endpoint: "https://x"})
	assert.NotContains(t, client.String(), "hunter2")
}
