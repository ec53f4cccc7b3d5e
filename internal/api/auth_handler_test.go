package api_test

import (
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/wa-oauth-gateway/internal/api"
	"github.com/ericfisherdev/wa-oauth-gateway/internal/oauth"
	"github.com/ericfisherdev/wa-oauth-gateway/internal/session"
	helpers "github.com/ericfisherdev/wa-oauth-gateway/internal/testutil"
)

// cachedClients wraps every client of inner in a CachingClient sharing cache.
type cachedClients struct {
	inner api.ClientSource
	cache oauth.ProfileCache
}

func (s cachedClients) ForLocale(locale string) (oauth.Client, error) {
	client, err := s.inner.ForLocale(locale)
	if err != nil {
		return nil, err
	}
	return oauth.NewCachingClient(client, s.cache, time.Minute, nil), nil
}

func TestUser(t *testing.T) {
	tests := []struct {
		name       string
		cookies    []*http.Cookie
		wantStatus int
		wantBody   string
	}{
		{
			name:       "no session",
			wantStatus: http.StatusUnauthorized,
			wantBody:   `{"error":"Not authenticated"}`,
		},
		{
			name:       "valid token",
			cookies:    []*http.Cookie{tokenCookie("tok-sub")},
			wantStatus: http.StatusOK,
			wantBody:   `{"id":"42","email":"reader@example.com","roles":["subscriber"]}`,
		},
		{
			name:       "token the provider rejects",
			cookies:    []*http.Cookie{tokenCookie("tok-unknown")},
			wantStatus: http.StatusUnauthorized,
			wantBody:   `{"error":"Invalid access token"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			w := f.http.GET(api.RoutePrefix+api.UserRoute, nil, tt.cookies...)

			f.http.AssertStatus(w, tt.wantStatus)
			assert.JSONEq(t, tt.wantBody, w.Body.String())
			assert.Equal(t, 0, f.mock.CountCalls("exchange:"))
		})
	}
}

func TestAccess(t *testing.T) {
	tests := []struct {
		name    string
		query   url.Values
		cookies []*http.Cookie
		want    bool
	}{
		{name: "no session on locked resource", query: url.Values{"resource": {"2"}}},
		{name: "no session on unlocked resource", query: url.Values{"resource": {"1"}}},
		{
			name:    "role holder on locked resource",
			query:   url.Values{"resource": {"2"}},
			cookies: []*http.Cookie{tokenCookie("tok-sub")},
			want:    true,
		},
		{
			name:    "missing role on locked resource",
			query:   url.Values{"resource": {"2"}},
			cookies: []*http.Cookie{tokenCookie("tok-guest")},
		},
		{
			name:    "any user on unlocked resource",
			query:   url.Values{"resource": {"1"}},
			cookies: []*http.Cookie{tokenCookie("tok-guest")},
			want:    true,
		},
		{
			name:    "locked resource without role",
			query:   url.Values{"resource": {"3"}},
			cookies: []*http.Cookie{tokenCookie("tok-sub")},
		},
		{
			name:    "unknown resource",
			query:   url.Values{"resource": {"999"}},
			cookies: []*http.Cookie{tokenCookie("tok-sub")},
		},
		{
			name:    "no resource only needs a user",
			cookies: []*http.Cookie{tokenCookie("tok-guest")},
			want:    true,
		},
		{
			name:    "resource from redirect uri",
			query:   url.Values{"redirectUri": {siteURL + "/locked-article"}},
			cookies: []*http.Cookie{tokenCookie("tok-sub")},
			want:    true,
		},
		{
			name:    "redirect uri denies missing role",
			query:   url.Values{"redirectUri": {siteURL + "/locked-article"}},
			cookies: []*http.Cookie{tokenCookie("tok-guest")},
		},
		{
			name:    "redirect uri on another host maps to no resource",
			query:   url.Values{"redirectUri": {"https://evil.example.net/locked-article"}},
			cookies: []*http.Cookie{tokenCookie("tok-guest")},
			want:    true,
		},
		{
			name:    "rejected token",
			query:   url.Values{"resource": {"1"}},
			cookies: []*http.Cookie{tokenCookie("tok-unknown")},
		},
		{
			name:  "code is never exchanged",
			query: url.Values{"resource": {"2"}, "code": {"good-code"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			target := api.RoutePrefix + api.AccessRoute
			if len(tt.query) > 0 {
				target += "?" + tt.query.Encode()
			}
			w := f.http.GET(target, nil, tt.cookies...)

			f.http.AssertStatus(w, http.StatusOK)
			f.http.AssertHeader(w, "Cache-Control", "no-store")
			f.http.AssertJSON(w, map[string]bool{"authenticated": tt.want})
			assert.Empty(t, w.Result().Cookies())
			assert.Equal(t, 0, f.mock.CountCalls("exchange:"))
			assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.AccessChecks.WithLabelValues(boolLabel(tt.want))))
		})
	}
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func TestLogout(t *testing.T) {
	t.Run("clears both cookies", func(t *testing.T) {
		f := newFixture(t)

		w := f.http.GET(api.RoutePrefix+api.LogoutRoute, nil,
			tokenCookie("tok-sub"), destinationCookie(siteURL+"/locked-article"))

		f.http.AssertStatus(w, http.StatusNoContent)
		for _, name := range []string{session.TokenCookieName, session.DestinationCookieName} {
			cleared := helpers.Cookie(w, name)
			require.NotNil(t, cleared, name)
			assert.Empty(t, cleared.Value)
			assert.Less(t, cleared.MaxAge, 0)
		}
	})

	t.Run("redirects when asked", func(t *testing.T) {
		f := newFixture(t)
		target := siteURL + "/free-article"

		w := f.http.PostForm(api.RoutePrefix+api.LogoutRoute, url.Values{"redirectUri": {target}}, tokenCookie("tok-sub"))

		f.http.AssertRedirect(w, target)
		assert.NotNil(t, helpers.Cookie(w, session.TokenCookieName))
	})

	t.Run("drops the cached profile", func(t *testing.T) {
		f := newFixture(t, func(cfg *api.LoginHandlerConfig) {
			cfg.Clients = cachedClients{inner: cfg.Clients, cache: oauth.NewMemoryProfileCache()}
		})
		userPath := api.RoutePrefix + api.UserRoute

		f.http.AssertStatus(f.http.GET(userPath, nil, tokenCookie("tok-sub")), http.StatusOK)
		f.http.AssertStatus(f.http.GET(userPath, nil, tokenCookie("tok-sub")), http.StatusOK)
		assert.Equal(t, 1, f.mock.CountCalls("user:tok-sub"))

		f.http.AssertStatus(f.http.GET(api.RoutePrefix+api.LogoutRoute, nil, tokenCookie("tok-sub")), http.StatusNoContent)

		f.http.AssertStatus(f.http.GET(userPath, nil, tokenCookie("tok-sub")), http.StatusOK)
		assert.Equal(t, 2, f.mock.CountCalls("user:tok-sub"))
	})
}

func TestPreflight(t *testing.T) {
	f := newFixture(t)

	for _, route := range []string{api.UserRoute, api.AccessRoute} {
		w := f.http.Request(http.MethodOptions, api.RoutePrefix+route, nil, nil)
		f.http.AssertStatus(w, http.StatusNoContent)
	}
}
