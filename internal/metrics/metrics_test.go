package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveProvider(t *testing.T) {
	m := New()

	m.ObserveProvider("exchange", http.StatusOK, 120*time.Millisecond)
	m.ObserveProvider("exchange", http.StatusBadRequest, 80*time.Millisecond)
	m.ObserveProvider("user", 0, time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProviderRequests.WithLabelValues("exchange", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProviderRequests.WithLabelValues("exchange", "400")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProviderRequests.WithLabelValues("user", "error")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.ProviderLatency))
}

func TestRecordLoginAndAccess(t *testing.T) {
	m := New()

	m.RecordLogin(OutcomeUnlocked)
	m.RecordLogin(OutcomeUnlocked)
	m.RecordLogin(OutcomeProfile)
	m.RecordAccess(true)
	m.RecordAccess(false)
	m.RecordAccess(false)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.LoginOutcomes.WithLabelValues(OutcomeUnlocked)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LoginOutcomes.WithLabelValues(OutcomeProfile)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.AccessChecks.WithLabelValues("false")))
}

func TestObserveHTTP(t *testing.T) {
	m := New()

	m.ObserveHTTP("", http.MethodGet, http.StatusNotFound, time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("unmatched", "GET", "404")))
}

func TestHandler(t *testing.T) {
	m := New()
	m.RecordLogin(OutcomeRedirectLogin)

	server := httptest.NewServer(m.Handler())
	defer server.Close()

	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `wa_oauth_gateway_login_outcomes_total{outcome="redirect_login"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
