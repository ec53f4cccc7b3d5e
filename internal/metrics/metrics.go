// Package metrics exposes prometheus metrics for the gateway.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "wa_oauth_gateway"

// Login outcomes.
const (
	OutcomeUnlocked      = "unlocked"
	OutcomeRedirectLogin = "redirect_login"
	OutcomeDestination   = "redirect_destination"
	OutcomeProfile       = "profile"
	OutcomeProviderError = "provider_error"
)

// Metrics holds the gateway's collectors.
type Metrics struct {
	registry *prometheus.Registry

	LoginOutcomes    *prometheus.CounterVec
	ProviderRequests *prometheus.CounterVec
	ProviderLatency  *prometheus.HistogramVec
	AccessChecks     *prometheus.CounterVec
	HTTPRequests     *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec
}

// New creates the collectors on a private registry. Go runtime and process
// collectors are registered alongside.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		LoginOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "login_outcomes_total",
				Help:      "Login requests by outcome",
			},
			[]string{"outcome"},
		),
		ProviderRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_requests_total",
				Help:      "Calls to the OAuth provider by operation and HTTP status",
			},
			[]string{"operation", "status"},
		),
		ProviderLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "provider_request_duration_seconds",
				Help:      "OAuth provider call latency in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"operation"},
		),
		AccessChecks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "access_checks_total",
				Help:      "Access checks by result",
			},
			[]string{"allowed"},
		),
		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by route, method and status",
			},
			[]string{"route", "method", "status"},
		),
		HTTPDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route"},
		),
	}
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveProvider records one provider call. It matches oauth.Observer.
func (m *Metrics) ObserveProvider(operation string, status int, elapsed time.Duration) {
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.ProviderRequests.WithLabelValues(operation, label).Inc()
	m.ProviderLatency.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// RecordLogin counts a login outcome.
func (m *Metrics) RecordLogin(outcome string) {
	m.LoginOutcomes.WithLabelValues(outcome).Inc()
}

// RecordAccess counts an access check.
func (m *Metrics) RecordAccess(allowed bool) {
	m.AccessChecks.WithLabelValues(strconv.FormatBool(allowed)).Inc()
}

// ObserveHTTP records a served request.
func (m *Metrics) ObserveHTTP(route, method string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	m.HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}
