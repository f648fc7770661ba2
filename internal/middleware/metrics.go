// Package middleware provides HTTP middleware shared by both services.
package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "microauthx_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"service", "method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "microauthx_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)

	// Business metrics
	registrationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "microauthx_registrations_total",
			Help: "Total number of successful signups",
		},
	)

	loginsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "microauthx_logins_total",
			Help: "Total number of successful logins",
		},
	)

	loginFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "microauthx_login_failures_total",
			Help: "Total number of failed logins by reason",
		},
		[]string{"reason"},
	)

	pageViewsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "microauthx_page_views_total",
			Help: "Total page views by page",
		},
		[]string{"page"},
	)

	upstreamErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "microauthx_upstream_errors_total",
			Help: "Total number of failed calls to the auth service",
		},
	)
)

// Metrics returns a middleware that records request counters and latency
// histograms for the named service.
func Metrics(service string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := wrapResponseWriter(w)

			next.ServeHTTP(wrapped, r)

			path := normalizePath(r)
			duration := time.Since(start).Seconds()
			status := strconv.Itoa(wrapped.status)

			httpRequestsTotal.WithLabelValues(service, r.Method, path, status).Inc()
			httpRequestDuration.WithLabelValues(service, r.Method, path).Observe(duration)
		})
	}
}

// normalizePath uses the chi route pattern when available to keep metric
// cardinality bounded.
func normalizePath(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx != nil && rctx.RoutePattern() != "" {
		return rctx.RoutePattern()
	}
	return r.URL.Path
}

// IncrementRegistrations records a successful signup.
func IncrementRegistrations() {
	registrationsTotal.Inc()
}

// IncrementLogins records a successful login.
func IncrementLogins() {
	loginsTotal.Inc()
}

// IncrementLoginFailures records a failed login. The reason label is
// internal only; API responses stay indistinguishable across reasons.
func IncrementLoginFailures(reason string) {
	loginFailuresTotal.WithLabelValues(reason).Inc()
}

// IncrementPageViews records a rendered page view.
func IncrementPageViews(page string) {
	pageViewsTotal.WithLabelValues(page).Inc()
}

// IncrementUpstreamErrors records a failed auth service call.
func IncrementUpstreamErrors() {
	upstreamErrorsTotal.Inc()
}
