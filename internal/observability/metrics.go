package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the auth services.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	loginsTotal     *prometheus.CounterVec
	verifyTotal     *prometheus.CounterVec
	codesSent       *prometheus.CounterVec
	guardDecisions  *prometheus.CounterVec
}

// NewMetrics initialises the registry and the base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tasklane_http_requests_total",
		Help: "HTTP requests by route and status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tasklane_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	logins := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tasklane_auth_logins_total",
		Help: "Credential login attempts by role and outcome.",
	}, []string{"role", "outcome"})
	verify := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tasklane_auth_verifications_total",
		Help: "Step-up verification attempts by outcome.",
	}, []string{"outcome"})
	codes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tasklane_auth_codes_sent_total",
		Help: "Verification codes queued for delivery by outcome.",
	}, []string{"outcome"})
	guards := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tasklane_guard_decisions_total",
		Help: "Route guard decisions by role and state.",
	}, []string{"role", "state"})
	registry.MustRegister(requests, duration, logins, verify, codes, guards)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		loginsTotal:     logins,
		verifyTotal:     verify,
		codesSent:       codes,
		guardDecisions:  guards,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records metrics for each HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// RecordLogin counts a login attempt. outcome is success, challenge or failure.
func (m *Metrics) RecordLogin(role, outcome string) {
	if m == nil {
		return
	}
	m.loginsTotal.WithLabelValues(role, outcome).Inc()
}

// RecordVerification counts a verify-code attempt.
func (m *Metrics) RecordVerification(outcome string) {
	if m == nil {
		return
	}
	m.verifyTotal.WithLabelValues(outcome).Inc()
}

// RecordCodeSent counts a verification code dispatch.
func (m *Metrics) RecordCodeSent(outcome string) {
	if m == nil {
		return
	}
	m.codesSent.WithLabelValues(outcome).Inc()
}

// RecordGuardDecision counts a terminal route guard state.
func (m *Metrics) RecordGuardDecision(role, state string) {
	if m == nil {
		return
	}
	m.guardDecisions.WithLabelValues(role, state).Inc()
}

// Registerer exposes the registry for custom metric registration.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
