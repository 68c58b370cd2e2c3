// Package metrics exposes the Prometheus collectors of the service. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	ResultOK    = "ok"
	ResultError = "error"
)

// UnmatchedPath labels the requests that did not match any route.
const UnmatchedPath = "unmatched"

// Metrics groups the collectors registered on a single registry.
type Metrics struct {
	registry        *prometheus.Registry
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	gatewayRequests *prometheus.CounterVec
	gatewayDuration *prometheus.HistogramVec
	flows           *prometheus.CounterVec
	paymentAmounts  *prometheus.HistogramVec
}

// New creates the collectors and registers them on a new registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	return &Metrics{
		registry: reg,
		httpRequests: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		httpDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name: "http_request_duration_seconds",
			Help: "Duration of HTTP requests in seconds",
		}, []string{"method", "path"}),
		gatewayRequests: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_requests_total",
			Help: "Total number of payment gateway requests",
		}, []string{"op", "result"}),
		gatewayDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name: "gateway_request_duration_seconds",
			Help: "Duration of payment gateway requests in seconds",
		}, []string{"op"}),
		flows: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "billing_flows_total",
			Help: "Total number of billing flows by outcome",
		}, []string{"flow", "result"}),
		paymentAmounts: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "payments_amount",
			Help:    "Recorded payment amounts",
			Buckets: prometheus.ExponentialBuckets(1000, 10, 5),
		}, []string{"status"}),
	}
}

// ObserveGateway records a gateway call that started at start.
func (m *Metrics) ObserveGateway(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	m.gatewayRequests.WithLabelValues(op, result).Inc()
	m.gatewayDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// IncFlow counts a finished billing flow.
func (m *Metrics) IncFlow(flow, result string) {
	if m == nil {
		return
	}
	m.flows.WithLabelValues(flow, result).Inc()
}

// ObservePaymentAmount records the amount of a ledger row.
func (m *Metrics) ObservePaymentAmount(status string, amount int64) {
	if m == nil {
		return
	}
	if amount < 0 {
		amount = -amount
	}
	m.paymentAmounts.WithLabelValues(status).Observe(float64(amount))
}

// Middleware counts every request by its chi route pattern, so path
// parameters do not explode the label cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path := UnmatchedPath
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.httpRequests.WithLabelValues(r.Method, path, strconv.Itoa(status)).Inc()
		m.httpDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
