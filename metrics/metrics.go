/*
Package metrics owns the Prometheus registry for the service.

PURPOSE:
  Collects HTTP request counts/latency and workflow events (applications,
  status transitions, overdrafts). Metrics implements leave.Recorder so
  the service can report events without importing Prometheus.

SEE ALSO:
  - leave/service.go: Recorder call sites
  - api/server.go: middleware + /metrics route
*/
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/warp/leave-engine/leave"
)

type Metrics struct {
	registry *prometheus.Registry
	handler  http.Handler

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	applications    *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	overdrafts      prometheus.Counter
}

// New registers all collectors on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		applications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "leave_applications_total",
			Help: "Leave applications by outcome",
		}, []string{"outcome"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "leave_transitions_total",
			Help: "Leave status transitions that were applied",
		}, []string{"from", "to"}),
		overdrafts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "leave_overdrafts_total",
			Help: "Approvals that drove a balance below zero",
		}),
	}

	registry.MustRegister(
		m.requestTotal, m.requestDuration, m.applications, m.transitions, m.overdrafts,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m
}

// Handler exposes the Prometheus HTTP handler.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry is exposed for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Middleware records request count and latency labelled by chi route
// pattern, so path parameters do not explode cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.requestTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.requestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// =============================================================================
// leave.Recorder
// =============================================================================

var _ leave.Recorder = (*Metrics)(nil)

func (m *Metrics) Application(outcome string) {
	m.applications.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Transition(from, to leave.Status) {
	m.transitions.WithLabelValues(string(from), string(to)).Inc()
}

func (m *Metrics) Overdraft() {
	m.overdrafts.Inc()
}
