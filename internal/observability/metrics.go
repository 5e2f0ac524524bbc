package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the engine.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	syncRuns        *prometheus.CounterVec
	syncDepartments prometheus.Counter
	syncDeptErrors  prometheus.Counter
	syncDuration    prometheus.Histogram
	openConflicts   *prometheus.GaugeVec
}

// NewMetrics initialises the registry and base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orgsync_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "orgsync_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	syncRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orgsync_sync_runs_total",
		Help: "Sync runs by outcome (ok, partial, fatal, contended).",
	}, []string{"outcome"})
	syncDepartments := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orgsync_sync_departments_processed_total",
		Help: "Departments processed across all sync runs.",
	})
	syncDeptErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orgsync_sync_department_errors_total",
		Help: "Department-scoped errors recorded during sync runs.",
	})
	syncDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "orgsync_sync_duration_seconds",
		Help:    "Duration of complete sync runs.",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
	})
	openConflicts := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "orgsync_conflicts_open",
		Help: "Open conflict records by severity.",
	}, []string{"severity"})
	registry.MustRegister(requests, duration, syncRuns, syncDepartments, syncDeptErrors, syncDuration, openConflicts)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		syncRuns:        syncRuns,
		syncDepartments: syncDepartments,
		syncDeptErrors:  syncDeptErrors,
		syncDuration:    syncDuration,
		openConflicts:   openConflicts,
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

// ObserveSyncRun records the outcome of one sync run.
func (m *Metrics) ObserveSyncRun(outcome string, processed, errorCount int, duration time.Duration) {
	if m == nil {
		return
	}
	m.syncRuns.WithLabelValues(outcome).Inc()
	m.syncDepartments.Add(float64(processed))
	m.syncDeptErrors.Add(float64(errorCount))
	m.syncDuration.Observe(duration.Seconds())
}

// SetOpenConflicts records the current number of open conflicts per severity.
func (m *Metrics) SetOpenConflicts(severity string, count int) {
	if m == nil {
		return
	}
	m.openConflicts.WithLabelValues(severity).Set(float64(count))
}

// Middleware records metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = r.URL.Path
		}
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
