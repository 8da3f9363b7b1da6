package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "depthmesh"

// Metrics holds the server's prometheus collectors. Each Metrics owns its
// registry so several servers can live in one process.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	exportsTotal   *prometheus.CounterVec
	exportDuration *prometheus.HistogramVec
	exportTris     *prometheus.HistogramVec
	exportBytes    *prometheus.HistogramVec

	jobsInFlight prometheus.Gauge
	jobsRejected *prometheus.CounterVec
}

// NewMetrics registers every collector on a fresh registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		exportsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "exports_total",
				Help:      "Total number of export runs",
			},
			[]string{"format", "outcome"},
		),
		exportDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "export_duration_seconds",
				Help:      "Export pipeline duration in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"format"},
		),
		exportTris: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "export_triangles",
				Help:      "Triangles per exported mesh",
				Buckets:   prometheus.ExponentialBuckets(1024, 4, 8),
			},
			[]string{"format"},
		),
		exportBytes: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "export_bytes",
				Help:      "Size of exported artifacts in bytes",
				Buckets:   prometheus.ExponentialBuckets(64<<10, 4, 8),
			},
			[]string{"format"},
		),

		jobsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "jobs_in_flight",
				Help:      "Pipeline runs currently holding a job slot",
			},
		),
		jobsRejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "jobs_rejected_total",
				Help:      "Requests turned away before running the pipeline",
			},
			[]string{"reason"},
		),
	}
}

// Handler serves the registry in the prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordRequest records one HTTP request
func (m *Metrics) RecordRequest(method, route string, status int, duration time.Duration) {
	m.requestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordExport records a successful export run
func (m *Metrics) RecordExport(format string, triangles int, bytes int64, duration time.Duration) {
	m.exportsTotal.WithLabelValues(format, "success").Inc()
	m.exportDuration.WithLabelValues(format).Observe(duration.Seconds())
	m.exportTris.WithLabelValues(format).Observe(float64(triangles))
	m.exportBytes.WithLabelValues(format).Observe(float64(bytes))
}

// RecordExportFailure records a failed export run
func (m *Metrics) RecordExportFailure(format string) {
	m.exportsTotal.WithLabelValues(format, "error").Inc()
}

// RecordRejected records a request refused for the given reason
func (m *Metrics) RecordRejected(reason string) {
	m.jobsRejected.WithLabelValues(reason).Inc()
}

// instrument wraps a route handler with request metrics labelled by its pattern
func (m *Metrics) instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)
		m.RecordRequest(r.Method, route, rw.statusCode, time.Since(start))
	})
}
