// Package metrics exposes Prometheus collectors for exports, source decoding
// and HTTP requests on a dedicated registry.
package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JonMunkholm/mapexport/internal/core"
)

const namespace = "mapexport"

// Metrics holds the collectors. It implements core.ExportObserver.
type Metrics struct {
	reg *prometheus.Registry

	exportsStarted  prometheus.Counter
	exportsFinished *prometheus.CounterVec   // phase
	exportDuration  *prometheus.HistogramVec // phase
	rows            *prometheus.CounterVec   // disposition
	transformErrors prometheus.Counter
	activeExports   prometheus.Gauge

	decodes        *prometheus.CounterVec // format, status
	decodeDuration *prometheus.HistogramVec

	httpRequests *prometheus.CounterVec // method, route, status
	httpDuration *prometheus.HistogramVec
}

var _ core.ExportObserver = (*Metrics)(nil)

// New registers all collectors on a fresh registry. Go runtime and process
// collectors are included when withRuntime is set.
func New(withRuntime bool) (*Metrics, error) {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		exportsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exports_started_total",
			Help:      "Exports handed to a worker.",
		}),
		exportsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exports_finished_total",
			Help:      "Exports that ended, by final phase.",
		}, []string{"phase"}),
		exportDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "export_duration_seconds",
			Help:      "Wall time of export runs, by final phase.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
		}, []string{"phase"}),
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "export_rows_total",
			Help:      "Rows processed by finished exports, by disposition.",
		}, []string{"disposition"}),
		transformErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transform_errors_total",
			Help:      "Cells whose transform failed and kept the raw value.",
		}),
		activeExports: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_exports",
			Help:      "Exports currently holding a worker slot.",
		}),
		decodes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_decodes_total",
			Help:      "Source files decoded, by format and status.",
		}, []string{"format", "status"}),
		decodeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_decode_duration_seconds",
			Help:      "Time spent decoding source files, by format.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"format"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests, by method, route pattern and status code.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency, by method and route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	cs := []prometheus.Collector{
		m.exportsStarted, m.exportsFinished, m.exportDuration, m.rows,
		m.transformErrors, m.activeExports, m.decodes, m.decodeDuration,
		m.httpRequests, m.httpDuration,
	}
	if withRuntime {
		cs = append(cs,
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	for _, c := range cs {
		if err := m.reg.Register(c); err != nil {
			return nil, fmt.Errorf("metrics: register collector: %w", err)
		}
	}
	return m, nil
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Metrics) ExportStarted() {
	m.exportsStarted.Inc()
}

func (m *Metrics) ExportFinished(phase core.ExportPhase, stats core.Stats, elapsed time.Duration) {
	p := string(phase)
	m.exportsFinished.WithLabelValues(p).Inc()
	m.exportDuration.WithLabelValues(p).Observe(elapsed.Seconds())

	if phase != core.PhaseComplete {
		return
	}
	m.rows.WithLabelValues("exported").Add(float64(stats.ExportedRows))
	m.rows.WithLabelValues("empty").Add(float64(stats.EmptyRows))
	m.rows.WithLabelValues("filtered").Add(float64(stats.FilteredRows))
	m.rows.WithLabelValues("upstream_skipped").Add(float64(stats.UpstreamSkipped))
	m.transformErrors.Add(float64(stats.TransformErrors))
}

func (m *Metrics) ActiveExports(n int) {
	m.activeExports.Set(float64(n))
}

// ObserveDecode records one source decode. An empty format is reported as
// "unknown".
func (m *Metrics) ObserveDecode(format string, elapsed time.Duration, err error) {
	if format == "" {
		format = "unknown"
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.decodes.WithLabelValues(format, status).Inc()
	m.decodeDuration.WithLabelValues(format).Observe(elapsed.Seconds())
}

// Middleware counts requests by chi route pattern, so path parameters do
// not create new label values. Unmatched routes are reported as "other".
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "other"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
