package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
)

// Metrics mengumpulkan metrik Prometheus untuk aplikasi.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	postings        *prometheus.CounterVec
	postingDuration prometheus.Histogram
	reversals       *prometheus.CounterVec
	closings        *prometheus.CounterVec
	integrityDrift  *prometheus.GaugeVec
	jobs            *prometheus.CounterVec
}

// NewMetrics menginisialisasi registry dan metrik dasar.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_http_requests_total",
		Help: "HTTP requests by route and status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "odyssey_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	postings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_ledger_postings_total",
		Help: "Journal postings by result.",
	}, []string{"result"})
	postingDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "odyssey_ledger_posting_duration_seconds",
		Help:    "Time spent posting a journal entry, including the transaction.",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	})
	reversals := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_ledger_reversals_total",
		Help: "Journal reversals by result.",
	}, []string{"result"})
	closings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_ledger_closings_total",
		Help: "Fiscal year closings by result.",
	}, []string{"result"})
	drift := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "odyssey_ledger_integrity_violations",
		Help: "Violations found by the last integrity check per tenant.",
	}, []string{"tenant", "kind"})
	jobs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_jobs_total",
		Help: "Background job runs by task and result.",
	}, []string{"task", "result"})
	registry.MustRegister(requests, duration, postings, postingDuration, reversals, closings, drift, jobs)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		postings:        postings,
		postingDuration: postingDuration,
		reversals:       reversals,
		closings:        closings,
		integrityDrift:  drift,
		jobs:            jobs,
	}
}

// Handler mengembalikan http.Handler untuk endpoint /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware mencatat metrik untuk setiap permintaan HTTP.
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

// Registerer mengekspos registry untuk pendaftaran metrik khusus.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// ObservePosting records a posting outcome; elapsed is only observed for committed entries.
func (m *Metrics) ObservePosting(result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.postings.WithLabelValues(result).Inc()
	if result == journals.ResultOK {
		m.postingDuration.Observe(elapsed.Seconds())
	}
}

func (m *Metrics) ObserveReversal(result string) {
	if m == nil {
		return
	}
	m.reversals.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveClosing(result string) {
	if m == nil {
		return
	}
	m.closings.WithLabelValues(result).Inc()
}

// ObserveIntegrity publishes the violation counts of the tenant's last check.
func (m *Metrics) ObserveIntegrity(tenantID string, report journals.IntegrityReport) {
	if m == nil {
		return
	}
	m.integrityDrift.WithLabelValues(tenantID, "balance_drift").Set(float64(len(report.Drifts)))
	m.integrityDrift.WithLabelValues(tenantID, "unbalanced_entry").Set(float64(len(report.Unbalanced)))
}

// ObserveJob counts a background task run.
func (m *Metrics) ObserveJob(task, result string) {
	if m == nil {
		return
	}
	m.jobs.WithLabelValues(task, result).Inc()
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
