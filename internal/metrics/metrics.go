// Package metrics exposes Prometheus collectors for the CRM service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	scrapeJobsTotal            *prometheus.CounterVec
	gatewayRequestsTotal       *prometheus.CounterVec
	pollerTicksTotal           prometheus.Counter
	pollerTrackedJobs          prometheus.Gauge
	importOutcomesTotal        *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus collectors. Safe to call multiple times.
func Init() {
	once.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "linkcrm_http_requests_total",
				Help: "Total number of HTTP requests, labeled by method, route, and code.",
			},
			[]string{"method", "route", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "linkcrm_http_request_duration_seconds",
				Help:    "HTTP request latency, labeled by method and route.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		)

		scrapeJobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "linkcrm_scrape_jobs_total",
				Help: "Scrape job state transitions, labeled by type and status.",
			},
			[]string{"type", "status"},
		)

		gatewayRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "linkcrm_gateway_requests_total",
				Help: "Calls to the external scrape vendor, labeled by operation and outcome.",
			},
			[]string{"operation", "outcome"},
		)

		pollerTicksTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "linkcrm_poller_ticks_total",
				Help: "Background poller sweeps executed.",
			},
		)

		pollerTrackedJobs = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "linkcrm_poller_tracked_jobs",
				Help: "Jobs currently tracked by the background poller.",
			},
		)

		importOutcomesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "linkcrm_import_outcomes_total",
				Help: "Per-record reconciliation outcomes, labeled by type and status.",
			},
			[]string{"type", "status"},
		)
	})
}

// Handler returns the /metrics endpoint handler.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObserveHTTPRequest records one served HTTP request.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveJobTransition records a scrape job entering a status.
func ObserveJobTransition(kind, status string) {
	Init()
	scrapeJobsTotal.WithLabelValues(kind, status).Inc()
}

// ObserveGatewayRequest records one call against the scrape vendor.
func ObserveGatewayRequest(operation, outcome string) {
	Init()
	gatewayRequestsTotal.WithLabelValues(operation, outcome).Inc()
}

// ObservePollerTick records one poller sweep and the tracked job count after it.
func ObservePollerTick(tracked int) {
	Init()
	pollerTicksTotal.Inc()
	pollerTrackedJobs.Set(float64(tracked))
}

// ObserveImportOutcome records one per-record reconciliation result.
func ObserveImportOutcome(kind, status string) {
	Init()
	importOutcomesTotal.WithLabelValues(kind, status).Inc()
}
