// Package metrics exposes Prometheus collectors for the HTTP surface and the
// serve-mode crawl runners. Crawl-level counters and histograms are fed from
// progress events by the Prometheus sink; this package covers what events
// cannot see, the HTTP server and live frontier depth.
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
	httpRequestsInFlight       prometheus.Gauge
	crawlJobsTotal             *prometheus.CounterVec
	crawlQueueDepth            *prometheus.GaugeVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitemapper_http_requests_total",
				Help: "Total HTTP requests served, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sitemapper_http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"method", "route"},
		)

		httpRequestsInFlight = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "sitemapper_http_requests_in_flight",
				Help: "HTTP requests currently being served.",
			},
		)

		crawlJobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitemapper_crawl_jobs_total",
				Help: "Crawl jobs finished, labeled by final status.",
			},
			[]string{"status"},
		)

		crawlQueueDepth = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sitemapper_crawl_queue_depth",
				Help: "URLs queued in the frontier of each active crawl.",
			},
			[]string{"crawl_id"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveJob increments the job counter for the given final status.
func ObserveJob(status string) {
	crawlJobsTotal.WithLabelValues(status).Inc()
}

// SetQueueDepth publishes the frontier depth of an active crawl.
func SetQueueDepth(crawlID string, depth int) {
	crawlQueueDepth.WithLabelValues(crawlID).Set(float64(depth))
}

// ClearCrawl drops the per-crawl gauges once a crawl finishes so the label
// set does not grow without bound.
func ClearCrawl(crawlID string) {
	crawlQueueDepth.DeleteLabelValues(crawlID)
}
