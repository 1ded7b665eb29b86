package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/domainscope/sitemapper/internal/progress"
)

// PrometheusSink exports crawl progress metrics via Prometheus. It owns all
// collectors for crawls started/completed/running, per-host fetch counters,
// and per-page link histograms.
type PrometheusSink struct {
	crawlsStarted   prometheus.Counter
	crawlsCompleted prometheus.Counter
	crawlsRunning   prometheus.Gauge
	crawlPages      prometheus.Histogram

	pagesMapped *prometheus.CounterVec
	pageLinks   prometheus.Histogram

	fetchRequests *prometheus.CounterVec
	fetchBytes    *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec

	tracker *crawlTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		crawlsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sitemapper_crawls_started_total",
			Help: "Total crawls that have started.",
		}),
		crawlsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sitemapper_crawls_completed_total",
			Help: "Total crawls that have finished, including cancelled ones.",
		}),
		crawlsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sitemapper_crawls_running",
			Help: "Current number of running crawls.",
		}),
		crawlPages: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sitemapper_crawl_pages",
			Help:    "Pages mapped per completed crawl.",
			Buckets: []float64{1, 5, 10, 50, 100, 500, 1000, 5000},
		}),
		pagesMapped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sitemapper_pages_mapped_total",
			Help: "Pages recorded in the site map partitioned by host.",
		}, []string{"host"}),
		pageLinks: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sitemapper_page_links",
			Help:    "Outgoing links extracted per mapped page.",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250},
		}),
		fetchRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sitemapper_fetch_requests_total",
			Help: "Fetch completions partitioned by host and status class.",
		}, []string{"host", "status_class"}),
		fetchBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sitemapper_fetch_bytes_total",
			Help: "Bytes downloaded per host.",
		}, []string{"host"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sitemapper_fetch_duration_seconds",
			Help:    "Fetch duration partitioned by host and status class.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		}, []string{"host", "status_class"}),
		tracker: newCrawlTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.crawlsStarted,
		s.crawlsCompleted,
		s.crawlsRunning,
		s.crawlPages,
		s.pagesMapped,
		s.pageLinks,
		s.fetchRequests,
		s.fetchBytes,
		s.fetchDuration,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It is
// safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageCrawlStart:
		s.crawlsStarted.Inc()
		if s.tracker.start(evt.CrawlID) {
			s.crawlsRunning.Inc()
		}
	case progress.StageCrawlDone:
		s.crawlsCompleted.Inc()
		s.crawlPages.Observe(float64(evt.Pages))
		if s.tracker.complete(evt.CrawlID) {
			s.crawlsRunning.Dec()
		}
	case progress.StageFetchDone:
		s.handleFetchEvent(evt)
	case progress.StagePageDone:
		s.pagesMapped.WithLabelValues(hostLabel(evt)).Inc()
		s.pageLinks.Observe(float64(evt.Links))
	}
}

func (s *PrometheusSink) handleFetchEvent(evt progress.Event) {
	statusClass := string(evt.StatusClass)
	if statusClass == "" {
		statusClass = string(progress.StatusOther)
	}
	host := hostLabel(evt)
	s.fetchRequests.WithLabelValues(host, statusClass).Inc()
	if evt.Bytes > 0 {
		s.fetchBytes.WithLabelValues(host).Add(float64(evt.Bytes))
	}
	if evt.Dur > 0 {
		s.fetchDuration.WithLabelValues(host, statusClass).Observe(evt.Dur.Seconds())
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

func hostLabel(evt progress.Event) string {
	if evt.Host == "" {
		return "unknown"
	}
	return evt.Host
}

type crawlTracker struct {
	mu      sync.Mutex
	running map[[16]byte]struct{}
}

func newCrawlTracker() *crawlTracker {
	return &crawlTracker{running: make(map[[16]byte]struct{})}
}

func (t *crawlTracker) start(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *crawlTracker) complete(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
