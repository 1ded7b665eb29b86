package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInitIdempotent(t *testing.T) {
	// Call Init multiple times to test idempotency.
	Init()
	Init()

	if httpRequestsTotal == nil || httpRequestDurationSeconds == nil ||
		httpRequestsInFlight == nil || crawlJobsTotal == nil || crawlQueueDepth == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestObserveJob(t *testing.T) {
	Init()

	ObserveJob("status-observe-test")
	ObserveJob("status-observe-test")
	if val := testutil.ToFloat64(crawlJobsTotal.WithLabelValues("status-observe-test")); val != 2 {
		t.Errorf("Expected crawlJobsTotal to be 2, got %f", val)
	}
}

func TestQueueDepthGauge(t *testing.T) {
	Init()

	SetQueueDepth("crawl-gauge-test", 7)
	if val := testutil.ToFloat64(crawlQueueDepth.WithLabelValues("crawl-gauge-test")); val != 7 {
		t.Errorf("Expected queue depth 7, got %f", val)
	}

	ClearCrawl("crawl-gauge-test")
	if val := testutil.ToFloat64(crawlQueueDepth.WithLabelValues("crawl-gauge-test")); val != 0 {
		t.Errorf("Expected queue depth reset after clear, got %f", val)
	}
}
