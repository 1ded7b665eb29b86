// Package worker executes submitted crawl jobs through the crawl engine.
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/domainscope/sitemapper/internal/crawler"
	"github.com/domainscope/sitemapper/internal/metrics"
	"github.com/domainscope/sitemapper/internal/progress"
	"github.com/domainscope/sitemapper/internal/store"
)

// Job is one accepted crawl waiting for a worker. The ID is assigned at
// submission and shared with the store record and the progress events.
type Job struct {
	ID     uuid.UUID
	Config crawler.Config
}

// snapshotInterval is how often a running crawl's frontier depth is pushed to
// the metrics gauge.
const snapshotInterval = time.Second

// Worker consumes Jobs and runs one crawl at a time: it builds an engine for
// the job, drives it to completion, records the resulting page map, and marks
// the crawl's final status in the store.
type Worker struct {
	crawls    store.CrawlStore
	fetcher   crawler.Fetcher
	extractor crawler.Extractor
	hub       *progress.Hub
	clock     crawler.Clock
	logger    *zap.Logger
}

// New constructs a Worker. The hub and clock may be nil; the store, fetcher,
// and extractor must not be.
func New(
	crawls store.CrawlStore,
	fetcher crawler.Fetcher,
	extractor crawler.Extractor,
	hub *progress.Hub,
	clock crawler.Clock,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		crawls:    crawls,
		fetcher:   fetcher,
		extractor: extractor,
		hub:       hub,
		clock:     clock,
		logger:    logger,
	}
}

// Run blocks, consuming jobs until the context finishes or the channel
// closes. A canceled context still lets the in-flight crawl settle and store
// its partial results before Run returns.
func (w *Worker) Run(ctx context.Context, jobs <-chan Job) {
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			w.processJob(ctx, job)
		}
	}
}

func (w *Worker) processJob(ctx context.Context, job Job) {
	logger := w.logger.With(zap.String("crawl_id", job.ID.String()))

	opts := []crawler.Option{
		crawler.WithLogger(logger),
		crawler.WithCrawlID(job.ID),
	}
	if w.hub != nil {
		opts = append(opts, crawler.WithHub(w.hub))
	}
	if w.clock != nil {
		opts = append(opts, crawler.WithClock(w.clock))
	}

	engine, err := crawler.New(job.Config, w.fetcher, w.extractor, opts...)
	if err != nil {
		logger.Error("engine construction failed", zap.Error(err))
		w.complete(job.ID, store.StatusFailed, err.Error(), store.Counters{})
		metrics.ObserveJob(string(store.StatusFailed))
		return
	}

	watchCtx, stopWatch := context.WithCancel(context.Background())
	go w.watchFrontier(watchCtx, job.ID, engine)

	results := engine.Run(ctx)

	stopWatch()
	metrics.ClearCrawl(job.ID.String())

	if err := w.recordPages(job.ID, results); err != nil {
		logger.Error("record pages failed", zap.Error(err))
	}

	status, errText := finalStatus(ctx, results)
	w.complete(job.ID, status, errText, countersFor(results, engine.Snapshot()))
	metrics.ObserveJob(string(status))
	logger.Info("crawl job finished",
		zap.String("status", string(status)),
		zap.Int("pages", len(results)),
	)
}

// watchFrontier publishes the live frontier depth while the crawl runs. It
// runs on its own context so the gauge keeps updating while an externally
// canceled crawl drains.
func (w *Worker) watchFrontier(ctx context.Context, id uuid.UUID, engine *crawler.Engine) {
	ticker := time.NewTicker(snapshotInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.SetQueueDepth(id.String(), engine.Snapshot().QueueDepth)
		}
	}
}

func (w *Worker) recordPages(id uuid.UUID, results crawler.Results) error {
	if len(results) == 0 {
		return nil
	}
	now := w.now()
	pages := make([]store.PageRecord, 0, len(results))
	for _, pageURL := range results.SortedPages() {
		pages = append(pages, store.PageRecord{
			CrawlID:   id,
			URL:       pageURL,
			Links:     results[pageURL].Sorted(),
			FetchedAt: now,
		})
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return w.crawls.RecordPages(ctx, id, pages)
}

// complete writes the terminal status. It uses a background context so a
// crawl interrupted by shutdown still lands its final record.
func (w *Worker) complete(id uuid.UUID, status store.CrawlStatus, errText string, final store.Counters) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.crawls.Complete(ctx, id, status, errText, w.now(), final); err != nil && !errors.Is(err, store.ErrNotFound) {
		w.logger.Error("complete crawl failed", zap.String("crawl_id", id.String()), zap.Error(err))
	}
}

func (w *Worker) now() time.Time {
	if w.clock != nil {
		return w.clock.Now()
	}
	return time.Now().UTC()
}

// finalStatus derives the terminal status for one crawl. A crawl interrupted
// by shutdown is canceled, a crawl that mapped nothing failed (typically an
// unreachable seed), anything else succeeded.
func finalStatus(ctx context.Context, results crawler.Results) (store.CrawlStatus, string) {
	switch {
	case ctx.Err() != nil:
		return store.StatusCanceled, "canceled before the frontier drained"
	case len(results) == 0:
		return store.StatusFailed, "no pages were mapped"
	default:
		return store.StatusSucceeded, ""
	}
}

func countersFor(results crawler.Results, snap crawler.Snapshot) store.Counters {
	return store.Counters{
		Pages:   int64(len(results)),
		Links:   int64(results.TotalLinks()),
		LastURL: snap.LastURL,
	}
}
