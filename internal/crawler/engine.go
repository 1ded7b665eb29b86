package crawler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/domainscope/sitemapper/internal/progress"
)

// Engine crawls a single host breadth-first from a seed URL. Workers pull
// URLs from a shared frontier, fetch them through a bounded semaphore, extract
// links, and feed same-host discoveries back into the frontier. The crawl ends
// when the frontier drains, the page budget is spent, or the context is
// cancelled; in every case Run returns the pages mapped so far.
type Engine struct {
	cfg       Config
	seed      string
	baseHost  string
	fetcher   Fetcher
	extractor Extractor
	logger    *zap.Logger
	hub       *progress.Hub
	clock     Clock
	crawlID   uuid.UUID

	sem      *semaphore.Weighted
	frontier *frontier
	state    atomic.Int32

	mu      sync.Mutex
	results Results
	lastURL string
	hashes  map[string]string
}

// Option configures optional Engine collaborators.
type Option func(*Engine)

// WithLogger replaces the no-op default logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithHub routes progress events to hub. Without it the engine emits nothing.
func WithHub(hub *progress.Hub) Option {
	return func(e *Engine) { e.hub = hub }
}

// WithClock replaces the wall clock used to stamp progress events.
func WithClock(clock Clock) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithCrawlID fixes the crawl's identifier instead of generating one.
func WithCrawlID(id uuid.UUID) Option {
	return func(e *Engine) { e.crawlID = id }
}

// New validates cfg.BaseURL and builds an idle engine with the seed already
// admitted to the frontier. The seed must carry an explicit http or https
// scheme and a host; anything else fails with ErrMissingProtocol,
// ErrUnsupportedProtocol, or ErrInvalidURL.
func New(cfg Config, fetcher Fetcher, extractor Extractor, opts ...Option) (*Engine, error) {
	cfg = cfg.withDefaults()

	norm, host, err := ValidateSeed(cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	if fetcher == nil {
		return nil, errors.New("crawler: nil fetcher")
	}
	if extractor == nil {
		return nil, errors.New("crawler: nil extractor")
	}

	crawlID, err := uuid.NewV7()
	if err != nil {
		crawlID = uuid.New()
	}
	e := &Engine{
		cfg:       cfg,
		seed:      norm,
		baseHost:  host,
		fetcher:   fetcher,
		extractor: extractor,
		logger:    zap.NewNop(),
		crawlID:   crawlID,
		sem:       semaphore.NewWeighted(int64(cfg.Concurrency)),
		frontier:  newFrontier(),
		results:   make(Results),
		hashes:    make(map[string]string),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.state.Store(int32(StateIdle))
	e.frontier.PushIfNew(norm)
	return e, nil
}

// Run executes the crawl and returns the page map. It blocks until the
// frontier drains or ctx is cancelled; cancellation is a normal way to stop
// early and still yields the pages mapped so far. Run is single-shot: calls
// after the first return the accumulated results without crawling again.
func (e *Engine) Run(ctx context.Context) Results {
	if !e.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		e.mu.Lock()
		defer e.mu.Unlock()
		out := make(Results, len(e.results))
		for page, links := range e.results {
			out[page] = links
		}
		return out
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	e.logger.Info("crawl starting",
		zap.String("seed", e.seed),
		zap.String("host", e.baseHost),
		zap.Int("concurrency", e.cfg.Concurrency),
		zap.Int("max_pages", e.cfg.MaxPages),
	)
	e.emit(progress.Event{Stage: progress.StageCrawlStart, URL: e.seed, Host: e.baseHost})

	var wg sync.WaitGroup
	for i := 0; i < e.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.work(ctx)
		}()
	}

	drained := make(chan struct{})
	go func() {
		e.frontier.Wait()
		close(drained)
	}()

	select {
	case <-drained:
	case <-ctx.Done():
		e.logger.Info("crawl cancelled", zap.Error(ctx.Err()))
	}

	e.state.Store(int32(StateDraining))
	e.frontier.Close()
	cancel()
	wg.Wait()
	e.state.Store(int32(StateDone))

	e.mu.Lock()
	pages := len(e.results)
	links := e.results.TotalLinks()
	e.mu.Unlock()
	e.emit(progress.Event{Stage: progress.StageCrawlDone, Host: e.baseHost, Pages: int64(pages), Links: int64(links)})
	e.logger.Info("crawl finished", zap.Int("pages", pages), zap.Int("links", links))
	return e.results
}

// work is one worker's loop. It exits when the context is cancelled, the page
// budget is spent, or the frontier closes. The budget check happens before
// every pop so a worker that sees the budget spent can flush the queue and
// let the frontier drain instead of fetching pages that could never be kept.
func (e *Engine) work(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if e.budgetExhausted() {
			if n := e.frontier.Flush(); n > 0 {
				e.logger.Debug("page budget spent, dropping queued urls", zap.Int("dropped", n))
			}
			return
		}
		pageURL, ok := e.frontier.Pop()
		if !ok {
			return
		}
		e.process(ctx, pageURL)
	}
}

// process handles one URL end to end. Faults are contained here: an unusable
// fetch is logged and skipped, and a panic while handling one page never
// takes down the crawl.
func (e *Engine) process(ctx context.Context, pageURL string) {
	defer e.frontier.Done()
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("panic while processing url", zap.String("url", pageURL), zap.Any("panic", r))
		}
	}()

	res, ok := e.fetch(ctx, pageURL)
	if !ok {
		if ctx.Err() != nil {
			return
		}
		e.logger.Debug("page not usable", zap.String("url", pageURL))
		e.emit(progress.Event{
			Stage:       progress.StageFetchDone,
			URL:         pageURL,
			Host:        e.baseHost,
			StatusClass: progress.StatusSkip,
		})
		return
	}
	e.emit(progress.Event{
		Stage:       progress.StageFetchDone,
		URL:         res.FinalURL,
		Host:        e.baseHost,
		Bytes:       int64(len(res.Body)),
		StatusClass: progress.ClassifyStatus(res.StatusCode),
		Dur:         res.Duration,
	})

	links := e.extractor.ExtractLinks(res.Body, res.FinalURL)
	if !e.record(res.FinalURL, res.BodyHash, links) {
		return
	}
	e.emit(progress.Event{
		Stage:    progress.StagePageDone,
		URL:      res.FinalURL,
		Host:     e.baseHost,
		Links:    int64(len(links)),
		BodyHash: res.BodyHash,
	})

	for link := range links {
		if !SameHost(link, e.baseHost) {
			continue
		}
		e.frontier.PushIfNew(link)
	}
}

// fetch runs one fetch under the concurrency semaphore and the per-fetch
// timeout. Only the network call holds a semaphore slot; parsing and
// bookkeeping happen after release.
func (e *Engine) fetch(ctx context.Context, pageURL string) (FetchResult, bool) {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return FetchResult{}, false
	}
	defer e.sem.Release(1)

	fctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()
	return e.fetcher.Fetch(fctx, pageURL)
}

// record stores one page's outgoing links keyed by its final URL. Converging
// redirect chains overwrite the earlier entry, which keeps the map size
// stable. A new key is refused once the budget is spent, and the check and
// insert happen under one lock, so the result never exceeds MaxPages entries.
func (e *Engine) record(pageURL, bodyHash string, links LinkSet) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, existing := e.results[pageURL]
	if !existing && len(e.results) >= e.cfg.MaxPages {
		return false
	}
	if bodyHash != "" {
		if first, seen := e.hashes[bodyHash]; seen && first != pageURL {
			e.logger.Debug("duplicate page body", zap.String("url", pageURL), zap.String("first_seen", first))
		} else if !seen {
			e.hashes[bodyHash] = pageURL
		}
	}
	e.results[pageURL] = links
	e.lastURL = pageURL
	return true
}

func (e *Engine) budgetExhausted() bool {
	return e.pageCount() >= e.cfg.MaxPages
}

func (e *Engine) pageCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.results)
}

// emit stamps and forwards ev when a hub is attached.
func (e *Engine) emit(ev progress.Event) {
	if e.hub == nil {
		return
	}
	ev.CrawlID = progress.UUIDToBytes(e.crawlID)
	ev.TS = e.now()
	e.hub.Emit(ev)
}

func (e *Engine) now() time.Time {
	if e.clock != nil {
		return e.clock.Now()
	}
	return time.Now().UTC()
}

// State reports the engine's lifecycle state.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// Snapshot reports a point-in-time view of the crawl for observers. It is
// safe to call from any goroutine while the crawl runs.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Snapshot{
		State:      State(e.state.Load()),
		Pages:      len(e.results),
		QueueDepth: e.frontier.Len(),
		LastURL:    e.lastURL,
	}
}

// BaseHost reports the authority every crawled URL must match.
func (e *Engine) BaseHost() string {
	return e.baseHost
}

// Seed reports the normalized seed URL.
func (e *Engine) Seed() string {
	return e.seed
}

// CrawlID reports the identifier stamped on this crawl's progress events.
func (e *Engine) CrawlID() uuid.UUID {
	return e.crawlID
}
