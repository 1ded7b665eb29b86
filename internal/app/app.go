// Package app initializes and holds the long-lived services shared by the
// CLI commands, acting as a small dependency injection container.
package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/domainscope/sitemapper/internal/clock/system"
	"github.com/domainscope/sitemapper/internal/config"
	"github.com/domainscope/sitemapper/internal/crawler"
	goqueryextractor "github.com/domainscope/sitemapper/internal/extractor/goquery"
	collyfetcher "github.com/domainscope/sitemapper/internal/fetcher/colly"
	"github.com/domainscope/sitemapper/internal/hash/sha256"
	"github.com/domainscope/sitemapper/internal/id/uuid"
	"github.com/domainscope/sitemapper/internal/logging"
	"github.com/domainscope/sitemapper/internal/metrics"
	"github.com/domainscope/sitemapper/internal/progress"
	"github.com/domainscope/sitemapper/internal/progress/sinks"
	"github.com/domainscope/sitemapper/internal/store"
	memorystore "github.com/domainscope/sitemapper/internal/store/memory"
)

// App holds the shared services: the logger, the progress hub with its sinks,
// the fetcher/extractor pair every engine uses, and the crawl store backing
// serve mode. It is built once at startup and handed to the commands.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	hub       *progress.Hub
	ring      *sinks.RingSink
	crawls    store.CrawlStore
	fetcher   crawler.Fetcher
	extractor crawler.Extractor
	idGen     *uuid.Generator
	clock     crawler.Clock
}

// Option adjusts how NewApp builds the container.
type Option func(*options)

type options struct {
	registerer prometheus.Registerer
}

// WithRegisterer routes the progress metrics to reg instead of the default
// Prometheus registry. Tests use this to avoid duplicate registration.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// NewApp builds every shared service from the loaded configuration. It fails
// fast: any service that cannot be constructed aborts startup.
func NewApp(ctx context.Context, cfg config.Config, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	logger, err := logging.New(cfg.Logging.Verbose)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	logger.Debug("initializing application services")

	metrics.Init()

	hasher := sha256.New()
	clk := system.New()
	crawls := memorystore.NewCrawlStore()

	promSink, err := sinks.NewPrometheusSink(o.registerer)
	if err != nil {
		return nil, fmt.Errorf("init prometheus sink: %w", err)
	}
	ring := sinks.NewRingSink(cfg.Events.RingCapacity)

	hubSinks := []progress.Sink{
		promSink,
		ring,
		sinks.NewStoreSink(crawls, logger),
	}
	if cfg.Logging.Verbose {
		hubSinks = append(hubSinks, sinks.NewLogSink(logger))
	}
	hubCfg := cfg.HubConfig()
	hubCfg.BaseContext = ctx
	hubCfg.Logger = logger
	hub := progress.NewHub(hubCfg, hubSinks...)

	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.Fetch.UserAgent,
		Timeout:   cfg.Crawl.Timeout(),
	}, hasher, logger)
	extractor := goqueryextractor.New(logger)

	logger.Debug("application services initialized")
	return &App{
		cfg:       cfg,
		logger:    logger,
		hub:       hub,
		ring:      ring,
		crawls:    crawls,
		fetcher:   fetcher,
		extractor: extractor,
		idGen:     uuid.New(),
		clock:     clk,
	}, nil
}

// GetConfig returns the loaded configuration.
func (a *App) GetConfig() config.Config {
	return a.cfg
}

// GetLogger returns the shared zap logger.
func (a *App) GetLogger() *zap.Logger {
	return a.logger
}

// GetHub returns the progress hub all engines emit into.
func (a *App) GetHub() *progress.Hub {
	return a.hub
}

// GetRing returns the recent-events ring read by the API.
func (a *App) GetRing() *sinks.RingSink {
	return a.ring
}

// GetCrawls returns the crawl store backing serve mode.
func (a *App) GetCrawls() store.CrawlStore {
	return a.crawls
}

// GetFetcher returns the shared page fetcher.
func (a *App) GetFetcher() crawler.Fetcher {
	return a.fetcher
}

// GetExtractor returns the shared link extractor.
func (a *App) GetExtractor() crawler.Extractor {
	return a.extractor
}

// GetIDGen returns the crawl ID generator.
func (a *App) GetIDGen() *uuid.Generator {
	return a.idGen
}

// GetClock returns the shared clock.
func (a *App) GetClock() crawler.Clock {
	return a.clock
}

// Close flushes the progress hub and the logger. It is called once after the
// running command finishes.
func (a *App) Close(ctx context.Context) {
	if err := a.hub.Close(ctx); err != nil {
		a.logger.Warn("progress hub close failed", zap.Error(err))
	}
	// Sync can legitimately fail on stderr; nothing useful to do about it.
	_ = a.logger.Sync()
}
