// Package collyfetcher implements Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"mime"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/domainscope/sitemapper/internal/crawler"
)

// Request headers mimic a desktop browser. Some hosts serve reduced markup
// or a 403 to obvious library user agents.
const (
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
	acceptHeader     = "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8"
	acceptLanguage   = "en-US,en;q=0.5"
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Fetcher implements crawler.Fetcher using the Colly collector. Only a 200
// response carrying text/html counts as a usable page; everything else is
// logged and reported as not usable.
type Fetcher struct {
	cfg           Config
	hasher        crawler.Hasher
	logger        *zap.Logger
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// pageResponse is what the collector hooks capture for a single fetch.
type pageResponse struct {
	finalURL    string
	statusCode  int
	contentType string
	body        []byte
}

// New builds a Fetcher.
func New(cfg Config, hasher crawler.Hasher, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := colly.NewCollector(colly.Async(false))
	c.WithTransport(newHTTPTransport())

	return &Fetcher{
		cfg:           cfg,
		hasher:        hasher,
		logger:        logger,
		baseCollector: c,
	}
}

// Fetch executes a single HTTP GET using Colly. Redirects are followed; the
// result's FinalURL is the URL the last response actually came from.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (crawler.FetchResult, bool) {
	start := time.Now()
	var (
		resp     pageResponse
		fetchErr error
	)
	collector := f.buildCollector(&resp, &fetchErr)

	err := f.runCollector(ctx, collector, rawURL)
	if err == nil {
		err = fetchErr
	}
	if err != nil {
		fields := []zap.Field{zap.String("url", rawURL), zap.Error(err)}
		if resp.statusCode != 0 {
			fields = append(fields, zap.Int("status", resp.statusCode))
		}
		f.logger.Debug("page fetch failed", fields...)
		return crawler.FetchResult{}, false
	}
	return f.page(rawURL, resp, time.Since(start))
}

func (f *Fetcher) buildCollector(resp *pageResponse, fetchErr *error) *colly.Collector {
	collector := f.baseCollector.Clone()
	collector.UserAgent = f.cfg.UserAgent
	if collector.UserAgent == "" {
		collector.UserAgent = defaultUserAgent
	}
	collector.IgnoreRobotsTxt = true
	timeout := f.cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	collector.SetRequestTimeout(timeout)

	f.configureHooks(collector, resp, fetchErr)
	return collector
}

func (f *Fetcher) configureHooks(hooks collectorHooks, resp *pageResponse, fetchErr *error) {
	hooks.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", acceptHeader)
		r.Headers.Set("Accept-Language", acceptLanguage)
	})

	hooks.OnResponse(func(r *colly.Response) {
		*resp = pageResponse{
			finalURL:    r.Request.URL.String(),
			statusCode:  r.StatusCode,
			contentType: r.Headers.Get("Content-Type"),
			body:        append([]byte(nil), r.Body...),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil {
			resp.statusCode = r.StatusCode
			if r.Request != nil && r.Request.URL != nil {
				resp.finalURL = r.Request.URL.String()
			}
		}
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		return err
	}
}

// page classifies a completed response. Error statuses and redirect loops
// never reach here, colly reports those through OnError.
func (f *Fetcher) page(rawURL string, resp pageResponse, elapsed time.Duration) (crawler.FetchResult, bool) {
	if resp.statusCode != http.StatusOK {
		// A 201 or 204 succeeded but carries no page worth mapping.
		f.logger.Info("page skipped on status",
			zap.String("url", rawURL),
			zap.Int("status", resp.statusCode))
		return crawler.FetchResult{}, false
	}
	if !htmlContent(resp.contentType) {
		f.logger.Debug("non-html content skipped",
			zap.String("url", rawURL),
			zap.String("content_type", resp.contentType))
		return crawler.FetchResult{}, false
	}

	var bodyHash string
	if f.hasher != nil {
		digest, err := f.hasher.Hash(resp.body)
		if err != nil {
			f.logger.Debug("body hash failed", zap.String("url", rawURL), zap.Error(err))
		} else {
			bodyHash = digest
		}
	}

	finalURL := resp.finalURL
	if finalURL == "" {
		finalURL = rawURL
	}
	return crawler.FetchResult{
		FinalURL:   finalURL,
		Body:       string(resp.body),
		StatusCode: resp.statusCode,
		BodyHash:   bodyHash,
		Duration:   elapsed,
	}, true
}

func htmlContent(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.Contains(strings.ToLower(contentType), "text/html")
	}
	return mediaType == "text/html"
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
