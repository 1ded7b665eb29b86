package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/domainscope/sitemapper/internal/config"
	"github.com/domainscope/sitemapper/internal/crawler"
	"github.com/domainscope/sitemapper/internal/dispatcher"
	"github.com/domainscope/sitemapper/internal/metrics"
	"github.com/domainscope/sitemapper/internal/progress"
	"github.com/domainscope/sitemapper/internal/progress/sinks"
	"github.com/domainscope/sitemapper/internal/store"
	"github.com/domainscope/sitemapper/internal/worker"
)

const (
	defaultCrawlLimit = 50
	maxCrawlLimit     = 500
	defaultPageLimit  = 1000
	maxPageLimit      = 10000
	enqueueTimeout    = 5 * time.Second
	handlerTimeout    = 60 * time.Second
)

// IDGenerator mints crawl identifiers for submissions.
type IDGenerator interface {
	NewRawID() (uuid.UUID, error)
}

// Server wires the HTTP surface to the dispatcher, the crawl store, and the
// progress stream.
type Server struct {
	router     chi.Router
	crawls     store.CrawlStore
	dispatcher *dispatcher.Dispatcher
	idGen      IDGenerator
	clock      crawler.Clock
	hub        *progress.Hub
	ring       *sinks.RingSink
	cfg        config.Config
	logger     *zap.Logger
}

// NewServer constructs a Server with middleware and routes. The hub and ring
// may be nil, in which case the event endpoints report unavailability.
func NewServer(
	crawls store.CrawlStore,
	disp *dispatcher.Dispatcher,
	idGen IDGenerator,
	clock crawler.Clock,
	hub *progress.Hub,
	ring *sinks.RingSink,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		crawls:     crawls,
		dispatcher: disp,
		idGen:      idGen,
		clock:      clock,
		hub:        hub,
		ring:       ring,
		cfg:        cfg,
		logger:     logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(timeoutMiddleware(handlerTimeout))
			r.Route("/crawls", func(r chi.Router) {
				r.Post("/", s.submitCrawl)
				r.Get("/", s.listCrawls)
				r.Route("/{crawl_id}", func(r chi.Router) {
					r.Get("/", s.getCrawl)
					r.Get("/map", s.getCrawlMap)
				})
			})
			r.Get("/events", s.recentEvents)
		})
		// The stream handler holds its connection open, so it stays outside
		// the timeout group.
		r.Get("/events/stream", s.streamEvents)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	if s.dispatcher == nil {
		s.writeError(w, http.StatusServiceUnavailable, "dispatcher not running")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type submitCrawlRequest struct {
	URL            string `json:"url"`
	Concurrency    *int   `json:"concurrency"`
	TimeoutSeconds *int   `json:"timeout_seconds"`
	MaxPages       *int   `json:"max_pages"`
}

func (s *Server) submitCrawl(w http.ResponseWriter, r *http.Request) {
	var req submitCrawlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	seed, host, err := crawler.ValidateSeed(req.URL)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	cfg := crawler.Config{
		BaseURL:     seed,
		Concurrency: valueOrDefault(req.Concurrency, s.cfg.Crawl.Concurrency),
		Timeout:     time.Duration(valueOrDefault(req.TimeoutSeconds, s.cfg.Crawl.TimeoutSeconds)) * time.Second,
		MaxPages:    valueOrDefault(req.MaxPages, s.cfg.Crawl.MaxPages),
	}
	if cfg.Concurrency <= 0 || cfg.Timeout <= 0 || cfg.MaxPages <= 0 {
		s.writeError(w, http.StatusBadRequest, "concurrency, timeout_seconds and max_pages must be positive")
		return
	}

	id, err := s.idGen.NewRawID()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "generate crawl id")
		return
	}
	now := s.clock.Now()
	crawl := store.Crawl{
		ID:          id,
		SeedURL:     seed,
		Host:        host,
		Concurrency: cfg.Concurrency,
		Timeout:     cfg.Timeout,
		MaxPages:    cfg.MaxPages,
		Status:      store.StatusQueued,
		CreatedAt:   now,
	}
	if err := s.crawls.CreateCrawl(r.Context(), crawl); err != nil {
		s.logger.Error("create crawl failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "create crawl")
		return
	}

	queueCtx, cancel := context.WithTimeout(r.Context(), enqueueTimeout)
	defer cancel()
	if err := s.dispatcher.Enqueue(queueCtx, worker.Job{ID: id, Config: cfg}); err != nil {
		s.logger.Error("enqueue crawl failed", zap.String("crawl_id", id.String()), zap.Error(err))
		s.writeError(w, http.StatusServiceUnavailable, "crawl queue full")
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"crawl_id": id.String()})
}

func (s *Server) listCrawls(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parseLimitOffset(r, defaultCrawlLimit, maxCrawlLimit)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var status *store.CrawlStatus
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		parsed, err := parseStatus(raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		status = &parsed
	}
	crawls, err := s.crawls.ListCrawls(r.Context(), status, limit, offset)
	if err != nil {
		s.logger.Error("list crawls failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "list crawls")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"crawls": toCrawlDTOs(crawls)})
}

func (s *Server) getCrawl(w http.ResponseWriter, r *http.Request) {
	id, err := parseCrawlID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	crawl, err := s.crawls.GetCrawl(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "crawl not found")
			return
		}
		s.logger.Error("get crawl failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "load crawl")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"crawl": toCrawlDTO(crawl)})
}

// getCrawlMap serves the finished site map. Pages are only recorded when a
// crawl reaches a terminal status, so a still-running crawl answers 409.
func (s *Server) getCrawlMap(w http.ResponseWriter, r *http.Request) {
	id, err := parseCrawlID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	crawl, err := s.crawls.GetCrawl(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "crawl not found")
			return
		}
		s.logger.Error("get crawl failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "load crawl")
		return
	}
	if !crawl.Status.Terminal() {
		s.writeError(w, http.StatusConflict, "crawl has not finished")
		return
	}
	limit, offset, err := parseLimitOffset(r, defaultPageLimit, maxPageLimit)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	pages, err := s.crawls.ListPages(r.Context(), id, limit, offset)
	if err != nil {
		s.logger.Error("list pages failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "list pages")
		return
	}
	siteMap := make(map[string][]string, len(pages))
	for _, page := range pages {
		siteMap[page.URL] = page.Links
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"crawl_id": id.String(),
		"base_url": crawl.SeedURL,
		"status":   string(crawl.Status),
		"pages":    siteMap,
	})
}

func parseCrawlID(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "crawl_id")
	if raw == "" {
		return uuid.UUID{}, errors.New("crawl_id is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.UUID{}, errors.New("invalid crawl_id")
	}
	return id, nil
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if raw := q.Get("limit"); raw != "" {
		val, err := strconv.Atoi(raw)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		if val > maxLimit {
			val = maxLimit
		}
		limit = val
	}
	offset := 0
	if raw := q.Get("offset"); raw != "" {
		val, err := strconv.Atoi(raw)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}

func parseStatus(input string) (store.CrawlStatus, error) {
	switch strings.ToLower(input) {
	case "queued":
		return store.StatusQueued, nil
	case "running":
		return store.StatusRunning, nil
	case "succeeded", "success":
		return store.StatusSucceeded, nil
	case "canceled", "cancelled":
		return store.StatusCanceled, nil
	case "failed", "error":
		return store.StatusFailed, nil
	default:
		return "", errors.New("invalid status")
	}
}

func valueOrDefault(ptr *int, def int) int {
	if ptr == nil {
		return def
	}
	return *ptr
}

type crawlDTO struct {
	ID             string     `json:"id"`
	SeedURL        string     `json:"seed_url"`
	Host           string     `json:"host"`
	Concurrency    int        `json:"concurrency"`
	TimeoutSeconds int        `json:"timeout_seconds"`
	MaxPages       int        `json:"max_pages"`
	Status         string     `json:"status"`
	Error          string     `json:"error,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
	Pages          int64      `json:"pages"`
	Links          int64      `json:"links"`
	Bytes          int64      `json:"bytes"`
	LastURL        string     `json:"last_url,omitempty"`
}

func toCrawlDTOs(in []store.Crawl) []crawlDTO {
	out := make([]crawlDTO, 0, len(in))
	for _, c := range in {
		out = append(out, toCrawlDTO(c))
	}
	return out
}

func toCrawlDTO(c store.Crawl) crawlDTO {
	return crawlDTO{
		ID:             c.ID.String(),
		SeedURL:        c.SeedURL,
		Host:           c.Host,
		Concurrency:    c.Concurrency,
		TimeoutSeconds: int(c.Timeout / time.Second),
		MaxPages:       c.MaxPages,
		Status:         string(c.Status),
		Error:          c.ErrorText,
		CreatedAt:      c.CreatedAt,
		StartedAt:      c.StartedAt,
		FinishedAt:     c.FinishedAt,
		Pages:          c.Counters.Pages,
		Links:          c.Counters.Links,
		Bytes:          c.Counters.Bytes,
		LastURL:        c.Counters.LastURL,
	}
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Debug("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("panic", rec))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type requestIDKey struct{}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
