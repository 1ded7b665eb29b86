// Package memory provides an in-memory CrawlStore for the single-process
// server and for tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/domainscope/sitemapper/internal/store"
)

// CrawlStore keeps crawls and page records in process memory.
type CrawlStore struct {
	mu     sync.RWMutex
	crawls map[uuid.UUID]store.Crawl
	pages  map[uuid.UUID][]store.PageRecord
	order  []uuid.UUID
}

// NewCrawlStore constructs an empty CrawlStore.
func NewCrawlStore() *CrawlStore {
	return &CrawlStore{
		crawls: make(map[uuid.UUID]store.Crawl),
		pages:  make(map[uuid.UUID][]store.PageRecord),
	}
}

// CreateCrawl stores a new crawl in its initial status.
func (s *CrawlStore) CreateCrawl(_ context.Context, crawl store.Crawl) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.crawls[crawl.ID]; exists {
		return store.ErrAlreadyExists
	}
	s.crawls[crawl.ID] = crawl
	s.order = append(s.order, crawl.ID)
	return nil
}

// MarkRunning records the queued to running transition exactly once.
func (s *CrawlStore) MarkRunning(_ context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	crawl, ok := s.crawls[id]
	if !ok {
		return store.ErrNotFound
	}
	if crawl.Status.Terminal() {
		return nil
	}
	crawl.Status = store.StatusRunning
	if crawl.StartedAt == nil {
		crawl.StartedAt = pointerTime(at)
	}
	s.crawls[id] = crawl
	return nil
}

// ApplyProgress adds delta to the crawl's live counters. Terminal crawls keep
// their final counters, so late deltas are dropped.
func (s *CrawlStore) ApplyProgress(_ context.Context, id uuid.UUID, delta store.Counters, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	crawl, ok := s.crawls[id]
	if !ok {
		return store.ErrNotFound
	}
	if crawl.Status.Terminal() {
		return nil
	}
	crawl.Counters.Pages += delta.Pages
	crawl.Counters.Links += delta.Links
	crawl.Counters.Bytes += delta.Bytes
	if delta.LastURL != "" {
		crawl.Counters.LastURL = delta.LastURL
	}
	s.crawls[id] = crawl
	return nil
}

// Complete marks the crawl finished and overwrites the live counters with the
// authoritative totals.
func (s *CrawlStore) Complete(
	_ context.Context,
	id uuid.UUID,
	status store.CrawlStatus,
	errText string,
	at time.Time,
	final store.Counters,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	crawl, ok := s.crawls[id]
	if !ok {
		return store.ErrNotFound
	}
	if crawl.Status.Terminal() {
		return nil
	}
	crawl.Status = status
	crawl.ErrorText = errText
	crawl.FinishedAt = pointerTime(at)
	crawl.Counters = final
	if crawl.StartedAt == nil {
		crawl.StartedAt = pointerTime(at)
	}
	s.crawls[id] = crawl
	return nil
}

// RecordPages appends page rows for a crawl.
func (s *CrawlStore) RecordPages(_ context.Context, id uuid.UUID, pages []store.PageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.crawls[id]; !ok {
		return store.ErrNotFound
	}
	s.pages[id] = append(s.pages[id], pages...)
	return nil
}

// GetCrawl fetches a crawl by ID.
func (s *CrawlStore) GetCrawl(_ context.Context, id uuid.UUID) (store.Crawl, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	crawl, ok := s.crawls[id]
	if !ok {
		return store.Crawl{}, store.ErrNotFound
	}
	return crawl, nil
}

// ListCrawls returns crawls newest first with optional status filtering.
func (s *CrawlStore) ListCrawls(_ context.Context, status *store.CrawlStatus, limit, offset int) ([]store.Crawl, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.Crawl, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		crawl := s.crawls[s.order[i]]
		if status != nil && crawl.Status != *status {
			continue
		}
		out = append(out, crawl)
	}
	return window(out, limit, offset), nil
}

// ListPages returns recorded pages for a crawl in insertion order.
func (s *CrawlStore) ListPages(_ context.Context, id uuid.UUID, limit, offset int) ([]store.PageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.crawls[id]; !ok {
		return nil, store.ErrNotFound
	}
	pages := s.pages[id]
	out := make([]store.PageRecord, len(pages))
	copy(out, pages)
	return window(out, limit, offset), nil
}

func window[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return []T{}
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}
