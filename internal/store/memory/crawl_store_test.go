package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/domainscope/sitemapper/internal/store"
)

func TestCrawlStoreLifecycle(t *testing.T) {
	t.Parallel()

	s := NewCrawlStore()
	ctx := context.Background()
	id := uuid.New()
	crawl := store.Crawl{
		ID:        id,
		SeedURL:   "http://example.com",
		Host:      "example.com",
		Status:    store.StatusQueued,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.CreateCrawl(ctx, crawl); err != nil {
		t.Fatalf("CreateCrawl() error = %v", err)
	}
	if err := s.CreateCrawl(ctx, crawl); !errors.Is(err, store.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}

	started := time.Now().UTC()
	if err := s.MarkRunning(ctx, id, started); err != nil {
		t.Fatalf("MarkRunning() error = %v", err)
	}
	if err := s.MarkRunning(ctx, id, started.Add(time.Second)); err != nil {
		t.Fatalf("MarkRunning() repeat error = %v", err)
	}
	got, err := s.GetCrawl(ctx, id)
	if err != nil {
		t.Fatalf("GetCrawl() error = %v", err)
	}
	if got.Status != store.StatusRunning || got.StartedAt == nil || !got.StartedAt.Equal(started) {
		t.Fatalf("expected first running transition to stick, got %+v", got)
	}

	delta := store.Counters{Pages: 1, Links: 4, Bytes: 2048, LastURL: "http://example.com/a"}
	if err := s.ApplyProgress(ctx, id, delta, time.Now()); err != nil {
		t.Fatalf("ApplyProgress() error = %v", err)
	}
	if err := s.ApplyProgress(ctx, id, delta, time.Now()); err != nil {
		t.Fatalf("ApplyProgress() repeat error = %v", err)
	}
	got, _ = s.GetCrawl(ctx, id)
	if got.Counters.Pages != 2 || got.Counters.Links != 8 || got.Counters.Bytes != 4096 {
		t.Fatalf("expected additive counters, got %+v", got.Counters)
	}

	pages := []store.PageRecord{{CrawlID: id, URL: "http://example.com/a", Links: []string{"http://example.com/b"}}}
	if err := s.RecordPages(ctx, id, pages); err != nil {
		t.Fatalf("RecordPages() error = %v", err)
	}

	final := store.Counters{Pages: 2, Links: 8, Bytes: 4096, LastURL: "http://example.com/a"}
	if err := s.Complete(ctx, id, store.StatusSucceeded, "", time.Now().UTC(), final); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if err := s.ApplyProgress(ctx, id, delta, time.Now()); err != nil {
		t.Fatalf("ApplyProgress() after terminal error = %v", err)
	}
	got, _ = s.GetCrawl(ctx, id)
	if got.Status != store.StatusSucceeded || got.FinishedAt == nil {
		t.Fatalf("expected terminal crawl, got %+v", got)
	}
	if got.Counters != final {
		t.Fatalf("expected final counters frozen after completion, got %+v", got.Counters)
	}
}

func TestCrawlStoreListCrawls(t *testing.T) {
	t.Parallel()

	s := NewCrawlStore()
	ctx := context.Background()
	ids := make([]uuid.UUID, 3)
	for i := range ids {
		ids[i] = uuid.New()
		crawl := store.Crawl{ID: ids[i], Status: store.StatusQueued, CreatedAt: time.Now().UTC()}
		if err := s.CreateCrawl(ctx, crawl); err != nil {
			t.Fatalf("CreateCrawl() error = %v", err)
		}
	}
	if err := s.MarkRunning(ctx, ids[1], time.Now()); err != nil {
		t.Fatalf("MarkRunning() error = %v", err)
	}

	all, err := s.ListCrawls(ctx, nil, 0, 0)
	if err != nil || len(all) != 3 {
		t.Fatalf("ListCrawls() all = %v err = %v", all, err)
	}
	if all[0].ID != ids[2] {
		t.Fatalf("expected newest first, got %v", all[0].ID)
	}

	running := store.StatusRunning
	filtered, err := s.ListCrawls(ctx, &running, 0, 0)
	if err != nil || len(filtered) != 1 || filtered[0].ID != ids[1] {
		t.Fatalf("ListCrawls() filtered = %v err = %v", filtered, err)
	}

	paged, err := s.ListCrawls(ctx, nil, 1, 1)
	if err != nil || len(paged) != 1 || paged[0].ID != ids[1] {
		t.Fatalf("ListCrawls() paged = %v err = %v", paged, err)
	}

	empty, err := s.ListCrawls(ctx, nil, 5, 10)
	if err != nil || len(empty) != 0 {
		t.Fatalf("ListCrawls() beyond range = %v err = %v", empty, err)
	}
}

func TestCrawlStoreListPages(t *testing.T) {
	t.Parallel()

	s := NewCrawlStore()
	ctx := context.Background()
	id := uuid.New()
	if err := s.CreateCrawl(ctx, store.Crawl{ID: id, Status: store.StatusQueued}); err != nil {
		t.Fatalf("CreateCrawl() error = %v", err)
	}

	if _, err := s.ListPages(ctx, uuid.New(), 0, 0); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown crawl, got %v", err)
	}

	records := []store.PageRecord{
		{CrawlID: id, URL: "http://example.com/"},
		{CrawlID: id, URL: "http://example.com/a"},
		{CrawlID: id, URL: "http://example.com/b"},
	}
	if err := s.RecordPages(ctx, id, records); err != nil {
		t.Fatalf("RecordPages() error = %v", err)
	}

	pages, err := s.ListPages(ctx, id, 2, 1)
	if err != nil || len(pages) != 2 {
		t.Fatalf("ListPages() = %v err = %v", pages, err)
	}
	if pages[0].URL != "http://example.com/a" || pages[1].URL != "http://example.com/b" {
		t.Fatalf("expected insertion order window, got %+v", pages)
	}

	pages[0].URL = "modified"
	if s.pages[id][1].URL != "http://example.com/a" {
		t.Fatal("expected ListPages to return a copy")
	}
}
