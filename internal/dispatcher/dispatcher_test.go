package dispatcher

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/domainscope/sitemapper/internal/crawler"
	"github.com/domainscope/sitemapper/internal/metrics"
	"github.com/domainscope/sitemapper/internal/store"
	memorystore "github.com/domainscope/sitemapper/internal/store/memory"
	"github.com/domainscope/sitemapper/internal/worker"
)

func TestMain(m *testing.M) {
	metrics.Init()
	m.Run()
}

func TestDispatcherExecutesEnqueuedJobs(t *testing.T) {
	t.Parallel()

	crawls := memorystore.NewCrawlStore()
	workers := []*worker.Worker{
		worker.New(crawls, failingFetcher{}, nopExtractor{}, nil, nil, nil),
		worker.New(crawls, failingFetcher{}, nopExtractor{}, nil, nil, nil),
	}
	d := New(8, workers)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		d.Run(ctx)
	}()

	ids := make([]uuid.UUID, 0, 3)
	for i := 0; i < 3; i++ {
		id, err := uuid.NewV7()
		require.NoError(t, err)
		require.NoError(t, crawls.CreateCrawl(ctx, store.Crawl{
			ID:        id,
			SeedURL:   "http://h",
			Status:    store.StatusQueued,
			CreatedAt: time.Now().UTC(),
		}))
		require.NoError(t, d.Enqueue(ctx, worker.Job{
			ID:     id,
			Config: crawler.Config{BaseURL: "http://h"},
		}))
		ids = append(ids, id)
	}

	require.Eventually(t, func() bool {
		for _, id := range ids {
			crawl, err := crawls.GetCrawl(context.Background(), id)
			if err != nil || !crawl.Status.Terminal() {
				return false
			}
		}
		return true
	}, 5*time.Second, 10*time.Millisecond, "all jobs should reach a terminal status")

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("dispatcher did not stop")
	}
}

func TestEnqueueGivesUpWhenBufferStaysFull(t *testing.T) {
	t.Parallel()

	// No workers are running, so nothing drains the size-one buffer.
	d := New(1, nil)
	require.NoError(t, d.Enqueue(context.Background(), worker.Job{}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := d.Enqueue(ctx, worker.Job{})
	require.ErrorIs(t, err, ErrQueueFull)
	require.Equal(t, 1, d.Depth())
}

func TestEnqueueAfterShutdownFails(t *testing.T) {
	t.Parallel()

	d := New(4, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		d.Run(ctx)
	}()
	<-done

	err := d.Enqueue(context.Background(), worker.Job{})
	require.Error(t, err)
}

// failingFetcher reports every page as unusable, driving each crawl to a
// quick failed status.
type failingFetcher struct{}

func (failingFetcher) Fetch(context.Context, string) (crawler.FetchResult, bool) {
	return crawler.FetchResult{}, false
}

type nopExtractor struct{}

func (nopExtractor) ExtractLinks(string, string) crawler.LinkSet {
	return crawler.NewLinkSet()
}
