package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("crawl record not found")

// ErrAlreadyExists signals that a crawl with the same ID is already stored.
var ErrAlreadyExists = errors.New("crawl record already exists")

// CrawlStatus tracks a crawl run through its lifecycle.
type CrawlStatus string

// Crawl statuses persisted by a CrawlStore.
const (
	StatusQueued    CrawlStatus = "queued"
	StatusRunning   CrawlStatus = "running"
	StatusSucceeded CrawlStatus = "succeeded"
	StatusCanceled  CrawlStatus = "canceled"
	StatusFailed    CrawlStatus = "failed"
)

// Terminal reports whether the status marks a finished crawl.
func (s CrawlStatus) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusCanceled, StatusFailed:
		return true
	default:
		return false
	}
}

// Counters aggregates progress totals for one crawl.
type Counters struct {
	// Pages counts entries recorded in the site map.
	Pages int64
	// Links counts outgoing links across all mapped pages.
	Links int64
	// Bytes accumulates response body sizes.
	Bytes int64
	// LastURL is the most recently mapped page, empty before the first.
	LastURL string
}

// Crawl models one crawl run for API responses.
type Crawl struct {
	// ID is the crawl identifier shared with progress events.
	ID uuid.UUID
	// SeedURL is the normalized URL the crawl started from.
	SeedURL string
	// Host is the authority the crawl is scoped to.
	Host string
	// Concurrency, Timeout, and MaxPages echo the crawl's configuration.
	Concurrency int
	Timeout     time.Duration
	MaxPages    int
	// Status is queued/running/succeeded/canceled/failed.
	Status CrawlStatus
	// ErrorText optionally stores the final failure reason.
	ErrorText string
	// CreatedAt captures when the crawl was accepted.
	CreatedAt time.Time
	// StartedAt is nil until the crawl is first marked running.
	StartedAt *time.Time
	// FinishedAt is nil until the crawl reaches a terminal status.
	FinishedAt *time.Time
	// Counters holds live progress totals, authoritative once terminal.
	Counters Counters
}

// PageRecord captures one mapped page and its outgoing links.
type PageRecord struct {
	// CrawlID is the owning crawl.
	CrawlID uuid.UUID
	// URL is the page's final URL after redirects.
	URL string
	// Links lists the normalized outgoing links found on the page.
	Links []string
	// BodyHash is the content digest of the response body.
	BodyHash string
	// FetchedAt records when the page was fetched.
	FetchedAt time.Time
}

// CrawlStore persists crawl runs, their live progress, and their page maps.
type CrawlStore interface {
	// CreateCrawl stores a new crawl or returns ErrAlreadyExists.
	CreateCrawl(ctx context.Context, crawl Crawl) error
	// MarkRunning idempotently records the crawl's started_at transition.
	// It is a no-op once the crawl is terminal.
	MarkRunning(ctx context.Context, id uuid.UUID, at time.Time) error
	// ApplyProgress adds delta to the crawl's live counters. LastURL replaces
	// the stored value when non-empty. Deltas arriving after the crawl is
	// terminal are dropped.
	ApplyProgress(ctx context.Context, id uuid.UUID, delta Counters, at time.Time) error
	// Complete marks the crawl finished with the given status, error text,
	// and authoritative final counters. Completing a terminal crawl again
	// is a no-op.
	Complete(ctx context.Context, id uuid.UUID, status CrawlStatus, errText string, at time.Time, final Counters) error
	// RecordPages appends page rows for a crawl.
	RecordPages(ctx context.Context, id uuid.UUID, pages []PageRecord) error

	// GetCrawl loads a single crawl or returns ErrNotFound.
	GetCrawl(ctx context.Context, id uuid.UUID) (Crawl, error)
	// ListCrawls returns crawls newest first, filtered by optional status
	// plus limit/offset. A non-positive limit means no limit.
	ListCrawls(ctx context.Context, status *CrawlStatus, limit, offset int) ([]Crawl, error)
	// ListPages returns recorded pages for one crawl in insertion order.
	ListPages(ctx context.Context, id uuid.UUID, limit, offset int) ([]PageRecord, error)
}
