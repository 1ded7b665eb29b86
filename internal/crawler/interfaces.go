package crawler

import (
	"context"
	"time"
)

// Fetcher downloads a single page. The boolean reports whether usable HTML
// came back; every failure mode (non-200 status, non-HTML payload, timeout,
// transport error) is reported as false rather than as an error, so the
// engine treats them uniformly as "no content". The supplied context already
// carries the per-fetch timeout.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (FetchResult, bool)
}

// Extractor pulls outbound links from an HTML document, resolved against
// baseURL and filtered to http/https. Implementations return an empty set
// when the document cannot be parsed.
type Extractor interface {
	ExtractLinks(html string, baseURL string) LinkSet
}

// Hasher computes digests for duplicate-content detection.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
