package crawler

import (
	"encoding/json"
	"sort"
	"time"
)

// Defaults applied by Config.withDefaults when a field is zero or negative.
const (
	DefaultConcurrency = 5
	DefaultTimeout     = 10 * time.Second
	DefaultMaxPages    = 1000
)

// Config holds the settings for a single crawl. It is fixed at engine
// construction and never mutated afterwards.
type Config struct {
	// BaseURL is the seed. It must carry an http or https scheme.
	BaseURL string `json:"base_url" mapstructure:"base_url"`
	// Concurrency is the worker count and the cap on simultaneous fetches.
	Concurrency int `json:"concurrency" mapstructure:"concurrency"`
	// Timeout bounds each individual fetch, not the crawl as a whole.
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`
	// MaxPages caps the number of pages recorded in the result map.
	MaxPages int `json:"max_pages" mapstructure:"max_pages"`
}

func (c Config) withDefaults() Config {
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxPages <= 0 {
		c.MaxPages = DefaultMaxPages
	}
	return c
}

// LinkSet is the set of absolute URLs discovered on a single page.
type LinkSet map[string]struct{}

// NewLinkSet builds a LinkSet from the given links.
func NewLinkSet(links ...string) LinkSet {
	s := make(LinkSet, len(links))
	for _, l := range links {
		s.Add(l)
	}
	return s
}

// Add inserts a link into the set.
func (s LinkSet) Add(link string) {
	s[link] = struct{}{}
}

// Contains reports whether link is in the set.
func (s LinkSet) Contains(link string) bool {
	_, ok := s[link]
	return ok
}

// Sorted returns the links in lexical order.
func (s LinkSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for l := range s {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// Results maps each successfully fetched page URL to the links found on it.
// It is the crawl's output; entries are never removed.
type Results map[string]LinkSet

// SortedPages returns the page URLs in lexical order.
func (r Results) SortedPages() []string {
	out := make([]string, 0, len(r))
	for p := range r {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// TotalLinks counts links across all pages, duplicates included.
func (r Results) TotalLinks() int {
	n := 0
	for _, links := range r {
		n += len(links)
	}
	return n
}

// FetchResult describes one page download.
type FetchResult struct {
	// FinalURL is the URL after following redirects.
	FinalURL string
	// Body is the HTML payload.
	Body string
	// StatusCode is informational; the fetcher already decided usability.
	StatusCode int
	// BodyHash is a digest of Body used for duplicate-content detection.
	BodyHash string
	// Duration is the wall time the fetch took.
	Duration time.Duration
}

// State is the engine lifecycle phase.
type State int32

// Engine states, in order of progression.
const (
	StateIdle State = iota
	StateRunning
	StateDraining
	StateDone
)

// MarshalJSON renders the state as its string form.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Snapshot is a point-in-time view of crawl progress, safe to read while the
// crawl is in flight.
type Snapshot struct {
	State      State  `json:"state"`
	Pages      int    `json:"pages"`
	QueueDepth int    `json:"queue_depth"`
	LastURL    string `json:"last_url,omitempty"`
}
