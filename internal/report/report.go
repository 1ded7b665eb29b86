// Package report renders finished crawl results for people and machines.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/domainscope/sitemapper/internal/crawler"
)

// Stats summarizes a finished crawl.
type Stats struct {
	Pages           int     `json:"pages"`
	Links           int     `json:"links"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// Document is the machine-readable form of a crawl result. Link lists are
// sorted so the output is stable across runs.
type Document struct {
	BaseURL string              `json:"base_url"`
	Pages   map[string][]string `json:"pages"`
	Stats   Stats               `json:"stats"`
}

// NewDocument converts a result map into a Document.
func NewDocument(baseURL string, results crawler.Results, elapsed time.Duration) Document {
	doc := Document{
		BaseURL: baseURL,
		Pages:   make(map[string][]string, len(results)),
		Stats: Stats{
			Pages:           len(results),
			Links:           results.TotalLinks(),
			DurationSeconds: elapsed.Seconds(),
		},
	}
	for page, links := range results {
		doc.Pages[page] = links.Sorted()
	}
	return doc
}

// WriteText renders the site map as indented text, pages and links in
// lexical order.
func WriteText(w io.Writer, baseURL string, results crawler.Results, elapsed time.Duration) error {
	if _, err := fmt.Fprintf(w, "Site map for %s: %d pages, %d links (%.1fs)\n",
		baseURL, len(results), results.TotalLinks(), elapsed.Seconds()); err != nil {
		return err
	}
	for _, page := range results.SortedPages() {
		if _, err := fmt.Fprintf(w, "\n%s\n", page); err != nil {
			return err
		}
		links := results[page]
		if len(links) == 0 {
			if _, err := fmt.Fprintln(w, "  (no links)"); err != nil {
				return err
			}
			continue
		}
		for _, link := range links.Sorted() {
			if _, err := fmt.Fprintf(w, "  -> %s\n", link); err != nil {
				return err
			}
		}
	}
	return nil
}

// WriteJSON renders the site map as indented JSON.
func WriteJSON(w io.Writer, baseURL string, results crawler.Results, elapsed time.Duration) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(NewDocument(baseURL, results, elapsed)); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}
