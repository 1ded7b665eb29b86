// Package goqueryextractor implements Extractor using goquery.
package goqueryextractor

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/domainscope/sitemapper/internal/crawler"
)

// Extractor pulls anchor hrefs out of an HTML document with goquery.
type Extractor struct {
	logger *zap.Logger
}

// New builds an Extractor. A nil logger is replaced with a no-op one.
func New(logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{logger: logger}
}

// ExtractLinks returns the normalized absolute URL of every usable anchor in
// html, resolved against baseURL. Empty, fragment-only, javascript: and
// non-http(s) hrefs are dropped, along with anything that fails to normalize.
// goquery parses tag soup leniently, so broken markup still yields whatever
// anchors the parser can recover; only a document the parser rejects outright
// produces an empty set.
func (e *Extractor) ExtractLinks(html string, baseURL string) crawler.LinkSet {
	links := crawler.NewLinkSet()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		e.logger.Debug("html parse failed", zap.String("url", baseURL), zap.Error(err))
		return links
	}

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		if normalized, usable := usableLink(href, baseURL); usable {
			links.Add(normalized)
		}
	})
	return links
}

// usableLink filters and normalizes a single href. The scheme is checked both
// before normalization (so mailto:, tel: and friends never reach the
// resolver) and after it.
func usableLink(href, baseURL string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
		return "", false
	}
	if u, err := url.Parse(href); err == nil && u.Scheme != "" && !isWebScheme(u.Scheme) {
		return "", false
	}
	normalized := crawler.NormalizeURL(href, baseURL)
	if normalized == "" {
		return "", false
	}
	if !strings.HasPrefix(normalized, "http://") && !strings.HasPrefix(normalized, "https://") {
		return "", false
	}
	return normalized, true
}

func isWebScheme(scheme string) bool {
	return scheme == "http" || scheme == "https"
}
