// Package crawler implements the frontier engine at the heart of sitemapper:
// a bounded-concurrency, single-host crawl that discovers pages breadth-first,
// de-duplicates URLs exactly once under concurrent discovery, enforces a
// global page budget, and terminates cleanly when the frontier drains.
//
// The package also provides the URL normalization and host-comparison helpers
// the engine and its collaborators share. Fetching and link extraction are
// defined here as interfaces and implemented in sibling packages.
package crawler
