// Package progress provides the event primitives, non-blocking hub, and
// emitter interfaces the crawl engine uses to report its progress. It batches
// events on a background goroutine and fans them out to pluggable sinks such
// as Prometheus metrics or the crawl store, and to live subscribers such as
// the ops API's event stream.
package progress
