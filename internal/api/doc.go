// Package api hosts the HTTP server, middleware, and REST handlers for
// operator access. Notable routes:
//   - GET /healthz and /readyz for liveness/readiness probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /api/v1/crawls to submit a crawl, GET to list and inspect them,
//     and GET /api/v1/crawls/{id}/map for a finished site map.
//   - GET /api/v1/events for recent progress events and
//     /api/v1/events/stream for a live server-sent event feed.
package api
