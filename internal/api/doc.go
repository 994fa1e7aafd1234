// Package api hosts the HTTP server, middleware, and REST handlers.
// Routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/searches to queue a search, GET /v1/searches/{job_id}/status
//     and /result to follow it.
//   - POST /v1/searches/run to search and enrich within the request.
package api
