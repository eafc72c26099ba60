// Package api hosts the HTTP server, middleware, and REST handlers for the
// scrape service. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/scrape to request a scrape of a catalog URL.
//   - GET /v1/jobs/{job_id} for job status.
//   - GET /v1/queue/failed for work items that exhausted their attempts.
package api
