// Package main hosts the catalog-scraper service entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server accepts scrape requests, reports job status and lists buried work items.
//   - Gatekeeper: requests are deduplicated against a lookaside cache (memory or Redis) and the job history
//     before a job row is created and a work item is enqueued.
//   - Dispatcher & queue: work items flow through a memory or Redis queue to a fixed worker pool sized by
//     worker.concurrency. Failed attempts are retried with exponential backoff and buried after the last one.
//   - Execution: each attempt loads the page (chromedp or a static colly fetch), extracts navigation,
//     categories, product tiles, product details and reviews, and reconciles them into the catalog store
//     (memory or Postgres) with idempotent upserts keyed by source identifiers.
//   - Plumbing: Viper populates config from a YAML file and SCRAPER_* env vars; zap provides structured logging;
//     Prometheus metrics are exported on /metrics; optional page snapshots go to memory, disk or GCS.
//
// Quick checklist:
//   - Run the service: catalog-scraper serve --config config.yaml
//   - Request a scrape: catalog-scraper enqueue https://shop.example/category/books --type navigation --wait
//   - One-off in-process run: catalog-scraper scrape https://shop.example/product/list?c=scifi --type product
package main
