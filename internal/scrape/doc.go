// Package scrape holds the domain model shared by the scrape pipeline.
//
// A scrape starts with a request for a URL and a target type. The gatekeeper
// either returns a recent job for the same URL or records a new pending job
// and places a WorkItem on the queue. Workers pull items, the executor loads
// the page through a Browser, the extractors turn the DOM into a
// CategoryResult or ProductResult, and the reconciler merges that result into
// the catalog through CatalogStore upserts keyed by natural identifiers.
//
// Job status only moves forward:
//
//	pending -> in_progress -> completed | failed
//
// Errors carry a Kind so the worker can tell a permanent failure (an
// unsupported URL, an unresolved parent) from one worth retrying (a wait
// timeout, a storage or browser hiccup).
package scrape
