package scrape

import (
	"context"
	"io"
	"time"
)

// JobStore persists ScrapeJob rows and their status lifecycle.
type JobStore interface {
	CreateJob(ctx context.Context, url string, target TargetType) (ScrapeJob, error)
	GetJob(ctx context.Context, id int64) (ScrapeJob, error)
	// LatestCompletedJob returns the most recently finished completed job for
	// url whose finished_at is not before since.
	LatestCompletedJob(ctx context.Context, url string, since time.Time) (ScrapeJob, bool, error)
	MarkStarted(ctx context.Context, id int64, at time.Time) error
	// RecordAttemptError stores the error of a failed attempt that will be retried.
	RecordAttemptError(ctx context.Context, id int64, msg string) error
	MarkFinished(ctx context.Context, id int64, status JobStatus, errMsg *string, at time.Time) error
}

// CatalogStore upserts catalog entities by their natural keys.
// Each upsert is atomic with respect to concurrent callers on the same key.
// The returned bool reports whether a row was created.
type CatalogStore interface {
	UpsertNavigation(ctx context.Context, in NavigationInput) (Navigation, bool, error)
	FindNavigationBySourceID(ctx context.Context, sourceID string) (Navigation, error)
	UpsertCategory(ctx context.Context, in CategoryInput) (Category, bool, error)
	FindCategoryBySourceURL(ctx context.Context, sourceURL string) (Category, error)
	UpsertProduct(ctx context.Context, in ProductInput) (Product, bool, error)
	UpsertProductAttribute(ctx context.Context, productID int64, key, value string) (ProductAttribute, bool, error)
	AppendReview(ctx context.Context, productID int64, rating int, comment *string) (Review, error)
}

// Cache is the lookaside cache used for request deduplication.
type Cache interface {
	Get(ctx context.Context, key string) (int64, bool, error)
	Set(ctx context.Context, key string, jobID int64, ttl time.Duration) error
}

// Queue buffers work items between the gatekeeper and the worker pool.
type Queue interface {
	Enqueue(ctx context.Context, item WorkItem) error
	// Dequeue blocks until an item is ready, the context ends or the queue closes.
	Dequeue(ctx context.Context) (WorkItem, error)
	// Retry makes item ready again once delay has elapsed.
	Retry(ctx context.Context, item WorkItem, delay time.Duration) error
	// Bury retains an item that will not be attempted again.
	Bury(ctx context.Context, item WorkItem, reason string) error
	Failed(ctx context.Context) ([]FailedItem, error)
}

// Element is a snapshot of one DOM node matched by a selector.
type Element struct {
	Text  string
	HTML  string
	Attrs map[string]string
}

// Attr returns the named attribute or "".
func (e Element) Attr(name string) string {
	if e.Attrs == nil {
		return ""
	}
	return e.Attrs[name]
}

// Page is a loaded document that can be queried by CSS selector.
type Page interface {
	URL() string
	WaitForElement(ctx context.Context, selector string, timeout time.Duration) error
	QueryAll(ctx context.Context, selector string) ([]Element, error)
	Exists(ctx context.Context, selector string) (bool, error)
	HTML(ctx context.Context) (string, error)
	Close() error
}

// Browser loads pages.
type Browser interface {
	LoadPage(ctx context.Context, url string) (Page, error)
}

// BlobStore writes page snapshots.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Hasher generates content hashes for snapshots.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock allows deterministic tests.
type Clock interface {
	Now() time.Time
}

// Limiter paces page loads per host.
type Limiter interface {
	Wait(ctx context.Context, url string) error
}
