// Package executor runs a single scrape attempt: load, extract, reconcile, record.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-scraper/internal/metrics"
	"github.com/JakeFAU/catalog-scraper/internal/reconcile"
	"github.com/JakeFAU/catalog-scraper/internal/scrape"
)

// Extractor reads structured data out of a page.
type Extractor interface {
	Category(ctx context.Context, page scrape.Page) (scrape.CategoryResult, error)
	Product(ctx context.Context, page scrape.Page) (scrape.ProductResult, error)
}

// Reconciler writes extraction results into the catalog.
type Reconciler interface {
	Categories(ctx context.Context, res scrape.CategoryResult) (reconcile.Summary, error)
	Products(ctx context.Context, res scrape.ProductResult) (reconcile.Summary, error)
}

// Config tunes the executor.
type Config struct {
	// JobTimeout bounds one attempt. Zero means no bound beyond the caller's context.
	JobTimeout time.Duration
	// SnapshotPrefix is the blob path prefix for page snapshots.
	SnapshotPrefix string
}

// Executor implements worker.Executor.
type Executor struct {
	jobs       scrape.JobStore
	browser    scrape.Browser
	extractor  Extractor
	reconciler Reconciler
	limiter    scrape.Limiter
	snapshots  scrape.BlobStore
	hasher     scrape.Hasher
	clock      scrape.Clock
	cfg        Config
	logger     *zap.Logger
}

// Option configures optional collaborators.
type Option func(*Executor)

// WithLimiter paces page loads per host.
func WithLimiter(l scrape.Limiter) Option {
	return func(e *Executor) { e.limiter = l }
}

// WithSnapshots stores the HTML of every loaded page, named by content hash.
func WithSnapshots(store scrape.BlobStore, hasher scrape.Hasher) Option {
	return func(e *Executor) {
		e.snapshots = store
		e.hasher = hasher
	}
}

// New constructs an Executor.
func New(
	jobs scrape.JobStore,
	browser scrape.Browser,
	extractor Extractor,
	reconciler Reconciler,
	clock scrape.Clock,
	cfg Config,
	logger *zap.Logger,
	opts ...Option,
) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SnapshotPrefix == "" {
		cfg.SnapshotPrefix = "snapshots"
	}
	e := &Executor{
		jobs:       jobs,
		browser:    browser,
		extractor:  extractor,
		reconciler: reconciler,
		clock:      clock,
		cfg:        cfg,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs one attempt of item. Catalog writes made before a failure are kept.
// A job that already finished is left untouched and reported as scrape.ErrJobFinished.
func (e *Executor) Execute(ctx context.Context, item scrape.WorkItem) error {
	if e.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.JobTimeout)
		defer cancel()
	}
	log := e.logger.With(zap.Int64("job_id", item.JobID), zap.String("url", item.URL))

	if err := e.jobs.MarkStarted(ctx, item.JobID, e.clock.Now()); err != nil {
		if errors.Is(err, scrape.ErrInvalidTransition) {
			return fmt.Errorf("%w: %w", scrape.ErrJobFinished, err)
		}
		return scrape.Persistence("mark started", err)
	}

	kind, err := scrape.Classify(item.URL)
	if err != nil {
		return err
	}

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx, item.URL); err != nil {
			return scrape.Infrastructure("rate limit", err)
		}
	}

	page, err := e.browser.LoadPage(ctx, item.URL)
	if err != nil {
		return classify("load page", err)
	}
	defer func() {
		if cerr := page.Close(); cerr != nil {
			log.Warn("close page failed", zap.Error(cerr))
		}
	}()

	summary, err := e.extractAndReconcile(ctx, kind, item, page)
	if err != nil {
		return err
	}
	e.snapshot(ctx, item, page, log)

	if err := e.jobs.MarkFinished(ctx, item.JobID, scrape.JobStatusCompleted, nil, e.clock.Now()); err != nil {
		return scrape.Persistence("mark completed", err)
	}
	log.Info("page reconciled", append(summary.Fields(), zap.String("kind", string(kind)))...)
	return nil
}

func (e *Executor) extractAndReconcile(
	ctx context.Context,
	kind scrape.PageKind,
	item scrape.WorkItem,
	page scrape.Page,
) (reconcile.Summary, error) {
	start := time.Now()
	switch kind {
	case scrape.PageCategory:
		res, err := e.extractor.Category(ctx, page)
		metrics.ObserveExtraction(string(kind), time.Since(start))
		if err != nil {
			return reconcile.Summary{}, classify("extract category", err)
		}
		return e.reconciler.Categories(ctx, res)
	case scrape.PageProduct:
		res, err := e.extractor.Product(ctx, page)
		metrics.ObserveExtraction(string(kind), time.Since(start))
		if err != nil {
			return reconcile.Summary{}, classify("extract product", err)
		}
		return e.reconciler.Products(ctx, res)
	default:
		return reconcile.Summary{}, scrape.Unsupported(item.URL)
	}
}

// snapshot stores the page HTML. Failures are logged and never fail the attempt.
func (e *Executor) snapshot(ctx context.Context, item scrape.WorkItem, page scrape.Page, log *zap.Logger) {
	if e.snapshots == nil || e.hasher == nil {
		return
	}
	html, err := page.HTML(ctx)
	if err != nil {
		log.Warn("snapshot html failed", zap.Error(err))
		return
	}
	digest, err := e.hasher.Hash([]byte(html))
	if err != nil {
		log.Warn("snapshot hash failed", zap.Error(err))
		return
	}
	path := fmt.Sprintf("%s/%d/%s.html", e.cfg.SnapshotPrefix, item.JobID, digest)
	uri, err := e.snapshots.PutObject(ctx, path, "text/html; charset=utf-8", bytes.NewReader([]byte(html)))
	if err != nil {
		log.Warn("snapshot upload failed", zap.String("path", path), zap.Error(err))
		return
	}
	log.Debug("snapshot stored", zap.String("uri", uri))
}

// Fail records a failed attempt. A terminal failure marks the job failed.
func (e *Executor) Fail(ctx context.Context, item scrape.WorkItem, cause error, terminal bool) error {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	if terminal {
		if err := e.jobs.MarkFinished(ctx, item.JobID, scrape.JobStatusFailed, &msg, e.clock.Now()); err != nil {
			return fmt.Errorf("mark job %d failed: %w", item.JobID, err)
		}
		return nil
	}
	if err := e.jobs.RecordAttemptError(ctx, item.JobID, msg); err != nil {
		return fmt.Errorf("record attempt error for job %d: %w", item.JobID, err)
	}
	return nil
}

func classify(op string, err error) error {
	if scrape.KindOf(err) != scrape.KindUnknown {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return scrape.ExtractionTimeout(op, err)
	}
	return scrape.Infrastructure(op, err)
}
