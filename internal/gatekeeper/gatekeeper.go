// Package gatekeeper deduplicates scrape requests before they reach the queue.
//
// A request is answered from, in order: the lookaside cache, the most recent
// completed job inside the dedup window, or a freshly created and enqueued job.
package gatekeeper

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-scraper/internal/metrics"
	"github.com/JakeFAU/catalog-scraper/internal/scrape"
)

// ErrInvalidRequest is returned for a malformed URL or target type.
var ErrInvalidRequest = errors.New("invalid scrape request")

// Dedup decisions reported to metrics.
const (
	DecisionCache   = "cache"
	DecisionHistory = "history"
	DecisionNew     = "new"
)

// HostPolicy admits or rejects the host of a requested URL.
type HostPolicy interface {
	Allowed(host string) bool
}

// Config tunes deduplication.
type Config struct {
	Window      time.Duration
	CacheTTL    time.Duration
	CachePrefix string
	// Hosts restricts which hosts may be scraped. Nil admits every host.
	Hosts HostPolicy
}

// Gatekeeper is the entry point for scrape requests.
type Gatekeeper struct {
	jobs   scrape.JobStore
	cache  scrape.Cache
	queue  scrape.Queue
	clock  scrape.Clock
	cfg    Config
	logger *zap.Logger
}

// New constructs a Gatekeeper.
func New(
	jobs scrape.JobStore,
	cache scrape.Cache,
	queue scrape.Queue,
	clock scrape.Clock,
	cfg Config,
	logger *zap.Logger,
) *Gatekeeper {
	if cfg.Window <= 0 {
		cfg.Window = 24 * time.Hour
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 24 * time.Hour
	}
	if cfg.CachePrefix == "" {
		cfg.CachePrefix = "scrape:"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gatekeeper{
		jobs:   jobs,
		cache:  cache,
		queue:  queue,
		clock:  clock,
		cfg:    cfg,
		logger: logger,
	}
}

// RequestScrape returns the job id serving rawURL, creating and enqueuing a job when
// no recent one exists. forceRefresh skips both dedup lookups.
func (g *Gatekeeper) RequestScrape(
	ctx context.Context,
	rawURL string,
	target scrape.TargetType,
	forceRefresh bool,
) (int64, error) {
	target, err := g.validate(rawURL, target)
	if err != nil {
		return 0, err
	}
	key := g.cfg.CachePrefix + rawURL
	log := g.logger.With(zap.String("url", rawURL), zap.Bool("force_refresh", forceRefresh))

	if !forceRefresh {
		if id, ok := g.fromCache(ctx, key, log); ok {
			metrics.ObserveDedup(DecisionCache)
			log.Debug("scrape request served from cache", zap.Int64("job_id", id))
			return id, nil
		}

		since := g.clock.Now().Add(-g.cfg.Window)
		job, found, err := g.jobs.LatestCompletedJob(ctx, rawURL, since)
		if err != nil {
			return 0, scrape.Persistence("latest completed job", err)
		}
		if found {
			g.remember(ctx, key, job.ID, log)
			metrics.ObserveDedup(DecisionHistory)
			log.Debug("scrape request served from history", zap.Int64("job_id", job.ID))
			return job.ID, nil
		}
	}

	job, err := g.jobs.CreateJob(ctx, rawURL, target)
	if err != nil {
		return 0, scrape.Persistence("create job", err)
	}
	item := scrape.WorkItem{
		JobID:      job.ID,
		URL:        rawURL,
		TargetType: target,
		Attempt:    1,
		EnqueuedAt: g.clock.Now(),
	}
	if err := g.queue.Enqueue(ctx, item); err != nil {
		g.abandon(job.ID, err, log)
		return 0, scrape.Infrastructure("enqueue", err)
	}
	g.remember(ctx, key, job.ID, log)
	metrics.ObserveDedup(DecisionNew)
	log.Info("scrape job queued", zap.Int64("job_id", job.ID), zap.String("target_type", string(target)))
	return job.ID, nil
}

// GetJob returns the job with the given id.
func (g *Gatekeeper) GetJob(ctx context.Context, id int64) (scrape.ScrapeJob, error) {
	job, err := g.jobs.GetJob(ctx, id)
	if err != nil {
		return scrape.ScrapeJob{}, fmt.Errorf("get job %d: %w", id, err)
	}
	return job, nil
}

// FailedItems lists work items that exhausted their attempts.
func (g *Gatekeeper) FailedItems(ctx context.Context) ([]scrape.FailedItem, error) {
	items, err := g.queue.Failed(ctx)
	if err != nil {
		return nil, scrape.Infrastructure("list failed", err)
	}
	return items, nil
}

func (g *Gatekeeper) fromCache(ctx context.Context, key string, log *zap.Logger) (int64, bool) {
	id, ok, err := g.cache.Get(ctx, key)
	if err != nil {
		log.Warn("dedup cache read failed, treating as miss", zap.Error(err))
		return 0, false
	}
	return id, ok
}

func (g *Gatekeeper) remember(ctx context.Context, key string, id int64, log *zap.Logger) {
	if err := g.cache.Set(ctx, key, id, g.cfg.CacheTTL); err != nil {
		log.Warn("dedup cache write failed", zap.Int64("job_id", id), zap.Error(err))
	}
}

// abandon fails a job whose work item never reached the queue.
func (g *Gatekeeper) abandon(id int64, cause error, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	msg := "enqueue failed: " + cause.Error()
	if err := g.jobs.MarkFinished(ctx, id, scrape.JobStatusFailed, &msg, g.clock.Now()); err != nil {
		log.Error("mark unqueued job failed", zap.Int64("job_id", id), zap.Error(err))
	}
}

func (g *Gatekeeper) validate(rawURL string, target scrape.TargetType) (scrape.TargetType, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || !u.IsAbs() || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", fmt.Errorf("%w: url %q must be an absolute http(s) URL", ErrInvalidRequest, rawURL)
	}
	if g.cfg.Hosts != nil && !g.cfg.Hosts.Allowed(u.Hostname()) {
		return "", fmt.Errorf("%w: host %q is not allowed", ErrInvalidRequest, u.Hostname())
	}
	t, err := scrape.ParseTargetType(string(target))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return t, nil
}
