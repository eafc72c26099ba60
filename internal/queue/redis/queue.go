// Package redis implements the work queue on Redis so several processes can
// share one backlog.
//
// Keys, for a prefix P:
//
//	P:ready    list of JSON work items, LPUSH in / RPOP out (FIFO)
//	P:delayed  sorted set of JSON work items scored by ready time (unix ms)
//	P:failed   list of JSON failed items, newest first, capped
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/JakeFAU/catalog-scraper/internal/scrape"
)

// Config controls key naming and polling.
type Config struct {
	Prefix       string
	PollInterval time.Duration
	FailedLimit  int64
}

// Queue is a Redis-backed scrape.Queue.
type Queue struct {
	client goredis.UniversalClient
	cfg    Config
	closed atomic.Bool
}

// New wraps a client.
func New(client goredis.UniversalClient, cfg Config) (*Queue, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "scrapeQueue"
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 250 * time.Millisecond
	}
	if cfg.FailedLimit <= 0 {
		cfg.FailedLimit = 1000
	}
	return &Queue{client: client, cfg: cfg}, nil
}

func (q *Queue) readyKey() string   { return q.cfg.Prefix + ":ready" }
func (q *Queue) delayedKey() string { return q.cfg.Prefix + ":delayed" }
func (q *Queue) failedKey() string  { return q.cfg.Prefix + ":failed" }

// Enqueue appends an item to the ready list.
func (q *Queue) Enqueue(ctx context.Context, item scrape.WorkItem) error {
	if q.closed.Load() {
		return scrape.ErrQueueClosed
	}
	payload, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encode work item: %w", err)
	}
	if err := q.client.LPush(ctx, q.readyKey(), payload).Err(); err != nil {
		return fmt.Errorf("redis lpush: %w", err)
	}
	return nil
}

// Dequeue polls for the next ready item, promoting due retries first.
func (q *Queue) Dequeue(ctx context.Context) (scrape.WorkItem, error) {
	ticker := time.NewTicker(q.cfg.PollInterval)
	defer ticker.Stop()
	for {
		if q.closed.Load() {
			return scrape.WorkItem{}, scrape.ErrQueueClosed
		}
		if err := q.promoteDue(ctx); err != nil {
			return scrape.WorkItem{}, err
		}
		raw, err := q.client.RPop(ctx, q.readyKey()).Bytes()
		switch {
		case err == nil:
			var item scrape.WorkItem
			if err := json.Unmarshal(raw, &item); err != nil {
				return scrape.WorkItem{}, fmt.Errorf("decode work item: %w", err)
			}
			return item, nil
		case errors.Is(err, goredis.Nil):
		case ctx.Err() != nil:
			return scrape.WorkItem{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
		default:
			return scrape.WorkItem{}, fmt.Errorf("redis rpop: %w", err)
		}
		select {
		case <-ctx.Done():
			return scrape.WorkItem{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// promoteDue moves delayed items whose time has come onto the ready list.
// ZREM decides which consumer wins a member so each item is promoted once.
func (q *Queue) promoteDue(ctx context.Context) error {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	members, err := q.client.ZRangeByScore(ctx, q.delayedKey(), &goredis.ZRangeBy{Min: "-inf", Max: now}).Result()
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("dequeue canceled: %w", ctx.Err())
		}
		return fmt.Errorf("redis zrangebyscore: %w", err)
	}
	for _, m := range members {
		removed, err := q.client.ZRem(ctx, q.delayedKey(), m).Result()
		if err != nil {
			return fmt.Errorf("redis zrem: %w", err)
		}
		if removed == 0 {
			continue
		}
		if err := q.client.LPush(ctx, q.readyKey(), m).Err(); err != nil {
			return fmt.Errorf("redis lpush: %w", err)
		}
	}
	return nil
}

// Retry schedules item to become ready after delay.
func (q *Queue) Retry(ctx context.Context, item scrape.WorkItem, delay time.Duration) error {
	if delay <= 0 {
		return q.Enqueue(ctx, item)
	}
	if q.closed.Load() {
		return scrape.ErrQueueClosed
	}
	payload, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encode work item: %w", err)
	}
	score := float64(time.Now().Add(delay).UnixMilli())
	if err := q.client.ZAdd(ctx, q.delayedKey(), goredis.Z{Score: score, Member: string(payload)}).Err(); err != nil {
		return fmt.Errorf("redis zadd: %w", err)
	}
	return nil
}

// Bury pushes item onto the capped failed list.
func (q *Queue) Bury(ctx context.Context, item scrape.WorkItem, reason string) error {
	payload, err := json.Marshal(scrape.FailedItem{Item: item, Reason: reason, FailedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("encode failed item: %w", err)
	}
	pipe := q.client.TxPipeline()
	pipe.LPush(ctx, q.failedKey(), payload)
	pipe.LTrim(ctx, q.failedKey(), 0, q.cfg.FailedLimit-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis bury: %w", err)
	}
	return nil
}

// Failed returns the retained failed items, oldest first.
func (q *Queue) Failed(ctx context.Context) ([]scrape.FailedItem, error) {
	raw, err := q.client.LRange(ctx, q.failedKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange: %w", err)
	}
	out := make([]scrape.FailedItem, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		var f scrape.FailedItem
		if err := json.Unmarshal([]byte(raw[i]), &f); err != nil {
			return nil, fmt.Errorf("decode failed item: %w", err)
		}
		out = append(out, f)
	}
	return out, nil
}

// Close makes further Dequeue calls return scrape.ErrQueueClosed. The client stays open.
func (q *Queue) Close() {
	q.closed.Store(true)
}
