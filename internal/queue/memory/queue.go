// Package memory provides an in-process work queue.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/catalog-scraper/internal/scrape"
)

// Queue is a bounded channel queue with delayed retries and a failed set.
// Failed items are kept until the process exits.
type Queue struct {
	ch   chan scrape.WorkItem
	done chan struct{}

	closeMu sync.Mutex
	closed  bool

	failedMu sync.Mutex
	failed   []scrape.FailedItem
}

// NewQueue constructs a queue holding up to capacity ready items.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{
		ch:   make(chan scrape.WorkItem, capacity),
		done: make(chan struct{}),
	}
}

// Enqueue pushes an item or returns when the context ends.
func (q *Queue) Enqueue(ctx context.Context, item scrape.WorkItem) error {
	if q.isClosed() {
		return scrape.ErrQueueClosed
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case <-q.done:
		return scrape.ErrQueueClosed
	case q.ch <- item:
		return nil
	}
}

// Dequeue pops the next ready item.
func (q *Queue) Dequeue(ctx context.Context) (scrape.WorkItem, error) {
	select {
	case <-ctx.Done():
		return scrape.WorkItem{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case <-q.done:
		return scrape.WorkItem{}, scrape.ErrQueueClosed
	case item := <-q.ch:
		return item, nil
	}
}

// Retry re-queues item once delay has elapsed.
func (q *Queue) Retry(ctx context.Context, item scrape.WorkItem, delay time.Duration) error {
	if delay <= 0 {
		return q.Enqueue(ctx, item)
	}
	if q.isClosed() {
		return scrape.ErrQueueClosed
	}
	time.AfterFunc(delay, func() {
		select {
		case q.ch <- item:
		case <-q.done:
		}
	})
	return nil
}

// Bury records an item that exhausted its attempts.
func (q *Queue) Bury(_ context.Context, item scrape.WorkItem, reason string) error {
	q.failedMu.Lock()
	defer q.failedMu.Unlock()
	q.failed = append(q.failed, scrape.FailedItem{
		Item:     item,
		Reason:   reason,
		FailedAt: time.Now().UTC(),
	})
	return nil
}

// Failed returns a copy of the buried items, oldest first.
func (q *Queue) Failed(_ context.Context) ([]scrape.FailedItem, error) {
	q.failedMu.Lock()
	defer q.failedMu.Unlock()
	out := make([]scrape.FailedItem, len(q.failed))
	copy(out, q.failed)
	return out, nil
}

// Close stops the queue. Pending delayed retries are dropped.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.done)
	q.closed = true
}

func (q *Queue) isClosed() bool {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	return q.closed
}
