// Package dispatcher contains tests for worker coordination.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-scraper/internal/executor"
	"github.com/JakeFAU/catalog-scraper/internal/extract"
	"github.com/JakeFAU/catalog-scraper/internal/queue/memory"
	"github.com/JakeFAU/catalog-scraper/internal/reconcile"
	"github.com/JakeFAU/catalog-scraper/internal/scrape"
	storage "github.com/JakeFAU/catalog-scraper/internal/storage/memory"
	"github.com/JakeFAU/catalog-scraper/internal/worker"
)

// TestDispatcherRunStartsWorkers ensures workers begin processing and stop on cancel.
func TestDispatcherRunStartsWorkers(t *testing.T) {
	t.Parallel()

	queue := &blockingQueue{started: make(chan struct{}, 1)}
	w := worker.New(queue, &countingExecutor{}, nil, zap.NewNop())
	dispatch := New(queue, []*worker.Worker{w})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		dispatch.Run(ctx)
		close(done)
	}()

	select {
	case <-queue.started:
	case <-time.After(time.Second):
		t.Fatal("worker did not begin dequeuing")
	}

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop after context cancel")
	}
}

// TestDispatcherBoundsConcurrency checks that no more jobs run at once than there are workers.
func TestDispatcherBoundsConcurrency(t *testing.T) {
	t.Parallel()

	const poolSize = 3
	q := memory.NewQueue(32)
	exec := &countingExecutor{hold: 20 * time.Millisecond}
	workers := make([]*worker.Worker, 0, poolSize)
	for range poolSize {
		workers = append(workers, worker.New(q, exec, nil, zap.NewNop()))
	}
	dispatch := New(q, workers)
	require.Equal(t, poolSize, dispatch.Size())

	for i := 1; i <= 12; i++ {
		require.NoError(t, dispatch.Enqueue(context.Background(), scrape.WorkItem{
			JobID:   int64(i),
			URL:     fmt.Sprintf("https://shop.test/product/%d", i),
			Attempt: 1,
		}))
	}

	require.NoError(t, dispatch.Start(context.Background()))
	require.ErrorIs(t, dispatch.Start(context.Background()), ErrAlreadyStarted)

	require.Eventually(t, func() bool {
		return exec.completed.Load() == 12
	}, 2*time.Second, 10*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, dispatch.Stop(stopCtx))

	require.LessOrEqual(t, exec.maxSeen(), int32(poolSize))
	require.Positive(t, exec.maxSeen())
}

// TestDispatcherBoundsInProgressJobsDuringRetries checks that jobs waiting out a retry
// backoff still count against the pool, so at most poolSize jobs are in_progress.
func TestDispatcherBoundsInProgressJobsDuringRetries(t *testing.T) {
	t.Parallel()

	const (
		poolSize = 3
		jobCount = 9
	)
	ctx := context.Background()
	clock := fixedClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	jobs := storage.NewJobStore()
	exec := executor.New(
		jobs,
		downBrowser{},
		extract.New(extract.Selectors{}, 10*time.Millisecond),
		reconcile.New(storage.NewCatalogStore(), clock, zap.NewNop()),
		clock,
		executor.Config{},
		zap.NewNop(),
	)

	q := memory.NewQueue(jobCount)
	policy := worker.NewExponentialRetryPolicy(5, time.Minute, 0)
	workers := make([]*worker.Worker, 0, poolSize)
	for range poolSize {
		workers = append(workers, worker.New(q, exec, policy, zap.NewNop()))
	}
	dispatch := New(q, workers)

	ids := make([]int64, 0, jobCount)
	for i := 1; i <= jobCount; i++ {
		url := fmt.Sprintf("https://shop.test/category/%d", i)
		job, err := jobs.CreateJob(ctx, url, scrape.TargetCategory)
		require.NoError(t, err)
		ids = append(ids, job.ID)
		require.NoError(t, dispatch.Enqueue(ctx, scrape.WorkItem{JobID: job.ID, URL: url, Attempt: 1}))
	}

	countByStatus := func() map[scrape.JobStatus]int {
		counts := map[scrape.JobStatus]int{}
		for _, id := range ids {
			if job, err := jobs.GetJob(ctx, id); err == nil {
				counts[job.Status]++
			}
		}
		return counts
	}

	require.NoError(t, dispatch.Start(ctx))
	t.Cleanup(func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = dispatch.Stop(stopCtx)
	})

	require.Eventually(t, func() bool {
		return countByStatus()[scrape.JobStatusInProgress] == poolSize
	}, time.Second, 5*time.Millisecond)

	deadline := time.Now().Add(300 * time.Millisecond)
	for time.Now().Before(deadline) {
		counts := countByStatus()
		require.LessOrEqual(t, counts[scrape.JobStatusInProgress], poolSize)
		require.Equal(t, jobCount-poolSize, counts[scrape.JobStatusPending])
		time.Sleep(10 * time.Millisecond)
	}
}

// TestDispatcherEnqueueForwardsErrors verifies queue errors are wrapped for callers.
func TestDispatcherEnqueueForwardsErrors(t *testing.T) {
	t.Parallel()

	queue := &errorQueue{err: errors.New("boom")}
	dispatch := New(queue, nil)

	err := dispatch.Enqueue(context.Background(), scrape.WorkItem{JobID: 1})
	if err == nil || err.Error() != "queue enqueue: boom" {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestDispatcherStopWithoutStart(t *testing.T) {
	t.Parallel()

	require.NoError(t, New(&errorQueue{}, nil).Stop(context.Background()))
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type downBrowser struct{}

func (downBrowser) LoadPage(context.Context, string) (scrape.Page, error) {
	return nil, errors.New("connection refused")
}

type countingExecutor struct {
	hold      time.Duration
	running   atomic.Int32
	completed atomic.Int32

	mu  sync.Mutex
	max int32
}

func (e *countingExecutor) Execute(ctx context.Context, _ scrape.WorkItem) error {
	n := e.running.Add(1)
	defer e.running.Add(-1)

	e.mu.Lock()
	if n > e.max {
		e.max = n
	}
	e.mu.Unlock()

	select {
	case <-time.After(e.hold):
	case <-ctx.Done():
		return ctx.Err()
	}
	e.completed.Add(1)
	return nil
}

func (e *countingExecutor) Fail(context.Context, scrape.WorkItem, error, bool) error {
	return nil
}

func (e *countingExecutor) maxSeen() int32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.max
}

type blockingQueue struct {
	started chan struct{}
}

func (q *blockingQueue) Enqueue(_ context.Context, _ scrape.WorkItem) error {
	select {
	case q.started <- struct{}{}:
	default:
	}
	return nil
}

func (q *blockingQueue) Dequeue(ctx context.Context) (scrape.WorkItem, error) {
	select {
	case q.started <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return scrape.WorkItem{}, fmt.Errorf("blocking dequeue canceled: %w", ctx.Err())
}

func (q *blockingQueue) Retry(context.Context, scrape.WorkItem, time.Duration) error { return nil }

func (q *blockingQueue) Bury(context.Context, scrape.WorkItem, string) error { return nil }

func (q *blockingQueue) Failed(context.Context) ([]scrape.FailedItem, error) { return nil, nil }

type errorQueue struct {
	err error
}

func (q *errorQueue) Enqueue(context.Context, scrape.WorkItem) error {
	return q.err
}

func (q *errorQueue) Dequeue(context.Context) (scrape.WorkItem, error) {
	return scrape.WorkItem{}, nil
}

func (q *errorQueue) Retry(context.Context, scrape.WorkItem, time.Duration) error { return q.err }

func (q *errorQueue) Bury(context.Context, scrape.WorkItem, string) error { return q.err }

func (q *errorQueue) Failed(context.Context) ([]scrape.FailedItem, error) { return nil, q.err }
