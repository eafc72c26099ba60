package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/catalog-scraper/internal/scrape"
)

func TestQueueEnqueueDequeue(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	result := make(chan scrape.WorkItem, 1)
	errCh := make(chan error, 1)

	go func() {
		item, err := q.Dequeue(context.Background())
		if err != nil {
			errCh <- err
			return
		}
		result <- item
	}()

	item := scrape.WorkItem{JobID: 1, URL: "https://shop.example/category/books", TargetType: scrape.TargetCategory}
	require.NoError(t, q.Enqueue(context.Background(), item))

	select {
	case err := <-errCh:
		t.Fatalf("Dequeue() error = %v", err)
	case got := <-result:
		require.Equal(t, item, got)
	case <-time.After(time.Second):
		t.Fatal("dequeue did not return item")
	}
}

func TestQueuePreservesFIFOOrder(t *testing.T) {
	t.Parallel()

	q := NewQueue(3)
	ctx := context.Background()
	for i := int64(1); i <= 3; i++ {
		require.NoError(t, q.Enqueue(ctx, scrape.WorkItem{JobID: i}))
	}
	for i := int64(1); i <= 3; i++ {
		item, err := q.Dequeue(ctx)
		require.NoError(t, err)
		require.Equal(t, i, item.JobID)
	}
}

func TestQueueCancelationErrors(t *testing.T) {
	t.Parallel()

	qDequeue := NewQueue(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := qDequeue.Dequeue(ctx)
	require.EqualError(t, err, "dequeue canceled: context canceled")

	qEnqueue := NewQueue(1)
	require.NoError(t, qEnqueue.Enqueue(context.Background(), scrape.WorkItem{JobID: 1}))
	ctx, cancel = context.WithCancel(context.Background())
	cancel()
	err = qEnqueue.Enqueue(ctx, scrape.WorkItem{JobID: 2})
	require.EqualError(t, err, "enqueue canceled: context canceled")
}

func TestQueueRetryDelaysItem(t *testing.T) {
	t.Parallel()

	q := NewQueue(2)
	ctx := context.Background()
	start := time.Now()
	require.NoError(t, q.Retry(ctx, scrape.WorkItem{JobID: 5, Attempt: 2}, 50*time.Millisecond))

	dctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	item, err := q.Dequeue(dctx)
	require.NoError(t, err)
	require.Equal(t, 2, item.Attempt)
	require.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestQueueBuryRetainsFailedItems(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	ctx := context.Background()
	require.NoError(t, q.Bury(ctx, scrape.WorkItem{JobID: 1, Attempt: 5}, "timeout"))
	require.NoError(t, q.Bury(ctx, scrape.WorkItem{JobID: 2, Attempt: 1}, "unsupported"))

	failed, err := q.Failed(ctx)
	require.NoError(t, err)
	require.Len(t, failed, 2)
	require.Equal(t, int64(1), failed[0].Item.JobID)
	require.Equal(t, "unsupported", failed[1].Reason)
}

func TestQueueClose(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	q.Close()
	_, err := q.Dequeue(context.Background())
	require.True(t, errors.Is(err, scrape.ErrQueueClosed))
	require.ErrorIs(t, q.Enqueue(context.Background(), scrape.WorkItem{}), scrape.ErrQueueClosed)
	require.ErrorIs(t, q.Retry(context.Background(), scrape.WorkItem{}, time.Second), scrape.ErrQueueClosed)
	// Closing twice should be safe.
	q.Close()
}
