package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/catalog-scraper/internal/scrape"
)

func newTestQueue(t *testing.T) (*Queue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	q, err := New(client, Config{Prefix: "test", PollInterval: 10 * time.Millisecond, FailedLimit: 2})
	require.NoError(t, err)
	return q, mr
}

func TestNewRequiresClient(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{})
	require.Error(t, err)
}

func TestQueueFIFO(t *testing.T) {
	t.Parallel()

	q, _ := newTestQueue(t)
	ctx := context.Background()
	for i := int64(1); i <= 3; i++ {
		require.NoError(t, q.Enqueue(ctx, scrape.WorkItem{JobID: i, URL: "https://shop.example/category/x"}))
	}
	for i := int64(1); i <= 3; i++ {
		item, err := q.Dequeue(ctx)
		require.NoError(t, err)
		require.Equal(t, i, item.JobID)
	}
}

func TestQueueDequeueHonoursContext(t *testing.T) {
	t.Parallel()

	q, _ := newTestQueue(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := q.Dequeue(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQueueRetryPromotesWhenDue(t *testing.T) {
	t.Parallel()

	q, mr := newTestQueue(t)
	ctx := context.Background()
	require.NoError(t, q.Retry(ctx, scrape.WorkItem{JobID: 9, Attempt: 2}, 50*time.Millisecond))
	require.True(t, mr.Exists("test:delayed"))

	dctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	item, err := q.Dequeue(dctx)
	require.NoError(t, err)
	require.Equal(t, int64(9), item.JobID)
	require.Equal(t, 2, item.Attempt)
	require.False(t, mr.Exists("test:delayed"))
}

func TestQueueBuryIsCapped(t *testing.T) {
	t.Parallel()

	q, _ := newTestQueue(t)
	ctx := context.Background()
	for i := int64(1); i <= 3; i++ {
		require.NoError(t, q.Bury(ctx, scrape.WorkItem{JobID: i, Attempt: 5}, "timeout"))
	}

	failed, err := q.Failed(ctx)
	require.NoError(t, err)
	require.Len(t, failed, 2)
	require.Equal(t, int64(2), failed[0].Item.JobID)
	require.Equal(t, int64(3), failed[1].Item.JobID)
	require.Equal(t, "timeout", failed[1].Reason)
}

func TestQueueClose(t *testing.T) {
	t.Parallel()

	q, _ := newTestQueue(t)
	q.Close()
	_, err := q.Dequeue(context.Background())
	require.ErrorIs(t, err, scrape.ErrQueueClosed)
	require.ErrorIs(t, q.Enqueue(context.Background(), scrape.WorkItem{}), scrape.ErrQueueClosed)
}
