package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/catalog-scraper/internal/scrape"
)

func TestJobStoreLifecycle(t *testing.T) {
	t.Parallel()

	store := NewJobStore()
	ctx := context.Background()

	job, err := store.CreateJob(ctx, "https://shop.example/category/books", scrape.TargetCategory)
	require.NoError(t, err)
	require.Equal(t, int64(1), job.ID)
	require.Equal(t, scrape.JobStatusPending, job.Status)
	require.Nil(t, job.StartedAt)

	started := time.Unix(100, 0).UTC()
	require.NoError(t, store.MarkStarted(ctx, job.ID, started))
	require.NoError(t, store.RecordAttemptError(ctx, job.ID, "wait timed out"))

	got, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, scrape.JobStatusInProgress, got.Status)
	require.Equal(t, started, *got.StartedAt)
	require.Equal(t, "wait timed out", *got.ErrorLog)

	finished := time.Unix(200, 0).UTC()
	require.NoError(t, store.MarkFinished(ctx, job.ID, scrape.JobStatusCompleted, nil, finished))

	got, err = store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, scrape.JobStatusCompleted, got.Status)
	require.Equal(t, finished, *got.FinishedAt)
	require.True(t, got.StartedAt.Before(*got.FinishedAt))
}

func TestJobStoreRejectsBackwardsTransitions(t *testing.T) {
	t.Parallel()

	store := NewJobStore()
	ctx := context.Background()
	job, err := store.CreateJob(ctx, "https://shop.example/product/1", scrape.TargetProduct)
	require.NoError(t, err)

	require.ErrorIs(t, store.MarkFinished(ctx, job.ID, scrape.JobStatusCompleted, nil, time.Now()), scrape.ErrInvalidTransition)
	require.NoError(t, store.MarkStarted(ctx, job.ID, time.Now()))
	msg := "boom"
	require.NoError(t, store.MarkFinished(ctx, job.ID, scrape.JobStatusFailed, &msg, time.Now()))

	require.ErrorIs(t, store.MarkStarted(ctx, job.ID, time.Now()), scrape.ErrInvalidTransition)
	require.ErrorIs(t, store.MarkFinished(ctx, job.ID, scrape.JobStatusCompleted, nil, time.Now()), scrape.ErrInvalidTransition)
	require.ErrorIs(t, store.MarkFinished(ctx, job.ID, scrape.JobStatusInProgress, nil, time.Now()), scrape.ErrInvalidTransition)

	got, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, scrape.JobStatusFailed, got.Status)
	require.Equal(t, "boom", *got.ErrorLog)
}

func TestJobStorePendingJobCanOnlyFailOrStart(t *testing.T) {
	t.Parallel()

	store := NewJobStore()
	ctx := context.Background()

	job, err := store.CreateJob(ctx, "https://shop.example/category/books", scrape.TargetCategory)
	require.NoError(t, err)

	require.ErrorIs(t, store.RecordAttemptError(ctx, job.ID, "boom"), scrape.ErrInvalidTransition)
	require.ErrorIs(t, store.MarkFinished(ctx, job.ID, scrape.JobStatusCompleted, nil, time.Now()), scrape.ErrInvalidTransition)

	msg := "enqueue failed"
	require.NoError(t, store.MarkFinished(ctx, job.ID, scrape.JobStatusFailed, &msg, time.Now()))
	got, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, scrape.JobStatusFailed, got.Status)
	require.Nil(t, got.StartedAt)
}

func TestJobStoreGetMissing(t *testing.T) {
	t.Parallel()

	_, err := NewJobStore().GetJob(context.Background(), 42)
	require.ErrorIs(t, err, scrape.ErrJobNotFound)
}

func TestJobStoreLatestCompletedJob(t *testing.T) {
	t.Parallel()

	store := NewJobStore()
	ctx := context.Background()
	url := "https://shop.example/category/books"
	base := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

	complete := func(finished time.Time) int64 {
		job, err := store.CreateJob(ctx, url, scrape.TargetCategory)
		require.NoError(t, err)
		require.NoError(t, store.MarkStarted(ctx, job.ID, finished.Add(-time.Minute)))
		require.NoError(t, store.MarkFinished(ctx, job.ID, scrape.JobStatusCompleted, nil, finished))
		return job.ID
	}

	complete(base.Add(-30 * time.Hour))
	newest := complete(base.Add(-2 * time.Hour))
	complete(base.Add(-5 * time.Hour))

	failed, err := store.CreateJob(ctx, url, scrape.TargetCategory)
	require.NoError(t, err)
	require.NoError(t, store.MarkStarted(ctx, failed.ID, base))
	require.NoError(t, store.MarkFinished(ctx, failed.ID, scrape.JobStatusFailed, nil, base))

	job, ok, err := store.LatestCompletedJob(ctx, url, base.Add(-24*time.Hour))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, newest, job.ID)

	_, ok, err = store.LatestCompletedJob(ctx, url, base.Add(-time.Hour))
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = store.LatestCompletedJob(ctx, "https://shop.example/category/other", time.Time{})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestJobStoreConcurrentCreateAssignsUniqueIDs(t *testing.T) {
	t.Parallel()

	store := NewJobStore()
	var wg sync.WaitGroup
	ids := make(chan int64, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			job, err := store.CreateJob(context.Background(), "https://shop.example/category/x", scrape.TargetCategory)
			if err == nil {
				ids <- job.ID
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[int64]bool)
	for id := range ids {
		require.False(t, seen[id])
		seen[id] = true
	}
	require.Len(t, seen, 50)
}
