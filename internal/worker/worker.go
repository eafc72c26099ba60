// Package worker implements the queue consumption loop and retry handling.
package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-scraper/internal/metrics"
	"github.com/JakeFAU/catalog-scraper/internal/scrape"
)

// Executor runs one attempt of a work item and records its outcome.
type Executor interface {
	Execute(ctx context.Context, item scrape.WorkItem) error
	// Fail records a failed attempt. terminal marks the job failed; otherwise
	// the error is noted and the job stays in progress for the next attempt.
	Fail(ctx context.Context, item scrape.WorkItem, cause error, terminal bool) error
}

// Worker consumes queue items and hands them to the executor.
type Worker struct {
	queue  scrape.Queue
	exec   Executor
	policy RetryPolicy
	logger *zap.Logger
}

const (
	dequeueErrorPause = 100 * time.Millisecond
	requeueTimeout    = 2 * time.Second
)

// New constructs a Worker.
func New(queue scrape.Queue, exec Executor, policy RetryPolicy, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy == nil {
		policy = NewExponentialRetryPolicy(5, time.Second, 0)
	}
	return &Worker{
		queue:  queue,
		exec:   exec,
		policy: policy,
		logger: logger,
	}
}

// Run blocks, consuming queue items until the context finishes or the queue closes.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, scrape.ErrQueueClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(dequeueErrorPause):
			}
			continue
		}
		w.logger.Debug("dequeued job", zap.Int64("job_id", item.JobID), zap.Int("attempt", item.Attempt))
		w.process(ctx, item)
	}
}

// process runs item until it completes, fails for good, or the worker stops.
// Retries wait out their backoff in this worker, so a job counts against the pool
// for as long as it is in_progress.
func (w *Worker) process(ctx context.Context, item scrape.WorkItem) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	if item.Attempt < 1 {
		item.Attempt = 1
	}
	for {
		log := w.logger.With(
			zap.Int64("job_id", item.JobID),
			zap.String("url", item.URL),
			zap.Int("attempt", item.Attempt),
		)

		err := w.exec.Execute(ctx, item)
		switch {
		case err == nil:
			metrics.ObserveJob(string(scrape.JobStatusCompleted))
			log.Info("job completed")
			return
		case errors.Is(err, scrape.ErrJobFinished):
			log.Info("job already finished, dropping redelivered item", zap.Error(err))
			return
		case ctx.Err() != nil:
			w.requeueInterrupted(item, log)
			return
		}

		kind := scrape.KindOf(err)
		retry := w.policy.ShouldRetry(err, item.Attempt)
		if ferr := w.exec.Fail(ctx, item, err, !retry); ferr != nil {
			log.Error("record attempt failure failed", zap.Error(ferr))
		}
		if !retry {
			log.Error("job failed", zap.String("kind", string(kind)), zap.Error(err))
			metrics.ObserveJob(string(scrape.JobStatusFailed))
			if qerr := w.queue.Bury(ctx, item, err.Error()); qerr != nil {
				log.Error("retain failed item failed", zap.Error(qerr))
			}
			return
		}

		delay := w.policy.Backoff(item.Attempt)
		log.Warn("attempt failed, retrying",
			zap.String("kind", string(kind)),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		metrics.ObserveRetry(string(kind))
		item.Attempt++

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			w.deferRetry(item, delay, log)
			return
		case <-timer.C:
		}
	}
}

// deferRetry hands a retry that was waiting out its backoff back to the queue on shutdown.
func (w *Worker) deferRetry(item scrape.WorkItem, delay time.Duration, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), requeueTimeout)
	defer cancel()
	if err := w.queue.Retry(ctx, item, delay); err != nil {
		log.Warn("pending retry could not be handed back to the queue", zap.Error(err))
		return
	}
	log.Info("pending retry handed back to the queue", zap.Int("next_attempt", item.Attempt))
}

// requeueInterrupted puts back an item whose attempt was cut short by shutdown.
// The attempt number is unchanged because the attempt never finished.
func (w *Worker) requeueInterrupted(item scrape.WorkItem, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), requeueTimeout)
	defer cancel()
	if err := w.queue.Enqueue(ctx, item); err != nil {
		log.Warn("job interrupted by shutdown and could not be requeued", zap.Error(err))
		return
	}
	log.Info("job interrupted by shutdown, requeued")
}
