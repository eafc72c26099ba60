// Package memory provides in-process stores for development and tests.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/catalog-scraper/internal/scrape"
)

// JobStore keeps ScrapeJob rows in a map guarded by a mutex.
type JobStore struct {
	mu     sync.RWMutex
	jobs   map[int64]scrape.ScrapeJob
	nextID int64
	now    func() time.Time
}

// NewJobStore constructs a JobStore.
func NewJobStore() *JobStore {
	return &JobStore{
		jobs: make(map[int64]scrape.ScrapeJob),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// CreateJob stores a new pending job and assigns it the next id.
func (s *JobStore) CreateJob(_ context.Context, url string, target scrape.TargetType) (scrape.ScrapeJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	now := s.now()
	job := scrape.ScrapeJob{
		ID:         s.nextID,
		URL:        url,
		TargetType: target,
		Status:     scrape.JobStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.jobs[job.ID] = job
	return job, nil
}

// GetJob fetches a job by id.
func (s *JobStore) GetJob(_ context.Context, id int64) (scrape.ScrapeJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return scrape.ScrapeJob{}, fmt.Errorf("job %d: %w", id, scrape.ErrJobNotFound)
	}
	return job, nil
}

// LatestCompletedJob scans for the newest completed job for url finished at or after since.
func (s *JobStore) LatestCompletedJob(_ context.Context, url string, since time.Time) (scrape.ScrapeJob, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var (
		best  scrape.ScrapeJob
		found bool
	)
	for _, job := range s.jobs {
		if job.URL != url || job.Status != scrape.JobStatusCompleted || job.FinishedAt == nil {
			continue
		}
		if job.FinishedAt.Before(since) {
			continue
		}
		if !found || job.FinishedAt.After(*best.FinishedAt) ||
			(job.FinishedAt.Equal(*best.FinishedAt) && job.ID > best.ID) {
			best = job
			found = true
		}
	}
	return best, found, nil
}

// MarkStarted moves a job to in_progress and stamps started_at.
func (s *JobStore) MarkStarted(_ context.Context, id int64, at time.Time) error {
	return s.update(id, scrape.JobStatusInProgress, func(job *scrape.ScrapeJob) {
		job.StartedAt = pointerTime(at)
	})
}

// RecordAttemptError records the error of an attempt on an in_progress job.
func (s *JobStore) RecordAttemptError(_ context.Context, id int64, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("job %d: %w", id, scrape.ErrJobNotFound)
	}
	if job.Status != scrape.JobStatusInProgress {
		return fmt.Errorf("job %d: %w: %s has no running attempt", id, scrape.ErrInvalidTransition, job.Status)
	}
	job.ErrorLog = pointerString(msg)
	job.UpdatedAt = s.now()
	s.jobs[id] = job
	return nil
}

// MarkFinished moves a job to a terminal status.
func (s *JobStore) MarkFinished(
	_ context.Context,
	id int64,
	status scrape.JobStatus,
	errMsg *string,
	at time.Time,
) error {
	if !status.IsTerminal() {
		return fmt.Errorf("%w: %s is not terminal", scrape.ErrInvalidTransition, status)
	}
	return s.update(id, status, func(job *scrape.ScrapeJob) {
		job.FinishedAt = pointerTime(at)
		if errMsg != nil {
			job.ErrorLog = pointerString(*errMsg)
		}
	})
}

func (s *JobStore) update(id int64, to scrape.JobStatus, mutate func(*scrape.ScrapeJob)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("job %d: %w", id, scrape.ErrJobNotFound)
	}
	if err := scrape.ValidateTransition(job.Status, to); err != nil {
		return fmt.Errorf("job %d: %w", id, err)
	}
	job.Status = to
	mutate(&job)
	job.UpdatedAt = s.now()
	s.jobs[id] = job
	return nil
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}

func pointerString(s string) *string {
	v := s
	return &v
}
