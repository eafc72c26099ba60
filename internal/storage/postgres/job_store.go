package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/catalog-scraper/internal/scrape"
)

const jobColumns = `id, url, target_type, status, error_log, started_at, finished_at, created_at, updated_at`

// JobStore persists scrape jobs in the scrape_jobs table.
type JobStore struct {
	db DB
}

// NewJobStore wraps an open pool.
func NewJobStore(db DB) (*JobStore, error) {
	if db == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &JobStore{db: db}, nil
}

// CreateJob inserts a pending job.
func (s *JobStore) CreateJob(ctx context.Context, url string, target scrape.TargetType) (scrape.ScrapeJob, error) {
	job := scrape.ScrapeJob{URL: url, TargetType: target, Status: scrape.JobStatusPending}
	err := s.db.QueryRow(ctx, `
		INSERT INTO scrape_jobs (url, target_type, status)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at`,
		url, string(target), string(scrape.JobStatusPending),
	).Scan(&job.ID, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return scrape.ScrapeJob{}, fmt.Errorf("insert scrape job: %w", err)
	}
	return job, nil
}

// GetJob loads a job by id.
func (s *JobStore) GetJob(ctx context.Context, id int64) (scrape.ScrapeJob, error) {
	row := s.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM scrape_jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return scrape.ScrapeJob{}, fmt.Errorf("job %d: %w", id, scrape.ErrJobNotFound)
	}
	if err != nil {
		return scrape.ScrapeJob{}, fmt.Errorf("select scrape job: %w", err)
	}
	return job, nil
}

// LatestCompletedJob finds the newest completed job for url finished at or after since.
func (s *JobStore) LatestCompletedJob(
	ctx context.Context,
	url string,
	since time.Time,
) (scrape.ScrapeJob, bool, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+jobColumns+`
		FROM scrape_jobs
		WHERE url = $1 AND status = $2 AND finished_at >= $3
		ORDER BY finished_at DESC, id DESC
		LIMIT 1`,
		url, string(scrape.JobStatusCompleted), since,
	)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return scrape.ScrapeJob{}, false, nil
	}
	if err != nil {
		return scrape.ScrapeJob{}, false, fmt.Errorf("select latest completed job: %w", err)
	}
	return job, true, nil
}

// MarkStarted moves a pending or retried job to in_progress.
func (s *JobStore) MarkStarted(ctx context.Context, id int64, at time.Time) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE scrape_jobs
		SET status = $2, started_at = $3, updated_at = now()
		WHERE id = $1 AND status = ANY($4)`,
		id, string(scrape.JobStatusInProgress), at, sourceStatuses(scrape.JobStatusInProgress),
	)
	if err != nil {
		return fmt.Errorf("mark job started: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.rejectTransition(ctx, id, scrape.JobStatusInProgress)
	}
	return nil
}

// RecordAttemptError stores the error of an attempt that will be retried.
func (s *JobStore) RecordAttemptError(ctx context.Context, id int64, msg string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE scrape_jobs
		SET error_log = $2, updated_at = now()
		WHERE id = $1 AND status = 'in_progress'`,
		id, msg,
	)
	if err != nil {
		return fmt.Errorf("record attempt error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.rejectTransition(ctx, id, scrape.JobStatusInProgress)
	}
	return nil
}

// MarkFinished moves a job to completed or failed. Only in_progress jobs complete;
// a pending job may fail when it was never queued.
func (s *JobStore) MarkFinished(
	ctx context.Context,
	id int64,
	status scrape.JobStatus,
	errMsg *string,
	at time.Time,
) error {
	if !status.IsTerminal() {
		return fmt.Errorf("%w: %s is not terminal", scrape.ErrInvalidTransition, status)
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE scrape_jobs
		SET status = $2, error_log = COALESCE($3, error_log), finished_at = $4, updated_at = now()
		WHERE id = $1 AND status = ANY($5)`,
		id, string(status), errMsg, at, sourceStatuses(status),
	)
	if err != nil {
		return fmt.Errorf("mark job finished: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.rejectTransition(ctx, id, status)
	}
	return nil
}

// sourceStatuses is the guard for an UPDATE moving a job to status to.
func sourceStatuses(to scrape.JobStatus) []string {
	from := scrape.TransitionSources(to)
	names := make([]string, 0, len(from))
	for _, status := range from {
		names = append(names, string(status))
	}
	return names
}

// rejectTransition explains why a guarded UPDATE matched no rows.
func (s *JobStore) rejectTransition(ctx context.Context, id int64, to scrape.JobStatus) error {
	var current string
	err := s.db.QueryRow(ctx, `SELECT status FROM scrape_jobs WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("job %d: %w", id, scrape.ErrJobNotFound)
	}
	if err != nil {
		return fmt.Errorf("select job status: %w", err)
	}
	if err := scrape.ValidateTransition(scrape.JobStatus(current), to); err != nil {
		return fmt.Errorf("job %d: %w", id, err)
	}
	return fmt.Errorf("job %d: status changed concurrently", id)
}

func scanJob(row pgx.Row) (scrape.ScrapeJob, error) {
	var (
		job        scrape.ScrapeJob
		targetType string
		status     string
	)
	if err := row.Scan(
		&job.ID,
		&job.URL,
		&targetType,
		&status,
		&job.ErrorLog,
		&job.StartedAt,
		&job.FinishedAt,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		return scrape.ScrapeJob{}, err
	}
	job.TargetType = scrape.TargetType(targetType)
	job.Status = scrape.JobStatus(status)
	return job, nil
}
