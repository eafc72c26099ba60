package postgres

import (
	"context"
	"fmt"
)

// schema is idempotent. Natural keys carry unique constraints so upserts can
// rely on ON CONFLICT instead of read-then-write.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS scrape_jobs (
		id          BIGSERIAL PRIMARY KEY,
		url         TEXT        NOT NULL,
		target_type TEXT        NOT NULL,
		status      TEXT        NOT NULL DEFAULT 'pending',
		error_log   TEXT,
		started_at  TIMESTAMPTZ,
		finished_at TIMESTAMPTZ,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS scrape_jobs_url_status_finished_idx
		ON scrape_jobs (url, status, finished_at DESC)`,
	`CREATE TABLE IF NOT EXISTS navigations (
		id         BIGSERIAL PRIMARY KEY,
		name       TEXT        NOT NULL,
		url        TEXT        NOT NULL DEFAULT '',
		source_id  TEXT        NOT NULL UNIQUE,
		source_url TEXT        NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS categories (
		id            BIGSERIAL PRIMARY KEY,
		name          TEXT        NOT NULL,
		source_id     TEXT        NOT NULL DEFAULT '',
		source_url    TEXT        NOT NULL UNIQUE,
		navigation_id BIGINT      NOT NULL REFERENCES navigations (id),
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS products (
		id              BIGSERIAL PRIMARY KEY,
		name            TEXT        NOT NULL,
		source_id       TEXT        NOT NULL UNIQUE,
		source_url      TEXT        NOT NULL DEFAULT '',
		last_scraped_at TIMESTAMPTZ,
		category_id     BIGINT      NOT NULL REFERENCES categories (id),
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS product_attributes (
		id         BIGSERIAL PRIMARY KEY,
		product_id BIGINT      NOT NULL REFERENCES products (id),
		key        TEXT        NOT NULL,
		value      TEXT        NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (product_id, key)
	)`,
	`CREATE TABLE IF NOT EXISTS reviews (
		id         BIGSERIAL PRIMARY KEY,
		product_id BIGINT      NOT NULL REFERENCES products (id),
		rating     INTEGER     NOT NULL DEFAULT 0,
		comment    TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// EnsureSchema creates the tables and indexes used by the stores.
func EnsureSchema(ctx context.Context, db DB) error {
	for i, stmt := range schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i, err)
		}
	}
	return nil
}
