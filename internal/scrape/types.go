package scrape

import (
	"fmt"
	"strings"
	"time"
)

// TargetType labels what a caller expects a URL to contain.
type TargetType string

const (
	// TargetNavigation marks a site navigation page.
	TargetNavigation TargetType = "navigation"
	// TargetCategory marks a category listing page.
	TargetCategory TargetType = "category"
	// TargetProduct marks a product listing or detail page.
	TargetProduct TargetType = "product"
)

// ParseTargetType validates a raw target type string.
func ParseTargetType(raw string) (TargetType, error) {
	switch t := TargetType(strings.ToLower(strings.TrimSpace(raw))); t {
	case TargetNavigation, TargetCategory, TargetProduct:
		return t, nil
	default:
		return "", fmt.Errorf("unknown target type %q", raw)
	}
}

// JobStatus enumerates the lifecycle of a ScrapeJob.
type JobStatus string

const (
	// JobStatusPending means the job was accepted and is waiting for a worker.
	JobStatusPending JobStatus = "pending"
	// JobStatusInProgress means a worker picked the job up.
	JobStatusInProgress JobStatus = "in_progress"
	// JobStatusCompleted means extraction and persistence succeeded.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed means the job exhausted its attempts or hit a permanent error.
	JobStatusFailed JobStatus = "failed"
)

// IsTerminal reports whether no further transitions are allowed.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// ScrapeJob is the durable record of one scrape request.
type ScrapeJob struct {
	ID         int64      `json:"id"`
	URL        string     `json:"url"`
	TargetType TargetType `json:"target_type"`
	Status     JobStatus  `json:"status"`
	ErrorLog   *string    `json:"error_log,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Navigation is a top-level navigation section of the catalog.
type Navigation struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	SourceID  string    `json:"source_id"`
	SourceURL string    `json:"source_url"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Category is a listing grouped under a Navigation.
type Category struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	SourceID     string    `json:"source_id"`
	SourceURL    string    `json:"source_url"`
	NavigationID int64     `json:"navigation_id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Product is an item listed in a Category.
type Product struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	SourceID      string    `json:"source_id"`
	SourceURL     string    `json:"source_url"`
	LastScrapedAt time.Time `json:"last_scraped_at"`
	CategoryID    int64     `json:"category_id"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ProductAttribute is a key/value detail attached to a Product.
// (ProductID, Key) is unique.
type ProductAttribute struct {
	ID        int64     `json:"id"`
	ProductID int64     `json:"product_id"`
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Review is an append-only rating left on a Product.
type Review struct {
	ID        int64     `json:"id"`
	ProductID int64     `json:"product_id"`
	Rating    int       `json:"rating"`
	Comment   *string   `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NavigationInput carries the natural key and fields for a navigation upsert.
type NavigationInput struct {
	Name      string
	URL       string
	SourceID  string
	SourceURL string
}

// CategoryInput carries the natural key and fields for a category upsert.
type CategoryInput struct {
	Name         string
	SourceID     string
	SourceURL    string
	NavigationID int64
}

// ProductInput carries the natural key and fields for a product upsert.
type ProductInput struct {
	Name          string
	SourceID      string
	SourceURL     string
	CategoryID    int64
	LastScrapedAt time.Time
}

// WorkItem is the queue payload handed to the worker pool.
type WorkItem struct {
	JobID      int64      `json:"job_id"`
	URL        string     `json:"url"`
	TargetType TargetType `json:"target_type"`
	Attempt    int        `json:"attempt"`
	EnqueuedAt time.Time  `json:"enqueued_at"`
}

// FailedItem is a work item retained after its final attempt.
type FailedItem struct {
	Item     WorkItem  `json:"item"`
	Reason   string    `json:"reason"`
	FailedAt time.Time `json:"failed_at"`
}

// CategoryEntry is one category link found on a category page.
type CategoryEntry struct {
	Name    string
	URL     string
	Heading string
}

// CategoryResult is the structured output of a category page.
type CategoryResult struct {
	PageURL    string
	Headings   []string
	Categories []CategoryEntry
}

// ProductTile is one product card on a listing page.
type ProductTile struct {
	Title    string
	Author   string
	Price    string
	ImageURL string
	Link     string
	SourceID string
}

// ReviewEntry is a raw review as it appears on the page.
type ReviewEntry struct {
	RatingText string
	Comment    string
}

// ProductDetail is present only when the page is a product detail view.
type ProductDetail struct {
	SourceID    string
	Title       string
	Description string
	Reviews     []ReviewEntry
}

// ProductResult is the structured output of a product page.
type ProductResult struct {
	PageURL     string
	CategoryURL string
	Tiles       []ProductTile
	Detail      *ProductDetail
}
