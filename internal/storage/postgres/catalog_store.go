package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/catalog-scraper/internal/scrape"
)

// CatalogStore upserts navigations, categories, products, attributes and reviews.
// Every upsert is a single INSERT ... ON CONFLICT statement against the natural
// key's unique constraint. (xmax = 0) is true only for freshly inserted rows.
type CatalogStore struct {
	db DB
}

// NewCatalogStore wraps an open pool.
func NewCatalogStore(db DB) (*CatalogStore, error) {
	if db == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &CatalogStore{db: db}, nil
}

// UpsertNavigation inserts by source_id and leaves an existing row untouched.
func (s *CatalogStore) UpsertNavigation(
	ctx context.Context,
	in scrape.NavigationInput,
) (scrape.Navigation, bool, error) {
	var (
		nav     scrape.Navigation
		created bool
	)
	err := s.db.QueryRow(ctx, `
		INSERT INTO navigations (name, url, source_id, source_url)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (source_id) DO UPDATE SET source_id = navigations.source_id
		RETURNING id, name, url, source_id, source_url, created_at, updated_at, (xmax = 0)`,
		in.Name, in.URL, in.SourceID, in.SourceURL,
	).Scan(&nav.ID, &nav.Name, &nav.URL, &nav.SourceID, &nav.SourceURL, &nav.CreatedAt, &nav.UpdatedAt, &created)
	if err != nil {
		return scrape.Navigation{}, false, fmt.Errorf("upsert navigation %q: %w", in.SourceID, err)
	}
	return nav, created, nil
}

// FindNavigationBySourceID loads a navigation by slug.
func (s *CatalogStore) FindNavigationBySourceID(ctx context.Context, sourceID string) (scrape.Navigation, error) {
	var nav scrape.Navigation
	err := s.db.QueryRow(ctx, `
		SELECT id, name, url, source_id, source_url, created_at, updated_at
		FROM navigations WHERE source_id = $1`,
		sourceID,
	).Scan(&nav.ID, &nav.Name, &nav.URL, &nav.SourceID, &nav.SourceURL, &nav.CreatedAt, &nav.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return scrape.Navigation{}, fmt.Errorf("navigation %q: %w", sourceID, scrape.ErrNotFound)
	}
	if err != nil {
		return scrape.Navigation{}, fmt.Errorf("select navigation: %w", err)
	}
	return nav, nil
}

// UpsertCategory inserts by source_url and leaves an existing row untouched.
func (s *CatalogStore) UpsertCategory(ctx context.Context, in scrape.CategoryInput) (scrape.Category, bool, error) {
	var (
		cat     scrape.Category
		created bool
	)
	err := s.db.QueryRow(ctx, `
		INSERT INTO categories (name, source_id, source_url, navigation_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (source_url) DO UPDATE SET source_url = categories.source_url
		RETURNING id, name, source_id, source_url, navigation_id, created_at, updated_at, (xmax = 0)`,
		in.Name, in.SourceID, in.SourceURL, in.NavigationID,
	).Scan(&cat.ID, &cat.Name, &cat.SourceID, &cat.SourceURL, &cat.NavigationID, &cat.CreatedAt, &cat.UpdatedAt, &created)
	if isForeignKeyViolation(err) {
		return scrape.Category{}, false, fmt.Errorf("navigation %d: %w", in.NavigationID, scrape.ErrNotFound)
	}
	if err != nil {
		return scrape.Category{}, false, fmt.Errorf("upsert category %q: %w", in.SourceURL, err)
	}
	return cat, created, nil
}

// FindCategoryBySourceURL loads a category by its absolute URL.
func (s *CatalogStore) FindCategoryBySourceURL(ctx context.Context, sourceURL string) (scrape.Category, error) {
	var cat scrape.Category
	err := s.db.QueryRow(ctx, `
		SELECT id, name, source_id, source_url, navigation_id, created_at, updated_at
		FROM categories WHERE source_url = $1`,
		sourceURL,
	).Scan(&cat.ID, &cat.Name, &cat.SourceID, &cat.SourceURL, &cat.NavigationID, &cat.CreatedAt, &cat.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return scrape.Category{}, fmt.Errorf("category %q: %w", sourceURL, scrape.ErrNotFound)
	}
	if err != nil {
		return scrape.Category{}, fmt.Errorf("select category: %w", err)
	}
	return cat, nil
}

// UpsertProduct inserts by source_id or refreshes name and last_scraped_at.
func (s *CatalogStore) UpsertProduct(ctx context.Context, in scrape.ProductInput) (scrape.Product, bool, error) {
	var (
		p       scrape.Product
		created bool
	)
	err := s.db.QueryRow(ctx, `
		INSERT INTO products (name, source_id, source_url, category_id, last_scraped_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (source_id) DO UPDATE
		SET name = EXCLUDED.name, last_scraped_at = EXCLUDED.last_scraped_at, updated_at = now()
		RETURNING id, name, source_id, source_url, category_id, last_scraped_at, created_at, updated_at, (xmax = 0)`,
		in.Name, in.SourceID, in.SourceURL, in.CategoryID, in.LastScrapedAt,
	).Scan(&p.ID, &p.Name, &p.SourceID, &p.SourceURL, &p.CategoryID, &p.LastScrapedAt, &p.CreatedAt, &p.UpdatedAt, &created)
	if isForeignKeyViolation(err) {
		return scrape.Product{}, false, fmt.Errorf("category %d: %w", in.CategoryID, scrape.ErrNotFound)
	}
	if err != nil {
		return scrape.Product{}, false, fmt.Errorf("upsert product %q: %w", in.SourceID, err)
	}
	return p, created, nil
}

// UpsertProductAttribute sets value for (productID, key) in one statement.
func (s *CatalogStore) UpsertProductAttribute(
	ctx context.Context,
	productID int64,
	key, value string,
) (scrape.ProductAttribute, bool, error) {
	var (
		attr    scrape.ProductAttribute
		created bool
	)
	err := s.db.QueryRow(ctx, `
		INSERT INTO product_attributes (product_id, key, value)
		VALUES ($1, $2, $3)
		ON CONFLICT (product_id, key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()
		RETURNING id, product_id, key, value, created_at, updated_at, (xmax = 0)`,
		productID, key, value,
	).Scan(&attr.ID, &attr.ProductID, &attr.Key, &attr.Value, &attr.CreatedAt, &attr.UpdatedAt, &created)
	if isForeignKeyViolation(err) {
		return scrape.ProductAttribute{}, false, fmt.Errorf("product %d: %w", productID, scrape.ErrNotFound)
	}
	if err != nil {
		return scrape.ProductAttribute{}, false, fmt.Errorf("upsert product attribute %q: %w", key, err)
	}
	return attr, created, nil
}

// AppendReview inserts a review row.
func (s *CatalogStore) AppendReview(
	ctx context.Context,
	productID int64,
	rating int,
	comment *string,
) (scrape.Review, error) {
	r := scrape.Review{ProductID: productID, Rating: rating, Comment: comment}
	err := s.db.QueryRow(ctx, `
		INSERT INTO reviews (product_id, rating, comment)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`,
		productID, rating, comment,
	).Scan(&r.ID, &r.CreatedAt)
	if isForeignKeyViolation(err) {
		return scrape.Review{}, fmt.Errorf("product %d: %w", productID, scrape.ErrNotFound)
	}
	if err != nil {
		return scrape.Review{}, fmt.Errorf("insert review: %w", err)
	}
	return r, nil
}
