// Package reconcile writes extraction results into the catalog through idempotent upserts.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-scraper/internal/metrics"
	"github.com/JakeFAU/catalog-scraper/internal/scrape"
)

// Attribute keys written for product tiles and details.
const (
	AttrAuthor      = "author"
	AttrPrice       = "price"
	AttrImageURL    = "image_url"
	AttrDescription = "description"
)

// Summary counts the rows touched by one reconciliation.
type Summary struct {
	Navigations int
	Categories  int
	Products    int
	Attributes  int
	Reviews     int
}

// Fields returns the summary as zap fields.
func (s Summary) Fields() []zap.Field {
	return []zap.Field{
		zap.Int("navigations", s.Navigations),
		zap.Int("categories", s.Categories),
		zap.Int("products", s.Products),
		zap.Int("attributes", s.Attributes),
		zap.Int("reviews", s.Reviews),
	}
}

// Reconciler maps extraction results onto CatalogStore upserts.
type Reconciler struct {
	store  scrape.CatalogStore
	clock  scrape.Clock
	logger *zap.Logger
}

// New constructs a Reconciler.
func New(store scrape.CatalogStore, clock scrape.Clock, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{store: store, clock: clock, logger: logger}
}

// Categories upserts one navigation per heading and one category per link.
// A link is filed under its own heading, else under the navigation of the page's
// own category row, else under the page's only heading. Links that resolve to no
// navigation are left unwritten and reported as UnresolvedParent once everything
// else on the page has been stored.
func (r *Reconciler) Categories(ctx context.Context, res scrape.CategoryResult) (Summary, error) {
	var sum Summary
	navIDs := make(map[string]int64, len(res.Headings))
	for _, heading := range res.Headings {
		nav, created, err := r.store.UpsertNavigation(ctx, scrape.NavigationInput{
			Name:      heading,
			URL:       res.PageURL,
			SourceID:  scrape.Slugify(heading),
			SourceURL: res.PageURL,
		})
		if err != nil {
			return sum, scrape.Persistence("upsert navigation", err)
		}
		metrics.ObserveUpsert("navigation", created)
		navIDs[heading] = nav.ID
		sum.Navigations++
	}

	pageNav, err := r.pageNavigation(ctx, res, navIDs)
	if err != nil {
		return sum, err
	}

	var orphans []string
	for _, entry := range res.Categories {
		navID, ok := navIDs[entry.Heading]
		if !ok {
			navID = pageNav
		}
		if navID == 0 {
			orphans = append(orphans, entry.URL)
			continue
		}
		_, created, err := r.store.UpsertCategory(ctx, scrape.CategoryInput{
			Name:         entry.Name,
			SourceID:     scrape.Slugify(entry.Name),
			SourceURL:    entry.URL,
			NavigationID: navID,
		})
		if err != nil {
			return sum, classifyWrite("upsert category", err)
		}
		metrics.ObserveUpsert("category", created)
		sum.Categories++
	}

	if len(orphans) > 0 {
		r.logger.Warn("category links without a navigation heading",
			zap.String("page_url", res.PageURL),
			zap.Strings("urls", orphans),
		)
		return sum, scrape.UnresolvedParent("category",
			fmt.Errorf("%d category link(s) on %q have no navigation heading: %s",
				len(orphans), res.PageURL, strings.Join(orphans, ", ")))
	}
	return sum, nil
}

// pageNavigation finds the navigation for links listed without a heading. Zero means none.
func (r *Reconciler) pageNavigation(ctx context.Context, res scrape.CategoryResult, navIDs map[string]int64) (int64, error) {
	own, err := r.store.FindCategoryBySourceURL(ctx, res.PageURL)
	switch {
	case err == nil:
		return own.NavigationID, nil
	case !errors.Is(err, scrape.ErrNotFound):
		return 0, scrape.Persistence("find page category", err)
	}
	if len(navIDs) == 1 {
		for _, id := range navIDs {
			return id, nil
		}
	}
	return 0, nil
}

// Products upserts every tile and, when present, the detail view with its reviews.
// The parent category comes from the page breadcrumb and must already be stored.
func (r *Reconciler) Products(ctx context.Context, res scrape.ProductResult) (Summary, error) {
	var sum Summary
	if len(res.Tiles) == 0 && res.Detail == nil {
		return sum, nil
	}
	category, err := r.parentCategory(ctx, res)
	if err != nil {
		return sum, err
	}
	now := r.clock.Now()

	titles := make(map[string]string, len(res.Tiles))
	for _, tile := range res.Tiles {
		titles[tile.SourceID] = tile.Title
		name := tile.Title
		if name == "" {
			name = tile.SourceID
		}
		product, err := r.upsertProduct(ctx, &sum, scrape.ProductInput{
			Name:          name,
			SourceID:      tile.SourceID,
			SourceURL:     tile.Link,
			CategoryID:    category.ID,
			LastScrapedAt: now,
		})
		if err != nil {
			return sum, err
		}
		for _, attr := range []struct{ key, value string }{
			{AttrAuthor, tile.Author},
			{AttrPrice, tile.Price},
			{AttrImageURL, tile.ImageURL},
		} {
			if err := r.upsertAttribute(ctx, &sum, product.ID, attr.key, attr.value); err != nil {
				return sum, err
			}
		}
	}

	if d := res.Detail; d != nil && d.SourceID != "" {
		name := d.Title
		if name == "" {
			name = titles[d.SourceID]
		}
		if name == "" {
			name = d.SourceID
		}
		product, err := r.upsertProduct(ctx, &sum, scrape.ProductInput{
			Name:          name,
			SourceID:      d.SourceID,
			SourceURL:     res.PageURL,
			CategoryID:    category.ID,
			LastScrapedAt: now,
		})
		if err != nil {
			return sum, err
		}
		if err := r.upsertAttribute(ctx, &sum, product.ID, AttrDescription, d.Description); err != nil {
			return sum, err
		}
		for _, review := range d.Reviews {
			var comment *string
			if review.Comment != "" {
				c := review.Comment
				comment = &c
			}
			if _, err := r.store.AppendReview(ctx, product.ID, ParseRating(review.RatingText), comment); err != nil {
				return sum, classifyWrite("append review", err)
			}
			sum.Reviews++
		}
	}
	return sum, nil
}

func (r *Reconciler) parentCategory(ctx context.Context, res scrape.ProductResult) (scrape.Category, error) {
	parentURL := res.CategoryURL
	if parentURL == "" {
		return scrape.Category{}, scrape.UnresolvedParent("product",
			fmt.Errorf("no category reference for %q", res.PageURL))
	}
	category, err := r.store.FindCategoryBySourceURL(ctx, parentURL)
	if errors.Is(err, scrape.ErrNotFound) {
		return scrape.Category{}, scrape.UnresolvedParent("product",
			fmt.Errorf("category %q not scraped yet: %w", parentURL, err))
	}
	if err != nil {
		return scrape.Category{}, scrape.Persistence("find category", err)
	}
	return category, nil
}

func (r *Reconciler) upsertProduct(ctx context.Context, sum *Summary, in scrape.ProductInput) (scrape.Product, error) {
	product, created, err := r.store.UpsertProduct(ctx, in)
	if err != nil {
		return product, classifyWrite("upsert product", err)
	}
	metrics.ObserveUpsert("product", created)
	sum.Products++
	return product, nil
}

func (r *Reconciler) upsertAttribute(ctx context.Context, sum *Summary, productID int64, key, value string) error {
	if value == "" {
		return nil
	}
	_, created, err := r.store.UpsertProductAttribute(ctx, productID, key, value)
	if err != nil {
		return classifyWrite("upsert attribute", err)
	}
	metrics.ObserveUpsert("attribute", created)
	sum.Attributes++
	return nil
}

// classifyWrite maps a missing parent row to UnresolvedParent and anything else to Persistence.
func classifyWrite(op string, err error) error {
	if errors.Is(err, scrape.ErrNotFound) {
		return scrape.UnresolvedParent(op, err)
	}
	return scrape.Persistence(op, err)
}

var ratingPattern = regexp.MustCompile(`\d+(?:\.\d+)?`)

// ParseRating reads the first number in text, rounded and clamped to 0..5.
// Text without a number rates 0.
func ParseRating(text string) int {
	m := ratingPattern.FindString(text)
	if m == "" {
		return 0
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0
	}
	return int(math.Max(0, math.Min(5, math.Round(f))))
}
