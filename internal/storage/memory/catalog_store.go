package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/catalog-scraper/internal/scrape"
)

type attributeKey struct {
	productID int64
	key       string
}

// CatalogStore keeps catalog entities in maps indexed by their natural keys.
// A single mutex makes every upsert atomic.
type CatalogStore struct {
	mu sync.Mutex

	navigations    map[int64]scrape.Navigation
	navBySourceID  map[string]int64
	categories     map[int64]scrape.Category
	catBySourceURL map[string]int64
	products       map[int64]scrape.Product
	prodBySourceID map[string]int64
	attributes     map[attributeKey]scrape.ProductAttribute
	reviews        []scrape.Review

	lastID int64
	now    func() time.Time
}

// NewCatalogStore constructs an empty CatalogStore.
func NewCatalogStore() *CatalogStore {
	return &CatalogStore{
		navigations:    make(map[int64]scrape.Navigation),
		navBySourceID:  make(map[string]int64),
		categories:     make(map[int64]scrape.Category),
		catBySourceURL: make(map[string]int64),
		products:       make(map[int64]scrape.Product),
		prodBySourceID: make(map[string]int64),
		attributes:     make(map[attributeKey]scrape.ProductAttribute),
		now:            func() time.Time { return time.Now().UTC() },
	}
}

func (s *CatalogStore) id() int64 {
	s.lastID++
	return s.lastID
}

// UpsertNavigation inserts a navigation by source_id; existing rows are returned unchanged.
func (s *CatalogStore) UpsertNavigation(_ context.Context, in scrape.NavigationInput) (scrape.Navigation, bool, error) {
	if in.SourceID == "" {
		return scrape.Navigation{}, false, fmt.Errorf("navigation source_id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.navBySourceID[in.SourceID]; ok {
		return s.navigations[id], false, nil
	}
	now := s.now()
	nav := scrape.Navigation{
		ID:        s.id(),
		Name:      in.Name,
		URL:       in.URL,
		SourceID:  in.SourceID,
		SourceURL: in.SourceURL,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.navigations[nav.ID] = nav
	s.navBySourceID[nav.SourceID] = nav.ID
	return nav, true, nil
}

// FindNavigationBySourceID returns the navigation with the given slug.
func (s *CatalogStore) FindNavigationBySourceID(_ context.Context, sourceID string) (scrape.Navigation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.navBySourceID[sourceID]
	if !ok {
		return scrape.Navigation{}, fmt.Errorf("navigation %q: %w", sourceID, scrape.ErrNotFound)
	}
	return s.navigations[id], nil
}

// UpsertCategory inserts a category by source_url; existing rows are returned unchanged.
func (s *CatalogStore) UpsertCategory(_ context.Context, in scrape.CategoryInput) (scrape.Category, bool, error) {
	if in.SourceURL == "" {
		return scrape.Category{}, false, fmt.Errorf("category source_url is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.catBySourceURL[in.SourceURL]; ok {
		return s.categories[id], false, nil
	}
	if _, ok := s.navigations[in.NavigationID]; !ok {
		return scrape.Category{}, false, fmt.Errorf("navigation %d: %w", in.NavigationID, scrape.ErrNotFound)
	}
	now := s.now()
	cat := scrape.Category{
		ID:           s.id(),
		Name:         in.Name,
		SourceID:     in.SourceID,
		SourceURL:    in.SourceURL,
		NavigationID: in.NavigationID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.categories[cat.ID] = cat
	s.catBySourceURL[cat.SourceURL] = cat.ID
	return cat, true, nil
}

// FindCategoryBySourceURL returns the category at the given absolute URL.
func (s *CatalogStore) FindCategoryBySourceURL(_ context.Context, sourceURL string) (scrape.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.catBySourceURL[sourceURL]
	if !ok {
		return scrape.Category{}, fmt.Errorf("category %q: %w", sourceURL, scrape.ErrNotFound)
	}
	return s.categories[id], nil
}

// UpsertProduct inserts a product by source_id or refreshes its name and last_scraped_at.
func (s *CatalogStore) UpsertProduct(_ context.Context, in scrape.ProductInput) (scrape.Product, bool, error) {
	if in.SourceID == "" {
		return scrape.Product{}, false, fmt.Errorf("product source_id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if id, ok := s.prodBySourceID[in.SourceID]; ok {
		p := s.products[id]
		p.Name = in.Name
		p.LastScrapedAt = in.LastScrapedAt
		p.UpdatedAt = now
		s.products[id] = p
		return p, false, nil
	}
	if _, ok := s.categories[in.CategoryID]; !ok {
		return scrape.Product{}, false, fmt.Errorf("category %d: %w", in.CategoryID, scrape.ErrNotFound)
	}
	p := scrape.Product{
		ID:            s.id(),
		Name:          in.Name,
		SourceID:      in.SourceID,
		SourceURL:     in.SourceURL,
		LastScrapedAt: in.LastScrapedAt,
		CategoryID:    in.CategoryID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.products[p.ID] = p
	s.prodBySourceID[p.SourceID] = p.ID
	return p, true, nil
}

// UpsertProductAttribute sets value for (productID, key), keeping the row id on update.
func (s *CatalogStore) UpsertProductAttribute(
	_ context.Context,
	productID int64,
	key, value string,
) (scrape.ProductAttribute, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[productID]; !ok {
		return scrape.ProductAttribute{}, false, fmt.Errorf("product %d: %w", productID, scrape.ErrNotFound)
	}
	now := s.now()
	k := attributeKey{productID: productID, key: key}
	if attr, ok := s.attributes[k]; ok {
		attr.Value = value
		attr.UpdatedAt = now
		s.attributes[k] = attr
		return attr, false, nil
	}
	attr := scrape.ProductAttribute{
		ID:        s.id(),
		ProductID: productID,
		Key:       key,
		Value:     value,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.attributes[k] = attr
	return attr, true, nil
}

// AppendReview always inserts a new review.
func (s *CatalogStore) AppendReview(
	_ context.Context,
	productID int64,
	rating int,
	comment *string,
) (scrape.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[productID]; !ok {
		return scrape.Review{}, fmt.Errorf("product %d: %w", productID, scrape.ErrNotFound)
	}
	r := scrape.Review{
		ID:        s.id(),
		ProductID: productID,
		Rating:    rating,
		CreatedAt: s.now(),
	}
	if comment != nil {
		r.Comment = pointerString(*comment)
	}
	s.reviews = append(s.reviews, r)
	return r, nil
}

// Navigations returns a copy of all navigation rows.
func (s *CatalogStore) Navigations() []scrape.Navigation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]scrape.Navigation, 0, len(s.navigations))
	for _, n := range s.navigations {
		out = append(out, n)
	}
	return out
}

// Categories returns a copy of all category rows.
func (s *CatalogStore) Categories() []scrape.Category {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]scrape.Category, 0, len(s.categories))
	for _, c := range s.categories {
		out = append(out, c)
	}
	return out
}

// Products returns a copy of all product rows.
func (s *CatalogStore) Products() []scrape.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]scrape.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	return out
}

// Attributes returns the attributes of a product.
func (s *CatalogStore) Attributes(productID int64) []scrape.ProductAttribute {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []scrape.ProductAttribute
	for k, a := range s.attributes {
		if k.productID == productID {
			out = append(out, a)
		}
	}
	return out
}

// Reviews returns the reviews of a product in insertion order.
func (s *CatalogStore) Reviews(productID int64) []scrape.Review {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []scrape.Review
	for _, r := range s.reviews {
		if r.ProductID == productID {
			out = append(out, r)
		}
	}
	return out
}
