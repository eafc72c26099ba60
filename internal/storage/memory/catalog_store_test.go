package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/catalog-scraper/internal/scrape"
)

func seedCategory(t *testing.T, store *CatalogStore) scrape.Category {
	t.Helper()
	ctx := context.Background()
	nav, _, err := store.UpsertNavigation(ctx, scrape.NavigationInput{Name: "Fiction", SourceID: "fiction"})
	require.NoError(t, err)
	cat, _, err := store.UpsertCategory(ctx, scrape.CategoryInput{
		Name:         "Sci-Fi",
		SourceID:     "sci-fi",
		SourceURL:    "https://shop.example/c/scifi",
		NavigationID: nav.ID,
	})
	require.NoError(t, err)
	return cat
}

func TestCatalogStoreNavigationUpsertLeavesExistingRow(t *testing.T) {
	t.Parallel()

	store := NewCatalogStore()
	ctx := context.Background()

	first, created, err := store.UpsertNavigation(ctx, scrape.NavigationInput{Name: "Fiction", SourceID: "fiction"})
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := store.UpsertNavigation(ctx, scrape.NavigationInput{Name: "FICTION!", SourceID: "fiction"})
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, "Fiction", second.Name)
	require.Len(t, store.Navigations(), 1)
}

func TestCatalogStoreCategoryRequiresParent(t *testing.T) {
	t.Parallel()

	store := NewCatalogStore()
	_, _, err := store.UpsertCategory(context.Background(), scrape.CategoryInput{
		Name:         "Orphan",
		SourceURL:    "https://shop.example/c/orphan",
		NavigationID: 99,
	})
	require.ErrorIs(t, err, scrape.ErrNotFound)
}

func TestCatalogStoreProductUpsertIsStable(t *testing.T) {
	t.Parallel()

	store := NewCatalogStore()
	ctx := context.Background()
	cat := seedCategory(t, store)

	t1 := time.Unix(100, 0).UTC()
	t2 := time.Unix(200, 0).UTC()
	p1, created, err := store.UpsertProduct(ctx, scrape.ProductInput{
		Name: "Dune", SourceID: "123", CategoryID: cat.ID, LastScrapedAt: t1,
	})
	require.NoError(t, err)
	require.True(t, created)

	p2, created, err := store.UpsertProduct(ctx, scrape.ProductInput{
		Name: "Dune (Deluxe)", SourceID: "123", CategoryID: cat.ID, LastScrapedAt: t2,
	})
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, p1.ID, p2.ID)
	require.Equal(t, "Dune (Deluxe)", p2.Name)
	require.Equal(t, t2, p2.LastScrapedAt)
	require.Len(t, store.Products(), 1)
}

func TestCatalogStoreAttributeUpdatedInPlace(t *testing.T) {
	t.Parallel()

	store := NewCatalogStore()
	ctx := context.Background()
	cat := seedCategory(t, store)
	p, _, err := store.UpsertProduct(ctx, scrape.ProductInput{Name: "Dune", SourceID: "123", CategoryID: cat.ID})
	require.NoError(t, err)

	a1, created, err := store.UpsertProductAttribute(ctx, p.ID, "description", "A")
	require.NoError(t, err)
	require.True(t, created)
	a2, created, err := store.UpsertProductAttribute(ctx, p.ID, "description", "B")
	require.NoError(t, err)
	require.False(t, created)

	require.Equal(t, a1.ID, a2.ID)
	attrs := store.Attributes(p.ID)
	require.Len(t, attrs, 1)
	require.Equal(t, "B", attrs[0].Value)
}

func TestCatalogStoreConcurrentAttributeUpsert(t *testing.T) {
	t.Parallel()

	store := NewCatalogStore()
	ctx := context.Background()
	cat := seedCategory(t, store)
	p, _, err := store.UpsertProduct(ctx, scrape.ProductInput{Name: "Dune", SourceID: "123", CategoryID: cat.ID})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, _ = store.UpsertProductAttribute(ctx, p.ID, "description", "same")
		}()
	}
	wg.Wait()
	require.Len(t, store.Attributes(p.ID), 1)
}

func TestCatalogStoreReviewsAppend(t *testing.T) {
	t.Parallel()

	store := NewCatalogStore()
	ctx := context.Background()
	cat := seedCategory(t, store)
	p, _, err := store.UpsertProduct(ctx, scrape.ProductInput{Name: "Dune", SourceID: "123", CategoryID: cat.ID})
	require.NoError(t, err)

	comment := "Great"
	_, err = store.AppendReview(ctx, p.ID, 5, &comment)
	require.NoError(t, err)
	_, err = store.AppendReview(ctx, p.ID, 5, &comment)
	require.NoError(t, err)
	_, err = store.AppendReview(ctx, p.ID, 0, nil)
	require.NoError(t, err)

	reviews := store.Reviews(p.ID)
	require.Len(t, reviews, 3)
	require.Nil(t, reviews[2].Comment)

	_, err = store.AppendReview(ctx, 9999, 1, nil)
	require.ErrorIs(t, err, scrape.ErrNotFound)
}
