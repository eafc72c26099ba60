package extract

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/catalog-scraper/internal/browser/static"
	"github.com/JakeFAU/catalog-scraper/internal/scrape"
)

const navigationPage = `<html><body>
<nav aria-label="Main navigation">
  <div class="nav-group">
    <h2> Fiction </h2>
    <a href="/category/scifi">Sci-Fi</a>
    <a href="https://shop.test/category/fantasy">Fantasy</a>
    <a href="/category/empty"></a>
  </div>
  <div class="nav-group">
    <h3>Non-fiction</h3>
    <a href="history">History</a>
  </div>
  <div class="nav-group">
    <span class="nav-heading">Fiction</span>
    <a href="/category/horror">Horror</a>
  </div>
</nav>
</body></html>`

const listingPage = `<html><body>
<nav aria-label="Breadcrumb">
  <a href="/">Home</a>
  <a href="/category/books">Books</a>
  <a href="/category/scifi">Sci-Fi</a>
</nav>
<div class="product-grid">
  <div class="product-card">
    <a href="/product/dune/"><span class="product-card__title">Dune</span></a>
    <span class="product-card__author">Frank Herbert</span>
    <span class="product-card__price">$9.99</span>
    <img src="/img/dune.jpg">
  </div>
  <div class="product-card">
    <a href="/product/hyperion"><span class="product-card__title">Hyperion</span></a>
  </div>
  <div class="product-card"><span class="product-card__title">No link</span></div>
</div>
</body></html>`

const detailPage = `<html><body>
<div class="product-grid">
  <div class="product-card"><a href="/product/dune"><span class="product-card__title">Dune</span></a></div>
</div>
<section class="product-detail">
  <h1 class="product-detail__title">Dune (Deluxe)</h1>
  <p class="product-detail__description">Desert planet.</p>
  <div class="review"><span class="review__rating">4.5 out of 5</span><p class="review__comment">Great</p></div>
  <div class="review"><span class="review__rating">n/a</span></div>
</section>
</body></html>`

func newPage(t *testing.T, url, html string) scrape.Page {
	t.Helper()
	page, err := static.NewPage(url, html)
	require.NoError(t, err)
	return page
}

func TestCategoryExtractsHeadingsAndLinks(t *testing.T) {
	t.Parallel()

	ex := New(Selectors{}, time.Second)
	res, err := ex.Category(context.Background(), newPage(t, "https://shop.test/category/books/", navigationPage))
	require.NoError(t, err)

	require.Equal(t, "https://shop.test/category/books/", res.PageURL)
	require.Equal(t, []string{"Fiction", "Non-fiction"}, res.Headings)
	require.Equal(t, []scrape.CategoryEntry{
		{Name: "Sci-Fi", URL: "https://shop.test/category/scifi", Heading: "Fiction"},
		{Name: "Fantasy", URL: "https://shop.test/category/fantasy", Heading: "Fiction"},
		{Name: "History", URL: "https://shop.test/category/books/history", Heading: "Non-fiction"},
		{Name: "Horror", URL: "https://shop.test/category/horror", Heading: "Fiction"},
	}, res.Categories)
}

func TestCategoryMissingNavigationTimesOut(t *testing.T) {
	t.Parallel()

	ex := New(Selectors{}, time.Second)
	_, err := ex.Category(context.Background(), newPage(t, "https://shop.test/category/books", `<html><body></body></html>`))
	require.Error(t, err)
	require.Equal(t, scrape.KindExtractionTimeout, scrape.KindOf(err))
	require.True(t, scrape.IsRetryable(err))
}

func TestProductListing(t *testing.T) {
	t.Parallel()

	ex := New(DefaultSelectors(), time.Second)
	res, err := ex.Product(context.Background(), newPage(t, "https://shop.test/product/list?page=2", listingPage))
	require.NoError(t, err)

	require.Nil(t, res.Detail)
	require.Equal(t, "https://shop.test/category/scifi", res.CategoryURL)
	require.Len(t, res.Tiles, 2)
	require.Equal(t, scrape.ProductTile{
		Title:    "Dune",
		Author:   "Frank Herbert",
		Price:    "$9.99",
		ImageURL: "https://shop.test/img/dune.jpg",
		Link:     "https://shop.test/product/dune/",
		SourceID: "dune",
	}, res.Tiles[0])
	require.Equal(t, "hyperion", res.Tiles[1].SourceID)
	require.Empty(t, res.Tiles[1].Author)
}

func TestProductDetail(t *testing.T) {
	t.Parallel()

	ex := New(Selectors{}, time.Second)
	res, err := ex.Product(context.Background(), newPage(t, "https://shop.test/product/dune", detailPage))
	require.NoError(t, err)

	require.Empty(t, res.CategoryURL)
	require.NotNil(t, res.Detail)
	require.Equal(t, "dune", res.Detail.SourceID)
	require.Equal(t, "Dune (Deluxe)", res.Detail.Title)
	require.Equal(t, "Desert planet.", res.Detail.Description)
	require.Equal(t, []scrape.ReviewEntry{
		{RatingText: "4.5 out of 5", Comment: "Great"},
		{RatingText: "n/a", Comment: ""},
	}, res.Detail.Reviews)
}

func TestWaitClassifiesErrors(t *testing.T) {
	t.Parallel()

	ex := New(Selectors{}, time.Millisecond)
	ctx := context.Background()

	err := ex.wait(ctx, &stubPage{waitErr: context.DeadlineExceeded}, ".x")
	require.Equal(t, scrape.KindExtractionTimeout, scrape.KindOf(err))

	err = ex.wait(ctx, &stubPage{waitErr: errors.New("target closed")}, ".x")
	require.Equal(t, scrape.KindInfrastructure, scrape.KindOf(err))

	classified := scrape.ExtractionTimeout("wait", context.DeadlineExceeded)
	require.Same(t, classified, ex.wait(ctx, &stubPage{waitErr: classified}, ".x"))
}

type stubPage struct {
	scrape.Page
	waitErr error
}

func (p *stubPage) WaitForElement(context.Context, string, time.Duration) error {
	return p.waitErr
}

func TestContentRegionsFollowConfiguredSelectors(t *testing.T) {
	t.Parallel()

	sel := Selectors{TileRegion: ".tiles"}.WithDefaults()
	require.Equal(t, []string{DefaultSelectors().NavRegion, ".tiles", DefaultSelectors().DetailMarker}, sel.ContentRegions())
}
