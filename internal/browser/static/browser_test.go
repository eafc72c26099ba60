package static

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/catalog-scraper/internal/scrape"
)

const catalogHTML = `<html><body>
<nav aria-label="Main navigation">
  <div class="nav-group"><h2>Fiction</h2><a href="/category/scifi">Sci-Fi</a></div>
</nav>
<div class="product-grid"><div class="product-card" data-sku="42"><span class="product-card__title">  Dune   Messiah </span></div></div>
</body></html>`

func TestBrowserLoadPage(t *testing.T) {
	t.Parallel()

	agents := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case agents <- r.UserAgent():
		default:
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(catalogHTML))
	}))
	defer srv.Close()

	b := New(Config{UserAgent: "catalog-test", Timeout: time.Second})
	page, err := b.LoadPage(context.Background(), srv.URL+"/category/books")
	require.NoError(t, err)
	defer func() { require.NoError(t, page.Close()) }()

	require.Equal(t, "catalog-test", <-agents)
	require.Equal(t, srv.URL+"/category/books", page.URL())

	links, err := page.QueryAll(context.Background(), `nav[aria-label="Main navigation"] a[href]`)
	require.NoError(t, err)
	require.Len(t, links, 1)
	require.Equal(t, "Sci-Fi", links[0].Text)
	require.Equal(t, "/category/scifi", links[0].Attr("href"))

	html, err := page.HTML(context.Background())
	require.NoError(t, err)
	require.Contains(t, html, "product-grid")
}

func TestBrowserLoadPageHTTPError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := New(Config{}).LoadPage(context.Background(), srv.URL+"/category/books")
	require.Error(t, err)
}

func TestPageQueries(t *testing.T) {
	t.Parallel()

	page, err := NewPage("https://shop.test/category/books", catalogHTML)
	require.NoError(t, err)
	ctx := context.Background()

	tiles, err := page.QueryAll(ctx, ".product-card")
	require.NoError(t, err)
	require.Len(t, tiles, 1)
	require.Equal(t, "Dune Messiah", tiles[0].Text)
	require.Equal(t, "42", tiles[0].Attr("data-sku"))
	require.Contains(t, tiles[0].HTML, "product-card__title")

	ok, err := page.Exists(ctx, ".product-detail")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, page.WaitForElement(ctx, ".product-grid", time.Second))
	err = page.WaitForElement(ctx, ".product-detail", time.Second)
	require.Equal(t, scrape.KindExtractionTimeout, scrape.KindOf(err))
	require.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	b := New(Config{})
	hooks := &stubHooks{}
	var (
		body     []byte
		finalURL string
		fetchErr error
	)
	b.configureCollectorHooks(hooks, &body, &finalURL, &fetchErr)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	hooks.onError(nil, errors.New("dial failed"))
	require.EqualError(t, fetchErr, "dial failed")
}

func TestBuildCollectorDefaults(t *testing.T) {
	t.Parallel()

	c := New(Config{UserAgent: "ua", RespectRobots: true}).buildCollector()
	require.Equal(t, "ua", c.UserAgent)
	require.False(t, c.IgnoreRobotsTxt)
}

type stubHooks struct {
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) { s.onResponse = cb }

func (s *stubHooks) OnError(cb colly.ErrorCallback) { s.onError = cb }
