// Package static implements scrape.Browser with a plain HTTP GET via gocolly.
// It does not run scripts, so it only suits server-rendered catalogs.
package static

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/catalog-scraper/internal/browser"
	"github.com/JakeFAU/catalog-scraper/internal/scrape"
)

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
}

// Browser loads pages with a Colly collector.
type Browser struct {
	cfg           Config
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Browser.
func New(cfg Config) *Browser {
	c := colly.NewCollector(colly.Async(false))
	c.WithTransport(newHTTPTransport())
	return &Browser{
		cfg:           cfg,
		baseCollector: c,
	}
}

// LoadPage fetches url and parses the body.
func (b *Browser) LoadPage(ctx context.Context, url string) (scrape.Page, error) {
	var (
		body     []byte
		finalURL string
		fetchErr error
	)
	collector := b.buildCollector()
	b.configureCollectorHooks(collector, &body, &finalURL, &fetchErr)

	if err := runCollector(ctx, collector, url, &fetchErr); err != nil {
		return nil, err
	}
	if finalURL == "" {
		finalURL = url
	}
	return NewPage(finalURL, string(body))
}

func (b *Browser) buildCollector() *colly.Collector {
	collector := b.baseCollector.Clone()
	if b.cfg.UserAgent != "" {
		collector.UserAgent = b.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = !b.cfg.RespectRobots
	timeout := b.cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	collector.SetRequestTimeout(timeout)
	if b.cfg.RespectRobots {
		collector.WithTransport(newRobotsTransport(newHTTPTransport()))
	} else {
		collector.WithTransport(newHTTPTransport())
	}
	return collector
}

func (b *Browser) configureCollectorHooks(hooks collectorHooks, body *[]byte, finalURL *string, fetchErr *error) {
	hooks.OnResponse(func(r *colly.Response) {
		*body = append([]byte(nil), r.Body...)
		*finalURL = r.Request.URL.String()
	})
	hooks.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
}

func runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}

// Page is a parsed, immutable document.
type Page struct {
	url  string
	html string
	doc  *goquery.Document
}

// NewPage parses html served from pageURL.
func NewPage(pageURL, html string) (*Page, error) {
	doc, err := browser.Parse(html)
	if err != nil {
		return nil, err
	}
	return &Page{url: pageURL, html: html, doc: doc}, nil
}

// URL returns the address the page was served from.
func (p *Page) URL() string { return p.url }

// WaitForElement checks for selector once; a static document never changes.
func (p *Page) WaitForElement(ctx context.Context, selector string, _ time.Duration) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("wait for %q: %w", selector, err)
	}
	if p.doc.Find(selector).Length() == 0 {
		return scrape.ExtractionTimeout("wait", fmt.Errorf("selector %q not present: %w", selector, context.DeadlineExceeded))
	}
	return nil
}

// QueryAll returns every element matching selector.
func (p *Page) QueryAll(_ context.Context, selector string) ([]scrape.Element, error) {
	return browser.Elements(p.doc.Find(selector)), nil
}

// Exists reports whether selector matches anything.
func (p *Page) Exists(_ context.Context, selector string) (bool, error) {
	return p.doc.Find(selector).Length() > 0, nil
}

// HTML returns the raw body.
func (p *Page) HTML(context.Context) (string, error) {
	return p.html, nil
}

// Close is a no-op.
func (p *Page) Close() error { return nil }
