// Package headless implements scrape.Browser on headless Chrome.
package headless

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/JakeFAU/catalog-scraper/internal/browser"
	"github.com/JakeFAU/catalog-scraper/internal/scrape"
)

// Config controls the headless browser.
type Config struct {
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
}

// Browser opens one tab per loaded page on a shared Chrome allocator.
type Browser struct {
	cfg         Config
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
}

// New creates a Browser. Chrome itself starts lazily on the first page load.
func New(cfg Config) (*Browser, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Browser{
		cfg:         cfg,
		limiter:     limiter,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

// Close shuts down Chrome.
func (b *Browser) Close() {
	b.allocCancel()
}

// LoadPage opens a tab and navigates to url. The tab holds a parallelism slot until Close.
func (b *Browser) LoadPage(ctx context.Context, url string) (scrape.Page, error) {
	if err := b.acquire(ctx); err != nil {
		return nil, err
	}

	tabCtx, tabCancel := chromedp.NewContext(b.allocator)
	page := &Page{
		tab:     tabCtx,
		cancel:  tabCancel,
		release: b.release,
		url:     url,
	}
	// Allocate the tab on its own context so a navigation timeout does not kill it.
	if err := chromedp.Run(tabCtx); err != nil {
		_ = page.Close()
		return nil, fmt.Errorf("chromedp start tab: %w", err)
	}

	var finalURL string
	err := page.run(ctx, b.navTimeout(),
		b.networkSetupAction(),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Location(&finalURL),
	)
	if err != nil {
		_ = page.Close()
		return nil, fmt.Errorf("chromedp navigate: %w", err)
	}
	if finalURL != "" {
		page.url = finalURL
	}
	return page, nil
}

func (b *Browser) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if b.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(b.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

func (b *Browser) acquire(ctx context.Context) error {
	if b.limiter == nil {
		return nil
	}
	select {
	case b.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("headless slot wait canceled: %w", ctx.Err())
	}
}

func (b *Browser) release() {
	if b.limiter == nil {
		return
	}
	select {
	case <-b.limiter:
	default:
	}
}

func (b *Browser) navTimeout() time.Duration {
	if b.cfg.NavigationTimeout > 0 {
		return b.cfg.NavigationTimeout
	}
	return 45 * time.Second
}

// Page is a live browser tab.
type Page struct {
	tab     context.Context
	cancel  context.CancelFunc
	release func()
	url     string

	closeOnce sync.Once
}

// run executes actions on the tab, bounded by timeout and by the caller's ctx.
func (p *Page) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(p.tab, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return fmt.Errorf("chromedp run: %w", ctx.Err())
	}
	if err != nil {
		return fmt.Errorf("chromedp run: %w", err)
	}
	return nil
}

// URL returns the address after redirects.
func (p *Page) URL() string { return p.url }

// WaitForElement blocks until selector is ready or timeout elapses.
func (p *Page) WaitForElement(ctx context.Context, selector string, timeout time.Duration) error {
	err := p.run(ctx, timeout, chromedp.WaitReady(selector, chromedp.ByQuery))
	if err == nil {
		return nil
	}
	if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		return scrape.ExtractionTimeout("wait", fmt.Errorf("selector %q: %w", selector, err))
	}
	return scrape.Infrastructure("wait", err)
}

// QueryAll snapshots the current DOM and returns the elements matching selector.
func (p *Page) QueryAll(ctx context.Context, selector string) ([]scrape.Element, error) {
	html, err := p.HTML(ctx)
	if err != nil {
		return nil, err
	}
	return browser.Query(html, selector)
}

// Exists reports whether selector matches anything in the current DOM.
func (p *Page) Exists(ctx context.Context, selector string) (bool, error) {
	elems, err := p.QueryAll(ctx, selector)
	if err != nil {
		return false, err
	}
	return len(elems) > 0, nil
}

// HTML returns the serialized document.
func (p *Page) HTML(ctx context.Context) (string, error) {
	var html string
	if err := p.run(ctx, 10*time.Second, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", scrape.Infrastructure("outer html", err)
	}
	return html, nil
}

// Close closes the tab and frees its slot. It is safe to call more than once.
func (p *Page) Close() error {
	p.closeOnce.Do(func() {
		if p.cancel != nil {
			p.cancel()
		}
		if p.release != nil {
			p.release()
		}
	})
	return nil
}
