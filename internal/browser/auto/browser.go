// Package auto loads pages statically first and re-loads them in a headless
// browser only when the document looks client-rendered.
package auto

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-scraper/internal/metrics"
	"github.com/JakeFAU/catalog-scraper/internal/scrape"
)

// Browser combines a cheap static loader with a headless fallback.
type Browser struct {
	static   scrape.Browser
	headless scrape.Browser
	detector *Detector
	logger   *zap.Logger
}

// New constructs a Browser.
func New(static, headless scrape.Browser, detector *Detector, logger *zap.Logger) *Browser {
	if detector == nil {
		detector = NewDetector(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Browser{static: static, headless: headless, detector: detector, logger: logger}
}

// LoadPage fetches url statically and promotes it to the headless browser when needed.
func (b *Browser) LoadPage(ctx context.Context, url string) (scrape.Page, error) {
	page, err := b.static.LoadPage(ctx, url)
	if err != nil {
		return nil, err
	}
	reason, promote, err := b.detector.Inspect(ctx, page)
	if err != nil {
		_ = page.Close()
		return nil, fmt.Errorf("inspect static page: %w", err)
	}
	if !promote {
		return page, nil
	}
	if err := page.Close(); err != nil {
		b.logger.Debug("static page close failed", zap.Error(err))
	}

	b.logger.Debug("promoting page to headless browser", zap.String("url", url), zap.String("reason", reason))
	metrics.ObservePromotion(metrics.SanitizeSite(url))
	return b.headless.LoadPage(ctx, url)
}
