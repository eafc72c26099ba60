// Package extract reads category and product data out of loaded pages.
package extract

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/catalog-scraper/internal/browser"
	"github.com/JakeFAU/catalog-scraper/internal/scrape"
)

// Extractor turns a page into structured results. It never writes anywhere.
type Extractor struct {
	sel         Selectors
	waitTimeout time.Duration
}

// New returns an Extractor. Empty selectors fall back to the defaults.
func New(sel Selectors, waitTimeout time.Duration) *Extractor {
	if waitTimeout <= 0 {
		waitTimeout = 15 * time.Second
	}
	return &Extractor{sel: sel.WithDefaults(), waitTimeout: waitTimeout}
}

// Category reads the main navigation: group headings and the category links under each.
func (e *Extractor) Category(ctx context.Context, page scrape.Page) (scrape.CategoryResult, error) {
	result := scrape.CategoryResult{PageURL: page.URL()}
	if err := e.wait(ctx, page, e.sel.NavRegion); err != nil {
		return result, err
	}
	groups, err := page.QueryAll(ctx, e.sel.NavGroup)
	if err != nil {
		return result, scrape.Infrastructure("query navigation groups", err)
	}

	seen := make(map[string]struct{})
	for _, group := range groups {
		doc, err := browser.Parse(group.HTML)
		if err != nil {
			return result, scrape.Infrastructure("parse navigation group", err)
		}
		heading := browser.CleanText(doc.Find(e.sel.GroupHeading).First().Text())
		if heading != "" {
			if _, dup := seen[heading]; !dup {
				seen[heading] = struct{}{}
				result.Headings = append(result.Headings, heading)
			}
		}
		doc.Find(e.sel.CategoryLink).Each(func(_ int, s *goquery.Selection) {
			name := browser.CleanText(s.Text())
			href, _ := s.Attr("href")
			if name == "" || href == "" {
				return
			}
			abs := scrape.ResolveURL(result.PageURL, href)
			result.Categories = append(result.Categories, scrape.CategoryEntry{
				Name:    name,
				URL:     abs,
				Heading: heading,
			})
		})
	}
	return result, nil
}

// Product reads the product tiles and, on a detail page, the detail view and reviews.
func (e *Extractor) Product(ctx context.Context, page scrape.Page) (scrape.ProductResult, error) {
	result := scrape.ProductResult{PageURL: page.URL()}
	if err := e.wait(ctx, page, e.sel.TileRegion); err != nil {
		return result, err
	}

	tiles, err := page.QueryAll(ctx, e.sel.Tile)
	if err != nil {
		return result, scrape.Infrastructure("query tiles", err)
	}
	for _, el := range tiles {
		tile, err := e.tile(result.PageURL, el)
		if err != nil {
			return result, err
		}
		if tile.SourceID == "" {
			continue
		}
		result.Tiles = append(result.Tiles, tile)
	}

	crumbs, err := page.QueryAll(ctx, e.sel.BreadcrumbCateg)
	if err != nil {
		return result, scrape.Infrastructure("query breadcrumb", err)
	}
	for i := len(crumbs) - 1; i >= 0; i-- {
		if abs := scrape.ResolveURL(result.PageURL, crumbs[i].Attr("href")); abs != "" {
			result.CategoryURL = abs
			break
		}
	}

	hasDetail, err := page.Exists(ctx, e.sel.DetailMarker)
	if err != nil {
		return result, scrape.Infrastructure("query detail marker", err)
	}
	if hasDetail {
		detail, err := e.detail(ctx, page, result.PageURL)
		if err != nil {
			return result, err
		}
		result.Detail = &detail
	}
	return result, nil
}

func (e *Extractor) tile(pageURL string, el scrape.Element) (scrape.ProductTile, error) {
	doc, err := browser.Parse(el.HTML)
	if err != nil {
		return scrape.ProductTile{}, scrape.Infrastructure("parse tile", err)
	}
	text := func(sel string) string {
		return browser.CleanText(doc.Find(sel).First().Text())
	}
	tile := scrape.ProductTile{
		Title:  text(e.sel.TileTitle),
		Author: text(e.sel.TileAuthor),
		Price:  text(e.sel.TilePrice),
	}
	if src, ok := doc.Find(e.sel.TileImage).First().Attr("src"); ok && src != "" {
		tile.ImageURL = scrape.ResolveURL(pageURL, src)
	}
	link, _ := doc.Find(e.sel.TileLink).First().Attr("href")
	if link == "" {
		link = el.Attr("href")
	}
	if link != "" {
		tile.Link = scrape.ResolveURL(pageURL, link)
		tile.SourceID = scrape.LastPathSegment(tile.Link)
	}
	return tile, nil
}

func (e *Extractor) detail(ctx context.Context, page scrape.Page, pageURL string) (scrape.ProductDetail, error) {
	detail := scrape.ProductDetail{SourceID: scrape.LastPathSegment(pageURL)}
	first := func(sel string) (string, error) {
		elems, err := page.QueryAll(ctx, sel)
		if err != nil {
			return "", scrape.Infrastructure("query detail", err)
		}
		if len(elems) == 0 {
			return "", nil
		}
		return elems[0].Text, nil
	}
	var err error
	if detail.Title, err = first(e.sel.DetailTitle); err != nil {
		return detail, err
	}
	if detail.Description, err = first(e.sel.DetailDesc); err != nil {
		return detail, err
	}

	reviews, err := page.QueryAll(ctx, e.sel.Review)
	if err != nil {
		return detail, scrape.Infrastructure("query reviews", err)
	}
	for _, r := range reviews {
		doc, err := browser.Parse(r.HTML)
		if err != nil {
			return detail, scrape.Infrastructure("parse review", err)
		}
		detail.Reviews = append(detail.Reviews, scrape.ReviewEntry{
			RatingText: browser.CleanText(doc.Find(e.sel.ReviewRating).First().Text()),
			Comment:    browser.CleanText(doc.Find(e.sel.ReviewComment).First().Text()),
		})
	}
	return detail, nil
}

func (e *Extractor) wait(ctx context.Context, page scrape.Page, selector string) error {
	err := page.WaitForElement(ctx, selector, e.waitTimeout)
	switch {
	case err == nil:
		return nil
	case scrape.KindOf(err) != scrape.KindUnknown:
		return err
	case ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded):
		return scrape.ExtractionTimeout("wait", fmt.Errorf("selector %q: %w", selector, err))
	default:
		return scrape.Infrastructure("wait", err)
	}
}
