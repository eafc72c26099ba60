// Package browser holds the DOM helpers shared by the page loaders.
package browser

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/catalog-scraper/internal/scrape"
)

// Parse builds a queryable document from serialized HTML.
func Parse(html string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

// Elements snapshots every node in the selection.
func Elements(sel *goquery.Selection) []scrape.Element {
	out := make([]scrape.Element, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		out = append(out, Element(s))
	})
	return out
}

// Element snapshots the first node of the selection.
func Element(s *goquery.Selection) scrape.Element {
	el := scrape.Element{Text: CleanText(s.Text())}
	if html, err := goquery.OuterHtml(s); err == nil {
		el.HTML = html
	}
	if len(s.Nodes) > 0 && len(s.Nodes[0].Attr) > 0 {
		el.Attrs = make(map[string]string, len(s.Nodes[0].Attr))
		for _, a := range s.Nodes[0].Attr {
			el.Attrs[a.Key] = a.Val
		}
	}
	return el
}

// Query parses html and returns the elements matching selector.
func Query(html, selector string) ([]scrape.Element, error) {
	doc, err := Parse(html)
	if err != nil {
		return nil, err
	}
	return Elements(doc.Find(selector)), nil
}

// CleanText collapses runs of whitespace and trims the result.
func CleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
