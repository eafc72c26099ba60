package scrape

import (
	"net/url"
	"path"
	"strings"
	"unicode"
)

// PageKind is the handler a URL is routed to.
type PageKind string

const (
	// PageCategory pages list navigation headings and category links.
	PageCategory PageKind = "category"
	// PageProduct pages list product tiles and optionally a detail view.
	PageProduct PageKind = "product"
)

// Classify routes a URL to a page handler by its path.
func Classify(rawURL string) (PageKind, error) {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		p = u.Path
	}
	switch {
	case strings.Contains(p, "/category/"):
		return PageCategory, nil
	case strings.Contains(p, "/product/"):
		return PageProduct, nil
	default:
		return "", Unsupported(rawURL)
	}
}

// Slugify lower-cases a label and joins its words with hyphens.
func Slugify(label string) string {
	return strings.Join(strings.FieldsFunc(strings.ToLower(label), unicode.IsSpace), "-")
}

// LastPathSegment returns the trailing non-empty path segment of a link.
func LastPathSegment(link string) string {
	p := link
	if u, err := url.Parse(link); err == nil {
		p = u.Path
	}
	p = strings.TrimRight(p, "/")
	if p == "" {
		return ""
	}
	return path.Base(p)
}

// ResolveURL resolves ref against base. ref is returned as-is when either fails to parse.
func ResolveURL(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}
