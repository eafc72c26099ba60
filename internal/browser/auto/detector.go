package auto

import (
	"context"
	"fmt"
	"strings"

	"github.com/JakeFAU/catalog-scraper/internal/scrape"
)

// Promotion reasons reported in logs.
const (
	ReasonEmptyDocument = "empty_document"
	ReasonSPAShell      = "spa_shell"
	ReasonScriptHeavy   = "script_heavy"
)

// spaShellSelector matches the mount points client-rendered frameworks leave in the served HTML.
const spaShellSelector = `#__next, #root, #app, [data-reactroot]`

// scriptShare is the percentage of a small document that, once covered by
// script elements, marks it as rendered in the browser.
const scriptShare = 25

// Detector decides whether a statically loaded page must be re-loaded with script execution.
type Detector struct {
	// Threshold is the document size in bytes under which script coverage is checked.
	Threshold int
	// Regions are the content selectors the extractor waits for. A page showing any
	// of them is already usable and is never promoted.
	Regions []string
}

// NewDetector creates a Detector. A zero threshold defaults to 2048 bytes.
func NewDetector(threshold int, regions ...string) *Detector {
	if threshold == 0 {
		threshold = 2048
	}
	var kept []string
	for _, r := range regions {
		if strings.TrimSpace(r) != "" {
			kept = append(kept, r)
		}
	}
	return &Detector{Threshold: threshold, Regions: kept}
}

// Inspect reports whether page needs a headless re-load and why.
func (d *Detector) Inspect(ctx context.Context, page scrape.Page) (string, bool, error) {
	for _, region := range d.Regions {
		ok, err := page.Exists(ctx, region)
		if err != nil {
			return "", false, fmt.Errorf("check region %q: %w", region, err)
		}
		if ok {
			return "", false, nil
		}
	}

	html, err := page.HTML(ctx)
	if err != nil {
		return "", false, fmt.Errorf("read html: %w", err)
	}
	if strings.TrimSpace(html) == "" {
		return ReasonEmptyDocument, true, nil
	}

	shell, err := page.Exists(ctx, spaShellSelector)
	if err != nil {
		return "", false, fmt.Errorf("check app shell: %w", err)
	}
	if shell {
		return ReasonSPAShell, true, nil
	}

	if len(html) >= d.Threshold {
		return "", false, nil
	}
	scripts, err := page.QueryAll(ctx, "script")
	if err != nil {
		return "", false, fmt.Errorf("query scripts: %w", err)
	}
	covered := 0
	for _, s := range scripts {
		covered += len(s.HTML)
	}
	if covered*100/len(html) >= scriptShare {
		return ReasonScriptHeavy, true, nil
	}
	return "", false, nil
}
