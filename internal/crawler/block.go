package crawler

import (
	"context"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/adcrawl/internal/browser"
)

// ErrBlocked means the site served an anti-bot page instead of content.
var ErrBlocked = eris.New("crawler: blocked by site")

// BlockType describes the kind of block detected.
type BlockType string

const (
	BlockNone           BlockType = ""
	BlockSorry          BlockType = "sorry"
	BlockCaptcha        BlockType = "captcha"
	BlockUnusualTraffic BlockType = "unusual_traffic"
	BlockCloudflare     BlockType = "cloudflare"
)

// DetectBlock checks a rendered page URL and document for signs of
// anti-bot protection.
func DetectBlock(pageURL, html string) (bool, BlockType) {
	if u, err := url.Parse(pageURL); err == nil && strings.HasPrefix(u.Path, "/sorry/") {
		return true, BlockSorry
	}

	lower := strings.ToLower(html)

	if strings.Contains(lower, "unusual traffic from your computer network") {
		return true, BlockUnusualTraffic
	}
	if strings.Contains(lower, "g-recaptcha") ||
		strings.Contains(lower, "id=\"captcha-form\"") ||
		strings.Contains(lower, "hcaptcha") {
		return true, BlockCaptcha
	}
	if strings.Contains(lower, "checking your browser") ||
		strings.Contains(lower, "cf-browser-verification") {
		return true, BlockCloudflare
	}
	return false, BlockNone
}

// checkBlocked reads the page after navigation and returns ErrBlocked when
// DetectBlock matches.
func checkBlocked(ctx context.Context, page browser.Page) error {
	html, err := page.HTML(ctx)
	if err != nil {
		return eris.Wrap(err, "crawler: read page")
	}
	if blocked, kind := DetectBlock(page.URL(), html); blocked {
		return eris.Wrapf(ErrBlocked, "crawler: %s at %s", kind, page.URL())
	}
	return nil
}
