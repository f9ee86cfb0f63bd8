// Package store persists creatives and their reference data.
package store

import (
	"context"
	"strings"
	"time"

	"github.com/sells-group/adcrawl/internal/model"
)

// CreativeFilter narrows ListCreatives.
type CreativeFilter struct {
	AdvertiserCode string       `json:"advertiser_code,omitempty"`
	Domain         string       `json:"domain,omitempty"`
	Format         model.Format `json:"format,omitempty"`
	Limit          int          `json:"limit,omitempty"`
	Offset         int          `json:"offset,omitempty"`
}

// CreativeSummary is a creative row without its variants.
type CreativeSummary struct {
	Code           string       `json:"code"`
	Link           string       `json:"link"`
	Format         model.Format `json:"format"`
	AdvertiserCode string       `json:"advertiser_code"`
	AdvertiserName string       `json:"advertiser_name"`
	Domain         string       `json:"domain"`
	LastShownAt    *time.Time   `json:"last_shown_at,omitempty"`
	PreviewImage   string       `json:"preview_image"`
	VariantCount   int          `json:"variant_count"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// Store defines the persistence interface for crawled creatives.
type Store interface {
	// SaveCreative writes c and replaces its variants and region
	// associations in one transaction. Failures roll back and return an
	// error matching model.ErrPersistenceFailure.
	SaveCreative(ctx context.Context, c *model.Creative) error
	// GetCreative reads a creative back with variants and regions. It
	// returns nil, nil when the code is unknown.
	GetCreative(ctx context.Context, code string) (*model.Creative, error)
	ListCreatives(ctx context.Context, filter CreativeFilter) ([]CreativeSummary, error)

	UpsertAdvertiser(ctx context.Context, a model.Advertiser) error
	GetAllActiveDomains(ctx context.Context) ([]model.Domain, error)

	// Reference data
	ImportDomains(ctx context.Context, domains []model.Domain) (int64, error)
	ImportRegions(ctx context.Context, names []string) (int64, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// variantColumns are the creative_variants columns written on save.
var variantColumns = []string{
	"creative_id", "position", "iframe_url", "screenshot", "html",
	"media_types", "media_urls", "click_urls",
}

// splitMedias flattens medias into parallel ordered lists.
func splitMedias(ms []model.AdMedia) (types, urls, clicks []string) {
	types = make([]string, len(ms))
	urls = make([]string, len(ms))
	clicks = make([]string, len(ms))
	for i, m := range ms {
		types[i] = string(m.Type)
		urls[i] = m.URL
		clicks[i] = m.ClickURL
	}
	return types, urls, clicks
}

// joinMedias is the inverse of splitMedias. Short lists pad with "".
func joinMedias(types, urls, clicks []string) []model.AdMedia {
	if len(urls) == 0 {
		return nil
	}
	out := make([]model.AdMedia, len(urls))
	for i, u := range urls {
		m := model.AdMedia{Type: model.MediaImage, URL: u}
		if i < len(types) && types[i] != "" {
			m.Type = model.MediaType(types[i])
		}
		if i < len(clicks) {
			m.ClickURL = clicks[i]
		}
		out[i] = m
	}
	return out
}

// nullTime maps the zero time to NULL.
func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func persistErr(code string, err error) error {
	return &model.PersistenceError{Code: code, Err: err}
}

func normalizeDomain(d string) string {
	return strings.ToLower(strings.TrimSpace(d))
}

func limitOrDefault(n int) int {
	if n <= 0 {
		return 100
	}
	return n
}
