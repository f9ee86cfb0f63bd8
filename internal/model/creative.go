package model

import (
	"strings"
	"time"
)

// Format is the rendered format of a creative.
type Format string

const (
	FormatText  Format = "TEXT"
	FormatImage Format = "IMAGE"
	FormatVideo Format = "VIDEO"
)

// AllFormats returns the crawlable formats in job-production order.
func AllFormats() []Format {
	return []Format{FormatText, FormatImage, FormatVideo}
}

// Code returns the small integer persisted for the format.
// Unknown formats map to 0.
func (f Format) Code() int {
	switch f {
	case FormatText:
		return 1
	case FormatImage:
		return 2
	case FormatVideo:
		return 3
	default:
		return 0
	}
}

// Valid reports whether f is one of the known formats.
func (f Format) Valid() bool {
	return f.Code() != 0
}

// FormatFromCode is the inverse of Format.Code. Unknown codes yield "".
func FormatFromCode(code int) Format {
	switch code {
	case 1:
		return FormatText
	case 2:
		return FormatImage
	case 3:
		return FormatVideo
	default:
		return ""
	}
}

// ParseFormat maps an exact format name (as used in query strings and API
// requests) to a Format, defaulting to TEXT.
func ParseFormat(s string) Format {
	switch Format(s) {
	case FormatVideo:
		return FormatVideo
	case FormatImage:
		return FormatImage
	default:
		return FormatText
	}
}

// MediaType distinguishes image and video assets.
type MediaType string

const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
)

// AdMedia is one asset found inside a variant.
type AdMedia struct {
	Type     MediaType `json:"type"`
	URL      string    `json:"url"`
	ClickURL string    `json:"click_url"`
}

// Variant is one rendered presentation of a creative.
type Variant struct {
	IframeURL  string    `json:"iframe_url"`
	Screenshot string    `json:"screenshot"` // data URI
	HTML       string    `json:"html,omitempty"`
	Medias     []AdMedia `json:"medias"`
}

// Advertiser is identified by its external code.
type Advertiser struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Domain is a tracked advertiser domain.
type Domain struct {
	ID     int64  `json:"id"`
	Domain string `json:"domain"`
	Active bool   `json:"active"`
}

// Creative is one advertisement unit keyed by its external code.
type Creative struct {
	Code         string     `json:"code"`
	Link         string     `json:"link"`
	Format       Format     `json:"format"`
	LastShownAt  time.Time  `json:"last_shown_at"`
	FirstShownAt *time.Time `json:"first_shown_at,omitempty"`
	PreviewImage string     `json:"preview_image,omitempty"`
	Advertiser   Advertiser `json:"advertiser"`
	Domain       string     `json:"domain"`
	Regions      []string   `json:"regions"`
	Variants     []Variant  `json:"variants"`
}

// ResolvePreviewImage picks the preview image: the explicit value, then the
// first non-empty variant screenshot, then the first media URL across all
// variants in document order, then "".
func (c *Creative) ResolvePreviewImage() string {
	if c.PreviewImage != "" {
		return c.PreviewImage
	}
	for _, v := range c.Variants {
		if v.Screenshot != "" {
			return v.Screenshot
		}
	}
	for _, v := range c.Variants {
		for _, m := range v.Medias {
			if m.URL != "" {
				return m.URL
			}
		}
	}
	return ""
}

// NormalizeRegions trims region names and drops blanks, preserving order.
func NormalizeRegions(regions []string) []string {
	out := make([]string, 0, len(regions))
	for _, r := range regions {
		r = strings.TrimSpace(r)
		if r != "" {
			out = append(out, r)
		}
	}
	return out
}
