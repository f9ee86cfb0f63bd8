package router

import (
	"bytes"
	"encoding/json"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/adcrawl/internal/model"
)

var (
	advertiserRe = regexp.MustCompile(`advertiser/([A-Z0-9]+)`)
	creativeRe   = regexp.MustCompile(`creative/([A-Z0-9]+)`)
)

// ExtractIDs returns the advertiser and creative codes in a detail URL. Both
// are empty unless both are present.
func ExtractIDs(rawURL string) (advertiserCode, creativeCode string) {
	a := advertiserRe.FindStringSubmatch(rawURL)
	c := creativeRe.FindStringSubmatch(rawURL)
	if a == nil || c == nil {
		return "", ""
	}
	return a[1], c[1]
}

// ExtractAdvertiserCode returns the advertiser code of an advertiser page URL.
func ExtractAdvertiserCode(rawURL string) string {
	if m := advertiserRe.FindStringSubmatch(rawURL); m != nil {
		return m[1]
	}
	return ""
}

// ExtractFormat reads a "Format: <word>" label. Matching is a
// case-insensitive substring test and anything unrecognised is TEXT.
func ExtractFormat(text string) model.Format {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "video"):
		return model.FormatVideo
	case strings.Contains(lower, "text"):
		return model.FormatText
	case strings.Contains(lower, "image"):
		return model.FormatImage
	default:
		return model.FormatText
	}
}

var dateLayouts = []string{
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"2 January 2006",
	"2006-01-02",
}

// ExtractDate reads a "Last shown: <date>" label. It returns the zero time
// when the label has no colon or the date does not parse.
func ExtractDate(text string) time.Time {
	_, value, found := strings.Cut(text, ":")
	if !found {
		return time.Time{}
	}
	value = strings.TrimSpace(value)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	return time.Time{}
}

// Query is the crawl context carried in a listing URL.
type Query struct {
	// Format is empty when the URL names none.
	Format model.Format
	Domain string
	Term   string
}

// SearchText is what the listing types into the search box.
func (q Query) SearchText() string {
	if q.Domain != "" {
		return q.Domain
	}
	return q.Term
}

// ExtractDetailQuery reads format, domain and search term from a URL query.
func ExtractDetailQuery(rawURL string) (Query, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Query{}, eris.Wrapf(model.ErrInvalidURL, "router: parse %q: %v", rawURL, err)
	}
	v := u.Query()
	q := Query{
		Domain: strings.TrimSpace(v.Get("domain")),
		Term:   strings.TrimSpace(v.Get("term")),
	}
	if f := v.Get("format"); f != "" {
		q.Format = model.ParseFormat(f)
	}
	return q, nil
}

// ListingURL is the entry URL of a domain crawl.
func ListingURL(base string, format model.Format, domain string) string {
	return entryURL(base, format, "domain", domain)
}

// SearchURL is the entry URL of a search-term crawl.
func SearchURL(base string, format model.Format, term string) string {
	return entryURL(base, format, "term", term)
}

func entryURL(base string, format model.Format, key, value string) string {
	v := url.Values{}
	v.Set("region", "anywhere")
	v.Set("format", string(format))
	v.Set(key, value)
	return strings.TrimRight(base, "/") + "/?" + v.Encode()
}

// DetailURL is the canonical URL of a creative detail page.
func DetailURL(base, advertiserCode, creativeCode string) string {
	return strings.TrimRight(base, "/") + "/advertiser/" + advertiserCode + "/creative/" + creativeCode
}

// xssiPrefix guards some JSON API responses and must be stripped.
var xssiPrefix = []byte(")]}'")

// ParseListingResponse decodes the listing API payload: an object whose key
// "1" holds creative summaries keyed "1" (advertiser code), "2" (creative
// code), "4" (format code) and "12" (advertiser name). Summaries without a
// creative code are skipped.
func ParseListingResponse(body []byte) ([]model.StagedCreative, error) {
	body = bytes.TrimSpace(bytes.TrimPrefix(bytes.TrimSpace(body), xssiPrefix))

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, eris.Wrap(err, "router: decode listing response")
	}
	raw, ok := payload["1"]
	if !ok {
		return nil, nil
	}
	var items []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, eris.Wrap(err, "router: decode creative summaries")
	}

	out := make([]model.StagedCreative, 0, len(items))
	for _, item := range items {
		s := model.StagedCreative{
			AdvertiserCode: jsonString(item["1"]),
			Code:           jsonString(item["2"]),
			AdvertiserName: jsonString(item["12"]),
		}
		if s.Code == "" {
			continue
		}
		if code, err := strconv.Atoi(jsonString(item["4"])); err == nil {
			s.Format = model.FormatFromCode(code)
		}
		out = append(out, s)
	}
	return out, nil
}

// jsonString reads a JSON string or number as text. Anything else is "".
func jsonString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}
