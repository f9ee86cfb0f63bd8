package crawler

import (
	"context"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/adcrawl/internal/browser"
)

// Request is one queued page visit.
type Request struct {
	URL   string `json:"url"`
	Label string `json:"label,omitempty"`
	// Attempts is the number of times the visit has been tried.
	Attempts int `json:"attempts,omitempty"`
}

// uniqueKey identifies a request for de-duplication. Fragments never change
// the page, and the query order is normalised.
func (r Request) uniqueKey() string {
	u, err := url.Parse(strings.TrimSpace(r.URL))
	if err != nil {
		return r.URL
	}
	u.Fragment = ""
	u.RawQuery = u.Query().Encode()
	return u.String()
}

// Visit is a rendered page handed to a Handler.
type Visit struct {
	Request Request
	Page    browser.Page

	enqueue func(Request) bool
}

// Enqueue schedules a follow-up visit. It reports false when the URL was
// already seen or the crawl reached its request limit.
func (v *Visit) Enqueue(rawURL, label string) (bool, error) {
	abs, err := resolve(v.Request.URL, rawURL)
	if err != nil {
		return false, err
	}
	if v.enqueue == nil {
		return false, nil
	}
	return v.enqueue(Request{URL: abs, Label: label}), nil
}

// NewVisit builds a visit outside of a crawl, for tests and one-off handling.
func NewVisit(req Request, page browser.Page, enqueue func(Request) bool) *Visit {
	return &Visit{Request: req, Page: page, enqueue: enqueue}
}

func resolve(base, ref string) (string, error) {
	r, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", eris.Wrapf(err, "crawler: parse %q", ref)
	}
	if r.IsAbs() {
		return r.String(), nil
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", eris.Wrapf(err, "crawler: parse base %q", base)
	}
	return b.ResolveReference(r).String(), nil
}

// Handler processes one visit. A returned error is retried when
// resilience.IsTransient reports it as transient.
type Handler interface {
	Handle(ctx context.Context, v *Visit) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, v *Visit) error

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, v *Visit) error { return f(ctx, v) }
