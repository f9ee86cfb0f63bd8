// Package htmldom implements the browser capabilities over static HTML using
// goquery. It backs extractor and router tests without a running Chrome.
//
// Fixture rules: an element is hidden when it or an ancestor carries the
// hidden attribute or an inline display:none. Computed styles come from the
// inline style attribute only. Bounded waits never sleep: a missing element
// fails immediately with browser.ErrTimeout.
package htmldom

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/sells-group/adcrawl/internal/browser"
)

// Option configures a fixture page.
type Option func(*state)

// WithFrame registers the document served for an iframe src.
func WithFrame(src, html string) Option {
	return func(s *state) { s.frames[src] = html }
}

// WithResponse registers a network response visible to ExpectResponse.
func WithResponse(url string, status int, body string) Option {
	return func(s *state) {
		s.responses = append(s.responses, browser.Response{URL: url, Status: status, Body: []byte(body)})
	}
}

// WithNavigation makes a click on an element matching selector change the
// page URL.
func WithNavigation(selector, url string) Option {
	return func(s *state) { s.navigations[selector] = url }
}

// state is shared by a page and every frame and element derived from it.
type state struct {
	mu          sync.Mutex
	url         string
	frames      map[string]string
	responses   []browser.Response
	navigations map[string]string
	clicks      []string
	typed       []string
	stableWaits int
	idleWaits   int
	width       int
	height      int
}

// Page is a fixture browser.Page.
type Page struct {
	*frame
}

var _ browser.Page = (*Page)(nil)

// New parses html as the page document at url.
func New(url, html string, opts ...Option) (*Page, error) {
	st := &state{
		url:         url,
		frames:      make(map[string]string),
		navigations: make(map[string]string),
	}
	for _, o := range opts {
		o(st)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, eris.Wrap(err, "htmldom: parse page")
	}
	return &Page{frame: &frame{st: st, doc: doc, root: true}}, nil
}

// URL returns the current page URL.
func (p *Page) URL() string {
	p.st.mu.Lock()
	defer p.st.mu.Unlock()
	return p.st.url
}

// WaitElement implements browser.Page.
func (p *Page) WaitElement(ctx context.Context, selector string, state browser.WaitState, _ time.Duration) (browser.Element, error) {
	el, err := p.Query(ctx, selector)
	if err != nil {
		return nil, err
	}
	if el == nil {
		return nil, eris.Wrapf(browser.ErrTimeout, "htmldom: wait %q", selector)
	}
	if state == browser.StateVisible {
		if ok, _ := el.Visible(ctx); !ok {
			return nil, eris.Wrapf(browser.ErrTimeout, "htmldom: wait visible %q", selector)
		}
	}
	return el, nil
}

// Visible implements browser.Page.
func (p *Page) Visible(ctx context.Context, selector string) (bool, error) {
	el, err := p.Query(ctx, selector)
	if err != nil || el == nil {
		return false, err
	}
	return el.Visible(ctx)
}

// WaitNetworkIdle implements browser.Page.
func (p *Page) WaitNetworkIdle(context.Context, time.Duration) error {
	p.st.mu.Lock()
	p.st.idleWaits++
	p.st.mu.Unlock()
	return nil
}

// ExpectResponse implements browser.Page.
func (p *Page) ExpectResponse(_ context.Context, m browser.ResponseMatch) (browser.ResponseWaiter, error) {
	return &waiter{st: p.st, match: m}, nil
}

// Navigate implements browser.Page.
func (p *Page) Navigate(_ context.Context, url string) error {
	p.st.mu.Lock()
	p.st.url = url
	p.st.mu.Unlock()
	return nil
}

// SetViewport implements browser.Page.
func (p *Page) SetViewport(_ context.Context, width, height int) error {
	p.st.mu.Lock()
	p.st.width, p.st.height = width, height
	p.st.mu.Unlock()
	return nil
}

// Close implements browser.Page.
func (p *Page) Close() error { return nil }

// Clicks returns a descriptor ("tag.class") for every clicked element.
func (p *Page) Clicks() []string {
	p.st.mu.Lock()
	defer p.st.mu.Unlock()
	return append([]string(nil), p.st.clicks...)
}

// Typed returns every text typed into the page.
func (p *Page) Typed() []string {
	p.st.mu.Lock()
	defer p.st.mu.Unlock()
	return append([]string(nil), p.st.typed...)
}

// StableWaits counts WaitStable calls across all frames.
func (p *Page) StableWaits() int {
	p.st.mu.Lock()
	defer p.st.mu.Unlock()
	return p.st.stableWaits
}

// Viewport returns the last viewport set.
func (p *Page) Viewport() (int, int) {
	p.st.mu.Lock()
	defer p.st.mu.Unlock()
	return p.st.width, p.st.height
}

type waiter struct {
	st    *state
	match browser.ResponseMatch
}

func (w *waiter) Wait(context.Context, time.Duration) (*browser.Response, error) {
	w.st.mu.Lock()
	defer w.st.mu.Unlock()
	for _, r := range w.st.responses {
		if strings.Contains(r.URL, w.match.URLContains) {
			resp := r
			return &resp, nil
		}
	}
	return nil, eris.Wrapf(browser.ErrTimeout, "htmldom: no response matching %q", w.match.URLContains)
}
