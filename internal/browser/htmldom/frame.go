package htmldom

import (
	"context"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/sells-group/adcrawl/internal/browser"
)

type frame struct {
	st   *state
	doc  *goquery.Document
	url  string
	root bool
}

var _ browser.Frame = (*frame)(nil)

func (f *frame) URL() string {
	if f.root {
		f.st.mu.Lock()
		defer f.st.mu.Unlock()
		return f.st.url
	}
	return f.url
}

func (f *frame) Query(_ context.Context, selector string) (browser.Element, error) {
	sel := f.doc.Find(selector).First()
	if sel.Length() == 0 {
		return nil, nil
	}
	return &element{f: f, sel: sel}, nil
}

func (f *frame) QueryAll(_ context.Context, selector string) ([]browser.Element, error) {
	return wrapAll(f, f.doc.Find(selector)), nil
}

// ChildFrames returns the attached iframes of this document in order.
// Iframes whose src was never registered are treated as detached.
func (f *frame) ChildFrames(ctx context.Context) ([]browser.Frame, error) {
	var out []browser.Frame
	var err error
	f.doc.Find("iframe").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var child *frame
		child, err = f.content(ctx, s)
		if err != nil {
			return false
		}
		if child != nil {
			out = append(out, child)
		}
		return true
	})
	return out, err
}

func (f *frame) HTML(context.Context) (string, error) {
	h, err := goquery.OuterHtml(f.doc.Selection)
	if err != nil {
		return "", eris.Wrap(err, "htmldom: frame html")
	}
	return h, nil
}

func (f *frame) WaitStable(context.Context, time.Duration) error {
	f.st.mu.Lock()
	f.st.stableWaits++
	f.st.mu.Unlock()
	return nil
}

// content resolves the document hosted by an iframe selection.
func (f *frame) content(_ context.Context, s *goquery.Selection) (*frame, error) {
	if goquery.NodeName(s) != "iframe" {
		return nil, nil
	}
	var html, url string
	if doc, ok := s.Attr("srcdoc"); ok {
		html, url = doc, "about:srcdoc"
	} else if src, ok := s.Attr("src"); ok {
		f.st.mu.Lock()
		registered, found := f.st.frames[src]
		f.st.mu.Unlock()
		if !found {
			return nil, nil
		}
		html, url = registered, src
	} else {
		return nil, nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, eris.Wrapf(err, "htmldom: parse frame %s", url)
	}
	return &frame{st: f.st, doc: doc, url: url}, nil
}

func wrapAll(f *frame, sel *goquery.Selection) []browser.Element {
	out := make([]browser.Element, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		out = append(out, &element{f: f, sel: s})
	})
	return out
}
