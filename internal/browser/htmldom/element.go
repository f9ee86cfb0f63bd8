package htmldom

import (
	"context"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/sells-group/adcrawl/internal/browser"
)

type element struct {
	f   *frame
	sel *goquery.Selection
}

var _ browser.Element = (*element)(nil)

func (e *element) Text(context.Context) (string, error) {
	return e.sel.Text(), nil
}

func (e *element) Attr(_ context.Context, name string) (string, bool, error) {
	v, ok := e.sel.Attr(name)
	return v, ok, nil
}

func (e *element) HTML(context.Context) (string, error) {
	h, err := goquery.OuterHtml(e.sel)
	if err != nil {
		return "", eris.Wrap(err, "htmldom: element html")
	}
	return h, nil
}

func (e *element) Query(_ context.Context, selector string) (browser.Element, error) {
	s := e.sel.Find(selector).First()
	if s.Length() == 0 {
		return nil, nil
	}
	return &element{f: e.f, sel: s}, nil
}

func (e *element) QueryAll(_ context.Context, selector string) ([]browser.Element, error) {
	return wrapAll(e.f, e.sel.Find(selector)), nil
}

func (e *element) Children(_ context.Context, selector string) ([]browser.Element, error) {
	return wrapAll(e.f, e.sel.ChildrenFiltered(selector)), nil
}

func (e *element) Closest(_ context.Context, selector string) (browser.Element, error) {
	s := e.sel.Closest(selector)
	if s.Length() == 0 {
		return nil, nil
	}
	return &element{f: e.f, sel: s}, nil
}

var styleDefaults = map[string]string{
	"background-image": "none",
	"display":          "inline",
}

func (e *element) ComputedStyle(_ context.Context, property string) (string, error) {
	if v, ok := inlineStyle(e.sel, property); ok {
		return v, nil
	}
	return styleDefaults[property], nil
}

func (e *element) Visible(context.Context) (bool, error) {
	for s := e.sel; s.Length() > 0; s = s.Parent() {
		if _, hidden := s.Attr("hidden"); hidden {
			return false, nil
		}
		if v, ok := inlineStyle(s, "display"); ok && v == "none" {
			return false, nil
		}
	}
	return true, nil
}

func (e *element) Click(context.Context) error {
	st := e.f.st
	st.mu.Lock()
	defer st.mu.Unlock()
	st.clicks = append(st.clicks, describe(e.sel))
	for selector, url := range st.navigations {
		if e.sel.Is(selector) {
			st.url = url
		}
	}
	return nil
}

func (e *element) Type(_ context.Context, text string) error {
	st := e.f.st
	st.mu.Lock()
	st.typed = append(st.typed, text)
	st.mu.Unlock()
	return nil
}

func (e *element) ScrollIntoView(context.Context) error { return nil }

// Screenshot returns stable placeholder bytes derived from the element.
func (e *element) Screenshot(context.Context) ([]byte, error) {
	return []byte("png:" + describe(e.sel)), nil
}

func (e *element) ContentFrame(ctx context.Context) (browser.Frame, error) {
	child, err := e.f.content(ctx, e.sel)
	if err != nil || child == nil {
		return nil, err
	}
	return child, nil
}

func (e *element) WaitQuery(ctx context.Context, selector string, _ time.Duration) (browser.Element, error) {
	el, err := e.Query(ctx, selector)
	if err != nil {
		return nil, err
	}
	if el == nil {
		return nil, eris.Wrapf(browser.ErrTimeout, "htmldom: wait %q", selector)
	}
	return el, nil
}

func inlineStyle(s *goquery.Selection, property string) (string, bool) {
	style, ok := s.Attr("style")
	if !ok {
		return "", false
	}
	for _, decl := range strings.Split(style, ";") {
		name, value, found := strings.Cut(decl, ":")
		if !found {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(name), property) {
			return strings.TrimSpace(value), true
		}
	}
	return "", false
}

func describe(s *goquery.Selection) string {
	d := goquery.NodeName(s)
	if class, ok := s.Attr("class"); ok && class != "" {
		d += "." + strings.Join(strings.Fields(class), ".")
	}
	return d
}
