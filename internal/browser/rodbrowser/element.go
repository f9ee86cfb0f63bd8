package rodbrowser

import (
	"context"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rotisserie/eris"

	"github.com/sells-group/adcrawl/internal/browser"
)

type element struct {
	el *rod.Element
}

var _ browser.Element = (*element)(nil)

func wrapElements(els rod.Elements) []browser.Element {
	out := make([]browser.Element, 0, len(els))
	for _, el := range els {
		out = append(out, &element{el: el})
	}
	return out
}

func (e *element) Text(ctx context.Context) (string, error) {
	s, err := e.el.Context(ctx).Text()
	return s, eris.Wrap(err, "rodbrowser: text")
}

func (e *element) Attr(ctx context.Context, name string) (string, bool, error) {
	v, err := e.el.Context(ctx).Attribute(name)
	if err != nil {
		return "", false, eris.Wrapf(err, "rodbrowser: attribute %s", name)
	}
	if v == nil {
		return "", false, nil
	}
	return *v, true, nil
}

func (e *element) HTML(ctx context.Context) (string, error) {
	h, err := e.el.Context(ctx).HTML()
	return h, eris.Wrap(err, "rodbrowser: element html")
}

func (e *element) Query(ctx context.Context, selector string) (browser.Element, error) {
	has, el, err := e.el.Context(ctx).Has(selector)
	if err != nil {
		return nil, eris.Wrapf(err, "rodbrowser: query %q", selector)
	}
	if !has {
		return nil, nil
	}
	return &element{el: el}, nil
}

func (e *element) QueryAll(ctx context.Context, selector string) ([]browser.Element, error) {
	els, err := e.el.Context(ctx).Elements(selector)
	if err != nil {
		return nil, eris.Wrapf(err, "rodbrowser: query all %q", selector)
	}
	return wrapElements(els), nil
}

func (e *element) Children(ctx context.Context, selector string) ([]browser.Element, error) {
	return e.QueryAll(ctx, ":scope > "+selector)
}

func (e *element) Closest(ctx context.Context, selector string) (browser.Element, error) {
	el := e.el.Context(ctx)
	obj, err := el.Evaluate(rod.Eval(`function(s) { return this.closest(s) }`, selector).ByObject())
	if err != nil {
		return nil, eris.Wrapf(err, "rodbrowser: closest %q", selector)
	}
	if obj.ObjectID == "" {
		return nil, nil
	}
	anc, err := el.Page().ElementFromObject(obj)
	if err != nil {
		return nil, eris.Wrapf(err, "rodbrowser: closest %q", selector)
	}
	return &element{el: anc}, nil
}

func (e *element) ComputedStyle(ctx context.Context, property string) (string, error) {
	res, err := e.el.Context(ctx).Eval(`function(p) { return getComputedStyle(this).getPropertyValue(p) }`, property)
	if err != nil {
		return "", eris.Wrapf(err, "rodbrowser: computed style %s", property)
	}
	return res.Value.Str(), nil
}

func (e *element) Visible(ctx context.Context) (bool, error) {
	ok, err := e.el.Context(ctx).Visible()
	return ok, eris.Wrap(err, "rodbrowser: visible")
}

func (e *element) Click(ctx context.Context) error {
	return eris.Wrap(e.el.Context(ctx).Click(proto.InputMouseButtonLeft, 1), "rodbrowser: click")
}

func (e *element) Type(ctx context.Context, text string) error {
	return eris.Wrap(e.el.Context(ctx).Input(text), "rodbrowser: input")
}

func (e *element) ScrollIntoView(ctx context.Context) error {
	return eris.Wrap(e.el.Context(ctx).ScrollIntoView(), "rodbrowser: scroll into view")
}

func (e *element) Screenshot(ctx context.Context) ([]byte, error) {
	b, err := e.el.Context(ctx).Screenshot(proto.PageCaptureScreenshotFormatPng, 0)
	return b, eris.Wrap(err, "rodbrowser: screenshot")
}

// ContentFrame returns nil while the iframe has no document attached.
func (e *element) ContentFrame(ctx context.Context) (browser.Frame, error) {
	fp, err := e.el.Context(ctx).Frame()
	if err != nil {
		return nil, nil
	}
	return &frame{page: fp}, nil
}

func (e *element) WaitQuery(ctx context.Context, selector string, timeout time.Duration) (browser.Element, error) {
	el, err := e.el.Context(ctx).Timeout(timeout).Element(selector)
	if err != nil {
		return nil, timeoutErr(err, "rodbrowser: wait "+selector)
	}
	return &element{el: el.CancelTimeout().Context(ctx)}, nil
}
