package rodbrowser

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/adcrawl/internal/browser"
)

// frame adapts a rod page, which rod also uses to represent iframes.
type frame struct {
	page *rod.Page
}

var _ browser.Frame = (*frame)(nil)

func (f *frame) URL() string {
	res, err := f.page.Eval(`function() { return location.href }`)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}

func (f *frame) Query(ctx context.Context, selector string) (browser.Element, error) {
	has, el, err := f.page.Context(ctx).Has(selector)
	if err != nil {
		return nil, eris.Wrapf(err, "rodbrowser: query %q", selector)
	}
	if !has {
		return nil, nil
	}
	return &element{el: el}, nil
}

func (f *frame) QueryAll(ctx context.Context, selector string) ([]browser.Element, error) {
	els, err := f.page.Context(ctx).Elements(selector)
	if err != nil {
		return nil, eris.Wrapf(err, "rodbrowser: query all %q", selector)
	}
	return wrapElements(els), nil
}

func (f *frame) ChildFrames(ctx context.Context) ([]browser.Frame, error) {
	iframes, err := f.page.Context(ctx).Elements("iframe")
	if err != nil {
		return nil, eris.Wrap(err, "rodbrowser: list iframes")
	}
	out := make([]browser.Frame, 0, len(iframes))
	for _, iframe := range iframes {
		fp, err := iframe.Context(ctx).Frame()
		if err != nil {
			zap.L().Debug("iframe not attached", zap.Error(err))
			continue
		}
		out = append(out, &frame{page: fp})
	}
	return out, nil
}

func (f *frame) HTML(ctx context.Context) (string, error) {
	h, err := f.page.Context(ctx).HTML()
	return h, eris.Wrap(err, "rodbrowser: frame html")
}

func (f *frame) WaitStable(ctx context.Context, d time.Duration) error {
	return eris.Wrap(f.page.Context(ctx).WaitStable(d), "rodbrowser: wait stable")
}

// Page adapts a top-level rod page.
type Page struct {
	frame
}

var _ browser.Page = (*Page)(nil)

// Rod exposes the underlying page for callers that need raw CDP access.
func (p *Page) Rod() *rod.Page { return p.page }

// WaitElement implements browser.Page.
func (p *Page) WaitElement(ctx context.Context, selector string, state browser.WaitState, timeout time.Duration) (browser.Element, error) {
	pg := p.page.Context(ctx).Timeout(timeout)
	el, err := pg.Element(selector)
	if err != nil {
		return nil, timeoutErr(err, "rodbrowser: wait "+selector)
	}
	if state == browser.StateVisible {
		if err := el.WaitVisible(); err != nil {
			return nil, timeoutErr(err, "rodbrowser: wait visible "+selector)
		}
	}
	return &element{el: el.CancelTimeout().Context(ctx)}, nil
}

// Visible implements browser.Page.
func (p *Page) Visible(ctx context.Context, selector string) (bool, error) {
	has, el, err := p.page.Context(ctx).Has(selector)
	if err != nil || !has {
		return false, eris.Wrapf(err, "rodbrowser: visible %q", selector)
	}
	ok, err := el.Visible()
	return ok, eris.Wrapf(err, "rodbrowser: visible %q", selector)
}

// WaitNetworkIdle waits until no request has been in flight for half a
// second, bounded by timeout.
func (p *Page) WaitNetworkIdle(ctx context.Context, timeout time.Duration) error {
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	wait := p.page.Context(tctx).WaitRequestIdle(500*time.Millisecond, nil, nil, nil)
	wait()
	if ctx.Err() != nil {
		return eris.Wrap(ctx.Err(), "rodbrowser: network idle")
	}
	return nil
}

// ExpectResponse implements browser.Page. Only 2xx responses match.
func (p *Page) ExpectResponse(ctx context.Context, m browser.ResponseMatch) (browser.ResponseWaiter, error) {
	evCtx, cancel := context.WithCancel(ctx)
	w := &responseWaiter{ch: make(chan *browser.Response, 1), cancel: cancel}
	pending := make(map[proto.NetworkRequestID]*browser.Response)

	wait := p.page.Context(evCtx).EachEvent(
		func(e *proto.NetworkResponseReceived) bool {
			if e.Response == nil || !strings.Contains(e.Response.URL, m.URLContains) {
				return false
			}
			if e.Response.Status < 200 || e.Response.Status > 299 {
				return false
			}
			pending[e.RequestID] = &browser.Response{URL: e.Response.URL, Status: e.Response.Status}
			return false
		},
		func(e *proto.NetworkLoadingFinished) bool {
			resp, ok := pending[e.RequestID]
			if !ok {
				return false
			}
			body, err := proto.NetworkGetResponseBody{RequestID: e.RequestID}.Call(p.page)
			if err != nil {
				zap.L().Debug("response body unavailable", zap.String("url", resp.URL), zap.Error(err))
				delete(pending, e.RequestID)
				return false
			}
			resp.Body = []byte(body.Body)
			if body.Base64Encoded {
				if raw, err := base64.StdEncoding.DecodeString(body.Body); err == nil {
					resp.Body = raw
				}
			}
			w.ch <- resp
			return true
		},
	)
	go wait()
	return w, nil
}

// Navigate implements browser.Page.
func (p *Page) Navigate(ctx context.Context, url string) error {
	pg := p.page.Context(ctx)
	if err := pg.Navigate(url); err != nil {
		return eris.Wrapf(err, "rodbrowser: navigate %s", url)
	}
	if err := pg.WaitLoad(); err != nil {
		zap.L().Warn("wait load failed", zap.String("url", url), zap.Error(err))
	}
	return nil
}

// SetViewport implements browser.Page.
func (p *Page) SetViewport(ctx context.Context, width, height int) error {
	err := p.page.Context(ctx).SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             width,
		Height:            height,
		DeviceScaleFactor: 1,
	})
	return eris.Wrap(err, "rodbrowser: set viewport")
}

// Close implements browser.Page.
func (p *Page) Close() error {
	return eris.Wrap(p.page.Close(), "rodbrowser: close page")
}

type responseWaiter struct {
	ch     chan *browser.Response
	cancel context.CancelFunc
}

func (w *responseWaiter) Wait(ctx context.Context, timeout time.Duration) (*browser.Response, error) {
	defer w.cancel()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case r := <-w.ch:
		return r, nil
	case <-timer.C:
		return nil, eris.Wrap(browser.ErrTimeout, "rodbrowser: wait response")
	case <-ctx.Done():
		return nil, eris.Wrap(ctx.Err(), "rodbrowser: wait response")
	}
}

func timeoutErr(err error, msg string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return eris.Wrap(browser.ErrTimeout, msg)
	}
	return eris.Wrap(err, msg)
}
