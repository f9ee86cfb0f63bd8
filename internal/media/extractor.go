// Package media walks rendered ad frames and turns them into variants.
package media

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/adcrawl/internal/browser"
	"github.com/sells-group/adcrawl/internal/model"
	"github.com/sells-group/adcrawl/internal/selectors"
)

// Extractor collects image and video assets from a frame tree.
type Extractor struct {
	sel selectors.Media
}

// NewExtractor creates an Extractor using the given media selectors.
func NewExtractor(sel selectors.Media) *Extractor {
	return &Extractor{sel: sel}
}

// IsVideoHost reports whether url is an embedded hosted-video player.
func (x *Extractor) IsVideoHost(url string) bool {
	for _, p := range x.sel.VideoHosts {
		if p != "" && strings.Contains(url, p) {
			return true
		}
	}
	return false
}

// IsAdFrame reports whether url is a frame that renders ad content.
func (x *Extractor) IsAdFrame(url string) bool {
	for _, p := range x.sel.AdFrames {
		if p != "" && strings.HasPrefix(url, p) {
			return true
		}
	}
	return false
}

// Extract returns every asset in f and its descendant frames, in document
// order without de-duplication. A nil frame contributes nothing; adapters
// return an untyped nil for a detached frame. A hosted
// video frame yields exactly one video entry and is not descended into.
func (x *Extractor) Extract(ctx context.Context, f browser.Frame) ([]model.AdMedia, error) {
	if f == nil {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "media: extract")
	}

	url := f.URL()
	if x.IsVideoHost(url) {
		return []model.AdMedia{{Type: model.MediaVideo, URL: url, ClickURL: url}}, nil
	}

	var out []model.AdMedia

	imgs, err := f.QueryAll(ctx, x.sel.Image)
	if err != nil {
		return nil, eris.Wrap(err, "media: query images")
	}
	for _, img := range imgs {
		src, _, err := img.Attr(ctx, "src")
		if err != nil {
			return nil, eris.Wrap(err, "media: image src")
		}
		if src == "" {
			continue
		}
		out = append(out, model.AdMedia{Type: model.MediaImage, URL: src, ClickURL: clickTarget(ctx, img)})
	}

	vids, err := x.videos(ctx, f)
	if err != nil {
		return nil, err
	}
	out = append(out, vids...)

	bgs, err := x.backgrounds(ctx, f)
	if err != nil {
		return nil, err
	}
	out = append(out, bgs...)

	children, err := f.ChildFrames(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "media: child frames")
	}
	for _, child := range children {
		sub, err := x.Extract(ctx, child)
		if err != nil {
			return nil, err
		}
		out = append(out, sub...)
	}
	return out, nil
}

func (x *Extractor) videos(ctx context.Context, f browser.Frame) ([]model.AdMedia, error) {
	els, err := f.QueryAll(ctx, x.sel.Video)
	if err != nil {
		return nil, eris.Wrap(err, "media: query videos")
	}
	var out []model.AdMedia
	for _, v := range els {
		src, _, err := v.Attr(ctx, "src")
		if err != nil {
			return nil, eris.Wrap(err, "media: video src")
		}
		if src == "" {
			if source, _ := v.Query(ctx, "source"); source != nil {
				src, _, _ = source.Attr(ctx, "src")
			}
		}
		if src == "" {
			continue
		}
		out = append(out, model.AdMedia{Type: model.MediaVideo, URL: src, ClickURL: clickTarget(ctx, v)})
	}
	return out, nil
}

func (x *Extractor) backgrounds(ctx context.Context, f browser.Frame) ([]model.AdMedia, error) {
	if len(x.sel.Background) == 0 {
		return nil, nil
	}
	// One selector list keeps document order and never repeats an element.
	sel := strings.Join(x.sel.Background, ", ")
	els, err := f.QueryAll(ctx, sel)
	if err != nil {
		return nil, eris.Wrap(err, "media: query backgrounds")
	}
	var out []model.AdMedia
	for _, el := range els {
		style, err := el.ComputedStyle(ctx, "background-image")
		if err != nil {
			zap.L().Debug("background style unavailable", zap.Error(err))
			continue
		}
		u := StripCSSURL(style)
		if u == "" {
			continue
		}
		out = append(out, model.AdMedia{Type: model.MediaImage, URL: u, ClickURL: clickTarget(ctx, el)})
	}
	return out, nil
}

// clickTarget resolves the nearest ancestor anchor, then a descendant
// anchor. Lookup failures resolve to "".
func clickTarget(ctx context.Context, el browser.Element) string {
	if a, err := el.Closest(ctx, "a"); err == nil && a != nil {
		if href, ok, _ := a.Attr(ctx, "href"); ok && href != "" {
			return href
		}
	}
	if a, err := el.Query(ctx, "a"); err == nil && a != nil {
		if href, _, _ := a.Attr(ctx, "href"); href != "" {
			return href
		}
	}
	return ""
}
