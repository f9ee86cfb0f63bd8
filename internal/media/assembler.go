package media

import (
	"context"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/adcrawl/internal/browser"
	"github.com/sells-group/adcrawl/internal/model"
	"github.com/sells-group/adcrawl/internal/selectors"
)

// AssemblerConfig tunes the bounded waits of variant assembly.
type AssemblerConfig struct {
	// FrameWait bounds the wait for an iframe document to attach.
	FrameWait time.Duration
	// PollInterval is how often an unattached iframe is re-checked.
	PollInterval time.Duration
	// StableWait is the quiet period a video frame must reach before the
	// screenshot.
	StableWait time.Duration
	// VideoSettle is the fixed delay after the frame is stable.
	VideoSettle time.Duration
	// SanitizeHTML strips scripts and handlers from captured HTML.
	SanitizeHTML bool
}

// DefaultAssemblerConfig returns the production waits.
func DefaultAssemblerConfig() AssemblerConfig {
	return AssemblerConfig{
		FrameWait:    2 * time.Second,
		PollInterval: 100 * time.Millisecond,
		StableWait:   time.Second,
		VideoSettle:  1500 * time.Millisecond,
	}
}

// Assembler builds one Variant per creative element.
type Assembler struct {
	cfg    AssemblerConfig
	x      *Extractor
	sel    selectors.Media
	policy *bluemonday.Policy
}

// NewAssembler creates an Assembler. Zero durations in cfg take defaults.
func NewAssembler(x *Extractor, sel selectors.Media, cfg AssemblerConfig) *Assembler {
	def := DefaultAssemblerConfig()
	if cfg.FrameWait <= 0 {
		cfg.FrameWait = def.FrameWait
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.StableWait <= 0 {
		cfg.StableWait = def.StableWait
	}
	if cfg.VideoSettle < 0 {
		cfg.VideoSettle = 0
	}
	a := &Assembler{cfg: cfg, x: x, sel: sel}
	if cfg.SanitizeHTML {
		a.policy = bluemonday.UGCPolicy()
	}
	return a
}

// Assemble reads one creative element. An element hosting an iframe is
// frame-backed and fails with model.ErrFrameNotFound when the frame never
// attaches. Any other element is read shallowly.
func (a *Assembler) Assemble(ctx context.Context, el browser.Element, format model.Format) (*model.Variant, error) {
	iframe, err := el.Query(ctx, "iframe")
	if err != nil {
		return nil, eris.Wrap(err, "media: find iframe")
	}
	if iframe == nil {
		return a.assemblePlain(ctx, el, format)
	}

	fr, err := a.waitFrame(ctx, iframe)
	if err != nil {
		return nil, err
	}

	v := &model.Variant{IframeURL: fr.URL()}
	if v.IframeURL == "" {
		v.IframeURL, _, _ = iframe.Attr(ctx, "src")
	}

	switch format {
	case model.FormatText:
		// Text ads are captured by screenshot only.
	case model.FormatVideo:
		if v.Medias, err = a.x.Extract(ctx, fr); err != nil {
			return nil, err
		}
		if err := fr.WaitStable(ctx, a.cfg.StableWait); err != nil {
			zap.L().Debug("video frame not stable", zap.String("frame", v.IframeURL), zap.Error(err))
		}
		if err := sleep(ctx, a.cfg.VideoSettle); err != nil {
			return nil, eris.Wrap(err, "media: video settle")
		}
	default:
		if v.Medias, err = a.x.Extract(ctx, fr); err != nil {
			return nil, err
		}
		if v.HTML, err = a.frameHTML(ctx, fr); err != nil {
			return nil, err
		}
	}

	shot, err := iframe.Screenshot(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "media: screenshot")
	}
	v.Screenshot = DataURI(shot)
	return v, nil
}

// assemblePlain captures a creative rendered without an iframe. TEXT
// creatives carry no medias.
func (a *Assembler) assemblePlain(ctx context.Context, el browser.Element, format model.Format) (*model.Variant, error) {
	v := &model.Variant{}
	if format != model.FormatText {
		imgs, err := el.Children(ctx, a.sel.Image)
		if err != nil {
			return nil, eris.Wrap(err, "media: plain images")
		}
		for _, img := range imgs {
			src, _, err := img.Attr(ctx, "src")
			if err != nil {
				return nil, eris.Wrap(err, "media: plain image src")
			}
			if src == "" {
				continue
			}
			v.Medias = append(v.Medias, model.AdMedia{Type: model.MediaImage, URL: src, ClickURL: ancestorHref(ctx, el)})
		}
	}
	if format == model.FormatImage {
		h, err := el.HTML(ctx)
		if err != nil {
			return nil, eris.Wrap(err, "media: plain html")
		}
		v.HTML = a.sanitize(h)
	}
	shot, err := el.Screenshot(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "media: screenshot")
	}
	v.Screenshot = DataURI(shot)
	return v, nil
}

func (a *Assembler) waitFrame(ctx context.Context, iframe browser.Element) (browser.Frame, error) {
	deadline := time.Now().Add(a.cfg.FrameWait)
	for {
		fr, err := iframe.ContentFrame(ctx)
		if err != nil {
			return nil, eris.Wrap(err, "media: content frame")
		}
		if fr != nil {
			return fr, nil
		}
		if !time.Now().Before(deadline) {
			return nil, eris.Wrapf(model.ErrFrameNotFound, "media: no frame after %s", a.cfg.FrameWait)
		}
		if err := sleep(ctx, a.cfg.PollInterval); err != nil {
			return nil, eris.Wrap(err, "media: wait frame")
		}
	}
}

func (a *Assembler) frameHTML(ctx context.Context, fr browser.Frame) (string, error) {
	h, err := fr.HTML(ctx)
	if err != nil {
		return "", eris.Wrap(err, "media: frame html")
	}
	return a.sanitize(h), nil
}

func (a *Assembler) sanitize(h string) string {
	if a.policy == nil {
		return h
	}
	return a.policy.Sanitize(h)
}

// ancestorHref resolves the anchor wrapping a plain element, if any.
func ancestorHref(ctx context.Context, el browser.Element) string {
	a, err := el.Closest(ctx, "a")
	if err != nil || a == nil {
		return ""
	}
	href, _, _ := a.Attr(ctx, "href")
	return href
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
