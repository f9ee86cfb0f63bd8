package router

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/adcrawl/internal/browser"
	"github.com/sells-group/adcrawl/internal/crawler"
	"github.com/sells-group/adcrawl/internal/metrics"
	"github.com/sells-group/adcrawl/internal/model"
	"github.com/sells-group/adcrawl/internal/staging"
)

// handleDetail reads one creative detail page, merges it with whatever the
// listing phase staged and saves it.
func (r *Router) handleDetail(ctx context.Context, v *crawler.Visit) error {
	page := v.Page
	sel := r.sel.Detail

	advertiserCode, code := ExtractIDs(v.Request.URL)
	if code == "" {
		return eris.Wrapf(model.ErrInvalidURL, "router: detail %s", v.Request.URL)
	}
	log := r.log.With(zap.String("creative", code))

	if err := page.WaitNetworkIdle(ctx, r.cfg.NetworkIdle); err != nil {
		log.Debug("network not idle", zap.Error(err))
	}
	nameEl, err := page.WaitElement(ctx, sel.AdvertiserName, browser.StateAttached, r.cfg.ElementTimeout)
	if err != nil {
		return required("detail", sel.AdvertiserName, err)
	}

	c := &model.Creative{
		Code:       code,
		Link:       v.Request.URL,
		Advertiser: model.Advertiser{Code: advertiserCode, Name: textOf(ctx, nameEl)},
	}
	if label := r.queryText(ctx, page, sel.LastShown); label != "" {
		c.LastShownAt = ExtractDate(label)
	}
	if label := r.queryText(ctx, page, sel.Format); label != "" {
		c.Format = ExtractFormat(label)
	}

	rec, err := r.readStaged(ctx, code)
	if err != nil {
		return err
	}
	rec.Shell.Overlay(c)
	if !c.Format.Valid() {
		if q, err := ExtractDetailQuery(v.Request.URL); err == nil && q.Format.Valid() {
			c.Format = q.Format
		} else {
			c.Format = model.FormatText
		}
	}

	if c.Regions, err = r.readRegions(ctx, page); err != nil {
		return err
	}
	if c.Variants, err = r.readVariants(ctx, page, c.Format, log); err != nil {
		return err
	}

	c.PreviewImage = rec.PreviewImage
	c.Domain = rec.Domain
	if c.Domain == "" {
		if q, err := ExtractDetailQuery(v.Request.URL); err == nil {
			c.Domain = q.Domain
		}
	}

	// A cancelled visit never reaches the store half-assembled.
	if err := ctx.Err(); err != nil {
		return eris.Wrap(err, "router: detail")
	}

	start := time.Now()
	err = r.store.SaveCreative(ctx, c)
	metrics.SaveDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.CreativesSaved.WithLabelValues(string(c.Format), "error").Inc()
		return eris.Wrapf(err, "router: detail: save %s", code)
	}
	metrics.CreativesSaved.WithLabelValues(string(c.Format), "ok").Inc()

	if err := staging.Consume(ctx, r.stager, code); err != nil {
		log.Warn("staged keys not consumed", zap.Error(err))
	}
	log.Info("creative saved",
		zap.String("advertiser", c.Advertiser.Code),
		zap.String("format", string(c.Format)),
		zap.Int("variants", len(c.Variants)),
		zap.Int("regions", len(c.Regions)),
	)
	return nil
}

func (r *Router) readStaged(ctx context.Context, code string) (staging.Record, error) {
	rec, err := staging.Read(ctx, r.stager, code)
	if err != nil {
		return rec, eris.Wrapf(err, "router: detail: read staged %s", code)
	}
	metrics.StagingReads.WithLabelValues("creative", metrics.Hit(rec.Shell != nil)).Inc()
	metrics.StagingReads.WithLabelValues("image", metrics.Hit(rec.PreviewImage != "")).Inc()
	metrics.StagingReads.WithLabelValues("domain", metrics.Hit(rec.Domain != "")).Inc()
	if rec.Empty() {
		r.log.Debug("nothing staged for creative", zap.String("creative", code))
	}
	return rec, nil
}

// readRegions opens the region filter when present and reads the visible
// region labels.
func (r *Router) readRegions(ctx context.Context, page browser.Page) ([]string, error) {
	sel := r.sel.Detail
	if visible, _ := page.Visible(ctx, sel.RegionFilter); visible {
		if filter, err := page.Query(ctx, sel.RegionFilter); err == nil && filter != nil {
			if err := filter.Click(ctx); err != nil {
				r.log.Debug("region filter click failed", zap.Error(err))
			}
		}
	}
	labels, err := page.QueryAll(ctx, sel.RegionLabels)
	if err != nil {
		return nil, eris.Wrap(err, "router: detail: query regions")
	}
	regions := make([]string, 0, len(labels))
	for _, l := range labels {
		if ok, _ := l.Visible(ctx); !ok {
			continue
		}
		if name := textOf(ctx, l); name != "" {
			regions = append(regions, name)
		}
	}
	return regions, nil
}

// readVariants assembles one variant per creative element. A variant that
// fails is logged and skipped; cancellation aborts the visit.
func (r *Router) readVariants(ctx context.Context, page browser.Page, format model.Format, log *zap.Logger) ([]model.Variant, error) {
	sel := r.sel.Detail

	if _, err := page.WaitElement(ctx, sel.CreativeFrame, browser.StateAttached, r.cfg.FrameWait); err != nil {
		log.Debug("no creative frame attached", zap.Error(err))
	}
	r.extractor.DumpFrameTree(ctx, page)

	elements, err := page.QueryAll(ctx, sel.Creative)
	if err != nil {
		return nil, eris.Wrap(err, "router: detail: query creatives")
	}
	if len(elements) == 0 && sel.CreativeFallback != "" {
		if elements, err = page.QueryAll(ctx, sel.CreativeFallback); err != nil {
			return nil, eris.Wrap(err, "router: detail: query creatives")
		}
	}
	log.Debug("creative elements", zap.Int("count", len(elements)))

	variants := make([]model.Variant, 0, len(elements))
	for i, el := range elements {
		v, err := r.assembler.Assemble(ctx, el, format)
		if err != nil {
			if ctx.Err() != nil {
				return nil, eris.Wrap(ctx.Err(), "router: detail: assemble")
			}
			reason := "error"
			if errors.Is(err, model.ErrFrameNotFound) {
				reason = "frame_not_found"
			}
			metrics.VariantsSkipped.WithLabelValues(reason).Inc()
			log.Warn("skipping variant", zap.Int("index", i), zap.Error(err))
		} else {
			variants = append(variants, *v)
		}

		if i < len(elements)-1 {
			r.advance(ctx, page)
		}
	}
	return variants, nil
}

// advance clicks the next-variant control when it is visible.
func (r *Router) advance(ctx context.Context, page browser.Page) {
	next := r.sel.Detail.Next
	if visible, _ := page.Visible(ctx, next); !visible {
		return
	}
	el, err := page.Query(ctx, next)
	if err != nil || el == nil {
		return
	}
	if err := el.Click(ctx); err != nil {
		r.log.Debug("next variant click failed", zap.Error(err))
	}
}

func (r *Router) queryText(ctx context.Context, page browser.Page, selector string) string {
	el, err := page.Query(ctx, selector)
	if err != nil || el == nil {
		return ""
	}
	return textOf(ctx, el)
}

func textOf(ctx context.Context, el browser.Element) string {
	s, err := el.Text(ctx)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}
