package router

import (
	"context"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/adcrawl/internal/browser"
	"github.com/sells-group/adcrawl/internal/crawler"
	"github.com/sells-group/adcrawl/internal/model"
	"github.com/sells-group/adcrawl/internal/staging"
)

// handleListing searches for the domain or term of the visit, stages what
// the listing reveals about each creative and enqueues its detail visit.
func (r *Router) handleListing(ctx context.Context, v *crawler.Visit) error {
	page := v.Page
	sel := r.sel.Listing

	q, err := ExtractDetailQuery(v.Request.URL)
	if err != nil {
		return err
	}
	search := q.SearchText()
	if search == "" {
		return eris.Wrapf(model.ErrDomainMissing, "router: listing %s", v.Request.URL)
	}
	log := r.log.With(zap.String("search", search), zap.String("format", string(q.Format)))

	input, err := page.WaitElement(ctx, sel.SearchInput, browser.StateVisible, r.cfg.ElementTimeout)
	if err != nil {
		return required("listing", sel.SearchInput, err)
	}
	if err := input.Type(ctx, search); err != nil {
		return eris.Wrap(err, "router: listing: type search")
	}
	if _, err := page.WaitElement(ctx, sel.Suggestions, browser.StateVisible, r.cfg.ElementTimeout); err != nil {
		return required("listing", sel.Suggestions, err)
	}

	// Armed before the click that fires the listing API call.
	waiter, err := page.ExpectResponse(ctx, browser.ResponseMatch{URLContains: sel.ResponseMatch})
	if err != nil {
		return eris.Wrap(err, "router: listing: arm response waiter")
	}

	first, err := page.WaitElement(ctx, sel.FirstSuggestion, browser.StateAttached, r.cfg.ElementTimeout)
	if err != nil {
		return required("listing", sel.FirstSuggestion, err)
	}
	if text, err := first.Text(ctx); err == nil {
		log.Debug("first suggestion", zap.String("text", strings.TrimSpace(text)))
	}
	if err := first.Click(ctx); err != nil {
		return eris.Wrap(err, "router: listing: click suggestion")
	}
	if err := page.WaitNetworkIdle(ctx, r.cfg.NetworkIdle); err != nil {
		log.Debug("network not idle after search", zap.Error(err))
	}

	advertiserOnly := isAdvertiserPage(page.URL())
	if advertiserOnly {
		if err := r.upsertListedAdvertiser(ctx, page); err != nil {
			return err
		}
	}

	shells, err := r.correlateListing(ctx, waiter)
	switch {
	case err != nil && !advertiserOnly:
		return err
	case err != nil:
		log.Warn("advertiser page without listing response", zap.Error(err))
	}
	for _, shell := range shells {
		if shell.AdvertiserCode != "" {
			shell.Link = DetailURL(r.cfg.BaseURL, shell.AdvertiserCode, shell.Code)
		}
		if err := staging.StageShell(ctx, r.stager, shell); err != nil {
			return eris.Wrapf(err, "router: listing: stage %s", shell.Code)
		}
	}

	if advertiserOnly {
		// An advertiser page without a grid has nothing else to read.
		grid, err := page.Query(ctx, sel.Grid)
		if err != nil || grid == nil {
			log.Info("advertiser page without creative grid", zap.Int("staged", len(shells)))
			return nil
		}
	} else if _, err := page.WaitElement(ctx, sel.Grid, browser.StateAttached, r.cfg.ElementTimeout); err != nil {
		return required("listing", sel.Grid, err)
	}

	if visible, _ := page.Visible(ctx, sel.LoadMore); visible {
		if more, err := page.Query(ctx, sel.LoadMore); err == nil && more != nil {
			if err := more.Click(ctx); err != nil {
				log.Warn("load more click failed", zap.Error(err))
			} else if err := page.WaitNetworkIdle(ctx, r.cfg.NetworkIdle); err != nil {
				log.Debug("network not idle after load more", zap.Error(err))
			}
		}
	}

	anchors, err := page.QueryAll(ctx, sel.Anchor)
	if err != nil {
		return eris.Wrap(err, "router: listing: query anchors")
	}

	var enqueued, failed int
	for _, a := range anchors {
		if err := ctx.Err(); err != nil {
			return eris.Wrap(err, "router: listing")
		}
		ok, err := r.handleAnchor(ctx, v, a, search)
		if err != nil {
			failed++
			log.Warn("skipping creative anchor", zap.Error(err))
			continue
		}
		if ok {
			enqueued++
		}
	}
	log.Info("listing processed",
		zap.Bool("advertiser_only", advertiserOnly),
		zap.Int("staged", len(shells)),
		zap.Int("anchors", len(anchors)),
		zap.Int("enqueued", enqueued),
		zap.Int("failed", failed),
	)
	return nil
}

// correlateListing waits for the listing API response and decodes its
// creative summaries.
func (r *Router) correlateListing(ctx context.Context, w browser.ResponseWaiter) ([]model.StagedCreative, error) {
	resp, err := w.Wait(ctx, r.cfg.ResponseTimeout)
	if err != nil {
		return nil, eris.Wrapf(model.ErrNetworkResponseNotCorrelated, "router: listing: %v", err)
	}
	if resp.Status < 200 || resp.Status >= 300 {
		return nil, eris.Wrapf(model.ErrNetworkResponseNotCorrelated, "router: listing: status %d from %s", resp.Status, resp.URL)
	}
	shells, err := ParseListingResponse(resp.Body)
	if err != nil {
		return nil, eris.Wrapf(model.ErrNetworkResponseNotCorrelated, "router: listing: %v", err)
	}
	return shells, nil
}

func (r *Router) upsertListedAdvertiser(ctx context.Context, page browser.Page) error {
	code := ExtractAdvertiserCode(page.URL())
	var name string
	if el, err := page.Query(ctx, r.sel.Listing.AdvertiserName); err == nil && el != nil {
		if text, err := el.Text(ctx); err == nil {
			name = strings.TrimSpace(text)
		}
	}
	if code == "" {
		return eris.Wrapf(model.ErrRequiredElementNotFound, "router: listing: no advertiser code in %s", page.URL())
	}
	if err := r.store.UpsertAdvertiser(ctx, model.Advertiser{Code: code, Name: name}); err != nil {
		return eris.Wrapf(err, "router: listing: upsert advertiser %s", code)
	}
	r.log.Info("advertiser upserted", zap.String("advertiser", code), zap.String("name", name))
	return nil
}

// handleAnchor stages the thumbnail and search context of one listed
// creative and enqueues its detail visit.
func (r *Router) handleAnchor(ctx context.Context, v *crawler.Visit, a browser.Element, search string) (bool, error) {
	href, ok, err := a.Attr(ctx, "href")
	if err != nil || !ok || href == "" {
		return false, eris.Errorf("router: anchor without href: %v", err)
	}
	abs, err := absolute(v.Request.URL, href)
	if err != nil {
		return false, err
	}
	_, code := ExtractIDs(abs)
	if code == "" {
		return false, eris.Wrapf(model.ErrInvalidURL, "router: anchor %s", href)
	}

	if err := a.ScrollIntoView(ctx); err != nil {
		return false, eris.Wrapf(err, "router: scroll %s", code)
	}
	img, err := a.WaitQuery(ctx, r.sel.Listing.Thumbnail, r.cfg.ThumbnailWait)
	if err != nil {
		return false, eris.Wrapf(err, "router: thumbnail %s", code)
	}
	if src, ok, _ := img.Attr(ctx, "src"); ok && src != "" {
		if err := r.stager.Stage(ctx, staging.ImageKey(code), src); err != nil {
			return false, eris.Wrapf(err, "router: stage image %s", code)
		}
	}
	if err := r.stager.Stage(ctx, staging.DomainKey(code), search); err != nil {
		return false, eris.Wrapf(err, "router: stage domain %s", code)
	}
	return v.Enqueue(abs, string(LabelDetail))
}

func isAdvertiserPage(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return strings.HasPrefix(u.Path, "/advertiser/")
}

func absolute(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", eris.Wrapf(model.ErrInvalidURL, "router: base %q: %v", base, err)
	}
	r, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", eris.Wrapf(model.ErrInvalidURL, "router: href %q: %v", ref, err)
	}
	return b.ResolveReference(r).String(), nil
}
