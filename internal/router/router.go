// Package router classifies rendered pages of the transparency site and runs
// the listing or detail handler for each.
package router

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/adcrawl/internal/crawler"
	"github.com/sells-group/adcrawl/internal/media"
	"github.com/sells-group/adcrawl/internal/metrics"
	"github.com/sells-group/adcrawl/internal/model"
	"github.com/sells-group/adcrawl/internal/selectors"
	"github.com/sells-group/adcrawl/internal/staging"
)

// Label is the request label a visit was enqueued with.
type Label string

const (
	// LabelListing marks a search or advertiser listing visit. Unlabelled
	// visits are listings too.
	LabelListing Label = "SEARCH_PAGE"
	// LabelDetail marks a creative detail visit.
	LabelDetail Label = "ADS_DETAIL"
)

// ParseLabel maps a request label onto the closed label set.
func ParseLabel(s string) (Label, error) {
	switch Label(s) {
	case LabelListing, "":
		return LabelListing, nil
	case LabelDetail:
		return LabelDetail, nil
	default:
		return "", eris.Errorf("router: unknown label %q", s)
	}
}

// Store is the persistence the router writes through.
type Store interface {
	SaveCreative(ctx context.Context, c *model.Creative) error
	UpsertAdvertiser(ctx context.Context, a model.Advertiser) error
}

// Config bounds the router's waits.
type Config struct {
	// BaseURL of the transparency site, used to build detail links.
	BaseURL string
	// ElementTimeout bounds waits for required markup.
	ElementTimeout time.Duration
	// ResponseTimeout bounds the wait for the listing API response.
	ResponseTimeout time.Duration
	NetworkIdle     time.Duration
	// ThumbnailWait bounds the per-anchor thumbnail wait.
	ThumbnailWait time.Duration
	// FrameWait bounds the wait for the first creative iframe.
	FrameWait time.Duration
}

// DefaultConfig returns production timeouts.
func DefaultConfig() Config {
	return Config{
		BaseURL:         "https://adstransparency.google.com",
		ElementTimeout:  30 * time.Second,
		ResponseTimeout: 30 * time.Second,
		NetworkIdle:     10 * time.Second,
		ThumbnailWait:   5 * time.Second,
		FrameWait:       2 * time.Second,
	}
}

// Router dispatches visits by label.
type Router struct {
	cfg       Config
	sel       selectors.Set
	extractor *media.Extractor
	assembler *media.Assembler
	stager    staging.Stager
	store     Store
	log       *zap.Logger
}

// New creates a Router.
func New(cfg Config, sel selectors.Set, x *media.Extractor, a *media.Assembler, st staging.Stager, store Store) *Router {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.ElementTimeout <= 0 {
		cfg.ElementTimeout = def.ElementTimeout
	}
	if cfg.ResponseTimeout <= 0 {
		cfg.ResponseTimeout = def.ResponseTimeout
	}
	if cfg.NetworkIdle <= 0 {
		cfg.NetworkIdle = def.NetworkIdle
	}
	if cfg.ThumbnailWait <= 0 {
		cfg.ThumbnailWait = def.ThumbnailWait
	}
	if cfg.FrameWait <= 0 {
		cfg.FrameWait = def.FrameWait
	}
	return &Router{
		cfg:       cfg,
		sel:       sel,
		extractor: x,
		assembler: a,
		stager:    st,
		store:     store,
		log:       zap.L().Named("router"),
	}
}

var _ crawler.Handler = (*Router)(nil)

// Handle implements crawler.Handler.
func (r *Router) Handle(ctx context.Context, v *crawler.Visit) error {
	label, err := ParseLabel(v.Request.Label)
	if err != nil {
		metrics.VisitsTotal.WithLabelValues(v.Request.Label, "invalid").Inc()
		return err
	}

	switch label {
	case LabelDetail:
		err = r.handleDetail(ctx, v)
	default:
		err = r.handleListing(ctx, v)
	}

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.VisitsTotal.WithLabelValues(string(label), outcome).Inc()
	return err
}

// required wraps a failed wait for markup the page cannot do without.
func required(stage, selector string, err error) error {
	return eris.Wrapf(model.ErrRequiredElementNotFound, "router: %s: %q: %v", stage, selector, err)
}
