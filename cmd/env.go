package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/adcrawl/internal/browser/rodbrowser"
	"github.com/sells-group/adcrawl/internal/crawler"
	"github.com/sells-group/adcrawl/internal/media"
	"github.com/sells-group/adcrawl/internal/router"
	"github.com/sells-group/adcrawl/internal/selectors"
	"github.com/sells-group/adcrawl/internal/staging"
	"github.com/sells-group/adcrawl/internal/store"
)

// crawlEnv holds everything a crawl needs: the store, the staging bridge,
// Chrome and the crawlers built over them.
type crawlEnv struct {
	Store   store.Store
	Stager  staging.Stager
	Browser *rodbrowser.Manager
	Crawler *crawler.Crawler
	// Probe is the single-URL crawler with the small request budget.
	Probe *crawler.Crawler
}

// Close releases resources held by the crawl environment.
func (e *crawlEnv) Close() {
	if e.Browser != nil {
		if err := e.Browser.Close(); err != nil {
			zap.L().Warn("close browser", zap.Error(err))
		}
	}
	if e.Stager != nil {
		_ = e.Stager.Close()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "adcrawl.db"
		}
		s, err := store.NewSQLite(dsn)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "postgres":
		s, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, &cfg.Store.Pool)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initCrawlEnv opens the store and staging bridge, migrates the schema and
// wires the router into both crawlers. Chrome starts on the first page.
// Callers should defer env.Close().
func initCrawlEnv(ctx context.Context, mode string) (*crawlEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	sel, err := selectors.Load(cfg.Extract.SelectorsPath)
	if err != nil {
		return nil, err
	}
	if cfg.Site.ListingAPIMatch != "" {
		sel.Listing.ResponseMatch = cfg.Site.ListingAPIMatch
	}
	lang, err := crawler.ParseLanguage(cfg.Browser.Language)
	if err != nil {
		return nil, err
	}

	env := &crawlEnv{}
	env.Store, err = initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := env.Store.Migrate(ctx); err != nil {
		env.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	env.Stager, err = staging.Open(ctx, cfg.Staging)
	if err != nil {
		env.Close()
		return nil, err
	}

	env.Browser = rodbrowser.NewManager(cfg.BrowserManagerConfig())

	x := media.NewExtractor(sel.Media)
	a := media.NewAssembler(x, sel.Media, cfg.AssemblerConfig())
	r := router.New(cfg.RouterConfig(), sel, x, a, env.Stager, env.Store)

	hooks := []crawler.Hook{
		crawler.AddLanguage(lang),
		crawler.SetViewport(cfg.Browser.ViewportWidth, cfg.Browser.ViewportHeight),
	}
	env.Crawler = crawler.New(cfg.CrawlerConfig(), env.Browser, r, hooks...)
	env.Probe = crawler.New(cfg.ProbeConfig(), env.Browser, r, hooks...)

	zap.L().Info("crawl environment ready",
		zap.String("store", cfg.Store.Driver),
		zap.String("staging", cfg.Staging.Driver),
		zap.String("site", cfg.Site.BaseURL),
		zap.Bool("headless", cfg.Browser.Headless),
	)
	return env, nil
}
