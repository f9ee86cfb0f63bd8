// Package crawler runs bounded crawls: an in-memory request queue, a
// bounded worker pool, request throttling and retries of transient page
// failures. Page semantics belong to the Handler.
package crawler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/adcrawl/internal/browser"
	"github.com/sells-group/adcrawl/internal/metrics"
	"github.com/sells-group/adcrawl/internal/resilience"
)

// Config bounds a crawl. Zero values take the defaults.
type Config struct {
	MaxRequestsPerCrawl  int
	MaxRequestRetries    int
	MaxRequestsPerMinute int
	MaxConcurrency       int
	// RequestTimeout bounds one attempt: navigation plus handling.
	RequestTimeout time.Duration
	RetryBackoff   time.Duration
	// BlockThreshold consecutive blocked pages pause the crawl for
	// BlockCooldown.
	BlockThreshold int
	BlockCooldown  time.Duration
}

// DefaultConfig returns the production crawl bounds.
func DefaultConfig() Config {
	return Config{
		MaxRequestsPerCrawl:  30,
		MaxRequestRetries:    3,
		MaxRequestsPerMinute: 10,
		MaxConcurrency:       2,
		RequestTimeout:       3 * time.Minute,
		RetryBackoff:         2 * time.Second,
		BlockThreshold:       3,
		BlockCooldown:        5 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MaxRequestsPerCrawl <= 0 {
		c.MaxRequestsPerCrawl = def.MaxRequestsPerCrawl
	}
	if c.MaxRequestRetries < 0 {
		c.MaxRequestRetries = 0
	}
	if c.MaxRequestsPerMinute <= 0 {
		c.MaxRequestsPerMinute = def.MaxRequestsPerMinute
	}
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = def.MaxConcurrency
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = def.RequestTimeout
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = def.RetryBackoff
	}
	if c.BlockThreshold <= 0 {
		c.BlockThreshold = def.BlockThreshold
	}
	if c.BlockCooldown <= 0 {
		c.BlockCooldown = def.BlockCooldown
	}
	return c
}

// Stats summarises one crawl run. Blocked counts failed requests that hit
// an anti-bot page or the open block breaker.
type Stats struct {
	RunID            string        `json:"run_id"`
	RequestsTotal    int           `json:"requests_total"`
	RequestsFinished int           `json:"requests_finished"`
	RequestsFailed   int           `json:"requests_failed"`
	Retries          int           `json:"retries"`
	Dropped          int           `json:"dropped"`
	Blocked          int           `json:"blocked"`
	Failures         []Failure     `json:"failures,omitempty"`
	StartedAt        time.Time     `json:"started_at"`
	Duration         time.Duration `json:"duration"`
}

// Failure records a request that exhausted its attempts.
type Failure struct {
	URL      string `json:"url"`
	Label    string `json:"label,omitempty"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error"`
}

// Result is what a crawl reports to callers and webhooks.
type Result struct {
	Stats Stats  `json:"stats"`
	Error string `json:"error,omitempty"`
}

// NewResult pairs run stats with the run error, if any.
func NewResult(stats Stats, err error) Result {
	r := Result{Stats: stats}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

// Crawler runs crawls. It is safe to run several crawls on one Crawler.
type Crawler struct {
	cfg     Config
	opener  browser.Opener
	handler Handler
	hooks   []Hook
	limiter *rate.Limiter
	breaker *resilience.Breaker
	log     *zap.Logger
}

// New creates a Crawler. Hooks run in order before every navigation.
func New(cfg Config, opener browser.Opener, h Handler, hooks ...Hook) *Crawler {
	cfg = cfg.withDefaults()
	log := zap.L().Named("crawler")
	return &Crawler{
		cfg:     cfg,
		opener:  opener,
		handler: h,
		hooks:   hooks,
		limiter: rate.NewLimiter(rate.Limit(float64(cfg.MaxRequestsPerMinute)/60), 1),
		breaker: resilience.NewBreaker(resilience.BreakerConfig{
			FailureThreshold: cfg.BlockThreshold,
			ResetTimeout:     cfg.BlockCooldown,
			ShouldTrip:       func(err error) bool { return errors.Is(err, ErrBlocked) },
			OnStateChange: func(from, to resilience.CircuitState) {
				log.Warn("block breaker state change",
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			},
		}),
		log: log,
	}
}

// Run crawls from seeds until the queue drains or ctx is done. Failed
// requests are reported in Stats, not as the returned error.
func (c *Crawler) Run(ctx context.Context, seeds ...Request) (Stats, error) {
	stats := Stats{RunID: uuid.NewString(), StartedAt: time.Now()}
	log := c.log.With(zap.String("run_id", stats.RunID))

	if len(seeds) == 0 {
		return stats, eris.New("crawler: no seed requests")
	}

	q := newQueue(c.cfg.MaxRequestsPerCrawl)
	for _, s := range seeds {
		q.add(s)
	}

	var (
		finished, failed, retries, blocked atomic.Int64
		mu                                 sync.Mutex
		failures                           []Failure
	)

	var g errgroup.Group
	g.SetLimit(c.cfg.MaxConcurrency)
	for {
		req, ok := q.next(ctx)
		if !ok {
			break
		}
		g.Go(func() error {
			defer q.done()
			logRetry := resilience.RetryLogger(req.URL)
			attempts, err := c.process(ctx, q, req, func(attempt int, err error) {
				retries.Add(1)
				logRetry(attempt, err)
			})
			if err != nil {
				failed.Add(1)
				if errors.Is(err, ErrBlocked) || errors.Is(err, resilience.ErrCircuitOpen) {
					blocked.Add(1)
				}
				metrics.CrawlRequests.WithLabelValues("failed").Inc()
				log.Error("request failed",
					zap.String("url", req.URL),
					zap.String("label", req.Label),
					zap.Int("attempts", attempts),
					zap.Error(err),
				)
				mu.Lock()
				failures = append(failures, Failure{URL: req.URL, Label: req.Label, Attempts: attempts, Error: err.Error()})
				mu.Unlock()
				return nil
			}
			finished.Add(1)
			metrics.CrawlRequests.WithLabelValues("finished").Inc()
			return nil
		})
	}
	_ = g.Wait()

	stats.RequestsTotal, stats.Dropped = q.counts()
	stats.RequestsFinished = int(finished.Load())
	stats.RequestsFailed = int(failed.Load())
	stats.Retries = int(retries.Load())
	stats.Blocked = int(blocked.Load())
	stats.Failures = failures
	stats.Duration = time.Since(stats.StartedAt)
	metrics.CrawlDuration.Observe(stats.Duration.Seconds())

	log.Info("crawl finished",
		zap.Int("requests", stats.RequestsTotal),
		zap.Int("finished", stats.RequestsFinished),
		zap.Int("failed", stats.RequestsFailed),
		zap.Int("retries", stats.Retries),
		zap.Int("dropped", stats.Dropped),
		zap.Duration("duration", stats.Duration),
	)

	if err := ctx.Err(); err != nil {
		return stats, eris.Wrap(err, "crawler: run")
	}
	return stats, nil
}

// process runs one request with retries and returns the attempts made.
func (c *Crawler) process(ctx context.Context, q *queue, req Request, onRetry func(int, error)) (int, error) {
	retry := resilience.FromMaxRetries(c.cfg.MaxRequestRetries, c.cfg.RetryBackoff)
	retry.OnRetry = onRetry

	attempts := 0
	err := resilience.Do(ctx, retry, func(ctx context.Context) error {
		attempts++
		if err := c.limiter.Wait(ctx); err != nil {
			return eris.Wrap(err, "crawler: throttle")
		}
		r := req
		r.Attempts = attempts
		return c.breaker.Execute(ctx, func(ctx context.Context) error {
			return c.visit(ctx, q, r)
		})
	})
	return attempts, err
}

// visit opens a page, runs the hooks, navigates and hands the page to the
// handler.
func (c *Crawler) visit(ctx context.Context, q *queue, req Request) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	page, err := c.opener.NewPage(ctx)
	if err != nil {
		return resilience.Transient(eris.Wrap(err, "crawler: open page"))
	}
	defer func() {
		if cerr := page.Close(); cerr != nil {
			c.log.Debug("page close failed", zap.Error(cerr))
		}
	}()

	for _, h := range c.hooks {
		if err := h(ctx, page, &req); err != nil {
			return err
		}
	}

	if err := page.Navigate(ctx, req.URL); err != nil {
		return resilience.Transient(eris.Wrapf(err, "crawler: navigate %s", req.URL))
	}
	if err := checkBlocked(ctx, page); err != nil {
		if errors.Is(err, ErrBlocked) {
			return resilience.Transient(err)
		}
		return err
	}

	return c.handler.Handle(ctx, &Visit{Request: req, Page: page, enqueue: q.add})
}

// BreakerState exposes the block breaker state for health reporting.
func (c *Crawler) BreakerState() resilience.CircuitState {
	return c.breaker.State()
}
