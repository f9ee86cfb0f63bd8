package jobs

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.uber.org/zap"

	"github.com/sells-group/adcrawl/internal/crawler"
	"github.com/sells-group/adcrawl/internal/model"
	"github.com/sells-group/adcrawl/pkg/webhook"
)

// DomainLister reads the domains to crawl.
type DomainLister interface {
	GetAllActiveDomains(ctx context.Context) ([]model.Domain, error)
}

// Runner runs one crawl from seed requests.
type Runner interface {
	Run(ctx context.Context, seeds ...crawler.Request) (crawler.Stats, error)
}

// Activities holds the dependencies of the crawl activities.
type Activities struct {
	Domains DomainLister
	Crawler Runner
	Webhook webhook.Sender
	BaseURL string
}

// GetCrawlJobPayloads returns active domains × {TEXT, IMAGE, VIDEO}.
func (a *Activities) GetCrawlJobPayloads(ctx context.Context) ([]Payload, error) {
	domains, err := a.Domains.GetAllActiveDomains(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "jobs: list active domains")
	}
	return DomainPayloads(domains), nil
}

// Crawl runs the crawl of one payload. A failed crawl is reported in the
// result, not as an activity error, so the webhook still receives it.
func (a *Activities) Crawl(ctx context.Context, p Payload) (crawler.Result, error) {
	if err := p.Validate(); err != nil {
		return crawler.Result{}, temporal.NewNonRetryableApplicationError(err.Error(), "InvalidPayload", err)
	}
	log := zap.L().With(zap.String("target", p.Target()), zap.String("format", string(p.Format)))
	if activity.IsActivity(ctx) {
		log = log.With(zap.String("workflow_id", activity.GetInfo(ctx).WorkflowExecution.ID))
	}

	log.Info("crawl started")
	if activity.IsActivity(ctx) {
		defer heartbeat(ctx, heartbeatInterval)()
	}
	stats, err := a.Crawler.Run(ctx, p.Seed(a.BaseURL))
	if err != nil {
		log.Error("crawl failed", zap.Error(err))
	} else {
		log.Info("crawl done",
			zap.Int("finished", stats.RequestsFinished),
			zap.Int("failed", stats.RequestsFailed),
		)
	}
	return crawler.NewResult(stats, err), nil
}

// heartbeatInterval paces Crawl heartbeats; it must stay well under the
// crawl heartbeat timeout.
var heartbeatInterval = 30 * time.Second

// heartbeat records activity heartbeats until the returned stop func runs.
func heartbeat(ctx context.Context, every time.Duration) func() {
	done := make(chan struct{})
	go func() {
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-t.C:
				activity.RecordHeartbeat(ctx)
			}
		}
	}()
	return func() { close(done) }
}

// WebhookInput is the argument of SendWebhook.
type WebhookInput struct {
	Payload Payload        `json:"payload"`
	Result  crawler.Result `json:"result"`
}

// SendWebhook delivers a crawl result to the payload's webhook.
func (a *Activities) SendWebhook(ctx context.Context, in WebhookInput) error {
	if in.Payload.Webhook == "" {
		return nil
	}
	return a.Webhook.Send(ctx, in.Payload.Webhook, in.Payload.WebhookMethod, in.Payload.WebhookBody(in.Result))
}
