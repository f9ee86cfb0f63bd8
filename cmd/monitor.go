package main

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/adcrawl/internal/jobs"
	"github.com/sells-group/adcrawl/internal/monitoring"
	"github.com/sells-group/adcrawl/pkg/webhook"
)

// watchCrawls wraps the crawl runner so its runs are recorded and, when an
// alert webhook is configured, starts the alert checker until ctx ends.
func watchCrawls(ctx context.Context, env *crawlEnv, sender webhook.Sender) jobs.Runner {
	rec := monitoring.NewRecorder()
	runner := monitoring.Observe(env.Crawler, rec)

	if cfg.Monitoring.WebhookURL == "" {
		zap.L().Debug("monitoring webhook not set, alerts disabled")
		return runner
	}

	collector := monitoring.NewCollector(rec, env.Crawler)
	alerter := monitoring.NewAlerter(cfg.Monitoring, sender)
	go monitoring.NewChecker(collector, alerter, cfg.Monitoring).Run(ctx)
	return runner
}
