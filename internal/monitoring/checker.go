package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/adcrawl/internal/config"
)

const defaultCheckInterval = 5 * time.Minute

// Checker periodically collects a snapshot and sends the alerts it raises.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	interval  time.Duration
	lookback  int
}

// NewChecker builds a Checker from the monitoring config.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	interval := time.Duration(cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = defaultCheckInterval
	}
	lookback := cfg.LookbackWindowHours
	if lookback <= 0 {
		lookback = 24
	}
	return &Checker{collector: collector, alerter: alerter, interval: interval, lookback: lookback}
}

// Run checks on every tick until ctx is done.
func (c *Checker) Run(ctx context.Context) {
	log := zap.L().Named("monitoring")
	log.Info("alert checker started",
		zap.Duration("interval", c.interval),
		zap.Int("lookback_hours", c.lookback),
	)

	t := time.NewTicker(c.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("alert checker stopped")
			return
		case <-t.C:
			c.check(ctx, log)
		}
	}
}

// check runs one evaluation and returns the number of alerts sent.
func (c *Checker) check(ctx context.Context, log *zap.Logger) int {
	snap := c.collector.Collect(c.lookback)
	alerts := c.alerter.Evaluate(snap)
	if len(alerts) == 0 {
		return 0
	}
	sent := c.alerter.SendAlerts(ctx, alerts)
	log.Info("crawl health degraded",
		zap.Int("runs", snap.Runs),
		zap.Float64("fail_rate", snap.RequestFailRate),
		zap.Int("blocked", snap.Blocked),
		zap.Int("alerts", len(alerts)),
		zap.Int("sent", sent),
	)
	return sent
}
