package monitoring

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/adcrawl/internal/config"
	"github.com/sells-group/adcrawl/pkg/webhook"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertRequestFailureRate AlertType = "request_failure_rate"
	AlertBlocked            AlertType = "blocked"
	AlertNoProgress         AlertType = "no_progress"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter turns snapshots into alerts and delivers them.
type Alerter struct {
	cfg    config.MonitoringConfig
	sender webhook.Sender
	now    func() time.Time

	mu       sync.Mutex
	lastSent map[AlertType]time.Time
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig, sender webhook.Sender) *Alerter {
	return &Alerter{
		cfg:      cfg,
		sender:   sender,
		now:      time.Now,
		lastSent: make(map[AlertType]time.Time),
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *Snapshot) []Alert {
	var alerts []Alert
	now := a.now().UTC()

	done := snap.RequestsFinished + snap.RequestsFailed
	if done >= 5 && snap.RequestFailRate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertRequestFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Request failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d done in last %dh)",
				snap.RequestFailRate*100, a.cfg.FailureRateThreshold*100,
				snap.RequestsFailed, done, snap.LookbackHours,
			),
			Details: map[string]any{
				"failure_rate": snap.RequestFailRate,
				"threshold":    a.cfg.FailureRateThreshold,
				"failed":       snap.RequestsFailed,
				"done":         done,
			},
			Timestamp: now,
		})
	}

	if snap.BreakerOpen || snap.Blocked > 0 {
		severity := "medium"
		if snap.BreakerOpen {
			severity = "high"
		}
		alerts = append(alerts, Alert{
			Type:     AlertBlocked,
			Severity: severity,
			Message: fmt.Sprintf(
				"%d request(s) blocked by anti-bot pages in last %dh (breaker open: %t)",
				snap.Blocked, snap.LookbackHours, snap.BreakerOpen,
			),
			Details: map[string]any{
				"blocked":      snap.Blocked,
				"breaker_open": snap.BreakerOpen,
			},
			Timestamp: now,
		})
	}

	if snap.Runs > 0 && snap.RequestsFinished == 0 {
		alerts = append(alerts, Alert{
			Type:     AlertNoProgress,
			Severity: "high",
			Message: fmt.Sprintf(
				"%d crawl run(s) in last %dh finished no requests",
				snap.Runs, snap.LookbackHours,
			),
			Details: map[string]any{
				"runs":       snap.Runs,
				"run_errors": snap.RunErrors,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts posts alerts to the monitoring webhook and returns how many
// went out. An alert type sent within the cooldown is skipped.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" {
		return 0
	}
	cooldown := time.Duration(a.cfg.AlertCooldownMins) * time.Minute

	sent := 0
	for _, alert := range alerts {
		log := zap.L().With(zap.String("alert", string(alert.Type)))

		a.mu.Lock()
		last, seen := a.lastSent[alert.Type]
		a.mu.Unlock()
		if seen && a.now().Sub(last) < cooldown {
			log.Debug("monitoring: alert suppressed", zap.Time("last_sent", last))
			continue
		}

		if err := a.sender.Send(ctx, a.cfg.WebhookURL, "POST", alert); err != nil {
			log.Error("monitoring: send alert", zap.Error(err))
			continue
		}
		a.mu.Lock()
		a.lastSent[alert.Type] = a.now()
		a.mu.Unlock()

		log.Info("monitoring: alert sent", zap.String("severity", alert.Severity))
		sent++
	}
	return sent
}
