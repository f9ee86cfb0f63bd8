package monitoring

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/sells-group/adcrawl/internal/crawler"
)

func TestChecker_Check(t *testing.T) {
	rec := NewRecorder()
	rec.Record(crawler.Stats{RequestsTotal: 3, RequestsFailed: 3, Blocked: 3}, nil)
	sender := &fakeSender{}
	cfg := testMonitoringConfig()
	c := NewChecker(NewCollector(rec), NewAlerter(cfg, sender), cfg)

	sent := c.check(context.Background(), zap.NewNop())
	assert.Equal(t, 2, sent)
	assert.Equal(t, []AlertType{AlertBlocked, AlertNoProgress}, alertTypes(sender.sent))
}

func TestChecker_CheckHealthy(t *testing.T) {
	rec := NewRecorder()
	rec.Record(crawler.Stats{RequestsTotal: 10, RequestsFinished: 10}, nil)
	sender := &fakeSender{}
	cfg := testMonitoringConfig()
	c := NewChecker(NewCollector(rec), NewAlerter(cfg, sender), cfg)

	assert.Zero(t, c.check(context.Background(), zap.NewNop()))
	assert.Empty(t, sender.sent)
}

func TestChecker_RunStopsOnCancel(t *testing.T) {
	cfg := testMonitoringConfig()
	cfg.CheckIntervalSecs = 1
	c := NewChecker(NewCollector(NewRecorder()), NewAlerter(cfg, &fakeSender{}), cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("checker did not stop")
	}
}
