package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/adcrawl/internal/crawler"
	"github.com/sells-group/adcrawl/internal/resilience"
)

type fakeRunner struct {
	stats crawler.Stats
	err   error
}

func (f *fakeRunner) Run(context.Context, ...crawler.Request) (crawler.Stats, error) {
	return f.stats, f.err
}

type fakeBreaker resilience.CircuitState

func (b fakeBreaker) BreakerState() resilience.CircuitState {
	return resilience.CircuitState(b)
}

func fixedRecorder(at time.Time) *Recorder {
	rec := NewRecorder()
	rec.now = func() time.Time { return at }
	return rec
}

func TestObserve_RecordsRuns(t *testing.T) {
	rec := NewRecorder()
	runner := Observe(&fakeRunner{stats: crawler.Stats{RequestsTotal: 4, RequestsFinished: 3, RequestsFailed: 1}}, rec)

	stats, err := runner.Run(context.Background(), crawler.Request{URL: "https://x.test/"})
	require.NoError(t, err)
	assert.Equal(t, 3, stats.RequestsFinished)

	failing := Observe(&fakeRunner{err: errors.New("chrome crashed")}, rec)
	_, err = failing.Run(context.Background(), crawler.Request{URL: "https://x.test/"})
	require.Error(t, err)

	snap := NewCollector(rec).Collect(24)
	assert.Equal(t, 2, snap.Runs)
	assert.Equal(t, 1, snap.RunErrors)
	assert.Equal(t, 4, snap.RequestsTotal)
	assert.Equal(t, 3, snap.RequestsFinished)
	assert.Equal(t, 1, snap.RequestsFailed)
	assert.InDelta(t, 0.25, snap.RequestFailRate, 1e-9)
	assert.False(t, snap.LastFinishedAt.IsZero())
}

func TestCollect_LookbackWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := fixedRecorder(now.Add(-48 * time.Hour))
	rec.Record(crawler.Stats{RequestsFinished: 10}, nil)

	rec.now = func() time.Time { return now.Add(-time.Hour) }
	rec.Record(crawler.Stats{RequestsFinished: 2, RequestsFailed: 2, Blocked: 1}, nil)

	rec.now = func() time.Time { return now }
	snap := NewCollector(rec).Collect(24)
	assert.Equal(t, 1, snap.Runs)
	assert.Equal(t, 2, snap.RequestsFinished)
	assert.Equal(t, 1, snap.Blocked)
	assert.InDelta(t, 0.5, snap.RequestFailRate, 1e-9)
	assert.Equal(t, now.Add(-time.Hour), snap.LastFinishedAt)
	assert.Equal(t, 24, snap.LookbackHours)
	assert.Equal(t, now, snap.CollectedAt)

	snap = NewCollector(rec).Collect(72)
	assert.Equal(t, 2, snap.Runs)
	assert.Equal(t, 12, snap.RequestsFinished)
}

func TestRecorder_DropsExpiredRuns(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := fixedRecorder(now.Add(-8 * 24 * time.Hour))
	rec.Record(crawler.Stats{}, nil)

	rec.now = func() time.Time { return now }
	rec.Record(crawler.Stats{}, nil)
	assert.Len(t, rec.runs, 1)
}

func TestCollect_Empty(t *testing.T) {
	snap := NewCollector(NewRecorder()).Collect(24)
	assert.Zero(t, snap.Runs)
	assert.Zero(t, snap.RequestFailRate)
	assert.True(t, snap.LastFinishedAt.IsZero())
	assert.False(t, snap.BreakerOpen)
}

func TestCollect_BreakerOpen(t *testing.T) {
	c := NewCollector(NewRecorder(), fakeBreaker(resilience.CircuitClosed), fakeBreaker(resilience.CircuitOpen))
	assert.True(t, c.Collect(1).BreakerOpen)

	c = NewCollector(NewRecorder(), fakeBreaker(resilience.CircuitHalfOpen))
	assert.False(t, c.Collect(1).BreakerOpen)
}
