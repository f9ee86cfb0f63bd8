// Package monitoring watches crawl health and sends alerts when crawls
// fail, get blocked or stop making progress.
package monitoring

import (
	"context"
	"sync"
	"time"

	"github.com/sells-group/adcrawl/internal/crawler"
	"github.com/sells-group/adcrawl/internal/jobs"
	"github.com/sells-group/adcrawl/internal/resilience"
)

// retention bounds how long the Recorder keeps runs.
const retention = 7 * 24 * time.Hour

// Snapshot holds a point-in-time view of crawl health.
type Snapshot struct {
	Runs             int     `json:"runs"`
	RunErrors        int     `json:"run_errors"`
	RequestsTotal    int     `json:"requests_total"`
	RequestsFinished int     `json:"requests_finished"`
	RequestsFailed   int     `json:"requests_failed"`
	RequestFailRate  float64 `json:"request_fail_rate"`
	Blocked          int     `json:"blocked"`
	BreakerOpen      bool    `json:"breaker_open"`

	LastFinishedAt time.Time `json:"last_finished_at"`
	LookbackHours  int       `json:"lookback_hours"`
	CollectedAt    time.Time `json:"collected_at"`
}

type run struct {
	at    time.Time
	stats crawler.Stats
	err   bool
}

// Recorder keeps recent crawl runs in memory.
type Recorder struct {
	mu   sync.Mutex
	runs []run
	now  func() time.Time
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{now: time.Now}
}

// Record adds a finished run and drops runs past retention.
func (r *Recorder) Record(stats crawler.Stats, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	r.runs = append(r.runs, run{at: now, stats: stats, err: err != nil})

	cutoff := now.Add(-retention)
	i := 0
	for i < len(r.runs) && r.runs[i].at.Before(cutoff) {
		i++
	}
	r.runs = r.runs[i:]
}

func (r *Recorder) since(cutoff time.Time) []run {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []run
	for _, x := range r.runs {
		if !x.at.Before(cutoff) {
			out = append(out, x)
		}
	}
	return out
}

// Observe wraps a crawl runner so every run is recorded.
func Observe(next jobs.Runner, rec *Recorder) jobs.Runner {
	return &observed{next: next, rec: rec}
}

type observed struct {
	next jobs.Runner
	rec  *Recorder
}

func (o *observed) Run(ctx context.Context, seeds ...crawler.Request) (crawler.Stats, error) {
	stats, err := o.next.Run(ctx, seeds...)
	o.rec.Record(stats, err)
	return stats, err
}

// BreakerSource reports the state of a crawler's block breaker.
type BreakerSource interface {
	BreakerState() resilience.CircuitState
}

// Collector builds snapshots from the recorder and breaker sources.
type Collector struct {
	rec      *Recorder
	breakers []BreakerSource
}

// NewCollector creates a new metrics collector.
func NewCollector(rec *Recorder, breakers ...BreakerSource) *Collector {
	return &Collector{rec: rec, breakers: breakers}
}

// Collect gathers a snapshot over the given lookback window.
func (c *Collector) Collect(lookbackHours int) *Snapshot {
	now := c.rec.now().UTC()
	snap := &Snapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}

	for _, r := range c.rec.since(now.Add(-time.Duration(lookbackHours) * time.Hour)) {
		snap.Runs++
		if r.err {
			snap.RunErrors++
		}
		snap.RequestsTotal += r.stats.RequestsTotal
		snap.RequestsFinished += r.stats.RequestsFinished
		snap.RequestsFailed += r.stats.RequestsFailed
		snap.Blocked += r.stats.Blocked
		if r.stats.RequestsFinished > 0 && r.at.After(snap.LastFinishedAt) {
			snap.LastFinishedAt = r.at.UTC()
		}
	}
	if done := snap.RequestsFinished + snap.RequestsFailed; done > 0 {
		snap.RequestFailRate = float64(snap.RequestsFailed) / float64(done)
	}

	for _, b := range c.breakers {
		if b.BreakerState() == resilience.CircuitOpen {
			snap.BreakerOpen = true
		}
	}
	return snap
}
