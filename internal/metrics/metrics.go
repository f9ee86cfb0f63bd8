// Package metrics registers the crawler's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// VisitsTotal counts handled page visits.
	VisitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "adcrawl",
			Subsystem: "router",
			Name:      "visits_total",
			Help:      "Total page visits by label and outcome",
		},
		[]string{"label", "outcome"},
	)

	CreativesSaved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "adcrawl",
			Subsystem: "store",
			Name:      "creatives_saved_total",
			Help:      "Creatives saved by format and status",
		},
		[]string{"format", "status"},
	)

	VariantsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "adcrawl",
			Subsystem: "media",
			Name:      "variants_skipped_total",
			Help:      "Variants skipped because assembly failed",
		},
		[]string{"reason"},
	)

	// StagingReads counts staged-key lookups by key kind and hit/miss.
	StagingReads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "adcrawl",
			Subsystem: "staging",
			Name:      "reads_total",
			Help:      "Staging reads by kind and result",
		},
		[]string{"kind", "result"},
	)

	SaveDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "adcrawl",
			Subsystem: "store",
			Name:      "save_duration_seconds",
			Help:      "SaveCreative transaction duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)

	CrawlRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "adcrawl",
			Subsystem: "crawler",
			Name:      "requests_total",
			Help:      "Crawl requests by final status",
		},
		[]string{"status"},
	)

	CrawlDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "adcrawl",
			Subsystem: "crawler",
			Name:      "run_duration_seconds",
			Help:      "Crawl run duration in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)
)

// Hit maps a lookup result onto the StagingReads label.
func Hit(ok bool) string {
	if ok {
		return "hit"
	}
	return "miss"
}
