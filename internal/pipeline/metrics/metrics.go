package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsTotal tracks pipeline runs by outcome (completed, skipped, failed)
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_runs_total",
			Help: "Total number of daily analysis runs",
		},
		[]string{"outcome"},
	)

	// EventsAnalyzed tracks events successfully classified and merged
	EventsAnalyzed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "triage_events_analyzed_total",
			Help: "Total number of events marked analyzed",
		},
	)

	// InvalidResults tracks classification results rejected by validation
	InvalidResults = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "triage_invalid_results_total",
			Help: "Total number of analysis results that failed validation",
		},
	)

	// AnalyzeLatency tracks the external endpoint round trip
	AnalyzeLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "triage_analyze_latency_seconds",
			Help:    "Latency of calls to the analysis endpoint",
			Buckets: prometheus.DefBuckets,
		},
	)
)
