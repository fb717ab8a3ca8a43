package detection

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reviewsScoredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "detection_reviews_scored_total",
			Help: "Total number of reviews scored at submission time",
		},
	)

	rulesTriggeredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "detection_rules_triggered_total",
			Help: "Total number of rule triggers by rule name",
		},
		[]string{"rule"},
	)

	fakeVerdictsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "detection_fake_verdicts_total",
			Help: "Total number of fake verdicts by source layer",
		},
		[]string{"source"},
	)

	analysisRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "detection_analysis_runs_total",
			Help: "Total number of batch analysis runs by mode and status",
		},
		[]string{"mode", "status"},
	)

	analysisDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "detection_analysis_duration_seconds",
			Help:    "Batch analysis run duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
	)
)
