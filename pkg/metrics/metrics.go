// Package metrics defines the prometheus collectors of analysis runs.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Run outcomes used as the status label.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

var (
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accessguard_runs_total",
			Help: "Total number of analysis runs by outcome",
		},
		[]string{"status"},
	)

	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "accessguard_run_duration_seconds",
			Help:    "End-to-end run duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		},
	)

	DetectorDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "accessguard_detector_duration_seconds",
			Help:    "Detector fit and score duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"method"},
	)

	FlaggedEntities = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "accessguard_flagged_entities",
			Help: "Entities flagged by each method in the last run",
		},
		[]string{"method"},
	)

	EntitiesByRiskLevel = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "accessguard_entities_by_risk_level",
			Help: "Entities at each risk level in the last run",
		},
		[]string{"level"},
	)

	DetectorSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accessguard_detector_skipped_total",
			Help: "Detector runs skipped for insufficient data",
		},
		[]string{"method"},
	)
)
