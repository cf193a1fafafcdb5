package crawler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Repository outcomes.
const (
	outcomeIndexed   = "indexed"
	outcomeDuplicate = "duplicate"
	outcomeFork      = "fork"
	outcomeFailed    = "failed"
)

var (
	// RepositoriesTotal counts processed repositories.
	// Labels: outcome (indexed, duplicate, fork, failed)
	RepositoriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "codetoname",
			Subsystem: "crawler",
			Name:      "repositories_total",
			Help:      "Total number of repositories processed by outcome",
		},
		[]string{"outcome"},
	)

	// EntriesWritten counts stored entries, with or without a feature.
	EntriesWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "codetoname",
			Subsystem: "crawler",
			Name:      "entries_written_total",
			Help:      "Total number of entries written to the store",
		},
	)

	// StepDuration tracks how long crawl steps take.
	StepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "codetoname",
			Subsystem: "crawler",
			Name:      "step_duration_seconds",
			Help:      "Duration of crawl steps in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		},
	)

	// BatchSize tracks how many repositories each feed page returned.
	BatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "codetoname",
			Subsystem: "crawler",
			Name:      "batch_size",
			Help:      "Number of repositories returned per feed page",
			Buckets:   prometheus.LinearBuckets(0, 10, 11),
		},
	)
)
