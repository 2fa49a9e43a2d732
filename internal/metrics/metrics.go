// Package metrics exposes the pipeline's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ReadingsWritten counts reading documents written to the store.
	ReadingsWritten = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "aqmon",
		Name:      "readings_written_total",
		Help:      "Number of reading documents written to the store.",
	})

	// StationFailures counts per-station collection failures by cause.
	StationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aqmon",
		Name:      "station_failures_total",
		Help:      "Number of per-station collection failures.",
	}, []string{"cause"})

	// CollectionRuns counts collection runs by outcome.
	CollectionRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aqmon",
		Name:      "collection_runs_total",
		Help:      "Number of reading collection runs.",
	}, []string{"result"})

	// CollectionDuration observes the wall-clock duration of runs.
	CollectionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "aqmon",
		Name:      "collection_run_duration_seconds",
		Help:      "Duration of reading collection runs.",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
	})

	// ForecastsWritten counts forecast documents written.
	ForecastsWritten = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "aqmon",
		Name:      "forecasts_written_total",
		Help:      "Number of forecast documents written to the store.",
	})

	// NotificationsSent counts dispatched alert notifications by channel.
	NotificationsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aqmon",
		Name:      "notifications_sent_total",
		Help:      "Number of alert notifications dispatched.",
	}, []string{"channel"})

	// NotificationsSuppressed counts notifications held back by cooldown.
	NotificationsSuppressed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "aqmon",
		Name:      "notifications_suppressed_total",
		Help:      "Number of notifications suppressed by the cooldown window.",
	})
)
