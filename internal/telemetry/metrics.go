// Package telemetry registers the acquisition engine's Prometheus metrics
// and builds its structured logger.
package telemetry

import (
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
)

var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "acquire",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "path", "status"},
)

var QueueTicksTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "acquire",
		Subsystem: "queue",
		Name:      "ticks_total",
		Help:      "Total number of scheduler dispatch ticks.",
	},
)

var QueueAttemptsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "acquire",
		Subsystem: "queue",
		Name:      "attempts_total",
		Help:      "Total number of order attempts by outcome.",
	},
	[]string{"outcome"}, // purchased, unavailable, transient_error, fatal_error
)

var QueueUnitsPurchasedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "acquire",
		Subsystem: "queue",
		Name:      "units_purchased_total",
		Help:      "Total number of server units successfully purchased.",
	},
)

var ProbeDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "acquire",
		Subsystem: "availability",
		Name:      "probe_duration_seconds",
		Help:      "Availability probe duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	},
	[]string{"cache"}, // hit, miss
)

var MonitorChangesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "acquire",
		Subsystem: "monitor",
		Name:      "changes_total",
		Help:      "Total number of availability change events detected by the monitor.",
	},
	[]string{"change_type"}, // became_available, became_unavailable
)

var NotificationsSentTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "acquire",
		Subsystem: "notify",
		Name:      "sent_total",
		Help:      "Total number of notifications sent or dropped.",
	},
	[]string{"outcome"}, // sent, deduplicated, failed, disabled
)

// All returns every collector for registration with a single Prometheus
// registry.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		HTTPRequestDuration,
		QueueTicksTotal,
		QueueAttemptsTotal,
		QueueUnitsPurchasedTotal,
		ProbeDuration,
		MonitorChangesTotal,
		NotificationsSentTotal,
	}
}

// NewLogger builds a slog.Logger. debug selects a human-readable text
// handler at Debug level; otherwise requests get a JSON handler at Info
// level, matching the teacher's production/development split.
func NewLogger(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	var handler slog.Handler
	if debug {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	return slog.New(handler)
}
