package sla

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/safetrack-io/safetrack/internal/domain"
)

const namespace = "safetrack"

var (
	sweepRuns = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sla",
			Name:      "sweep_runs_total",
			Help:      "Total completed sweep runs",
		},
	)

	sweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sla",
			Name:      "sweep_duration_seconds",
			Help:      "Time to complete one sweep",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)

	sweepProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sla",
			Name:      "events_processed_total",
			Help:      "Total active events examined by sweeps",
		},
	)

	escalationsRaised = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sla",
			Name:      "escalations_total",
			Help:      "Escalation level transitions by category and level",
		},
		[]string{"category", "level"},
	)
)

// recordSweep records sweep-level metrics for one run.
func recordSweep(start time.Time, stats SweepStats) {
	sweepRuns.Inc()
	sweepDuration.Observe(time.Since(start).Seconds())
	sweepProcessed.Add(float64(stats.Processed))
}

// recordEscalation records a raised escalation level.
func recordEscalation(category domain.EscalatableCategory, level domain.EscalationLevel) {
	escalationsRaised.WithLabelValues(string(category), strconv.Itoa(int(level))).Inc()
}
