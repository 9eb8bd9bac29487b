package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// AnchorUpdatesTotal counts ForceUpdate calls issued against anchor
	// services by the dependent placement loop's (C4) anchor failover
	// branch.
	AnchorUpdatesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "anchor_updates_total",
			Help: "Total number of ForceUpdate calls issued against anchor services",
		},
	)

	// DependentUpdatesTotal counts ForceUpdate calls issued against
	// dependent services by the dependent placement loop (C4).
	DependentUpdatesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dependent_updates_total",
			Help: "Total number of ForceUpdate calls issued against dependent services",
		},
	)

	// AnchorSyncErrorsTotal counts adapter errors surfaced during a
	// C3/C4 sync pass.
	AnchorSyncErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "anchor_sync_errors_total",
			Help: "Total number of errors encountered during anchor/dependent sync passes",
		},
	)

	// AnchorSyncLastDuration is the wall-clock duration of the most
	// recent C3+C4 sync pass.
	AnchorSyncLastDuration = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "anchor_sync_last_duration_seconds",
			Help: "Duration of the most recent anchor/dependent sync pass in seconds",
		},
	)

	// RebalanceAttemptsTotal counts memory-rebalance decisions that
	// resulted in a ForceUpdate attempt.
	RebalanceAttemptsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rebalance_attempts_total",
			Help: "Total number of memory-rebalance ForceUpdate attempts",
		},
	)

	// RebalanceSuccessTotal counts rebalance attempts that succeeded.
	RebalanceSuccessTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rebalance_success_total",
			Help: "Total number of successful memory-rebalance moves",
		},
	)

	// RebalanceFailuresTotal counts rebalance attempts that failed.
	RebalanceFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rebalance_failures_total",
			Help: "Total number of failed memory-rebalance moves",
		},
	)

	// RebalanceLastDuration is the wall-clock duration of the most
	// recent rebalance pass (C5).
	RebalanceLastDuration = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rebalance_last_duration_seconds",
			Help: "Duration of the most recent rebalance pass in seconds",
		},
	)

	// SwarmOrchLeader is 1 when this instance is running on the current
	// Swarm manager leader, 0 otherwise.
	SwarmOrchLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "swarm_orch_leader",
			Help: "Whether this instance is the Swarm manager leader (1) or not (0)",
		},
	)
)

func init() {
	prometheus.MustRegister(
		AnchorUpdatesTotal,
		DependentUpdatesTotal,
		AnchorSyncErrorsTotal,
		AnchorSyncLastDuration,
		RebalanceAttemptsTotal,
		RebalanceSuccessTotal,
		RebalanceFailuresTotal,
		RebalanceLastDuration,
		SwarmOrchLeader,
	)
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing a reconciliation pass.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// ObserveDurationGauge sets a gauge to the elapsed duration, for loops
// that report "last pass duration" instead of a histogram.
func (t *Timer) ObserveDurationGauge(gauge prometheus.Gauge) {
	gauge.Set(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
