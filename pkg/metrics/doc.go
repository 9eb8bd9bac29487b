/*
Package metrics defines and registers the Prometheus metrics swarmanchor
exposes on GET /metrics for the three reconciliation loops and the
scheduler's leader gate:

	anchor_updates_total              counter
	dependent_updates_total           counter
	anchor_sync_errors_total          counter
	anchor_sync_last_duration_seconds gauge
	rebalance_attempts_total          counter
	rebalance_success_total          counter
	rebalance_failures_total         counter
	rebalance_last_duration_seconds  gauge
	swarm_orch_leader                gauge (0 or 1)

Use Timer to time a pass and report it onto a gauge or histogram:

	t := metrics.NewTimer()
	defer t.ObserveDurationGauge(metrics.AnchorSyncLastDuration)
*/
package metrics
