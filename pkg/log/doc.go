/*
Package log provides structured logging for swarmanchor using zerolog.

Call Init once at startup to configure level and output format, then
use WithComponent to get a child logger that tags every line with
which loop emitted it — anchor-label, dependents, rebalance, and so
on. Callers attach request-specific fields (anchor, node_id, ...)
inline with zerolog's own chained .Str/.Err calls.

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})
	logger := log.WithComponent("anchorlabel")
	logger.Info().Str("anchor", "db").Msg("label applied")
*/
package log
