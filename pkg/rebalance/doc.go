/*
Package rebalance implements the memory rebalance loop (C5): it
collects per-node free memory (preferring a node_exporter-compatible
scrape, falling back to orchestrator-reported capacity), detects
sustained memory imbalance for each managed service, and forces a
rolling update when a strictly better node exists and the move would
produce a net improvement of at least rebalance_buffer_gb.

Takes the "≥1 better node" rule plus the rebalance_buffer_gb
net-improvement check (rather than the older "≥2 better nodes" rule)
— a deliberate correction over an earlier, flappier variant.
*/
package rebalance
