/*
Package scheduler implements the leader-gated supervisor: the single
goroutine pair that runs the anchor-label loop, the dependent
placement loop, and the memory-rebalance loop on independent ticks.

Before every tick, Supervisor consults the orchestrator adapter's
AmLeader; only the swarm manager leader performs mutating work. A
cancelled context stops both loops within one adapter-call deadline.
SIGHUP and the HTTP admin surface call TriggerSync to request an
immediate C3+C4 pass outside the regular tick.
*/
package scheduler
