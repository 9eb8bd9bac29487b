/*
Package types defines the domain model shared by every reconciliation
loop in swarmanchor: task, node and service observations read from the
Swarm API. The YAML configuration shapes live in pkg/config.

None of these types talk to the network or the filesystem themselves;
they are the common vocabulary the orchestrator adapter (pkg/docker)
and the three loops (pkg/anchorlabel, pkg/dependents, pkg/rebalance)
pass between each other.

# Task state groups

Swarm tasks carry a state and a desired state. This package groups the
raw states into the four buckets the loops actually reason about:

	Ignored = {new, allocated, pending}
	Waiting = {assigned, accepted, preparing, ready, starting}
	Success = {running, complete}
	Failure = {failed, rejected, remove, orphaned}

See TaskState and the Is* helpers.
*/
package types
