/*
Package docker implements the orchestrator adapter: a typed,
context-bounded wrapper over the Docker Engine API's Swarm endpoints
(github.com/docker/docker/client) that the reconciliation loops use to
observe and mutate cluster state.

Every operation returns a plain value and an error classified via
IsNotFound / IsTransient / IsPermanent so callers never need to inspect
HTTP status codes themselves. AnchorLocation and AnchorLabelLocation
are the two "which node runs this service" helpers: the former accepts
the most recent task regardless of state (used for failover decisions
in the dependent placement loop), the latter accepts only a task that
is both running and desired-running (used for labelling, so a node
hosting only a failing task is never labelled).
*/
package docker
