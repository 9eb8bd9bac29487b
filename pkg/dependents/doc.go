/*
Package dependents implements the dependent placement loop (C4): for
every (anchor, dependent) pair in configuration, it forces a rolling
update of the dependent whenever its running task has drifted onto a
different node than the anchor's, subject to a per-dependent cooldown
(pkg/retrystate) and an absolute mismatch-duration cap.

The per-pair state machine is evaluated once per pass, in the order
laid out in the component design: anchor health first, then the
dependent's own task state, then node-identity comparison. Mismatch
start times live only in memory (Loop.mismatch) — they are not
persisted, since a restart simply restarts the grace window.
*/
package dependents
