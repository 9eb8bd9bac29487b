/*
Package anchorlabel implements the anchor label loop (C3): for every
configured anchor it resolves the node currently running that
anchor's task (in running/running) and ensures exactly one node in the
cluster carries the label node.labels.<anchor>=true.

A single pass never pre-clears every label before reapplying them —
that produced visible flapping in earlier revisions of this system.
Instead it diffs the desired target against each node's current labels
and only touches nodes that disagree.
*/
package anchorlabel
