/*
Package retrystate implements the per-service failure counter and
cooldown schedule used by the dependent placement loop (C4), for both
its dependents and its anchor failover branch. State lives under a single mutex
and is persisted as JSON after every mutation via write-tempfile-then-
rename, so a crash mid-save never leaves a corrupt file behind.

A malformed, unreadable or missing state file at startup is not
fatal: the store starts empty, and a malformed or unreadable file is
logged.
*/
package retrystate
