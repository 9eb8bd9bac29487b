/*
Package config loads the three YAML files swarmanchor reads: the
dependency (anchor/dependent) map, the memory-rebalance tuning file,
and the static node inventory.

Loaded config is held behind an atomic.Pointer so the rest of the
daemon always reads a consistent snapshot while pkg/configwatch swaps
it out from under a filesystem watch. Parse errors never panic the
daemon: NewStore and Store.Reload return them to the caller, who fails fast at startup but
keeps the last good config at runtime on a reload error.
*/
package config
