// Package adminhttp exposes the daemon's HTTP admin surface: health,
// metrics, and the manual sync/pause/resume controls layered on top
// of the scheduler.
package adminhttp
