package retrystate

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cuemby/swarmanchor/pkg/log"
)

// Entry is one service's retry bookkeeping: failures is monotone until
// Clear resets it, last_attempt is the wall-clock time of the most
// recent Record call. On disk last_attempt is a Unix epoch float
// (seconds.fraction), matching the persisted-state contract.
type Entry struct {
	Failures    uint
	LastAttempt time.Time
}

type entryJSON struct {
	Failures    uint    `json:"failures"`
	LastAttempt float64 `json:"last_attempt"`
}

// MarshalJSON encodes LastAttempt as a Unix epoch float.
func (e Entry) MarshalJSON() ([]byte, error) {
	var epoch float64
	if !e.LastAttempt.IsZero() {
		epoch = float64(e.LastAttempt.UnixNano()) / 1e9
	}
	return json.Marshal(entryJSON{Failures: e.Failures, LastAttempt: epoch})
}

// UnmarshalJSON decodes a Unix epoch float back into LastAttempt.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var raw entryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	e.Failures = raw.Failures
	if raw.LastAttempt > 0 {
		sec := int64(raw.LastAttempt)
		nsec := int64((raw.LastAttempt - float64(sec)) * 1e9)
		e.LastAttempt = time.Unix(sec, nsec)
	} else {
		e.LastAttempt = time.Time{}
	}
	return nil
}

// Store holds every service's Entry behind one mutex and persists to
// path after each mutation.
type Store struct {
	mu      sync.Mutex
	path    string
	entries map[string]Entry
}

// Open loads path if it exists and is well-formed; otherwise it starts
// empty, logging a warning unless the file simply does not exist.
func Open(path string) (*Store, error) {
	s := &Store{
		path:    path,
		entries: make(map[string]Entry),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		log.WithComponent("retrystate").Warn().Err(err).Str("path", path).Msg("could not read retry state, starting empty")
		return s, nil
	}

	var entries map[string]Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		log.WithComponent("retrystate").Warn().Err(err).Str("path", path).Msg("malformed retry state, starting empty")
		return s, nil
	}
	s.entries = entries
	return s, nil
}

// ShouldRetry reports whether enough time has elapsed since the last
// recorded attempt for service, given its configured retry_intervals.
// intervals[min(failures, len(intervals)-1)] is the required delay.
func (s *Store) ShouldRetry(service string, intervals []int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[service]
	if !ok || len(intervals) == 0 {
		return true
	}

	idx := int(entry.Failures)
	if idx >= len(intervals) {
		idx = len(intervals) - 1
	}
	delay := time.Duration(intervals[idx]) * time.Second
	return time.Since(entry.LastAttempt) >= delay
}

// Record increments the failure counter for service and stamps the
// current attempt time, then persists.
func (s *Store) Record(service string) error {
	s.mu.Lock()
	entry := s.entries[service]
	entry.Failures++
	entry.LastAttempt = time.Now()
	s.entries[service] = entry
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	return s.persist(snapshot)
}

// Clear erases service's entry entirely, then persists.
func (s *Store) Clear(service string) error {
	s.mu.Lock()
	if _, ok := s.entries[service]; !ok {
		s.mu.Unlock()
		return nil
	}
	delete(s.entries, service)
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	return s.persist(snapshot)
}

// Failures returns the current failure count for service, 0 if unset.
func (s *Store) Failures(service string) uint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries[service].Failures
}

func (s *Store) snapshotLocked() map[string]Entry {
	out := make(map[string]Entry, len(s.entries))
	for k, v := range s.entries {
		out[k] = v
	}
	return out
}

func (s *Store) persist(entries map[string]Entry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".retrystate-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, s.path)
}
