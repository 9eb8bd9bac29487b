package rebalance

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cuemby/swarmanchor/pkg/log"
)

// ServiceState is the per-service rebalance bookkeeping: FirstDetected
// is set only while an imbalance is currently observed and cleared on
// any disqualifying observation; LastMoved/MovedTo exist only to drive
// the cooldown.
type ServiceState struct {
	FirstDetected *time.Time `json:"first_detected,omitempty"`
	LastMoved     *time.Time `json:"last_moved,omitempty"`
	MovedTo       string     `json:"moved_to,omitempty"`
}

// StateStore is owned exclusively by the rebalance loop — no other
// loop reads or writes it.
type StateStore struct {
	mu     sync.Mutex
	path   string
	states map[string]ServiceState
}

// OpenState loads path if present and well-formed, otherwise starts
// empty.
func OpenState(path string) (*StateStore, error) {
	s := &StateStore{path: path, states: make(map[string]ServiceState)}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		log.WithComponent("rebalance").Warn().Err(err).Str("path", path).Msg("could not read rebalance state, starting empty")
		return s, nil
	}

	var states map[string]ServiceState
	if err := json.Unmarshal(data, &states); err != nil {
		log.WithComponent("rebalance").Warn().Err(err).Str("path", path).Msg("malformed rebalance state, starting empty")
		return s, nil
	}
	s.states = states
	return s, nil
}

// Get returns a copy of service's state, zero value if unset.
func (s *StateStore) Get(service string) ServiceState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[service]
}

// SetFirstDetected marks service as newly imbalanced.
func (s *StateStore) SetFirstDetected(service string, when time.Time) error {
	s.mu.Lock()
	st := s.states[service]
	st.FirstDetected = &when
	s.states[service] = st
	snapshot := s.snapshotLocked()
	s.mu.Unlock()
	return s.persist(snapshot)
}

// Clear erases service's imbalance tracking (disqualifying
// observation), preserving cooldown history.
func (s *StateStore) Clear(service string) error {
	s.mu.Lock()
	st := s.states[service]
	st.FirstDetected = nil
	s.states[service] = st
	snapshot := s.snapshotLocked()
	s.mu.Unlock()
	return s.persist(snapshot)
}

// RecordMove stamps service as having just been moved to target.
func (s *StateStore) RecordMove(service, target string, when time.Time) error {
	s.mu.Lock()
	st := s.states[service]
	st.LastMoved = &when
	st.MovedTo = target
	st.FirstDetected = nil
	s.states[service] = st
	snapshot := s.snapshotLocked()
	s.mu.Unlock()
	return s.persist(snapshot)
}

func (s *StateStore) snapshotLocked() map[string]ServiceState {
	out := make(map[string]ServiceState, len(s.states))
	for k, v := range s.states {
		out[k] = v
	}
	return out
}

func (s *StateStore) persist(states map[string]ServiceState) error {
	data, err := json.Marshal(states)
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".rebalancestate-*.tmp")
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
