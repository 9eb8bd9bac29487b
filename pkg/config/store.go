package config

import (
	"fmt"
	"sync/atomic"
)

// Paths collects the filesystem locations swarmanchor reads its
// configuration and state from; it's populated once from command-line
// flags at startup (see cmd/swarmanchor) and never changes.
type Paths struct {
	DependenciesFile   string
	RebalanceFile      string
	NodeInventory      string
	RetryStateFile     string
	RebalanceStateFile string
}

// Snapshot is one consistent, fully-loaded view of all config files.
type Snapshot struct {
	Dependencies Dependencies
	Rebalance    *RebalanceConfig
	Inventory    *NodeInventory
}

// Store holds the current Snapshot behind an atomic pointer so
// reconciliation loops always read a consistent view while
// pkg/configwatch swaps in a freshly reloaded one.
type Store struct {
	paths   Paths
	current atomic.Pointer[Snapshot]
}

// NewStore loads all three config files once and returns a Store.
// A load failure here is a startup-time configuration error and
// should be treated as fatal by the caller.
func NewStore(paths Paths) (*Store, error) {
	s := &Store{paths: paths}
	snap, err := s.load()
	if err != nil {
		return nil, err
	}
	s.current.Store(snap)
	return s, nil
}

// Reload re-reads all config files and, on success, atomically swaps
// the current snapshot. On failure the previous snapshot is left in
// place and the error is returned for logging — a bad reload never
// takes the daemon down on a transient editing mistake.
func (s *Store) Reload() error {
	snap, err := s.load()
	if err != nil {
		return err
	}
	s.current.Store(snap)
	return nil
}

// Snapshot returns the current configuration snapshot.
func (s *Store) Snapshot() *Snapshot {
	return s.current.Load()
}

func (s *Store) load() (*Snapshot, error) {
	deps, err := LoadDependencies(s.paths.DependenciesFile)
	if err != nil {
		return nil, fmt.Errorf("config store: %w", err)
	}
	rebalance, err := LoadRebalanceConfig(s.paths.RebalanceFile)
	if err != nil {
		return nil, fmt.Errorf("config store: %w", err)
	}
	var inventory *NodeInventory
	if s.paths.NodeInventory != "" {
		inventory, err = LoadNodeInventory(s.paths.NodeInventory)
		if err != nil {
			return nil, fmt.Errorf("config store: %w", err)
		}
	}
	return &Snapshot{
		Dependencies: deps,
		Rebalance:    rebalance,
		Inventory:    inventory,
	}, nil
}
