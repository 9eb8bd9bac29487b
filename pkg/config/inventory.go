package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// InventoryNode is one entry of the static node inventory.
type InventoryNode struct {
	IP     string   `yaml:"ip"`
	Labels []string `yaml:"labels"`
}

// InventoryOptions toggles behavior of the (external) static-label
// reconciler that consumes this file; swarmanchor only loads it into
// the config Snapshot, and none of its loops read it.
type InventoryOptions struct {
	PruneUnknownLabels bool `yaml:"prune_unknown_labels"`
}

// NodeInventory is the parsed node-inventory.yaml.
type NodeInventory struct {
	Leader        string                   `yaml:"leader"`
	AdvertiseAddr string                   `yaml:"advertise_addr"`
	Nodes         map[string]InventoryNode `yaml:"nodes"`
	Options       InventoryOptions         `yaml:"options"`
}

// LoadNodeInventory reads and parses the node inventory file at path.
func LoadNodeInventory(path string) (*NodeInventory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read node inventory %s: %w", path, err)
	}
	inv := &NodeInventory{}
	if err := yaml.Unmarshal(data, inv); err != nil {
		return nil, fmt.Errorf("parse node inventory %s: %w", path, err)
	}
	return inv, nil
}
