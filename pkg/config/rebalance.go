package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RebalanceDefaults are the cluster-wide fallback tuning values; any
// field a per-service override omits falls back to these.
type RebalanceDefaults struct {
	CooldownMinutes      int     `yaml:"cooldown_minutes"`
	SustainedHighMinutes int     `yaml:"sustained_high_minutes"`
	MemoryDifferenceGB   float64 `yaml:"memory_difference_gb"`
	RebalanceBufferGB    float64 `yaml:"rebalance_buffer_gb"`
	CheckIntervalSeconds int     `yaml:"check_interval_seconds"`
}

// RebalanceServiceOverride overrides a subset of RebalanceDefaults for
// one service. Zero values mean "use the default".
type RebalanceServiceOverride struct {
	CooldownMinutes      int     `yaml:"cooldown_minutes"`
	SustainedHighMinutes int     `yaml:"sustained_high_minutes"`
	MemoryDifferenceGB   float64 `yaml:"memory_difference_gb"`
}

// RebalanceConfig is the parsed rebalance.yaml.
type RebalanceConfig struct {
	Default       RebalanceDefaults                   `yaml:"default"`
	Services      map[string]RebalanceServiceOverride `yaml:"services"`
	NodeExporters map[string]string                   `yaml:"node_exporters"`
}

// EffectiveDefaults fills in zero fields of RebalanceDefaults with the
// documented hard-coded defaults.
func (c RebalanceConfig) EffectiveDefaults() RebalanceDefaults {
	d := c.Default
	if d.CooldownMinutes == 0 {
		d.CooldownMinutes = 15
	}
	if d.SustainedHighMinutes == 0 {
		d.SustainedHighMinutes = 10
	}
	if d.MemoryDifferenceGB == 0 {
		d.MemoryDifferenceGB = 2
	}
	if d.RebalanceBufferGB == 0 {
		d.RebalanceBufferGB = 1
	}
	if d.CheckIntervalSeconds == 0 {
		d.CheckIntervalSeconds = 60
	}
	return d
}

// ForService returns the effective (default + override) tuning values
// for a given service name.
func (c RebalanceConfig) ForService(name string) RebalanceDefaults {
	eff := c.EffectiveDefaults()
	override, ok := c.Services[name]
	if !ok {
		return eff
	}
	if override.CooldownMinutes != 0 {
		eff.CooldownMinutes = override.CooldownMinutes
	}
	if override.SustainedHighMinutes != 0 {
		eff.SustainedHighMinutes = override.SustainedHighMinutes
	}
	if override.MemoryDifferenceGB != 0 {
		eff.MemoryDifferenceGB = override.MemoryDifferenceGB
	}
	return eff
}

// LoadRebalanceConfig reads and parses the rebalance config file at path.
func LoadRebalanceConfig(path string) (*RebalanceConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rebalance config %s: %w", path, err)
	}
	cfg := &RebalanceConfig{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse rebalance config %s: %w", path, err)
	}
	return cfg, nil
}
