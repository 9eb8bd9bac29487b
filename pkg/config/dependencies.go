package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultRetryIntervals is applied to any anchor that doesn't override
// retry_intervals in the dependency file.
var DefaultRetryIntervals = []int{2, 10, 60, 300, 900}

// DefaultMaxMismatchSeconds is the per-anchor default for how long a
// dependent may sit on the wrong node before C4 stops retrying it.
const DefaultMaxMismatchSeconds = 600

// AnchorConfig describes one anchor service and the dependents that
// must be co-located with it. The YAML source admits two shapes for
// the same key — a bare list of dependents, or a mapping with
// options — and AnchorConfig normalizes both into this one struct via
// UnmarshalYAML.
type AnchorConfig struct {
	Name               string
	Dependents         []string
	RetryIntervals     []int
	RestartDependents  bool
	MaxMismatchSeconds int
}

// anchorConfigLong is the mapping form of an anchor entry.
type anchorConfigLong struct {
	Services           []string `yaml:"services"`
	RetryIntervals     []int    `yaml:"retry_intervals"`
	RestartDependents  bool     `yaml:"restart_dependents"`
	MaxMismatchSeconds int      `yaml:"max_mismatch_seconds"`
}

// UnmarshalYAML accepts either a plain sequence of dependent names or
// a mapping with a services key plus per-anchor overrides, and always
// produces a fully-defaulted AnchorConfig.
func (a *AnchorConfig) UnmarshalYAML(value *yaml.Node) error {
	a.RetryIntervals = DefaultRetryIntervals
	a.MaxMismatchSeconds = DefaultMaxMismatchSeconds

	if value.Kind == yaml.SequenceNode {
		var deps []string
		if err := value.Decode(&deps); err != nil {
			return fmt.Errorf("anchor config: decode bare list: %w", err)
		}
		a.Dependents = deps
		return nil
	}

	var long anchorConfigLong
	if err := value.Decode(&long); err != nil {
		return fmt.Errorf("anchor config: decode mapping: %w", err)
	}
	a.Dependents = long.Services
	a.RestartDependents = long.RestartDependents
	if len(long.RetryIntervals) > 0 {
		a.RetryIntervals = long.RetryIntervals
	}
	if long.MaxMismatchSeconds > 0 {
		a.MaxMismatchSeconds = long.MaxMismatchSeconds
	}
	return nil
}

// Dependencies is the top-level shape of the dependency/swarm config
// file: anchor short name -> its AnchorConfig. It preserves the order
// anchors appear in the YAML document (equivalently, the order they're
// passed to NewDependencies) so every loop that ranges over it
// processes anchors in configuration order instead of Go's randomized
// map order.
type Dependencies struct {
	order  []string
	byName map[string]AnchorConfig
}

// NewDependencies builds a Dependencies in the given order, keyed by
// each AnchorConfig's Name. Used directly by tests; LoadDependencies
// builds the same shape from a YAML document.
func NewDependencies(anchors ...AnchorConfig) Dependencies {
	d := Dependencies{byName: make(map[string]AnchorConfig, len(anchors))}
	for _, a := range anchors {
		d.put(a.Name, a)
	}
	return d
}

func (d *Dependencies) put(name string, cfg AnchorConfig) {
	if d.byName == nil {
		d.byName = map[string]AnchorConfig{}
	}
	if _, exists := d.byName[name]; !exists {
		d.order = append(d.order, name)
	}
	d.byName[name] = cfg
}

// Get returns the AnchorConfig for name, if present.
func (d Dependencies) Get(name string) (AnchorConfig, bool) {
	cfg, ok := d.byName[name]
	return cfg, ok
}

// Names returns every anchor name in configuration order.
func (d Dependencies) Names() []string {
	return d.order
}

// Len reports how many anchors are configured.
func (d Dependencies) Len() int {
	return len(d.order)
}

// LoadDependencies reads and parses the dependency file at path,
// preserving the document's anchor order.
func LoadDependencies(path string) (Dependencies, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Dependencies{}, fmt.Errorf("read dependencies file %s: %w", path, err)
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return Dependencies{}, fmt.Errorf("parse dependencies file %s: %w", path, err)
	}

	deps := Dependencies{byName: map[string]AnchorConfig{}}
	if len(root.Content) == 0 {
		return deps, nil
	}
	mapping := root.Content[0]
	if mapping.Kind != yaml.MappingNode {
		return deps, nil
	}
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		name := mapping.Content[i].Value
		var cfg AnchorConfig
		if err := mapping.Content[i+1].Decode(&cfg); err != nil {
			return Dependencies{}, fmt.Errorf("parse dependencies file %s: anchor %q: %w", path, name, err)
		}
		cfg.Name = name
		deps.put(name, cfg)
	}
	return deps, nil
}
