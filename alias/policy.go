package alias

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Policy controls how aggressive the oracle is allowed to be. Disabling a
// refinement makes every answer it governed conservatively "may alias".
type Policy struct {
	// DisjointOffsets lets provably non-overlapping constant memory ranges
	// (and unequal constant storage slots) report no-alias.
	DisjointOffsets bool `yaml:"disjoint_offsets"`
	// StaticCallRefinement lets pure storage reads skip STATICCALL barriers,
	// which cannot write storage or transient storage.
	StaticCallRefinement bool `yaml:"staticcall_refinement"`
}

// DefaultPolicy enables all refinements.
func DefaultPolicy() Policy {
	return Policy{
		DisjointOffsets:      true,
		StaticCallRefinement: true,
	}
}

// LoadPolicy reads a YAML policy file. Missing keys keep their zero value, so
// a partial file disables the refinements it does not mention.
func LoadPolicy(path string) (Policy, error) {
	var p Policy
	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("read policy: %w", err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("parse policy %s: %w", path, err)
	}
	return p, nil
}
