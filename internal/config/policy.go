package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"chanalysis/internal/flow"
)

// LoadPolicy reads a YAML scoring policy. Keys absent from the file keep their
// default values; band tables present in the file replace the defaults wholesale.
// An empty path returns the default policy.
func LoadPolicy(path string) (flow.Policy, error) {
	policy := flow.DefaultPolicy()
	if path == "" {
		return policy, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return flow.Policy{}, fmt.Errorf("failed to read policy file: %w", err)
	}

	if err := yaml.Unmarshal(data, &policy); err != nil {
		return flow.Policy{}, fmt.Errorf("failed to parse policy file %s: %w", path, err)
	}

	if err := policy.Validate(); err != nil {
		return flow.Policy{}, fmt.Errorf("policy file %s: %w", path, err)
	}

	return policy, nil
}
