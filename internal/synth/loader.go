package synth

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadPolicy reads a band table from a YAML file and validates it.
func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	return ParsePolicy(data)
}

// ParsePolicy decodes and validates a YAML band table.
func ParsePolicy(data []byte) (*Policy, error) {
	var policy Policy
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return nil, fmt.Errorf("failed to parse policy YAML: %w", err)
	}
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy: %w", err)
	}
	if policy.Name == "" {
		policy.Name = "custom"
	}
	return &policy, nil
}

// PolicyOrDefault loads path, or returns the built-in table when path is empty.
func PolicyOrDefault(path string) (*Policy, error) {
	if path == "" {
		return DefaultPolicy(), nil
	}
	return LoadPolicy(path)
}

// Encode writes the policy in the format LoadPolicy reads.
func (p *Policy) Encode() ([]byte, error) {
	return yaml.Marshal(p)
}
