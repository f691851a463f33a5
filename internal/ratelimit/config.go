package ratelimit

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type rulesFile struct {
	Rules []ruleSpec `yaml:"rules"`
}

type ruleSpec struct {
	PathPrefix    string  `yaml:"path_prefix"`
	MaxRequests   int     `yaml:"max_requests"`
	WindowSeconds float64 `yaml:"window_seconds"`
}

// LoadRules reads rate limit rules from a YAML file. Each rule needs a
// path prefix, a positive max_requests, and a positive window_seconds.
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rate limit rules: %w", err)
	}

	var file rulesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing rate limit rules: %w", err)
	}
	if len(file.Rules) == 0 {
		return nil, fmt.Errorf("rate limit rules file %s defines no rules", path)
	}

	rules := make([]Rule, 0, len(file.Rules))
	for i, spec := range file.Rules {
		if spec.PathPrefix == "" {
			return nil, fmt.Errorf("rule %d: path_prefix is required", i)
		}
		if spec.MaxRequests <= 0 {
			return nil, fmt.Errorf("rule %d (%s): max_requests must be positive", i, spec.PathPrefix)
		}
		if spec.WindowSeconds <= 0 {
			return nil, fmt.Errorf("rule %d (%s): window_seconds must be positive", i, spec.PathPrefix)
		}
		rules = append(rules, Rule{
			PathPrefix:  spec.PathPrefix,
			MaxRequests: spec.MaxRequests,
			Window:      time.Duration(spec.WindowSeconds * float64(time.Second)),
		})
	}
	return rules, nil
}
