package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// AssignmentConfig decides which designer, if any, a new designer-bound
// thread starts with.
type AssignmentConfig struct {
	Strategy  string  `yaml:"strategy"`
	Designers []int64 `yaml:"designers"`
}

// LoadAssignment reads the policy file when one is given and falls back to a
// comma separated designer list otherwise.
func LoadAssignment(path string, designerList string) (AssignmentConfig, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		ids, err := parseInt64List(designerList)
		if err != nil {
			return AssignmentConfig{}, fmt.Errorf("DEFAULT_DESIGNER_IDS: %w", err)
		}
		return AssignmentConfig{Designers: ids}, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return AssignmentConfig{}, fmt.Errorf("assignment policy file not found: %s", path)
		}
		return AssignmentConfig{}, err
	}

	var cfg AssignmentConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return AssignmentConfig{}, fmt.Errorf("parse assignment policy: %w", err)
	}
	cfg.Strategy = strings.ToLower(strings.TrimSpace(cfg.Strategy))
	for _, id := range cfg.Designers {
		if id <= 0 {
			return AssignmentConfig{}, fmt.Errorf("assignment policy: invalid designer id %d", id)
		}
	}
	return cfg, nil
}
