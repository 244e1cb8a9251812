// Package config loads the scalar YAML settings file that feeds the
// BuildOptions build variable.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Settings is the decoded shape of a YAML settings file.
type Settings struct {
	CompilationMode string `yaml:"compilation_mode"`
	DefaultVisibility []string `yaml:"default_visibility"`
	TestEnvironmentVars map[string]string `yaml:"test_environment_variables"`
}

// Default returns the settings used when no file is supplied.
func Default() Settings {
	return Settings{CompilationMode: "fastbuild"}
}

// Load reads and decodes the settings file at path.
func Load(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("config: reading %s: %w", path, err)
	}
	settings := Default()
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return Settings{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return settings, nil
}

// Validate rejects settings combinations that evaluate_configurations
// cannot turn into a usable Configuration.
func (s Settings) Validate() error {
	switch s.CompilationMode {
	case "", "fastbuild", "opt", "dbg":
		return nil
	default:
		return fmt.Errorf("config: unknown compilation_mode %q", s.CompilationMode)
	}
}
