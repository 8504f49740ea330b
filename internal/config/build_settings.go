package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// BuildSettings are the platform settings of the builder. They can be
// overridden by a YAML file pointed to by BUILD_SETTINGS_FILE.
type BuildSettings struct {
	DefaultTarget string   `yaml:"default_target"`
	Targets       []string `yaml:"targets"`
}

func DefaultBuildSettings() BuildSettings {
	return BuildSettings{
		DefaultTarget: "x86_64-unknown-linux-gnu",
		Targets: []string{
			"i686-apple-darwin",
			"i686-pc-windows-msvc",
			"i686-unknown-linux-gnu",
			"x86_64-apple-darwin",
			"x86_64-pc-windows-msvc",
			"x86_64-unknown-linux-gnu",
		},
	}
}

// LoadBuildSettings reads the settings file at path. Fields missing from the
// file keep their default value. An empty path returns the defaults.
func LoadBuildSettings(path string) (BuildSettings, error) {
	s := DefaultBuildSettings()
	if path == "" {
		return s, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return s, fmt.Errorf("read build settings: %w", err)
	}
	var override BuildSettings
	if err := yaml.Unmarshal(b, &override); err != nil {
		return s, fmt.Errorf("parse build settings %s: %w", path, err)
	}
	if override.DefaultTarget != "" {
		s.DefaultTarget = override.DefaultTarget
	}
	if len(override.Targets) > 0 {
		s.Targets = override.Targets
	}
	return s, nil
}
