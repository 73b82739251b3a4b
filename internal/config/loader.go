package config

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Load builds the configuration: optional YAML file, then environment
// variables, then the override file at OverridePath. Defaults are applied
// last. An empty yamlPath skips the YAML layer.
func Load(yamlPath string) (*TrackerConfig, error) {
	var cfg TrackerConfig

	if yamlPath != "" {
		data, err := os.ReadFile(yamlPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		// Expand ${VAR} environment variables
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parse config yaml: %w", err)
		}
	}

	cfg.applyEnv(os.Getenv)

	if err := cfg.ApplyOverrideFile(OverridePath); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	if cfg.Instance.ID == "" {
		cfg.Instance.ID = uuid.NewString()
	}

	return &cfg, nil
}

// LoadAndValidate loads the configuration and validates it.
func LoadAndValidate(yamlPath string) (*TrackerConfig, error) {
	cfg, err := Load(yamlPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Snapshot returns the effective key/value view of the reloadable settings,
// as reported by the /reload-config endpoint.
func (c *TrackerConfig) Snapshot() map[string]any {
	return map[string]any{
		"DB_REFRESH_INTERVAL": int(c.Database.RefreshInterval.Seconds()),
		"BUFFER_SECONDS":      int(c.Tracking.BufferWindow.Seconds()),
		"WHALE_THRESHOLD":     c.Tracking.WhaleThreshold,
		"SOL_RESERVES_FULL":   c.Tracking.SolReservesFull,
		"AGE_OFFSET_MIN":      int(c.Tracking.AgeOffset.Minutes()),
	}
}
