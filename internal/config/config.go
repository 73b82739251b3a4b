package config

import "time"

// TrackerConfig is the root configuration for a tracker instance.
//
// Values come from three layers, later layers winning: YAML file (optional,
// -config flag), environment variables, and the key=value override file at
// OverridePath (shared volume, hot-reloadable).
type TrackerConfig struct {
	Instance InstanceConfig `yaml:"instance"`
	Database DatabaseConfig `yaml:"database"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Tracking TrackingConfig `yaml:"tracking"`
	Health   HealthConfig   `yaml:"health"`
}

// InstanceConfig identifies this tracker.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// DatabaseConfig holds the Postgres connection and refresh cadence.
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	RetryDelay      time.Duration `yaml:"retry_delay"`
	MaxConns        int           `yaml:"max_conns"`
	MinConns        int           `yaml:"min_conns"`
}

// UpstreamConfig holds trade venue WebSocket settings.
type UpstreamConfig struct {
	URI               string        `yaml:"uri"`
	RetryDelay        time.Duration `yaml:"retry_delay"`
	MaxRetryDelay     time.Duration `yaml:"max_retry_delay"`
	PingInterval      time.Duration `yaml:"ping_interval"`
	PingTimeout       time.Duration `yaml:"ping_timeout"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// TrackingConfig holds aggregation and lifecycle parameters.
type TrackingConfig struct {
	SolReservesFull float64       `yaml:"sol_reserves_full"` // Bonding-curve denominator
	AgeOffset       time.Duration `yaml:"age_offset"`        // Subtracted from token age
	BufferWindow    time.Duration `yaml:"buffer_window"`     // Rolling trade buffer span
	WhaleThreshold  float64       `yaml:"whale_threshold"`   // SOL amount for whale trades
}

// HealthConfig holds the HTTP surface settings.
type HealthConfig struct {
	Port int `yaml:"port"`
}
