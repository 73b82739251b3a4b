package config

import "time"

// OverridePath is the fixed location of the key=value override file written
// by the control panel. Missing file is not an error.
const OverridePath = "/app/config/.env"

// Default values for optional configuration fields.
const (
	DefaultWSURI             = "wss://pumpportal.fun/api/data"
	DefaultRefreshInterval   = 10 * time.Second
	DefaultDBRetryDelay      = 5 * time.Second
	DefaultMaxConns          = 10
	DefaultMinConns          = 1
	DefaultWSRetryDelay      = 3 * time.Second
	DefaultWSMaxRetryDelay   = 60 * time.Second
	DefaultPingInterval      = 20 * time.Second
	DefaultPingTimeout       = 10 * time.Second
	DefaultConnectionTimeout = 30 * time.Second
	DefaultSolReservesFull   = 85.0
	DefaultAgeOffset         = 60 * time.Minute
	DefaultBufferWindow      = 180 * time.Second
	DefaultWhaleThreshold    = 1.0
	DefaultHealthPort        = 8000
)

func (c *TrackerConfig) applyDefaults() {
	if c.Database.RefreshInterval == 0 {
		c.Database.RefreshInterval = DefaultRefreshInterval
	}
	if c.Database.RetryDelay == 0 {
		c.Database.RetryDelay = DefaultDBRetryDelay
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = DefaultMaxConns
	}
	if c.Database.MinConns == 0 {
		c.Database.MinConns = DefaultMinConns
	}

	if c.Upstream.URI == "" {
		c.Upstream.URI = DefaultWSURI
	}
	if c.Upstream.RetryDelay == 0 {
		c.Upstream.RetryDelay = DefaultWSRetryDelay
	}
	if c.Upstream.MaxRetryDelay == 0 {
		c.Upstream.MaxRetryDelay = DefaultWSMaxRetryDelay
	}
	if c.Upstream.PingInterval == 0 {
		c.Upstream.PingInterval = DefaultPingInterval
	}
	if c.Upstream.PingTimeout == 0 {
		c.Upstream.PingTimeout = DefaultPingTimeout
	}
	if c.Upstream.ConnectionTimeout == 0 {
		c.Upstream.ConnectionTimeout = DefaultConnectionTimeout
	}

	if c.Tracking.SolReservesFull == 0 {
		c.Tracking.SolReservesFull = DefaultSolReservesFull
	}
	if c.Tracking.AgeOffset == 0 {
		c.Tracking.AgeOffset = DefaultAgeOffset
	}
	if c.Tracking.BufferWindow == 0 {
		c.Tracking.BufferWindow = DefaultBufferWindow
	}
	if c.Tracking.WhaleThreshold == 0 {
		c.Tracking.WhaleThreshold = DefaultWhaleThreshold
	}

	if c.Health.Port == 0 {
		c.Health.Port = DefaultHealthPort
	}
}
