package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
// Only a fatal misconfiguration should stop the tracker from starting.
func (c *TrackerConfig) Validate() error {
	if c.Database.DSN == "" {
		return errors.New("database.dsn is required (DB_DSN)")
	}
	if c.Upstream.URI == "" {
		return errors.New("upstream.uri is required (WS_URI)")
	}

	if c.Database.MinConns > c.Database.MaxConns {
		return fmt.Errorf("database.min_conns (%d) cannot exceed max_conns (%d)",
			c.Database.MinConns, c.Database.MaxConns)
	}

	if c.Upstream.RetryDelay > c.Upstream.MaxRetryDelay {
		return fmt.Errorf("upstream.retry_delay (%s) cannot exceed max_retry_delay (%s)",
			c.Upstream.RetryDelay, c.Upstream.MaxRetryDelay)
	}

	if c.Tracking.SolReservesFull <= 0 {
		return errors.New("tracking.sol_reserves_full must be > 0")
	}
	if c.Tracking.WhaleThreshold <= 0 {
		return errors.New("tracking.whale_threshold must be > 0")
	}
	if c.Tracking.BufferWindow <= 0 {
		return errors.New("tracking.buffer_window must be > 0")
	}

	if c.Health.Port < 1 || c.Health.Port > 65535 {
		return fmt.Errorf("health.port must be between 1 and 65535, got %d", c.Health.Port)
	}

	return nil
}
