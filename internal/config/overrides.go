package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// applyEnv overlays recognized environment variables onto the config.
// Durations are plain integer seconds (minutes for the age offset), matching
// the deployment convention. Unparseable values are ignored so a bad override
// cannot take the tracker down.
func (c *TrackerConfig) applyEnv(getenv func(string) string) {
	setString(getenv("DB_DSN"), &c.Database.DSN)
	setString(getenv("WS_URI"), &c.Upstream.URI)

	setSeconds(getenv("DB_REFRESH_INTERVAL"), &c.Database.RefreshInterval)
	setSeconds(getenv("DB_RETRY_DELAY"), &c.Database.RetryDelay)
	setSeconds(getenv("WS_RETRY_DELAY"), &c.Upstream.RetryDelay)
	setSeconds(getenv("WS_MAX_RETRY_DELAY"), &c.Upstream.MaxRetryDelay)
	setSeconds(getenv("WS_PING_INTERVAL"), &c.Upstream.PingInterval)
	setSeconds(getenv("WS_PING_TIMEOUT"), &c.Upstream.PingTimeout)
	setSeconds(getenv("WS_CONNECTION_TIMEOUT"), &c.Upstream.ConnectionTimeout)
	setSeconds(getenv("BUFFER_SECONDS"), &c.Tracking.BufferWindow)

	setFloat(getenv("SOL_RESERVES_FULL"), &c.Tracking.SolReservesFull)
	setFloat(getenv("WHALE_THRESHOLD"), &c.Tracking.WhaleThreshold)

	if v := getenv("AGE_CALCULATION_OFFSET_MIN"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Tracking.AgeOffset = time.Duration(n) * time.Minute
		}
	}
	if v := getenv("HEALTH_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Health.Port = n
		}
	}
}

// ApplyOverrideFile overlays a key=value file onto the config. A missing file
// is fine; a malformed line is skipped. Values may be single- or
// double-quoted, and lines starting with '#' are comments.
func (c *TrackerConfig) ApplyOverrideFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open override file: %w", err)
	}
	defer f.Close()

	overrides := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		value = strings.Trim(value, `"'`)
		if key != "" && value != "" {
			overrides[key] = value
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read override file: %w", err)
	}

	c.applyEnv(func(key string) string { return overrides[key] })
	return nil
}

func setString(v string, dst *string) {
	if v != "" {
		*dst = v
	}
}

func setSeconds(v string, dst *time.Duration) {
	if v == "" {
		return
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		*dst = time.Duration(n) * time.Second
	}
}

func setFloat(v string, dst *float64) {
	if v == "" {
		return
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
		*dst = f
	}
}
