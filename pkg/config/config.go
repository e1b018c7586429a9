package config

import (
	"fmt"
	"net/netip"
	"time"
)

// Config is the top-level sharewatch configuration.
type Config struct {
	ServerName string          `yaml:"server_name"` // UNC server name; defaults to the host name
	ListenAddr string          `yaml:"listen_addr"`
	Refresh    RefreshConfig   `yaml:"refresh"`
	Cache      CacheConfig     `yaml:"cache"`
	Shares     []ShareMapping  `yaml:"share_mappings"`
	Probes     ProbesConfig    `yaml:"probes"`
	Security   SecurityConfig  `yaml:"security"`
	Metrics    MetricsConfig   `yaml:"metrics"`
	Telemetry  TelemetryConfig `yaml:"telemetry"`
}

// ShareMapping associates a network share name with a local filesystem root.
type ShareMapping struct {
	ShareName string `yaml:"share_name"`
	LocalPath string `yaml:"local_path"`
}

// RefreshConfig configures the background refresh loop.
type RefreshConfig struct {
	Interval time.Duration `yaml:"interval"` // default 10s
}

// CacheConfig configures the snapshot cache.
type CacheConfig struct {
	TTL time.Duration `yaml:"ttl"` // absolute expiration; default 5m
}

// ProbesConfig configures the open-file data sources.
type ProbesConfig struct {
	PowerShell   string   `yaml:"powershell"`    // powershell binary; default "powershell.exe"
	LocalEnabled *bool    `yaml:"local_enabled"` // pointer to distinguish unset from false; default true
	HandlePaths  []string `yaml:"handle_paths"`  // candidate install locations for handle.exe
}

// LocalProbeEnabled returns whether the local open-file probe should run.
func (p ProbesConfig) LocalProbeEnabled() bool {
	if p.LocalEnabled == nil {
		return true
	}
	return *p.LocalEnabled
}

// SecurityConfig configures the request-time guards. Any unset guard is
// disabled and the corresponding check passes every request through.
type SecurityConfig struct {
	APIKey          string          `yaml:"api_key"`
	AllowedNetworks []string        `yaml:"allowed_networks"` // CIDR strings, e.g. "10.33.0.0/16"
	RateLimit       RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig configures the per-client fixed-window rate limiter.
// MaxRequests <= 0 disables rate limiting.
type RateLimitConfig struct {
	MaxRequests int           `yaml:"max_requests"`
	Window      time.Duration `yaml:"window"` // default 60s
}

// MetricsConfig configures the Prometheus metrics and health endpoint.
type MetricsConfig struct {
	Enabled *bool  `yaml:"enabled"` // pointer to distinguish unset from false; default true
	Addr    string `yaml:"addr"`    // listen address; default ":9090"
}

// MetricsEnabled returns whether the metrics server should run.
func (m MetricsConfig) MetricsEnabled() bool {
	if m.Enabled == nil {
		return true
	}
	return *m.Enabled
}

// TelemetryConfig configures refresh-cycle telemetry.
type TelemetryConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Sink          string        `yaml:"sink"` // "stdout", "file", "nop"
	FilePath      string        `yaml:"file_path"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// Validate checks the configuration for logical errors.
func (c *Config) Validate() error {
	if c.Refresh.Interval < time.Second {
		return fmt.Errorf("config: refresh.interval must be at least 1s, got %s", c.Refresh.Interval)
	}
	if c.Cache.TTL < c.Refresh.Interval {
		return fmt.Errorf("config: cache.ttl (%s) must not be shorter than refresh.interval (%s)",
			c.Cache.TTL, c.Refresh.Interval)
	}
	names := make(map[string]bool)
	for _, sm := range c.Shares {
		if sm.ShareName == "" {
			return fmt.Errorf("config: share mapping with empty share_name")
		}
		if sm.LocalPath == "" {
			return fmt.Errorf("config: share mapping %q has empty local_path", sm.ShareName)
		}
		if names[sm.ShareName] {
			return fmt.Errorf("config: duplicate share mapping %q", sm.ShareName)
		}
		names[sm.ShareName] = true
	}
	for _, n := range c.Security.AllowedNetworks {
		if _, err := netip.ParsePrefix(n); err != nil {
			return fmt.Errorf("config: invalid allowed network %q: %w", n, err)
		}
	}
	if c.Security.RateLimit.MaxRequests > 0 && c.Security.RateLimit.Window <= 0 {
		return fmt.Errorf("config: rate_limit.window must be positive when max_requests is set")
	}
	return nil
}
