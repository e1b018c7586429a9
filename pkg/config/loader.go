package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads and parses a sharewatch configuration file.
// Supports environment variable expansion in string values via ${VAR} syntax.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %s: %w", path, err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse %s: %w", path, err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

// Default returns a configuration with all defaults applied, for running
// without a config file.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills in unset fields.
func (c *Config) ApplyDefaults() {
	if c.ServerName == "" {
		if host, err := os.Hostname(); err == nil {
			c.ServerName = host
		} else {
			c.ServerName = "localhost"
		}
	}
	if c.ListenAddr == "" {
		c.ListenAddr = ":5100"
	}
	if c.Refresh.Interval == 0 {
		c.Refresh.Interval = 10 * time.Second
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = 5 * time.Minute
	}
	if c.Probes.PowerShell == "" {
		c.Probes.PowerShell = "powershell.exe"
	}
	if len(c.Probes.HandlePaths) == 0 {
		c.Probes.HandlePaths = []string{
			`C:\Program Files\Sysinternals\handle64.exe`,
			`C:\Program Files\Sysinternals\handle.exe`,
			`C:\Tools\handle64.exe`,
			`C:\Tools\handle.exe`,
		}
	}
	if c.Security.RateLimit.Window == 0 {
		c.Security.RateLimit.Window = 60 * time.Second
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9090"
	}
	if c.Telemetry.BatchSize == 0 {
		c.Telemetry.BatchSize = 100
	}
	if c.Telemetry.FlushInterval == 0 {
		c.Telemetry.FlushInterval = 5 * time.Second
	}
}
