package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/sharewatch/sharewatch/pkg/api"
	"github.com/sharewatch/sharewatch/pkg/config"
	"github.com/sharewatch/sharewatch/pkg/discover"
	"github.com/sharewatch/sharewatch/pkg/guard"
	"github.com/sharewatch/sharewatch/pkg/metrics"
	"github.com/sharewatch/sharewatch/pkg/monitor"
	"github.com/sharewatch/sharewatch/pkg/pathmap"
	"github.com/sharewatch/sharewatch/pkg/probe"
	"github.com/sharewatch/sharewatch/pkg/snapcache"
	"github.com/sharewatch/sharewatch/pkg/telemetry"
)

const defaultConfigPath = "sharewatch.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	listenAddr := flag.String("listen", "", "Listen address (overrides config)")
	flag.Parse()

	// Optional .env for ${VAR} expansion in the config file.
	_ = godotenv.Load()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load config", "path", *configPath, "error", err)
		os.Exit(1)
	}
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	// ── Path mapping ─────────────────────────────────────────────
	static := make([]pathmap.Mapping, 0, len(cfg.Shares))
	for _, sm := range cfg.Shares {
		static = append(static, pathmap.Mapping{ShareName: sm.ShareName, LocalPath: sm.LocalPath})
		slog.Info("configured share mapping", "share", sm.ShareName, "local_path", sm.LocalPath)
	}
	discovered := pathmap.DiscoverShares(ctx, cfg.Probes.PowerShell)
	mapper := pathmap.New(cfg.ServerName, static, discovered)
	slog.Info("path mapper initialized", "server_name", mapper.ServerName(), "mappings", len(mapper.Mappings()))

	// ── Probes ───────────────────────────────────────────────────
	runner := probe.ExecRunner{}
	resolver := probe.NewHostnameResolver()

	registry := probe.NewRegistry()
	if err := registry.Register(probe.NewSMBProbe(runner, cfg.Probes.PowerShell, resolver)); err != nil {
		slog.Error("failed to register probe", "error", err)
		os.Exit(1)
	}
	if cfg.Probes.LocalProbeEnabled() {
		if err := registry.Register(probe.NewLocalProbe(runner, cfg.ServerName)); err != nil {
			slog.Error("failed to register probe", "error", err)
			os.Exit(1)
		}
	}
	if handleProbe, ok := probe.NewHandleProbe(runner, cfg.Probes.HandlePaths, cfg.ServerName); ok {
		if err := registry.Register(handleProbe); err != nil {
			slog.Error("failed to register probe", "error", err)
			os.Exit(1)
		}
		slog.Info("deep-handle probe enabled")
	} else {
		slog.Info("deep-handle probe disabled: tool not found", "candidates", cfg.Probes.HandlePaths)
	}
	slog.Info("probes registered", "probes", registry.Names())

	// ── Cache + refresh loop ─────────────────────────────────────
	cache := snapcache.New(cfg.Cache.TTL, mapper)

	var collector *telemetry.Collector
	if cfg.Telemetry.Enabled {
		collector, err = telemetry.NewCollector(telemetry.CollectorConfig{
			Enabled:       true,
			Sink:          cfg.Telemetry.Sink,
			FilePath:      cfg.Telemetry.FilePath,
			BatchSize:     cfg.Telemetry.BatchSize,
			FlushInterval: cfg.Telemetry.FlushInterval,
		})
		if err != nil {
			slog.Warn("telemetry collector failed to initialize", "error", err)
		} else {
			defer collector.Close()
			slog.Info("telemetry enabled", "sink", cfg.Telemetry.Sink)
		}
	}

	worker := monitor.New(discover.New(registry), cache, cfg.Refresh.Interval, collector)
	go worker.Run(ctx)

	// ── Guards ───────────────────────────────────────────────────
	audit := guard.NewAuditLog(1000)
	chain := guard.NewChain(audit,
		guard.NewIPFilter(cfg.Security.AllowedNetworks),
		guard.NewAPIKey(cfg.Security.APIKey),
		guard.NewRateLimiter(cfg.Security.RateLimit.MaxRequests, cfg.Security.RateLimit.Window),
	)

	// ── Metrics + Health Server ──────────────────────────────────
	metrics.RegisterHealthCheck("snapshot", func() error {
		if cache.Stats().Expired {
			return errors.New("snapshot absent or expired")
		}
		return nil
	})

	metricsStop := make(chan struct{})
	if cfg.Metrics.MetricsEnabled() {
		go func() {
			if err := metrics.Server(cfg.Metrics.Addr, metricsStop); err != nil {
				slog.Error("metrics server error", "error", err)
			}
		}()
		slog.Info("metrics server started", "addr", cfg.Metrics.Addr)
	} else {
		slog.Info("metrics server disabled")
	}
	defer close(metricsStop)

	// ── API Server ───────────────────────────────────────────────
	srv := api.NewServer(cfg.ListenAddr, cache, worker, mapper, registry, chain, audit)
	if err := srv.Run(ctx); err != nil {
		slog.Error("api server failed", "error", err)
		os.Exit(1)
	}

	slog.Info("sharewatch stopped cleanly")
}

// loadConfig reads the config file, falling back to built-in defaults when
// the default path does not exist.
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) && path == defaultConfigPath {
		slog.Warn("config file not found, using defaults", "path", path)
		return config.Default(), nil
	}
	return config.Load(path)
}
