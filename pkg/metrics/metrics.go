package metrics

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Refresh loop metrics
	RefreshCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sharewatch_refresh_cycles_total",
		Help: "Refresh cycles by outcome",
	}, []string{"status"})

	RefreshDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sharewatch_refresh_duration_seconds",
		Help:    "Duration of one full aggregation cycle",
		Buckets: []float64{.05, .1, .5, 1, 5, 10, 30, 60},
	})

	// Probe metrics
	ProbeRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sharewatch_probe_records_total",
		Help: "Records contributed per probe after deduplication",
	}, []string{"probe"})

	ProbeErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sharewatch_probe_errors_total",
		Help: "Probe failures by probe",
	}, []string{"probe"})

	// Cache metrics
	SnapshotRecords = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sharewatch_snapshot_records",
		Help: "Records in the current snapshot",
	})
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sharewatch_cache_hit_total",
		Help: "Point queries answered from the snapshot",
	})
	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sharewatch_cache_miss_total",
		Help: "Point queries with no match or an expired snapshot",
	})

	// Guard metrics
	GuardRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sharewatch_guard_rejections_total",
		Help: "Requests rejected before reaching a handler",
	}, []string{"guard"})

	// API metrics
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sharewatch_http_requests_total",
		Help: "HTTP requests by route and status code",
	}, []string{"route", "code"})
)

func init() {
	// Pre-initialize Vec metrics so they appear in /metrics output before first use.
	RefreshCycles.WithLabelValues("success")
	RefreshCycles.WithLabelValues("error")
	ProbeRecords.WithLabelValues("smb")
	ProbeErrors.WithLabelValues("smb")
	GuardRejections.WithLabelValues("ip_filter")
	GuardRejections.WithLabelValues("api_key")
	GuardRejections.WithLabelValues("rate_limit")
}

// HealthCheck holds a single health check function.
type HealthCheck struct {
	Name  string
	Check func() error
}

// HealthStatus represents the health response.
type HealthStatus struct {
	Status string            `json:"status"` // "ok" or "degraded"
	Checks map[string]string `json:"checks"`
}

// healthChecker holds registered health checks.
type healthChecker struct {
	mu     sync.RWMutex
	checks []HealthCheck
}

var defaultHealthChecker = &healthChecker{}

// RegisterHealthCheck adds a health check.
func RegisterHealthCheck(name string, check func() error) {
	defaultHealthChecker.mu.Lock()
	defer defaultHealthChecker.mu.Unlock()
	defaultHealthChecker.checks = append(defaultHealthChecker.checks, HealthCheck{
		Name:  name,
		Check: check,
	})
}

// runChecks runs all registered health checks.
func runChecks() HealthStatus {
	defaultHealthChecker.mu.RLock()
	checks := make([]HealthCheck, len(defaultHealthChecker.checks))
	copy(checks, defaultHealthChecker.checks)
	defaultHealthChecker.mu.RUnlock()

	status := HealthStatus{
		Status: "ok",
		Checks: make(map[string]string),
	}

	for _, hc := range checks {
		if err := hc.Check(); err != nil {
			status.Status = "degraded"
			status.Checks[hc.Name] = err.Error()
		} else {
			status.Checks[hc.Name] = "ok"
		}
	}
	return status
}

// HealthzHandler handles GET /healthz requests.
func HealthzHandler(w http.ResponseWriter, r *http.Request) {
	status := runChecks()
	w.Header().Set("Content-Type", "application/json")
	if status.Status != "ok" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(status)
}

// Server starts an HTTP server for /metrics and /healthz on the given addr.
// It blocks until the provided stop channel is closed, then shuts down gracefully.
func Server(addr string, stop <-chan struct{}) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", HealthzHandler)

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-stop:
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	case err := <-errCh:
		return err
	}
}
