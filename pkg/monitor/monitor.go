// Package monitor runs the supervised background loop that keeps the
// snapshot cache fresh.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/sharewatch/sharewatch/pkg/discover"
	"github.com/sharewatch/sharewatch/pkg/metrics"
	"github.com/sharewatch/sharewatch/pkg/snapcache"
	"github.com/sharewatch/sharewatch/pkg/telemetry"
)

// Worker periodically aggregates open-file records and replaces the cached
// snapshot. A failed cycle is logged and skipped; the previous snapshot
// stays in place and the loop continues on the next tick.
type Worker struct {
	agg       *discover.Aggregator
	cache     *snapcache.Cache
	interval  time.Duration
	collector *telemetry.Collector // nil when telemetry is disabled
	hostname  string

	sf singleflight.Group
}

// New creates a refresh worker.
func New(agg *discover.Aggregator, cache *snapcache.Cache, interval time.Duration, collector *telemetry.Collector) *Worker {
	hostname, _ := os.Hostname()
	return &Worker{
		agg:       agg,
		cache:     cache,
		interval:  interval,
		collector: collector,
		hostname:  hostname,
	}
}

// Run starts the periodic refresh loop. It blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	slog.Info("refresh loop started", "interval", w.interval)

	// Initial refresh so queries have data before the first tick.
	if _, err := w.runCycle(ctx, false); err != nil {
		slog.Error("initial refresh failed", "error", err)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("refresh loop stopped")
			return
		case <-ticker.C:
			if _, err := w.runCycle(ctx, false); err != nil {
				slog.Error("refresh cycle failed", "error", err)
			}
		}
	}
}

// RefreshNow runs an ad hoc aggregation cycle and replaces the cache.
// Concurrent callers are coalesced into one cycle; all receive the same
// record count. The periodic loop is unaffected.
func (w *Worker) RefreshNow(ctx context.Context) (int, error) {
	count, err, _ := w.sf.Do("refresh", func() (interface{}, error) {
		return w.runCycle(ctx, true)
	})
	if err != nil {
		return 0, err
	}
	return count.(int), nil
}

// runCycle performs one aggregation and cache replacement. Any panic from
// the merge is converted to an error here so a bad cycle never takes the
// loop down with it.
func (w *Worker) runCycle(ctx context.Context, forced bool) (count int, err error) {
	defer func() {
		if r := recover(); r != nil {
			metrics.RefreshCycles.WithLabelValues("error").Inc()
			err = fmt.Errorf("monitor: cycle panicked: %v", r)
		}
	}()

	if ctx.Err() != nil {
		return 0, ctx.Err()
	}

	start := time.Now()
	snap, results := w.agg.Discover(ctx)
	w.cache.Replace(snap)
	elapsed := time.Since(start)

	metrics.RefreshCycles.WithLabelValues("success").Inc()
	metrics.RefreshDuration.Observe(elapsed.Seconds())
	for _, res := range results {
		metrics.ProbeRecords.WithLabelValues(res.Probe).Add(float64(res.Records))
		if res.Err != "" {
			metrics.ProbeErrors.WithLabelValues(res.Probe).Inc()
		}
	}

	if w.collector != nil {
		evt := telemetry.CycleEvent{
			Timestamp:  snap.CapturedAt,
			DurationMs: float64(elapsed.Milliseconds()),
			Records:    len(snap.Records),
			Forced:     forced,
			NodeHost:   w.hostname,
		}
		for _, res := range results {
			evt.Probes = append(evt.Probes, telemetry.ProbeSummary{
				Probe:   res.Probe,
				Records: res.Records,
				Error:   res.Err,
			})
		}
		w.collector.Record(evt)
	}

	slog.Debug("refresh cycle complete",
		"records", len(snap.Records), "duration", elapsed, "forced", forced)
	return len(snap.Records), nil
}
