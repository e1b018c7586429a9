// Package discover merges the output of all open-file probes into a single
// deduplicated snapshot.
package discover

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/sharewatch/sharewatch/pkg/pathmap"
	"github.com/sharewatch/sharewatch/pkg/probe"
)

// Snapshot is the immutable result of one aggregation cycle.
type Snapshot struct {
	Records    []probe.OpenFile
	CapturedAt time.Time
}

// ProbeResult summarizes one probe's contribution to a cycle.
type ProbeResult struct {
	Probe    string        `json:"probe"`
	Records  int           `json:"records"`
	Duration time.Duration `json:"duration"`
	Err      string        `json:"error,omitempty"`
}

// Aggregator runs the registered probes in order and merges their results.
// Probe order is significant: only the first-seen record for a dedup key
// is retained, so session-aware sources must be registered before the
// noisier process-level ones.
type Aggregator struct {
	probes *probe.Registry
}

// New creates an Aggregator over the given probe registry.
func New(probes *probe.Registry) *Aggregator {
	return &Aggregator{probes: probes}
}

// Discover runs all probes sequentially and returns the merged snapshot.
// It never fails as a whole: a probe error is logged, reported in the
// per-probe results, and treated as an empty contribution.
func (a *Aggregator) Discover(ctx context.Context) (Snapshot, []ProbeResult) {
	var merged []probe.OpenFile
	seen := make(map[string]bool)

	probes := a.probes.Probes()
	results := make([]ProbeResult, 0, len(probes))
	for _, p := range probes {
		start := timeNow()
		records, err := p.ListOpenFiles(ctx)
		res := ProbeResult{Probe: p.Name(), Duration: timeNow().Sub(start)}
		if err != nil {
			slog.Warn("probe failed", "probe", p.Name(), "error", err)
			res.Err = err.Error()
			results = append(results, res)
			continue
		}

		for _, rec := range records {
			if rec.FilePath == "" || rec.UserName == "" {
				continue
			}
			key := dedupKey(rec.FilePath, rec.UserName)
			if seen[key] {
				continue
			}
			seen[key] = true
			merged = append(merged, rec)
			res.Records++
		}
		results = append(results, res)
	}

	return Snapshot{Records: merged, CapturedAt: timeNow()}, results
}

// dedupKey identifies an open-file fact: two records with the same
// normalized path and user describe the same thing regardless of which
// probe reported them.
func dedupKey(path, user string) string {
	return pathmap.Normalize(path) + "|" + strings.ToLower(user)
}

// timeNow is a variable for testing.
var timeNow = time.Now
