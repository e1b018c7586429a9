package telemetry

import "time"

// ProbeSummary records one probe's contribution within a cycle.
type ProbeSummary struct {
	Probe   string `json:"probe"`
	Records int    `json:"records"`
	Error   string `json:"error,omitempty"`
}

// CycleEvent records a single refresh cycle.
type CycleEvent struct {
	Timestamp  time.Time      `json:"ts"`
	DurationMs float64        `json:"duration_ms"`
	Records    int            `json:"records"`
	Probes     []ProbeSummary `json:"probes"`
	Forced     bool           `json:"forced"`
	NodeHost   string         `json:"node"`
}
