package telemetry

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestCollectorBatches(t *testing.T) {
	c, err := NewCollector(CollectorConfig{
		Enabled:       true,
		Sink:          "nop",
		BatchSize:     10,
		FlushInterval: time.Hour,
	})
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}
	defer c.Close()

	c.Record(CycleEvent{Records: 3})
	c.Record(CycleEvent{Records: 5, Forced: true})

	events := c.Events()
	if len(events) != 2 {
		t.Fatalf("batched events = %d, want 2", len(events))
	}
	if events[1].Records != 5 || !events[1].Forced {
		t.Errorf("events[1] = %+v", events[1])
	}

	// Flush empties the batch.
	c.Flush()
	if got := len(c.Events()); got != 0 {
		t.Errorf("events after flush = %d, want 0", got)
	}
}

func TestCollectorDisabled(t *testing.T) {
	c, err := NewCollector(CollectorConfig{Enabled: false, Sink: "nop"})
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}
	defer c.Close()

	c.Record(CycleEvent{Records: 1})
	if len(c.Events()) != 0 {
		t.Error("disabled collector must not record")
	}
}

func TestFileSinkWritesJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "telemetry", "events.jsonl")
	c, err := NewCollector(CollectorConfig{
		Enabled:       true,
		Sink:          "file",
		FilePath:      path,
		BatchSize:     100,
		FlushInterval: time.Hour,
	})
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}

	c.Record(CycleEvent{Records: 7, NodeHost: "fileserver01",
		Probes: []ProbeSummary{{Probe: "smb", Records: 7}}})
	c.Record(CycleEvent{Records: 0, Probes: []ProbeSummary{{Probe: "smb", Error: "boom"}}})
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open sink file: %v", err)
	}
	defer f.Close()

	var lines []CycleEvent
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var evt CycleEvent
		if err := json.Unmarshal(scanner.Bytes(), &evt); err != nil {
			t.Fatalf("line is not JSON: %v", err)
		}
		lines = append(lines, evt)
	}
	if len(lines) != 2 {
		t.Fatalf("sink file has %d events, want 2", len(lines))
	}
	if lines[0].NodeHost != "fileserver01" || lines[0].Probes[0].Probe != "smb" {
		t.Errorf("lines[0] = %+v", lines[0])
	}
	if lines[1].Probes[0].Error != "boom" {
		t.Errorf("lines[1] = %+v", lines[1])
	}
}

func TestMemoryEmitter(t *testing.T) {
	e := NewMemoryEmitter()
	if err := e.Emit([]CycleEvent{{Records: 1}, {Records: 2}}); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if e.Len() != 2 {
		t.Errorf("Len = %d, want 2", e.Len())
	}
	if e.Events()[1].Records != 2 {
		t.Errorf("Events = %+v", e.Events())
	}
}
