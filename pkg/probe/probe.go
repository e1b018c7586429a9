package probe

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// OpenFile is one user's open handle on one file, as reported by a probe.
// FilePath is kept in the source-native representation; normalization
// happens at aggregation and query time.
type OpenFile struct {
	FilePath   string    `json:"filePath"`
	UserName   string    `json:"userName"`
	ClientName string    `json:"clientName"`
	AccessMode string    `json:"accessMode"`
	OpenedAt   time.Time `json:"openedAt"`
	SessionID  int64     `json:"sessionId"`
	FileID     int64     `json:"fileId"`
}

// Probe is one data source for open-file information.
// Implementations may invoke external processes or return canned data;
// callers only see the list.
type Probe interface {
	// Name returns the probe's identifier, e.g. "smb".
	Name() string

	// ListOpenFiles returns the currently open files this source knows
	// about. Records with an empty path or user are never returned.
	ListOpenFiles(ctx context.Context) ([]OpenFile, error)
}

// Registry holds probes in registration order. Order matters: the
// aggregator retains the first-seen record for a dedup key, so
// session-aware probes are registered before handle-derived ones.
type Registry struct {
	mu     sync.RWMutex
	order  []Probe
	byName map[string]Probe
}

// NewRegistry creates an empty probe registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Probe)}
}

// Register appends a probe to the registry, keyed by its Name().
func (r *Registry) Register(p Probe) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := p.Name()
	if _, exists := r.byName[name]; exists {
		return fmt.Errorf("probe.Registry: probe %q already registered", name)
	}
	r.byName[name] = p
	r.order = append(r.order, p)
	return nil
}

// Probes returns all registered probes in registration order.
func (r *Registry) Probes() []Probe {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Probe, len(r.order))
	copy(out, r.order)
	return out
}

// Names returns the registered probe names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.order))
	for i, p := range r.order {
		names[i] = p.Name()
	}
	return names
}

// timeNow is a variable for testing.
var timeNow = time.Now

// looksLikeFilePath reports whether s has the shape of a real filesystem
// path: drive-letter or network-share prefixed. Used to filter probe
// output that mixes files with pipes, sockets and pseudo-handles.
func looksLikeFilePath(s string) bool {
	if len(s) >= 2 && (s[0] == '\\' && s[1] == '\\' || s[0] == '/' && s[1] == '/') {
		return len(s) > 2
	}
	if len(s) < 3 {
		return false
	}
	c := s[0]
	isDrive := c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z'
	return isDrive && s[1] == ':' && (s[2] == '\\' || s[2] == '/')
}
