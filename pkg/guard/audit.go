package guard

import (
	"log/slog"
	"sync"
	"time"
)

// AuditEntry records one rejected request.
type AuditEntry struct {
	Timestamp  time.Time `json:"ts"`
	Guard      string    `json:"guard"`
	RemoteAddr string    `json:"remote"`
	Path       string    `json:"path"`
	Status     int       `json:"status"`
}

// AuditLog keeps recent guard rejections in a ring buffer for the debug
// surface.
type AuditLog struct {
	mu      sync.Mutex
	entries []AuditEntry
	maxSize int
}

// NewAuditLog creates an audit log with the given ring buffer size.
func NewAuditLog(maxSize int) *AuditLog {
	return &AuditLog{
		entries: make([]AuditEntry, 0, maxSize),
		maxSize: maxSize,
	}
}

// Log records a rejection.
func (al *AuditLog) Log(entry AuditEntry) {
	al.mu.Lock()
	defer al.mu.Unlock()

	al.entries = append(al.entries, entry)
	if len(al.entries) > al.maxSize {
		// Trim to maxSize, keeping most recent entries
		al.entries = al.entries[len(al.entries)-al.maxSize:]
	}

	slog.Warn("request rejected",
		"guard", entry.Guard,
		"remote", entry.RemoteAddr,
		"path", entry.Path,
		"status", entry.Status)
}

// Recent returns the last N entries.
func (al *AuditLog) Recent(limit int) []AuditEntry {
	al.mu.Lock()
	defer al.mu.Unlock()

	if limit > len(al.entries) {
		limit = len(al.entries)
	}
	if limit == 0 {
		return nil
	}
	result := make([]AuditEntry, limit)
	copy(result, al.entries[len(al.entries)-limit:])
	return result
}

// Len returns the current number of entries.
func (al *AuditLog) Len() int {
	al.mu.Lock()
	defer al.mu.Unlock()
	return len(al.entries)
}
