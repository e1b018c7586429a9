// Package snapcache serves point and aggregate queries against the most
// recent discovery snapshot, within a time-to-live.
package snapcache

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sharewatch/sharewatch/pkg/discover"
	"github.com/sharewatch/sharewatch/pkg/metrics"
	"github.com/sharewatch/sharewatch/pkg/pathmap"
	"github.com/sharewatch/sharewatch/pkg/probe"
)

// FileUsers is the answer to "who has this file open".
type FileUsers struct {
	FilePath    string           `json:"filePath"`
	Users       []probe.OpenFile `json:"users"`
	LastUpdated time.Time        `json:"lastUpdated"`
	UserCount   int              `json:"userCount"`
}

// ActiveFile summarizes one open file for the at-a-glance view.
type ActiveFile struct {
	FilePath   string    `json:"filePath"`
	UserCount  int       `json:"userCount"`
	LastAccess time.Time `json:"lastAccess"`
}

// Stats describes the cache's current state for health and debug surfaces.
type Stats struct {
	Records    int       `json:"records"`
	CapturedAt time.Time `json:"capturedAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
	Expired    bool      `json:"expired"`
}

// Cache holds the latest snapshot with an absolute expiration. The refresh
// loop is the only writer; query handlers read an immutable snapshot
// reference, so a replace never exposes a partially merged view. Once the
// TTL elapses queries behave as if the cache were empty: "don't know"
// beats a wrong answer.
type Cache struct {
	mu          sync.RWMutex
	snap        *discover.Snapshot
	installedAt time.Time

	ttl    time.Duration
	mapper *pathmap.Mapper
}

// New creates an empty cache with the given TTL.
func New(ttl time.Duration, mapper *pathmap.Mapper) *Cache {
	return &Cache{ttl: ttl, mapper: mapper}
}

// Replace atomically installs a new snapshot, discarding the old one and
// resetting the expiration clock.
func (c *Cache) Replace(snap discover.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap = &snap
	c.installedAt = timeNow()
	metrics.SnapshotRecords.Set(float64(len(snap.Records)))
}

// Clear evicts the current snapshot.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap = nil
	metrics.SnapshotRecords.Set(0)
}

// current returns the live snapshot, or nil when absent or expired.
func (c *Cache) current() *discover.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snap == nil || timeNow().Sub(c.installedAt) > c.ttl {
		return nil
	}
	return c.snap
}

// UsersOf returns the users holding the given file open. The query path is
// expanded to all its representations first, so a UNC query matches
// records stored under the local form and vice versa.
func (c *Cache) UsersOf(path string) (FileUsers, bool) {
	snap := c.current()
	if snap == nil {
		metrics.CacheMisses.Inc()
		return FileUsers{}, false
	}

	variants := make(map[string]bool)
	for _, v := range c.mapper.Variants(path) {
		variants[v] = true
	}

	var users []probe.OpenFile
	for _, rec := range snap.Records {
		if variants[pathmap.Normalize(rec.FilePath)] {
			users = append(users, rec)
		}
	}
	if len(users) == 0 {
		metrics.CacheMisses.Inc()
		return FileUsers{}, false
	}

	metrics.CacheHits.Inc()
	return FileUsers{
		FilePath:    path,
		Users:       users,
		LastUpdated: timeNow(),
		UserCount:   len(users),
	}, true
}

// ActiveFiles groups the current records by canonical path and returns the
// groups sorted by user count, busiest first.
func (c *Cache) ActiveFiles() []ActiveFile {
	snap := c.current()
	if snap == nil {
		return nil
	}

	groups := make(map[string]*ActiveFile)
	for _, rec := range snap.Records {
		key := c.mapper.Canonical(rec.FilePath)
		g, ok := groups[key]
		if !ok {
			g = &ActiveFile{FilePath: key}
			groups[key] = g
		}
		g.UserCount++
		if rec.OpenedAt.After(g.LastAccess) {
			g.LastAccess = rec.OpenedAt
		}
	}

	result := make([]ActiveFile, 0, len(groups))
	for _, g := range groups {
		result = append(result, *g)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].UserCount != result[j].UserCount {
			return result[i].UserCount > result[j].UserCount
		}
		return result[i].FilePath < result[j].FilePath
	})
	return result
}

// FilesOf returns the records opened by the given user, matched
// case-insensitively.
func (c *Cache) FilesOf(userName string) []probe.OpenFile {
	snap := c.current()
	if snap == nil {
		return nil
	}
	var files []probe.OpenFile
	for _, rec := range snap.Records {
		if strings.EqualFold(rec.UserName, userName) {
			files = append(files, rec)
		}
	}
	return files
}

// Entries returns up to limit raw records from the current snapshot, for
// the debug surface.
func (c *Cache) Entries(limit int) []probe.OpenFile {
	snap := c.current()
	if snap == nil {
		return nil
	}
	records := snap.Records
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	out := make([]probe.OpenFile, len(records))
	copy(out, records)
	return out
}

// Stats reports the cache's current state.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snap == nil {
		return Stats{Expired: true}
	}
	expiresAt := c.installedAt.Add(c.ttl)
	return Stats{
		Records:    len(c.snap.Records),
		CapturedAt: c.snap.CapturedAt,
		ExpiresAt:  expiresAt,
		Expired:    timeNow().After(expiresAt),
	}
}

// timeNow is a variable for testing.
var timeNow = time.Now
