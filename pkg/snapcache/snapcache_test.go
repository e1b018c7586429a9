package snapcache

import (
	"testing"
	"time"

	"github.com/sharewatch/sharewatch/pkg/discover"
	"github.com/sharewatch/sharewatch/pkg/pathmap"
	"github.com/sharewatch/sharewatch/pkg/probe"
)

func testMapper() *pathmap.Mapper {
	return pathmap.New("fileserver01",
		[]pathmap.Mapping{{ShareName: "projects", LocalPath: `D:\Shares\Projects`}}, nil)
}

// setClock pins the package clock and returns a restore func plus an
// advance helper.
func setClock(t *testing.T, start time.Time) (advance func(d time.Duration)) {
	t.Helper()
	now := start
	restore := timeNow
	timeNow = func() time.Time { return now }
	t.Cleanup(func() { timeNow = restore })
	return func(d time.Duration) { now = now.Add(d) }
}

func testSnapshot(at time.Time) discover.Snapshot {
	return discover.Snapshot{
		CapturedAt: at,
		Records: []probe.OpenFile{
			// The same file under both representations, different users.
			{FilePath: `\\fileserver01\projects\report.xlsx`, UserName: "alice", OpenedAt: at},
			{FilePath: `D:\Shares\Projects\Report.xlsx`, UserName: "bob", OpenedAt: at.Add(time.Minute)},
			{FilePath: `D:\Shares\Projects\plan.docx`, UserName: "alice", OpenedAt: at},
		},
	}
}

func TestUsersOfMatchesAcrossRepresentations(t *testing.T) {
	start := time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)
	setClock(t, start)

	c := New(5*time.Minute, testMapper())
	c.Replace(testSnapshot(start))

	// UNC query finds both the UNC-form and local-form records.
	result, ok := c.UsersOf(`\\fileserver01\projects\report.xlsx`)
	if !ok {
		t.Fatal("UsersOf should hit")
	}
	if result.UserCount != 2 {
		t.Fatalf("UserCount = %d, want 2: %+v", result.UserCount, result.Users)
	}

	// Local query finds the same two.
	result, ok = c.UsersOf(`d:\shares\projects\REPORT.XLSX`)
	if !ok || result.UserCount != 2 {
		t.Errorf("local-form query: ok=%v count=%d", ok, result.UserCount)
	}

	if _, ok := c.UsersOf(`D:\Shares\Projects\absent.txt`); ok {
		t.Error("unknown file should miss")
	}
}

func TestTTLExpiry(t *testing.T) {
	start := time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)
	advance := setClock(t, start)

	c := New(5*time.Minute, testMapper())
	c.Replace(testSnapshot(start))

	if _, ok := c.UsersOf(`D:\Shares\Projects\plan.docx`); !ok {
		t.Fatal("fresh snapshot should hit")
	}

	advance(5*time.Minute + time.Second)
	if _, ok := c.UsersOf(`D:\Shares\Projects\plan.docx`); ok {
		t.Error("expired snapshot must behave as empty")
	}
	if c.ActiveFiles() != nil {
		t.Error("ActiveFiles on expired snapshot should be nil")
	}
	if !c.Stats().Expired {
		t.Error("Stats should report expiry")
	}

	// A replace restores service.
	c.Replace(testSnapshot(timeNow()))
	if _, ok := c.UsersOf(`D:\Shares\Projects\plan.docx`); !ok {
		t.Error("replaced snapshot should hit again")
	}
}

func TestActiveFilesGroupsByCanonicalPath(t *testing.T) {
	start := time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)
	setClock(t, start)

	c := New(5*time.Minute, testMapper())
	c.Replace(testSnapshot(start))

	files := c.ActiveFiles()
	if len(files) != 2 {
		t.Fatalf("got %d groups, want 2: %+v", len(files), files)
	}
	// Busiest first: report.xlsx has two users across representations.
	if files[0].FilePath != `d:\shares\projects\report.xlsx` || files[0].UserCount != 2 {
		t.Errorf("files[0] = %+v", files[0])
	}
	if !files[0].LastAccess.Equal(start.Add(time.Minute)) {
		t.Errorf("LastAccess = %v, want latest open time", files[0].LastAccess)
	}
	if files[1].FilePath != `d:\shares\projects\plan.docx` || files[1].UserCount != 1 {
		t.Errorf("files[1] = %+v", files[1])
	}
}

func TestFilesOf(t *testing.T) {
	start := time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)
	setClock(t, start)

	c := New(5*time.Minute, testMapper())
	c.Replace(testSnapshot(start))

	files := c.FilesOf("ALICE")
	if len(files) != 2 {
		t.Fatalf("FilesOf(ALICE) = %+v, want 2 records", files)
	}
	if len(c.FilesOf("nobody")) != 0 {
		t.Error("unknown user should have no files")
	}
}

func TestEmptyCache(t *testing.T) {
	c := New(5*time.Minute, testMapper())

	if _, ok := c.UsersOf(`D:\Shares\Projects\f.txt`); ok {
		t.Error("empty cache should miss")
	}
	if c.ActiveFiles() != nil || c.FilesOf("alice") != nil || c.Entries(10) != nil {
		t.Error("empty cache queries should return nil")
	}
	stats := c.Stats()
	if !stats.Expired || stats.Records != 0 {
		t.Errorf("empty cache stats = %+v", stats)
	}
}

func TestClear(t *testing.T) {
	start := time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)
	setClock(t, start)

	c := New(5*time.Minute, testMapper())
	c.Replace(testSnapshot(start))
	c.Clear()

	if _, ok := c.UsersOf(`D:\Shares\Projects\plan.docx`); ok {
		t.Error("cleared cache should miss")
	}
}

func TestEntriesLimit(t *testing.T) {
	start := time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)
	setClock(t, start)

	c := New(5*time.Minute, testMapper())
	c.Replace(testSnapshot(start))

	if got := len(c.Entries(2)); got != 2 {
		t.Errorf("Entries(2) returned %d records", got)
	}
	if got := len(c.Entries(0)); got != 3 {
		t.Errorf("Entries(0) returned %d records, want all", got)
	}
}

func TestStats(t *testing.T) {
	start := time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)
	setClock(t, start)

	c := New(5*time.Minute, testMapper())
	c.Replace(testSnapshot(start))

	stats := c.Stats()
	if stats.Records != 3 || stats.Expired {
		t.Errorf("stats = %+v", stats)
	}
	if !stats.ExpiresAt.Equal(start.Add(5 * time.Minute)) {
		t.Errorf("ExpiresAt = %v", stats.ExpiresAt)
	}
}
