package probe

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// handleTimeout bounds one handle.exe run. Enumerating every process's
// handles can wedge on a hung driver; past the deadline the child is
// killed and the probe contributes nothing this cycle.
const handleTimeout = 30 * time.Second

// HandleProbe enumerates open file handles across all processes using the
// Sysinternals handle utility. Noisier than the session-aware probes, so
// it runs last and only fills in records they missed.
type HandleProbe struct {
	runner   Runner
	exePath  string
	hostname string
}

// NewHandleProbe returns the deep-handle probe, or ok=false when the
// backing tool is not installed at any of the candidate locations.
func NewHandleProbe(runner Runner, candidates []string, hostname string) (*HandleProbe, bool) {
	for _, path := range candidates {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return &HandleProbe{
				runner:   runner,
				exePath:  path,
				hostname: strings.ToUpper(hostname),
			}, true
		}
	}
	return nil, false
}

// Name implements Probe.
func (p *HandleProbe) Name() string { return "handle" }

// ListOpenFiles implements Probe.
func (p *HandleProbe) ListOpenFiles(ctx context.Context) ([]OpenFile, error) {
	ctx, cancel := context.WithTimeout(ctx, handleTimeout)
	defer cancel()

	out, err := p.runner.Run(ctx, p.exePath, "-accepteula", "-nobanner", "-u", "-a")
	if err != nil {
		return nil, fmt.Errorf("handle probe: %w", err)
	}
	return p.parseHandleOutput(out), nil
}

// scanState tracks where the line scanner is within handle.exe output.
type scanState int

const (
	awaitingProcessHeader scanState = iota
	withinProcessFiles
)

// parseHandleOutput walks handle.exe output with a two-state scanner.
// A process header line seeds the current process/user context; indented
// lines within that process are tested against the file-record shape:
//
//	explorer.exe pid: 1234 CONTOSO\alice
//	   12C: File  (RW-)   D:\Data\report.xlsx
func (p *HandleProbe) parseHandleOutput(data []byte) []OpenFile {
	now := timeNow()
	state := awaitingProcessHeader
	var curProcess, curUser string
	var pid int64

	var records []OpenFile
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimRight(line, "\r")

		if name, user, id, ok := parseProcessHeader(line); ok {
			curProcess, curUser, pid = name, user, id
			state = withinProcessFiles
			continue
		}
		if state != withinProcessFiles {
			continue
		}
		handleID, path, ok := parseHandleLine(line)
		if !ok || curUser == "" {
			continue
		}
		records = append(records, OpenFile{
			FilePath:   path,
			UserName:   curUser,
			ClientName: p.hostname,
			AccessMode: "Handle (" + curProcess + ")",
			OpenedAt:   now,
			SessionID:  pid,
			FileID:     handleID,
		})
	}
	return records
}

// parseProcessHeader matches "name.exe pid: 1234 DOMAIN\user" lines.
// Processes whose owner could not be determined get an empty user, which
// suppresses their file lines.
func parseProcessHeader(line string) (name, user string, pid int64, ok bool) {
	if line == "" || line[0] == ' ' || line[0] == '\t' || line[0] == '-' {
		return "", "", 0, false
	}
	fields := strings.Fields(line)
	for i := 1; i < len(fields)-1; i++ {
		if fields[i] != "pid:" {
			continue
		}
		id, err := strconv.ParseInt(fields[i+1], 10, 64)
		if err != nil {
			return "", "", 0, false
		}
		user = strings.Join(fields[i+2:], " ")
		if strings.HasPrefix(user, "<") { // "<unable to open process>"
			user = ""
		}
		// The process name itself may contain spaces.
		return strings.Join(fields[:i], " "), user, id, true
	}
	return "", "", 0, false
}

// parseHandleLine matches indented "12C: File  (RW-)   <path>" lines,
// accepting only File-type handles whose target looks like a real
// filesystem path.
func parseHandleLine(line string) (handleID int64, path string, ok bool) {
	if line == "" || (line[0] != ' ' && line[0] != '\t') {
		return 0, "", false
	}
	fields := strings.Fields(line)
	if len(fields) < 3 || !strings.HasSuffix(fields[0], ":") || fields[1] != "File" {
		return 0, "", false
	}
	rest := fields[2:]
	if strings.HasPrefix(rest[0], "(") {
		rest = rest[1:]
	}
	path = strings.Join(rest, " ")
	if !looksLikeFilePath(path) {
		return 0, "", false
	}
	id, err := strconv.ParseInt(strings.TrimSuffix(fields[0], ":"), 16, 64)
	if err != nil {
		return 0, "", false
	}
	return id, path, true
}
