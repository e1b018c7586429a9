package probe

import (
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
)

// LocalProbe lists files opened by local processes via `openfiles`.
// The facility reports no client or session identifiers, so ClientName
// defaults to the local host name and AccessMode to a fixed "Local" tag.
type LocalProbe struct {
	runner   Runner
	hostname string
}

// NewLocalProbe creates the local open-file probe.
func NewLocalProbe(runner Runner, hostname string) *LocalProbe {
	return &LocalProbe{runner: runner, hostname: strings.ToUpper(hostname)}
}

// Name implements Probe.
func (p *LocalProbe) Name() string { return "local" }

// ListOpenFiles implements Probe.
func (p *LocalProbe) ListOpenFiles(ctx context.Context) ([]OpenFile, error) {
	out, err := p.runner.Run(ctx, "openfiles", "/query", "/fo", "csv", "/nh", "/v")
	if err != nil {
		return nil, fmt.Errorf("local probe: %w", err)
	}
	return p.parseOpenfilesCSV(out), nil
}

// parseOpenfilesCSV extracts records from `openfiles /query /fo csv` rows:
// ID, Accessed By, Type, Open File. Rows whose open-file column is not a
// real filesystem path (pipes, devices, module handles) are skipped.
func (p *LocalProbe) parseOpenfilesCSV(data []byte) []OpenFile {
	reader := csv.NewReader(strings.NewReader(string(data)))
	reader.FieldsPerRecord = -1

	now := timeNow()
	var records []OpenFile
	for {
		row, err := reader.Read()
		if err != nil {
			// Malformed rows end the parse; everything accepted so far
			// is still usable.
			break
		}
		if len(row) < 4 {
			continue
		}
		user := strings.TrimSpace(row[1])
		path := strings.TrimSpace(row[len(row)-1])
		if user == "" || strings.EqualFold(user, "N/A") || !looksLikeFilePath(path) {
			continue
		}
		id, _ := strconv.ParseInt(strings.TrimSpace(row[0]), 10, 64)
		records = append(records, OpenFile{
			FilePath:   path,
			UserName:   user,
			ClientName: p.hostname,
			AccessMode: "Local",
			OpenedAt:   now,
			FileID:     id,
		})
	}
	return records
}
