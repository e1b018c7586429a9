package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

const smbOpenFilesScript = "Get-SmbOpenFile | Select-Object FileId, SessionId, Path, ClientComputerName, ClientUserName | ConvertTo-Json -Compress"

// SMBProbe lists files opened over the network through the host's SMB
// server. Get-SmbOpenFile is the primary source; the classic `net file`
// listing is merged in as a best-effort supplement, with the primary
// source's session and file identifiers winning on (path, user) collision.
type SMBProbe struct {
	runner     Runner
	powershell string
	resolver   *HostnameResolver
}

// NewSMBProbe creates the network-share probe.
func NewSMBProbe(runner Runner, powershell string, resolver *HostnameResolver) *SMBProbe {
	return &SMBProbe{runner: runner, powershell: powershell, resolver: resolver}
}

// Name implements Probe.
func (p *SMBProbe) Name() string { return "smb" }

// ListOpenFiles implements Probe.
func (p *SMBProbe) ListOpenFiles(ctx context.Context) ([]OpenFile, error) {
	out, err := p.runner.Run(ctx, p.powershell, powershellArgs(smbOpenFilesScript)...)
	if err != nil {
		return nil, fmt.Errorf("smb probe: %w", err)
	}

	records, err := p.parseSmbOpenFiles(ctx, out)
	if err != nil {
		return nil, fmt.Errorf("smb probe: %w", err)
	}

	// Supplementary listing. Its failure never fails the probe.
	if netOut, err := p.runner.Run(ctx, "net", "file"); err != nil {
		slog.Warn("net file listing failed", "error", err)
	} else {
		records = mergeNetFile(records, parseNetFile(netOut))
	}
	return records, nil
}

// smbOpenFile matches the JSON emitted by Get-SmbOpenFile.
type smbOpenFile struct {
	FileID             int64  `json:"FileId"`
	SessionID          int64  `json:"SessionId"`
	Path               string `json:"Path"`
	ClientComputerName string `json:"ClientComputerName"`
	ClientUserName     string `json:"ClientUserName"`
}

// parseSmbOpenFiles decodes Get-SmbOpenFile output, which is an array when
// multiple files are open and a bare object when there is exactly one.
func (p *SMBProbe) parseSmbOpenFiles(ctx context.Context, data []byte) ([]OpenFile, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil, nil
	}

	var raw []smbOpenFile
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal([]byte(trimmed), &raw); err != nil {
			return nil, fmt.Errorf("parse open files: %w", err)
		}
	} else {
		var single smbOpenFile
		if err := json.Unmarshal([]byte(trimmed), &single); err != nil {
			return nil, fmt.Errorf("parse open files: %w", err)
		}
		raw = []smbOpenFile{single}
	}

	now := timeNow()
	records := make([]OpenFile, 0, len(raw))
	for _, f := range raw {
		if f.Path == "" || f.ClientUserName == "" {
			continue
		}
		records = append(records, OpenFile{
			FilePath:   f.Path,
			UserName:   f.ClientUserName,
			ClientName: p.resolver.Resolve(ctx, f.ClientComputerName),
			AccessMode: "Read/Write",
			OpenedAt:   now,
			SessionID:  f.SessionID,
			FileID:     f.FileID,
		})
	}
	return records, nil
}

// parseNetFile extracts open-file rows from `net file` output:
//
//	ID         Path                          User name            # Locks
//	---------------------------------------------------------------------
//	21         D:\Data\report.xlsx           alice                0
//
// The path column may contain spaces, so rows are split from both ends:
// first field is the numeric id, last is the lock count, second-to-last
// the user, and everything between is the path.
func parseNetFile(data []byte) []OpenFile {
	now := timeNow()
	var records []OpenFile
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(strings.TrimRight(line, "\r"))
		if len(fields) < 4 {
			continue
		}
		id, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil {
			continue
		}
		if _, err := strconv.Atoi(fields[len(fields)-1]); err != nil {
			continue
		}
		user := fields[len(fields)-2]
		path := strings.Join(fields[1:len(fields)-2], " ")
		if user == "" || !looksLikeFilePath(path) {
			continue
		}
		records = append(records, OpenFile{
			FilePath:   path,
			UserName:   user,
			AccessMode: "Read/Write",
			OpenedAt:   now,
			SessionID:  id,
		})
	}
	return records
}

// mergeNetFile appends supplementary records whose (path, user) pair the
// primary listing did not already report.
func mergeNetFile(primary, supplement []OpenFile) []OpenFile {
	seen := make(map[string]bool, len(primary))
	for _, r := range primary {
		seen[recordKey(r)] = true
	}
	for _, r := range supplement {
		if key := recordKey(r); !seen[key] {
			seen[key] = true
			primary = append(primary, r)
		}
	}
	return primary
}

func recordKey(r OpenFile) string {
	path := strings.ToLower(strings.ReplaceAll(r.FilePath, "/", `\`))
	return strings.TrimRight(path, `\`) + "|" + strings.ToLower(r.UserName)
}
