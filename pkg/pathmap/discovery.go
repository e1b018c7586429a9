package pathmap

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// smbShare matches the JSON emitted by Get-SmbShare.
type smbShare struct {
	Name string `json:"Name"`
	Path string `json:"Path"`
}

// DiscoverShares enumerates the host's SMB shares and returns them as
// mappings. Best-effort: any failure is logged and an empty list returned,
// since statically configured mappings may still cover everything needed.
func DiscoverShares(ctx context.Context, powershell string) []Mapping {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, powershell,
		"-NoProfile", "-Command",
		"Get-SmbShare | Select-Object Name, Path | ConvertTo-Json -Compress").Output()
	if err != nil {
		slog.Warn("share discovery failed", "error", err)
		return nil
	}

	mappings, err := ParseShares(out)
	if err != nil {
		slog.Warn("share discovery returned malformed output", "error", err)
		return nil
	}
	for _, m := range mappings {
		slog.Info("discovered share", "share", m.ShareName, "local_path", m.LocalPath)
	}
	return mappings
}

// ParseShares decodes Get-SmbShare JSON output, which is an array when
// multiple shares exist and a bare object when there is exactly one.
// Hidden shares (trailing $) and shares without a filesystem path are
// skipped.
func ParseShares(data []byte) ([]Mapping, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil, nil
	}

	var shares []smbShare
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal([]byte(trimmed), &shares); err != nil {
			return nil, fmt.Errorf("pathmap.ParseShares: %w", err)
		}
	} else {
		var single smbShare
		if err := json.Unmarshal([]byte(trimmed), &single); err != nil {
			return nil, fmt.Errorf("pathmap.ParseShares: %w", err)
		}
		shares = []smbShare{single}
	}

	var mappings []Mapping
	for _, s := range shares {
		if s.Name == "" || s.Path == "" || strings.HasSuffix(s.Name, "$") {
			continue
		}
		mappings = append(mappings, Mapping{
			ShareName: strings.ToLower(s.Name),
			LocalPath: Normalize(s.Path),
		})
	}
	return mappings, nil
}
