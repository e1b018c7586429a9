package pathmap

import (
	"sort"
	"strings"
)

// Mapping associates a network share name with a local filesystem root.
// Both fields are stored in normalized (lowercased, backslash) form.
type Mapping struct {
	ShareName string `json:"share_name"`
	LocalPath string `json:"local_path"`
}

// Mapper translates between UNC paths (\\server\share\sub) and local paths
// (D:\root\sub). The mapping table is built once at startup and read-only
// afterwards, so lookups need no locking.
type Mapper struct {
	serverName string
	byShare    map[string]Mapping
	byPrefix   []Mapping // sorted longest local path first, most specific match wins
}

// New builds a Mapper from static mappings plus discovered shares.
// Static mappings take priority when a share name appears in both.
func New(serverName string, static, discovered []Mapping) *Mapper {
	m := &Mapper{
		serverName: strings.ToLower(serverName),
		byShare:    make(map[string]Mapping),
	}
	for _, group := range [][]Mapping{static, discovered} {
		for _, sm := range group {
			name := strings.ToLower(sm.ShareName)
			local := Normalize(sm.LocalPath)
			if name == "" || local == "" {
				continue
			}
			if _, exists := m.byShare[name]; exists {
				continue
			}
			entry := Mapping{ShareName: name, LocalPath: local}
			m.byShare[name] = entry
			m.byPrefix = append(m.byPrefix, entry)
		}
	}
	sort.Slice(m.byPrefix, func(i, j int) bool {
		return len(m.byPrefix[i].LocalPath) > len(m.byPrefix[j].LocalPath)
	})
	return m
}

// Normalize converts a path to the canonical comparison form: forward
// slashes become backslashes, trailing separators are stripped, and the
// result is lowercased. This is the key used everywhere paths are compared.
func Normalize(path string) string {
	if path == "" {
		return ""
	}
	p := strings.ReplaceAll(path, "/", `\`)
	p = strings.TrimRight(p, `\`)
	return strings.ToLower(p)
}

// IsUNC reports whether the path is in network form (\\server\share\...).
func IsUNC(path string) bool {
	return strings.HasPrefix(path, `\\`) || strings.HasPrefix(path, "//")
}

// ToLocal translates a UNC path to its local form. Already-local paths are
// returned normalized. If the share is unmapped the input is returned
// unchanged: an unmapped path is still usable for exact matching against
// records in the same representation.
func (m *Mapper) ToLocal(path string) string {
	if path == "" {
		return path
	}
	if !IsUNC(path) {
		return Normalize(path)
	}

	// \\server\share\sub\path -> [server, share, sub\path]
	parts := strings.SplitN(strings.Trim(Normalize(path), `\`), `\`, 3)
	if len(parts) < 2 {
		return path
	}
	mapping, ok := m.byShare[parts[1]]
	if !ok {
		return path
	}
	if len(parts) < 3 || parts[2] == "" {
		return mapping.LocalPath
	}
	return mapping.LocalPath + `\` + parts[2]
}

// ToUNC translates a local path to its network form using the longest
// matching share root. If no share covers the path the input is returned
// unchanged.
func (m *Mapper) ToUNC(path string) string {
	if path == "" {
		return path
	}
	local := Normalize(path)
	for _, mapping := range m.byPrefix {
		if local != mapping.LocalPath && !strings.HasPrefix(local, mapping.LocalPath+`\`) {
			continue
		}
		rel := strings.TrimPrefix(strings.TrimPrefix(local, mapping.LocalPath), `\`)
		unc := `\\` + m.serverName + `\` + mapping.ShareName
		if rel != "" {
			unc += `\` + rel
		}
		return unc
	}
	return path
}

// Canonical returns the normalized local form of a path, the grouping key
// under which equivalent representations collapse.
func (m *Mapper) Canonical(path string) string {
	return Normalize(m.ToLocal(path))
}

// Variants returns the distinct normalized representations of a path:
// the input itself plus its local/network translation.
func (m *Mapper) Variants(path string) []string {
	if path == "" {
		return nil
	}
	variants := []string{Normalize(path)}
	var translated string
	if IsUNC(path) {
		translated = Normalize(m.ToLocal(path))
	} else {
		translated = Normalize(m.ToUNC(path))
	}
	if translated != "" && translated != variants[0] {
		variants = append(variants, translated)
	}
	return variants
}

// Equivalent reports whether two paths denote the same file, regardless of
// which representation each uses.
func (m *Mapper) Equivalent(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	if Normalize(a) == Normalize(b) {
		return true
	}
	va, vb := m.Variants(a), m.Variants(b)
	for _, x := range va {
		for _, y := range vb {
			if x == y {
				return true
			}
		}
	}
	return false
}

// ServerName returns the configured server name used for UNC paths.
func (m *Mapper) ServerName() string {
	return m.serverName
}

// Mappings returns the share mapping table, for diagnostics.
func (m *Mapper) Mappings() []Mapping {
	out := make([]Mapping, len(m.byPrefix))
	copy(out, m.byPrefix)
	sort.Slice(out, func(i, j int) bool {
		return out[i].ShareName < out[j].ShareName
	})
	return out
}
