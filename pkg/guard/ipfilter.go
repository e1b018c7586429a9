package guard

import (
	"log/slog"
	"net/http"
	"net/netip"
)

// IPFilter rejects requests whose source address falls outside the
// configured networks. Loopback always passes. With no networks
// configured the filter is transparent.
type IPFilter struct {
	prefixes []netip.Prefix
	enabled  bool
}

// NewIPFilter parses the CIDR allow-list. Unparsable entries are logged
// and skipped.
func NewIPFilter(networks []string) *IPFilter {
	f := &IPFilter{}
	for _, n := range networks {
		prefix, err := netip.ParsePrefix(n)
		if err != nil {
			slog.Warn("failed to parse allowed network", "network", n, "error", err)
			continue
		}
		f.prefixes = append(f.prefixes, prefix)
		slog.Info("allowed network", "network", prefix)
	}
	f.enabled = len(f.prefixes) > 0
	if !f.enabled {
		slog.Warn("IP filtering disabled: set security.allowed_networks to enable")
	}
	return f
}

// Name implements Guard.
func (f *IPFilter) Name() string { return "ip_filter" }

// Check implements Guard.
func (f *IPFilter) Check(r *http.Request) *Rejection {
	if !f.enabled {
		return nil
	}
	addr, ok := remoteAddr(r)
	if !ok || addr.IsLoopback() {
		return nil
	}
	for _, prefix := range f.prefixes {
		if prefix.Contains(addr) {
			return nil
		}
	}
	return &Rejection{
		Status: http.StatusForbidden,
		Body: map[string]any{
			"error":   "Access denied",
			"message": "Your address is not in the allowed list",
		},
	}
}
