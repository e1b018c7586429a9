package probe

import (
	"context"
	"net"
	"net/netip"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

const hostnameCacheSize = 4096

// HostnameResolver turns client identifiers into short host names.
// IP addresses are reverse-resolved once and cached for the process
// lifetime; resolution failures fall back to the raw identifier.
type HostnameResolver struct {
	cache      *lru.Cache[string, string]
	lookupAddr func(ctx context.Context, addr string) ([]string, error)
}

// NewHostnameResolver creates a resolver backed by the system DNS.
func NewHostnameResolver() *HostnameResolver {
	cache, _ := lru.New[string, string](hostnameCacheSize)
	return &HostnameResolver{
		cache:      cache,
		lookupAddr: net.DefaultResolver.LookupAddr,
	}
}

// Resolve returns the short upper-cased host name for an IP address or
// host identifier. Never fails: unresolvable input is returned as given.
func (r *HostnameResolver) Resolve(ctx context.Context, ipOrHost string) string {
	if ipOrHost == "" {
		return ""
	}
	if cached, ok := r.cache.Get(ipOrHost); ok {
		return cached
	}

	hostname := ipOrHost
	if _, err := netip.ParseAddr(ipOrHost); err == nil {
		if names, err := r.lookupAddr(ctx, ipOrHost); err == nil && len(names) > 0 {
			hostname = shortHostname(names[0])
		}
	} else {
		hostname = shortHostname(ipOrHost)
	}

	r.cache.Add(ipOrHost, hostname)
	return hostname
}

// shortHostname strips the domain suffix and upper-cases the result.
func shortHostname(name string) string {
	name = strings.TrimSuffix(name, ".")
	if i := strings.IndexByte(name, '.'); i > 0 {
		name = name[:i]
	}
	return strings.ToUpper(name)
}
