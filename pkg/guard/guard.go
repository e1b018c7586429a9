// Package guard implements the request-time policies applied before a
// query reaches the cache: network allow-listing, API-key checking and
// rate limiting. Every guard fails open when unconfigured, so the service
// runs with zero security configuration for local use.
package guard

import (
	"encoding/json"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"time"

	"github.com/sharewatch/sharewatch/pkg/metrics"
)

// Rejection describes why a guard refused a request.
type Rejection struct {
	Status     int
	Body       map[string]any
	RetryAfter int // seconds; 0 means no Retry-After header
}

// Guard is one request-time policy. Check returns nil to let the request
// through.
type Guard interface {
	Name() string
	Check(r *http.Request) *Rejection
}

// Chain applies guards in order and records rejections.
type Chain struct {
	guards []Guard
	audit  *AuditLog
}

// NewChain builds a guard chain. The audit log may be nil.
func NewChain(audit *AuditLog, guards ...Guard) *Chain {
	return &Chain{guards: guards, audit: audit}
}

// Wrap applies the chain before the next handler. The health endpoint is
// registered outside any chain, so exemption needs no special casing here.
func (c *Chain) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, g := range c.guards {
			rej := g.Check(r)
			if rej == nil {
				continue
			}
			metrics.GuardRejections.WithLabelValues(g.Name()).Inc()
			if c.audit != nil {
				c.audit.Log(AuditEntry{
					Timestamp:  time.Now(),
					Guard:      g.Name(),
					RemoteAddr: r.RemoteAddr,
					Path:       r.URL.Path,
					Status:     rej.Status,
				})
			}
			if rej.RetryAfter > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(rej.RetryAfter))
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(rej.Status)
			json.NewEncoder(w).Encode(rej.Body)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// remoteAddr extracts the client address from a request. The bool is false
// when the address cannot be parsed, in which case guards pass the request
// through rather than rejecting on a technicality.
func remoteAddr(r *http.Request) (netip.Addr, bool) {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}

// timeNow is a variable for testing.
var timeNow = time.Now
