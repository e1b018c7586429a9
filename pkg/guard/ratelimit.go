package guard

import (
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"sync"
	"time"
)

// sweepThreshold is the tracked-client count past which a request
// opportunistically evicts stale windows, bounding the table's memory.
const sweepThreshold = 1000

// RateLimiter enforces a fixed-size sliding window per source address.
// Windows reset lazily on the first request after expiry; there is no
// background timer. MaxRequests <= 0 disables the limiter.
type RateLimiter struct {
	max     int
	window  time.Duration
	enabled bool

	mu      sync.Mutex
	clients map[string]*clientWindow
}

type clientWindow struct {
	windowStart  time.Time
	requestCount int
}

// NewRateLimiter creates the rate-limit guard.
func NewRateLimiter(maxRequests int, window time.Duration) *RateLimiter {
	enabled := maxRequests > 0
	if enabled {
		slog.Info("rate limiting enabled", "max_requests", maxRequests, "window", window)
	} else {
		slog.Warn("rate limiting disabled: set security.rate_limit.max_requests to enable")
	}
	return &RateLimiter{
		max:     maxRequests,
		window:  window,
		enabled: enabled,
		clients: make(map[string]*clientWindow),
	}
}

// Name implements Guard.
func (rl *RateLimiter) Name() string { return "rate_limit" }

// Check implements Guard.
func (rl *RateLimiter) Check(r *http.Request) *Rejection {
	if !rl.enabled {
		return nil
	}

	clientID := "unknown"
	if addr, ok := remoteAddr(r); ok {
		clientID = addr.String()
	}
	now := timeNow()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if len(rl.clients) > sweepThreshold {
		rl.sweep(now)
	}

	cw, ok := rl.clients[clientID]
	if !ok {
		cw = &clientWindow{windowStart: now}
		rl.clients[clientID] = cw
	}

	// Lazy window reset.
	if now.Sub(cw.windowStart) > rl.window {
		cw.windowStart = now
		cw.requestCount = 0
	}

	cw.requestCount++
	if cw.requestCount <= rl.max {
		return nil
	}

	retryAfter := int(math.Ceil((rl.window - now.Sub(cw.windowStart)).Seconds()))
	if retryAfter < 1 {
		retryAfter = 1
	}
	slog.Warn("rate limit exceeded", "client", clientID, "count", cw.requestCount)
	return &Rejection{
		Status:     http.StatusTooManyRequests,
		RetryAfter: retryAfter,
		Body: map[string]any{
			"error":      "Too many requests",
			"message":    fmt.Sprintf("Rate limit: %d requests per %s", rl.max, rl.window),
			"retryAfter": retryAfter,
		},
	}
}

// sweep evicts clients whose window is more than twice the window length
// stale. Caller holds the lock.
func (rl *RateLimiter) sweep(now time.Time) {
	for id, cw := range rl.clients {
		if now.Sub(cw.windowStart) > 2*rl.window {
			delete(rl.clients, id)
		}
	}
}

// TrackedClients returns the number of clients currently tracked (for
// testing the sweep).
func (rl *RateLimiter) TrackedClients() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}
