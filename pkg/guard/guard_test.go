package guard

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

func newRequest(remoteAddr string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/files/active", nil)
	r.RemoteAddr = remoteAddr
	return r
}

// setClock pins the package clock and returns an advance helper.
func setClock(t *testing.T, start time.Time) (advance func(d time.Duration)) {
	t.Helper()
	now := start
	restore := timeNow
	timeNow = func() time.Time { return now }
	t.Cleanup(func() { timeNow = restore })
	return func(d time.Duration) { now = now.Add(d) }
}

// ─── IP filter ────────────────────────────────────────────────

func TestIPFilter(t *testing.T) {
	f := NewIPFilter([]string{"10.0.0.0/8", "192.168.1.0/24"})

	tests := []struct {
		remote     string
		wantReject bool
	}{
		{"10.5.6.7:1234", false},
		{"192.168.1.50:999", false},
		{"192.168.2.50:999", true},
		{"203.0.113.9:80", true},
		{"127.0.0.1:5000", false}, // loopback always passes
		{"[::1]:5000", false},     // v6 loopback too
		{"not-an-address", false}, // unparsable passes rather than rejects
	}
	for _, tt := range tests {
		rej := f.Check(newRequest(tt.remote))
		if (rej != nil) != tt.wantReject {
			t.Errorf("Check(%s) rejection = %v, want reject=%v", tt.remote, rej, tt.wantReject)
		}
		if rej != nil && rej.Status != http.StatusForbidden {
			t.Errorf("Check(%s) status = %d, want 403", tt.remote, rej.Status)
		}
	}
}

func TestIPFilterDisabled(t *testing.T) {
	f := NewIPFilter(nil)
	if rej := f.Check(newRequest("203.0.113.9:80")); rej != nil {
		t.Errorf("unconfigured filter must pass everything, got %v", rej)
	}

	// Entirely unparsable config degrades to disabled.
	f = NewIPFilter([]string{"garbage", "also-garbage"})
	if rej := f.Check(newRequest("203.0.113.9:80")); rej != nil {
		t.Errorf("filter with no valid prefixes must pass everything, got %v", rej)
	}
}

// ─── API key ──────────────────────────────────────────────────

func TestAPIKey(t *testing.T) {
	g := NewAPIKey("s3cret")

	r := newRequest("10.0.0.1:1")
	rej := g.Check(r)
	if rej == nil || rej.Status != http.StatusUnauthorized {
		t.Fatalf("missing key: rejection = %v, want 401", rej)
	}

	r.Header.Set(APIKeyHeader, "wrong")
	rej = g.Check(r)
	if rej == nil || rej.Status != http.StatusUnauthorized {
		t.Fatalf("wrong key: rejection = %v, want 401", rej)
	}

	r.Header.Set(APIKeyHeader, "s3cret")
	if rej = g.Check(r); rej != nil {
		t.Errorf("correct key should pass, got %v", rej)
	}
}

func TestAPIKeyDisabled(t *testing.T) {
	g := NewAPIKey("")
	if rej := g.Check(newRequest("10.0.0.1:1")); rej != nil {
		t.Errorf("unconfigured key guard must pass, got %v", rej)
	}
}

// ─── Rate limiter ─────────────────────────────────────────────

func TestRateLimiter(t *testing.T) {
	advance := setClock(t, time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC))
	rl := NewRateLimiter(3, time.Minute)

	for i := 1; i <= 3; i++ {
		if rej := rl.Check(newRequest("10.0.0.1:1000")); rej != nil {
			t.Fatalf("request %d should pass, got %v", i, rej)
		}
	}

	rej := rl.Check(newRequest("10.0.0.1:1000"))
	if rej == nil || rej.Status != http.StatusTooManyRequests {
		t.Fatalf("4th request: rejection = %v, want 429", rej)
	}
	if rej.RetryAfter < 1 || rej.RetryAfter > 60 {
		t.Errorf("RetryAfter = %d, want within the window", rej.RetryAfter)
	}

	// A different client has its own window.
	if rej := rl.Check(newRequest("10.0.0.2:1000")); rej != nil {
		t.Errorf("other client should pass, got %v", rej)
	}

	// After the window elapses the original client passes again.
	advance(61 * time.Second)
	if rej := rl.Check(newRequest("10.0.0.1:1000")); rej != nil {
		t.Errorf("request after window reset should pass, got %v", rej)
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	rl := NewRateLimiter(0, time.Minute)
	for i := 0; i < 100; i++ {
		if rej := rl.Check(newRequest("10.0.0.1:1000")); rej != nil {
			t.Fatalf("disabled limiter must pass, got %v", rej)
		}
	}
}

func TestRateLimiterSweep(t *testing.T) {
	advance := setClock(t, time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC))
	rl := NewRateLimiter(100, time.Minute)

	for i := 0; i < sweepThreshold+1; i++ {
		rl.Check(newRequest(fmt.Sprintf("10.0.%d.%d:1000", i/256, i%256)))
	}
	if got := rl.TrackedClients(); got != sweepThreshold+1 {
		t.Fatalf("TrackedClients = %d, want %d", got, sweepThreshold+1)
	}

	// Past twice the window every tracked client is stale; the next check
	// sweeps them out.
	advance(3 * time.Minute)
	rl.Check(newRequest("10.99.0.1:1000"))
	if got := rl.TrackedClients(); got != 1 {
		t.Errorf("TrackedClients after sweep = %d, want 1", got)
	}
}

// ─── Chain ────────────────────────────────────────────────────

func TestChainRejectionResponse(t *testing.T) {
	audit := NewAuditLog(10)
	chain := NewChain(audit, NewAPIKey("s3cret"))

	handler := chain.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, newRequest("10.0.0.1:1000"))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if body["error"] == nil {
		t.Errorf("body = %v, want error field", body)
	}
	if audit.Len() != 1 {
		t.Errorf("audit entries = %d, want 1", audit.Len())
	}

	// Satisfying the guard reaches the handler and is not audited.
	rec = httptest.NewRecorder()
	r := newRequest("10.0.0.1:1000")
	r.Header.Set(APIKeyHeader, "s3cret")
	handler.ServeHTTP(rec, r)
	if rec.Code != http.StatusOK {
		t.Errorf("status with key = %d, want 200", rec.Code)
	}
	if audit.Len() != 1 {
		t.Errorf("passing request must not be audited, entries = %d", audit.Len())
	}
}

func TestChainSetsRetryAfter(t *testing.T) {
	setClock(t, time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC))
	chain := NewChain(nil, NewRateLimiter(1, time.Minute))
	handler := chain.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	handler.ServeHTTP(httptest.NewRecorder(), newRequest("10.0.0.1:1"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, newRequest("10.0.0.1:1"))

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	retryAfter, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	if err != nil || retryAfter < 1 {
		t.Errorf("Retry-After = %q, want positive integer", rec.Header().Get("Retry-After"))
	}
}

func TestChainOrder(t *testing.T) {
	// The IP filter runs before the key check, so a disallowed address gets
	// 403 even without a key.
	chain := NewChain(nil, NewIPFilter([]string{"10.0.0.0/8"}), NewAPIKey("s3cret"))
	handler := chain.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, newRequest("203.0.113.9:80"))
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403 from the first guard", rec.Code)
	}
}

// ─── Audit log ────────────────────────────────────────────────

func TestAuditLogRing(t *testing.T) {
	al := NewAuditLog(3)
	for i := 0; i < 5; i++ {
		al.Log(AuditEntry{Guard: "api_key", Status: 401, Path: strconv.Itoa(i)})
	}
	if al.Len() != 3 {
		t.Fatalf("Len = %d, want ring capped at 3", al.Len())
	}
	recent := al.Recent(2)
	if len(recent) != 2 {
		t.Fatalf("Recent(2) = %d entries", len(recent))
	}
	if recent[1].Path != "4" {
		t.Errorf("newest entry = %+v, want path 4", recent[1])
	}
	if al.Recent(0) != nil {
		t.Error("Recent(0) should be nil")
	}
	if got := al.Recent(100); len(got) != 3 {
		t.Errorf("Recent past length = %d entries, want 3", len(got))
	}
}
