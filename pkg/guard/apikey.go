package guard

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
)

// APIKeyHeader carries the shared secret on requests.
const APIKeyHeader = "X-API-Key"

// APIKey requires an exact-match shared secret header on every request.
// With no key configured the check is transparent.
type APIKey struct {
	key     string
	enabled bool
}

// NewAPIKey creates the API-key guard.
func NewAPIKey(key string) *APIKey {
	if key == "" {
		slog.Warn("API key authentication disabled: set security.api_key to enable")
	}
	return &APIKey{key: key, enabled: key != ""}
}

// Name implements Guard.
func (a *APIKey) Name() string { return "api_key" }

// Check implements Guard.
func (a *APIKey) Check(r *http.Request) *Rejection {
	if !a.enabled {
		return nil
	}
	provided := r.Header.Get(APIKeyHeader)
	if provided == "" {
		return &Rejection{
			Status: http.StatusUnauthorized,
			Body: map[string]any{
				"error":   "API key required",
				"message": "Provide " + APIKeyHeader + " header",
			},
		}
	}
	if subtle.ConstantTimeCompare([]byte(provided), []byte(a.key)) != 1 {
		return &Rejection{
			Status: http.StatusUnauthorized,
			Body:   map[string]any{"error": "Invalid API key"},
		}
	}
	return nil
}
