package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sharewatch/sharewatch/pkg/metrics"
	"github.com/sharewatch/sharewatch/pkg/pathmap"
	"github.com/sharewatch/sharewatch/pkg/probe"
	"github.com/sharewatch/sharewatch/pkg/snapcache"
)

// debugEntryLimit caps the number of records the debug dump returns.
const debugEntryLimit = 50

// GET /files/users?filePath=<path>
func (s *Server) handleFileUsers(w http.ResponseWriter, r *http.Request) {
	filePath := r.URL.Query().Get("filePath")
	if strings.TrimSpace(filePath) == "" {
		writeError(w, http.StatusBadRequest, "filePath query parameter is required")
		return
	}

	result, ok := s.cache.UsersOf(filePath)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{
			"message":  "File is not open or not found",
			"filePath": filePath,
		})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GET /files/active
func (s *Server) handleActiveFiles(w http.ResponseWriter, r *http.Request) {
	files := s.cache.ActiveFiles()
	if files == nil {
		files = []snapcache.ActiveFile{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count": len(files),
		"files": files,
	})
}

// GET /files/user/{userName}
func (s *Server) handleUserFiles(w http.ResponseWriter, r *http.Request) {
	userName := r.PathValue("userName")
	if strings.TrimSpace(userName) == "" {
		writeError(w, http.StatusBadRequest, "userName is required")
		return
	}

	files := s.cache.FilesOf(userName)
	if files == nil {
		files = []probe.OpenFile{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"userName": userName,
		"count":    len(files),
		"files":    files,
	})
}

// POST /files/refresh — runs an immediate aggregation cycle. The one
// endpoint allowed to surface a 500, since it triggers a synchronous
// cycle on behalf of the caller.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	slog.Info("forced cache refresh requested", "remote", r.RemoteAddr)

	count, err := s.worker.RefreshNow(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"message": "Cache refresh failed",
			"error":   err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":    "Cache refreshed",
		"filesCount": count,
		"timestamp":  time.Now(),
	})
}

// GET /files/health — always guard-exempt.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"service":   ServiceName,
		"timestamp": time.Now(),
	})
}

// debugEntry pairs a cached record with its network-path translation.
type debugEntry struct {
	probe.OpenFile
	UNCPath string `json:"uncPath"`
}

// GET /files/debug — diagnostic dump of the cache, mapping table and
// recent guard rejections.
func (s *Server) handleDebug(w http.ResponseWriter, r *http.Request) {
	records := s.cache.Entries(debugEntryLimit)
	entries := make([]debugEntry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, debugEntry{
			OpenFile: rec,
			UNCPath:  s.mapper.ToUNC(rec.FilePath),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"serverName": s.mapper.ServerName(),
		"probes":     s.probes.Names(),
		"cache":      s.cache.Stats(),
		"entries":    entries,
		"mappings":   s.mapper.Mappings(),
		"rejections": s.audit.Recent(20),
	})
}

// GET /files/convert-path?path=<p>
func (s *Server) handleConvertPath(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if strings.TrimSpace(path) == "" {
		writeError(w, http.StatusBadRequest, "path query parameter is required")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"original": path,
		"variants": s.mapper.Variants(path),
		"isUnc":    pathmap.IsUNC(path),
		"toLocal":  s.mapper.ToLocal(path),
		"toUnc":    s.mapper.ToUNC(path),
	})
}

// ─── Helpers ──────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}

// statusRecorder captures the response code for request metrics.
type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.code = code
	sr.ResponseWriter.WriteHeader(code)
}

// instrument counts requests per route and status code.
func instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next(rec, r)
		metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(rec.code)).Inc()
	}
}
