// Package api exposes the open-file query surface over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/sharewatch/sharewatch/pkg/guard"
	"github.com/sharewatch/sharewatch/pkg/monitor"
	"github.com/sharewatch/sharewatch/pkg/pathmap"
	"github.com/sharewatch/sharewatch/pkg/probe"
	"github.com/sharewatch/sharewatch/pkg/snapcache"
)

// ServiceName identifies this service in health responses.
const ServiceName = "sharewatch"

// Server serves the file-monitor REST API behind the guard chain.
type Server struct {
	addr   string
	cache  *snapcache.Cache
	worker *monitor.Worker
	mapper *pathmap.Mapper
	probes *probe.Registry
	chain  *guard.Chain
	audit  *guard.AuditLog

	httpSrv *http.Server
}

// NewServer creates the API server.
func NewServer(addr string, cache *snapcache.Cache, worker *monitor.Worker,
	mapper *pathmap.Mapper, probes *probe.Registry, chain *guard.Chain, audit *guard.AuditLog) *Server {
	return &Server{
		addr:   addr,
		cache:  cache,
		worker: worker,
		mapper: mapper,
		probes: probes,
		chain:  chain,
		audit:  audit,
	}
}

// Handler builds the route table. The health endpoint is registered
// outside the guard chain: it must answer even for callers the guards
// would reject.
func (s *Server) Handler() http.Handler {
	guarded := http.NewServeMux()
	guarded.HandleFunc("GET /files/users", instrument("/files/users", s.handleFileUsers))
	guarded.HandleFunc("GET /files/active", instrument("/files/active", s.handleActiveFiles))
	guarded.HandleFunc("GET /files/user/{userName}", instrument("/files/user", s.handleUserFiles))
	guarded.HandleFunc("POST /files/refresh", instrument("/files/refresh", s.handleRefresh))
	guarded.HandleFunc("GET /files/debug", instrument("/files/debug", s.handleDebug))
	guarded.HandleFunc("GET /files/convert-path", instrument("/files/convert-path", s.handleConvertPath))

	root := http.NewServeMux()
	root.HandleFunc("GET /files/health", instrument("/files/health", s.handleHealth))
	root.Handle("/", s.chain.Wrap(guarded))
	return root
}

// Run starts the HTTP server and blocks until ctx is cancelled, then
// shuts down gracefully within a bounded grace period.
func (s *Server) Run(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("api server listening", "addr", s.addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		slog.Info("api server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv != nil {
		return s.httpSrv.Shutdown(ctx)
	}
	return nil
}
