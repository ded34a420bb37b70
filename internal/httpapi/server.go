// server.go wires the kvengine.Store to its HTTP/JSON surface: the route
// table, the auth/logging middleware stack, and the health/ready/metrics
// probes.
//
// © 2025 kvshard authors. MIT License.
package httpapi

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Voskan/kvshard/pkg/kvengine"
)

// Server is the HTTP boundary over a kvengine.Store.
type Server struct {
	cfg      Config
	store    *kvengine.Store
	logger   *zap.Logger
	registry *prometheus.Registry
	started  time.Time
}

// NewServer constructs a Server. registry may be nil, in which case
// /metrics reports an empty registry rather than failing.
func NewServer(cfg Config, store *kvengine.Store, logger *zap.Logger, registry *prometheus.Registry) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	return &Server{cfg: cfg, store: store, logger: logger, registry: registry, started: time.Now()}
}

// Handler builds the full route table wrapped in the logging and auth
// middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("PUT /v1/kv/{key}", s.handleSet)
	mux.HandleFunc("GET /v1/kv/{key}", s.handleGet)
	mux.HandleFunc("DELETE /v1/kv/{key}", s.handleDelete)
	mux.HandleFunc("POST /v1/kv/batch/get", s.handleBatchGet)
	mux.HandleFunc("POST /v1/kv/batch/set", s.handleBatchSet)
	mux.HandleFunc("POST /v1/kv/batch/delete", s.handleBatchDelete)
	mux.HandleFunc("POST /v1/kv/incr", s.handleIncr)
	mux.HandleFunc("GET /v1/debug/stats", s.handleDebugStats)

	// Unauthenticated probes.
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	authed := s.withAuthExceptProbes(mux)
	timed := withTimeout(s.cfg.RequestTimeout, authed)
	return withLogging(s.logger, timed)
}

// withTimeout enforces REQUEST_TIMEOUT_MS. The engine itself has no
// wall-clock timeout; a timed-out handler's reply is simply discarded,
// and any mutation already past the mailbox still commits.
func withTimeout(d time.Duration, next http.Handler) http.Handler {
	if d <= 0 {
		return next
	}
	return http.TimeoutHandler(next, d, `{"error":{"code":"internal","message":"request timed out"}}`)
}

// withAuthExceptProbes applies withAuth to everything except the
// health/metrics probes, which are always unauthenticated.
func (s *Server) withAuthExceptProbes(next http.Handler) http.Handler {
	guarded := s.withAuth(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/healthz", "/readyz", "/metrics":
			next.ServeHTTP(w, r)
		default:
			guarded.ServeHTTP(w, r)
		}
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "uptimeSec": int(time.Since(s.started).Seconds())})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

// handleDebugStats is the operator diagnostic route: a JSON rendering of
// kvengine.Store.Stats, consumed by cmd/kvcache-inspect. It follows the
// same auth rule as any other read.
func (s *Server) handleDebugStats(w http.ResponseWriter, r *http.Request) {
	stats := s.store.Stats()
	shards := make([]map[string]any, len(stats.Shards))
	for i, sh := range stats.Shards {
		shards[i] = map[string]any{
			"id":           sh.ID,
			"entries":      sh.Entries,
			"mailboxDepth": sh.MailboxDepth,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"shards":        shards,
		"totalEntries":  stats.TotalEntries,
		"imbalance":     stats.ImbalanceCV,
		"inFlightLimit": stats.InFlightLimit,
	})
}
