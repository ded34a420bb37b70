// middleware.go implements request logging and token authentication.
// Writes always require the shared X-API-Token; reads require it only
// when READ_REQUIRES_AUTH is set.
//
// © 2025 kvshard authors. MIT License.
package httpapi

import (
	"crypto/subtle"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Voskan/kvshard/pkg/kvengine"
)

// statusRecorder captures the status code written by a downstream handler
// so the logging middleware can report it after the fact.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func withLogging(logger *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("latency", time.Since(start)),
		)
	})
}

// isRead classifies a request by endpoint semantics rather than HTTP
// method: batch reads ride on POST but mutate nothing, so they follow
// the read auth rule like any single-key GET.
func isRead(r *http.Request) bool {
	switch r.Method {
	case http.MethodGet, http.MethodHead:
		return true
	case http.MethodPost:
		return r.URL.Path == "/v1/kv/batch/get"
	default:
		return false
	}
}

// withAuth enforces the X-API-Token header. ReadRequiresAuth toggles
// whether reads also require the token; writes always require it
// regardless.
func (s *Server) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requireAuth := !isRead(r) || s.cfg.ReadRequiresAuth
		if requireAuth {
			supplied := r.Header.Get("X-API-Token")
			if subtle.ConstantTimeCompare([]byte(supplied), []byte(s.cfg.APIToken)) != 1 {
				s.store.IncAuthFailure()
				writeError(w, kvengine.ErrUnauthorized("missing or invalid X-API-Token"))
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
