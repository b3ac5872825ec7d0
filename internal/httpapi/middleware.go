package httpapi

import (
	"net/http"
	"time"

	"github.com/nexuslb/nexus/internal/logging"
)

// responseWriter wraps http.ResponseWriter to capture the status code and
// to forward Flush calls for SSE streaming, generalized from the teacher's
// core/middleware.go responseWriter verbatim (same two methods, same
// written-once guard).
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.statusCode = http.StatusOK
		rw.written = true
	}
	return rw.ResponseWriter.Write(b)
}

// Flush implements http.Flusher so handlers can stream SSE chunks.
func (rw *responseWriter) Flush() {
	if flusher, ok := rw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// loggingMiddleware logs 4xx/5xx and slow (>1s) requests at warn/error and
// every other request at debug,
// mirroring the teacher's devMode-aware LoggingMiddleware with devMode
// effectively always false here (a control plane's production default).
func loggingMiddleware(log logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			duration := time.Since(start)
			if log == nil {
				return
			}
			fields := map[string]interface{}{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      wrapped.statusCode,
				"duration_ms": duration.Milliseconds(),
			}
			switch {
			case wrapped.statusCode >= 500:
				log.ErrorCtx(r.Context(), "http request error", fields)
			case wrapped.statusCode >= 400:
				log.WarnCtx(r.Context(), "http request client error", fields)
			case duration > time.Second:
				log.WarnCtx(r.Context(), "http request slow", fields)
			default:
				log.DebugCtx(r.Context(), "http request", fields)
			}
		})
	}
}
