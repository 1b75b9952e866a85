package rest

import (
	"net/http"
	"time"

	"github.com/MichaelOwenDyer/job-dispatch-service/internal/shared/logging"
)

// statusRecorder captures the status code and body size of a response.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	if rw.status == 0 {
		rw.status = http.StatusOK
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.bytes += n
	return n, err
}

// requestLogFunc picks the level for a finished request: storage and
// server failures at warn, static UI traffic at debug.
func requestLogFunc(logger logging.Logger, path string, status int) func(string, ...any) {
	switch {
	case status >= http.StatusInternalServerError:
		return logger.Warn
	case isPublicPath(path):
		return logger.Debug
	default:
		return logger.Info
	}
}

// LoggingMiddleware logs every request with its status, size and duration.
func LoggingMiddleware(logger logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}

			next.ServeHTTP(rec, r)

			log := requestLogFunc(logger, r.URL.Path, rec.status)
			log("HTTP request",
				"method", r.Method,
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
				"status", rec.status,
				"bytes", rec.bytes,
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}

// RecoveryMiddleware turns a handler panic into a 500 with the API's error
// body.
func RecoveryMiddleware(logger logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("Panic recovered",
						"method", r.Method,
						"path", r.URL.Path,
						"error", err,
					)
					w.Header().Set("X-Content-Type-Options", "nosniff")
					writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: ErrorInternal})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// ChainMiddleware applies middlewares so that the first one is outermost.
func ChainMiddleware(handler http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return handler
}
