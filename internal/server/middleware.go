package server

import (
	"context"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"ttscraper/pkg/config"
	"ttscraper/pkg/logger"
)

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	apiKeyKey    contextKey = "api_key"
)

// RequestIDFromContext returns the id assigned by the request id middleware
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// APIKeyFromContext returns the key entry accepted by the API key middleware
func APIKeyFromContext(ctx context.Context) (config.APIKeyConfig, bool) {
	k, ok := ctx.Value(apiKeyKey).(config.APIKeyConfig)
	return k, ok
}

// NewRequestIDMiddleware tags every request with an id, reusing a
// well-formed incoming X-Request-ID
func NewRequestIDMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Request-ID")
			if _, err := uuid.Parse(id); err != nil {
				id = uuid.NewString()
			}

			w.Header().Set("X-Request-ID", id)
			ctx := context.WithValue(r.Context(), requestIDKey, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// NewRecoveryMiddleware turns a handler panic into a 500 response
func NewRecoveryMiddleware(log logger.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					log.ErrorWithFields("panic recovered", map[string]interface{}{
						"panic":      rec,
						"method":     r.Method,
						"path":       r.URL.Path,
						"request_id": RequestIDFromContext(r.Context()),
						"stack":      string(debug.Stack()),
					})
					writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error", 0)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// statusRecorder wraps http.ResponseWriter to capture the status code
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (sr *statusRecorder) WriteHeader(code int) {
	if !sr.written {
		sr.statusCode = code
		sr.written = true
	}
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if !sr.written {
		sr.statusCode = http.StatusOK
		sr.written = true
	}
	return sr.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer
func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

// HTTPRecorder receives one observation per served request
type HTTPRecorder interface {
	RecordHTTPRequest(route string, statusCode int, duration time.Duration)
}

// NewLoggingMiddleware logs every request and records it under its route pattern
func NewLoggingMiddleware(log logger.Logger, rec HTTPRecorder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			sr := &statusRecorder{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(sr, r)

			duration := time.Since(start)
			logger.LogRequest(log, r.Method, r.URL.Path, sr.statusCode, duration, RequestIDFromContext(r.Context()))

			if rec != nil {
				rec.RecordHTTPRequest(routePattern(r), sr.statusCode, duration)
			}
		})
	}
}

// routePattern keeps metric labels bounded to the registered routes
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// NewCORSMiddleware allows the configured origins. A "*" entry allows any.
// OPTIONS preflight requests are answered with 204.
func NewCORSMiddleware(allowedOrigins []string) func(next http.Handler) http.Handler {
	allowAll := false
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
		}
		allowed[strings.TrimRight(o, "/")] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			switch {
			case allowAll:
				w.Header().Set("Access-Control-Allow-Origin", "*")
			case origin != "" && allowed[origin]:
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key, X-TikTok-Cookie, X-Request-ID")
			w.Header().Set("Access-Control-Expose-Headers", "X-RateLimit-Remaining, X-Processing-Time, X-Request-ID, Retry-After")
			w.Header().Set("Access-Control-Max-Age", "86400")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// NewAPIKeyMiddleware rejects requests whose X-API-Key is missing, unknown
// or inactive
func NewAPIKeyMiddleware(cfg *config.ServerConfig, log logger.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strings.TrimSpace(r.Header.Get("X-API-Key"))
			if key == "" {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing API key", 0)
				return
			}

			entry, ok := cfg.FindAPIKey(key)
			if !ok {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid API key", 0)
				return
			}
			if !entry.Active {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "API key inactive", 0)
				return
			}

			log.DebugWithFields("request authenticated", map[string]interface{}{
				"client":     entry.Client,
				"tier":       entry.Tier,
				"request_id": RequestIDFromContext(r.Context()),
			})

			ctx := context.WithValue(r.Context(), apiKeyKey, entry)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
