package middleware

import (
	"net/http"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/kozaktomas/face-index/internal/logging"
)

// CorrelationID carries chi's request ID into the logging context so every
// log line of one invocation can be grouped. Must run after RequestID.
func CorrelationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if id := chiMiddleware.GetReqID(ctx); id != "" {
			ctx = logging.WithCorrelationID(ctx, id)
		} else {
			ctx = logging.EnsureCorrelationID(ctx)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SecurityHeaders sets headers that keep browsers from sniffing or framing
// API responses.
func SecurityHeaders() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			next.ServeHTTP(w, r)
		})
	}
}
