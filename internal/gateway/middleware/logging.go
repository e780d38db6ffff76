package middleware

import (
	"log/slog"
	"net/http"
	"time"

	gw "marketgate/internal/gateway"
)

// Logging returns a middleware that writes one slog line per request.
// Inner middleware append fields to the line through gateway.AccessLog; the
// tenant guard uses it to report its decision.
func Logging(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &gw.StatusWriter{ResponseWriter: w, Code: http.StatusOK}
			notes := &gw.AccessLog{}

			next.ServeHTTP(sw, r.WithContext(gw.ContextWithAccessLog(r.Context(), notes)))

			// Auth runs further in, so the principal is only visible through notes.
			attrs := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.Code,
				"duration_ms", float64(time.Since(start).Microseconds()) / 1000.0,
				"request_id", gw.RequestIDFromContext(r.Context()),
				"remote_addr", r.RemoteAddr,
			}
			attrs = append(attrs, notes.Attrs()...)

			level := slog.LevelInfo
			if sw.Code >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			logger.Log(r.Context(), level, "request", attrs...)
		})
	}
}
