package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	gw "marketgate/internal/gateway"
	"marketgate/internal/platform/telemetry"
)

// Metrics returns middleware that records HTTP request metrics.
// Place as the outermost middleware to capture the full request lifecycle.
func Metrics(m *telemetry.GatewayMetrics) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &gw.StatusWriter{ResponseWriter: w, Code: http.StatusOK}

			next.ServeHTTP(sw, r)

			if m != nil {
				duration := time.Since(start).Seconds()
				m.RecordHTTPRequest(r.Context(), r.Method, RouteLabel(r.URL.Path), sw.Code, duration)
			}
		})
	}
}

// RouteLabel collapses numeric and UUID path segments into ":id" so metric
// label cardinality does not grow with marketplace entity ids.
func RouteLabel(path string) string {
	segs := strings.Split(path, "/")
	for i, s := range segs {
		if s == "" {
			continue
		}
		if isNumeric(s) || uuid.Validate(s) == nil {
			segs[i] = ":id"
		}
	}
	return strings.Join(segs, "/")
}

func isNumeric(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
