package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime/debug"

	"marketgate/internal/domain"
	gw "marketgate/internal/gateway"
)

// Recovery turns a handler panic into a 500 JSON error. http.ErrAbortHandler
// is re-raised so net/http can drop the connection as intended.
//
// Panics inside the tenant guard never reach here; the guard converts them
// into denials itself.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			v := recover()
			if v == nil {
				return
			}
			if v == http.ErrAbortHandler {
				panic(v)
			}

			ctx := r.Context()
			gw.AccessLogFromContext(ctx).Add("panic", true)
			slog.ErrorContext(ctx, "panic recovered",
				"error", v,
				"method", r.Method,
				"path", r.URL.Path,
				"request_id", gw.RequestIDFromContext(ctx),
				"stack", string(debug.Stack()),
			)
			writeInternalError(w)
		}()
		next.ServeHTTP(w, r)
	})
}

func writeInternalError(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	if err := json.NewEncoder(w).Encode(domain.ErrorResponse{
		Error:   "internal_error",
		Message: "an unexpected error occurred",
	}); err != nil {
		slog.Error("encoding error response", "error", err)
	}
}
