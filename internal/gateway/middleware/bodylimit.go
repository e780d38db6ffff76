package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"marketgate/internal/domain"
	gw "marketgate/internal/gateway"
)

// MaxBodySize limits request bodies to maxBytes. A declared Content-Length
// over the limit is answered with 413 before any later middleware runs, so
// oversized uploads never reach authentication or a membership lookup.
// Bodies without a declared length are capped while being read.
func MaxBodySize(maxBytes int64) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				gw.AccessLogFromContext(r.Context()).Add("body_rejected", r.ContentLength)
				writePayloadTooLarge(w)
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

func writePayloadTooLarge(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusRequestEntityTooLarge)
	if err := json.NewEncoder(w).Encode(domain.ErrorResponse{
		Error:   "payload_too_large",
		Message: "request body too large",
	}); err != nil {
		slog.Error("encoding error response", "error", err)
	}
}
