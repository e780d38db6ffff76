package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"marketgate/internal/domain"
	gw "marketgate/internal/gateway"
)

// CanonicalPath rejects requests whose decoded path is not already clean.
// Auth, the tenant guard and the router all match prefixes on r.URL.Path,
// so "/catalog/..%2Fengagements" must never reach them: it would match the
// public catalog prefix while an upstream resolves it to another route.
// Encoded slashes are rejected for the same reason.
func CanonicalPath(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isCanonicalPath(r.URL.Path) || hasEncodedSlash(r.URL.EscapedPath()) {
			gw.AccessLogFromContext(r.Context()).Add("path_rejected", true)
			writeBadPath(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isCanonicalPath(p string) bool {
	if p == "" || p[0] != '/' {
		return false
	}
	clean := path.Clean(p)
	if strings.HasSuffix(p, "/") && clean != "/" {
		clean += "/"
	}
	return clean == p
}

func hasEncodedSlash(escaped string) bool {
	return strings.Contains(escaped, "%2F") || strings.Contains(escaped, "%2f") ||
		strings.Contains(escaped, "%5C") || strings.Contains(escaped, "%5c")
}

func writeBadPath(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	if err := json.NewEncoder(w).Encode(domain.ErrorResponse{
		Error:   "bad_request",
		Message: "request path is not canonical",
	}); err != nil {
		slog.Error("encoding error response", "error", err)
	}
}
