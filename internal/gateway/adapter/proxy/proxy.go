// Package proxy routes gateway traffic to the marketplace and identity services.
package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"marketgate/internal/domain"
	gw "marketgate/internal/gateway"
	"marketgate/internal/platform/telemetry"
)

// Scopes required by the authenticated marketplace routes.
const (
	ScopeMarketplaceRead  domain.Scope = "marketplace:read"
	ScopeMarketplaceWrite domain.Scope = "marketplace:write"
)

// Public marketplace prefixes. They are reachable without a token and are
// exempt from tenant checks because they only expose public business data.
var MarketplacePublicPrefixes = []string{
	"/api/marketplace/catalog",
	"/api/marketplace/reviews/provider",
}

// IdentityPublicPaths are served by the identity service without authentication.
var IdentityPublicPaths = []string{"/auth/token", "/.well-known/jwks.json"}

// Principal headers are owned by the gateway; client-supplied copies are dropped.
var principalHeaders = []string{
	"X-Principal-ID",
	"X-Principal-Email",
	"X-Principal-Scopes",
	"X-Principal-Super-Admin",
}

// route defines a path prefix → backend mapping with required scope.
type route struct {
	prefix     string
	backendURL *url.URL
	backend    string // metrics label
	readScope  domain.Scope
	writeScope domain.Scope
	public     bool
}

// ReadinessCheck is consulted by /readyz. A non-nil error marks the gateway unready.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Router routes requests to backend services.
type Router struct {
	mux     *http.ServeMux
	checks  []ReadinessCheck
	metrics *telemetry.GatewayMetrics
}

// NewRouter creates a router that dispatches to the marketplace and identity services.
// The metrics parameter is optional; pass nil to skip metric recording.
func NewRouter(marketplaceURL, identityURL string, m *telemetry.GatewayMetrics, checks ...ReadinessCheck) (*Router, error) {
	marketplace, err := url.Parse(marketplaceURL)
	if err != nil {
		return nil, fmt.Errorf("parse marketplace URL: %w", err)
	}
	identity, err := url.Parse(identityURL)
	if err != nil {
		return nil, fmt.Errorf("parse identity URL: %w", err)
	}

	r := &Router{
		mux:     http.NewServeMux(),
		checks:  checks,
		metrics: m,
	}

	r.mux.HandleFunc("GET /healthz", r.healthz)
	r.mux.HandleFunc("GET /readyz", r.readyz)

	for _, p := range IdentityPublicPaths {
		r.mux.HandleFunc(p, r.makeHandler(route{prefix: p, backendURL: identity, backend: "identity", public: true}))
	}

	routes := []route{
		{prefix: "/api/marketplace", backendURL: marketplace, backend: "marketplace",
			readScope: ScopeMarketplaceRead, writeScope: ScopeMarketplaceWrite},
	}
	for _, p := range MarketplacePublicPrefixes {
		routes = append(routes, route{prefix: p, backendURL: marketplace, backend: "marketplace", public: true})
	}
	for _, rt := range routes {
		h := r.makeHandler(rt)
		r.mux.HandleFunc(rt.prefix+"/{rest...}", h)
		r.mux.HandleFunc(rt.prefix, h)
	}

	return r, nil
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

func (r *Router) makeHandler(rt route) http.HandlerFunc {
	proxy := &httputil.ReverseProxy{
		Director: func(req *http.Request) {
			req.URL.Scheme = rt.backendURL.Scheme
			req.URL.Host = rt.backendURL.Host
			req.Host = rt.backendURL.Host

			for _, h := range principalHeaders {
				req.Header.Del(h)
			}
			if rt.backend != "identity" {
				// Backends trust principal headers, never bearer tokens.
				req.Header.Del("Authorization")
			}
			if principal, ok := gw.PrincipalFromContext(req.Context()); ok {
				setPrincipalHeaders(req.Header, principal)
			}

			if reqID := gw.RequestIDFromContext(req.Context()); reqID != "" {
				req.Header.Set("X-Request-ID", reqID)
			}
		},
		ErrorHandler: func(w http.ResponseWriter, req *http.Request, err error) {
			slog.ErrorContext(req.Context(), "proxying request",
				"backend", rt.backend,
				"path", req.URL.Path,
				"error", err,
			)
			writeError(w, http.StatusBadGateway, "bad_gateway", "upstream service unavailable")
		},
	}

	return func(w http.ResponseWriter, req *http.Request) {
		if !rt.public {
			principal, ok := gw.PrincipalFromContext(req.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
				return
			}
			requiredScope := rt.readScope
			if isWriteMethod(req.Method) {
				requiredScope = rt.writeScope
			}
			if !principal.HasScope(requiredScope) {
				writeError(w, http.StatusForbidden, "forbidden", "insufficient permissions")
				return
			}
		}

		start := time.Now()
		sw := &gw.StatusWriter{ResponseWriter: w, Code: http.StatusOK}
		proxy.ServeHTTP(sw, req)

		if r.metrics != nil {
			duration := time.Since(start).Seconds()
			r.metrics.RecordProxyRequest(req.Context(), rt.backend, sw.Code, duration)
		}
	}
}

func setPrincipalHeaders(h http.Header, p domain.Principal) {
	h.Set("X-Principal-ID", p.ID)
	if p.Email != "" {
		h.Set("X-Principal-Email", p.Email)
	}
	var b strings.Builder
	for i, s := range p.Scopes {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(string(s))
	}
	h.Set("X-Principal-Scopes", b.String())
	if p.SuperAdmin {
		h.Set("X-Principal-Super-Admin", "true")
	}
}

func (r *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]string{"status": "ok"}); err != nil {
		slog.Error("encoding healthz response", "error", err)
	}
}

func (r *Router) readyz(w http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
	defer cancel()

	for _, c := range r.checks {
		if err := c.Check(ctx); err != nil {
			slog.WarnContext(ctx, "readiness check failed", "check", c.Name, "error", err)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			if err := json.NewEncoder(w).Encode(map[string]string{"status": "unready", "check": c.Name}); err != nil {
				slog.Error("encoding readyz response", "error", err)
			}
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]string{"status": "ready"}); err != nil {
		slog.Error("encoding readyz response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(domain.ErrorResponse{
		Error:   code,
		Message: msg,
	}); err != nil {
		slog.Error("encoding error response", "error", err)
	}
}

func isWriteMethod(method string) bool {
	return method == http.MethodPost || method == http.MethodPut ||
		method == http.MethodPatch || method == http.MethodDelete
}
