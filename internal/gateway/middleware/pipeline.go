package middleware

import (
	"log/slog"
	"net/http"

	gw "marketgate/internal/gateway"
	"marketgate/internal/gateway/tenancy"
	"marketgate/internal/platform/telemetry"
)

// Middleware is a function that wraps an http.Handler.
type Middleware func(http.Handler) http.Handler

// Chain applies middleware in order: the first middleware is the outermost wrapper.
func Chain(handler http.Handler, mw ...Middleware) http.Handler {
	for i := len(mw) - 1; i >= 0; i-- {
		handler = mw[i](handler)
	}
	return handler
}

// DefaultMaxBodyBytes caps request bodies when PipelineConfig leaves it unset.
const DefaultMaxBodyBytes = 1 << 20

// PipelineConfig holds the collaborators of the gateway request pipeline.
type PipelineConfig struct {
	Logger  *slog.Logger
	Metrics *telemetry.GatewayMetrics

	MaxBodyBytes int64

	// IPLimiter is applied before authentication. Optional.
	IPLimiter gw.RateLimiter
	// PrincipalLimiter is applied between authentication and the tenant
	// guard. Optional.
	PrincipalLimiter gw.RateLimiter
	// DenialCost is charged to the principal limiter on each tenant denial
	// when it implements gateway.Penalizer. Zero disables the penalty.
	DenialCost float64

	JWKS gw.JWKSProvider
	// AuthPublicPrefixes skip authentication.
	AuthPublicPrefixes []string

	Guard        *tenancy.Guard
	TenantHeader string
}

// Pipeline assembles the gateway middleware in its fixed order:
//
//	Metrics → RequestID → Logging → Recovery → CanonicalPath → MaxBodySize →
//	RateLimit → Auth → RateLimitByPrincipal → TenantGuard → handler
//
// The tenant guard depends on the principal Auth attaches, so the order is
// not configurable. CanonicalPath runs before anything matches on the path.
func Pipeline(handler http.Handler, cfg PipelineConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}

	mw := []Middleware{
		Metrics(cfg.Metrics),
		RequestID,
		Logging(logger),
		Recovery,
		CanonicalPath,
		MaxBodySize(maxBody),
	}
	if cfg.IPLimiter != nil {
		mw = append(mw, RateLimit(cfg.IPLimiter, cfg.Metrics))
	}
	mw = append(mw, Auth(cfg.JWKS, cfg.AuthPublicPrefixes, cfg.Metrics))
	if cfg.PrincipalLimiter != nil {
		mw = append(mw, RateLimitByPrincipal(cfg.PrincipalLimiter, cfg.Metrics))
	}
	var guardOpts []TenantGuardOption
	if p, ok := cfg.PrincipalLimiter.(gw.Penalizer); ok && cfg.DenialCost > 0 {
		guardOpts = append(guardOpts, PenalizeDenials(p, cfg.DenialCost))
	}
	mw = append(mw, TenantGuard(cfg.Guard, cfg.TenantHeader, guardOpts...))

	return Chain(handler, mw...)
}
