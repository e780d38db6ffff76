package middleware

import (
	"log/slog"
	"net/http"

	gw "marketgate/internal/gateway"
	"marketgate/internal/gateway/tenancy"
)

// TenantGuardOption configures TenantGuard.
type TenantGuardOption func(*tenantGuardConfig)

type tenantGuardConfig struct {
	penalizer gw.Penalizer
	cost      float64
}

// PenalizeDenials charges the denied principal's rate-limit bucket cost
// extra tokens, so probing foreign tenant ids drains the budget faster than
// ordinary traffic. p should be the limiter behind RateLimitByPrincipal.
func PenalizeDenials(p gw.Penalizer, cost float64) TenantGuardOption {
	return func(c *tenantGuardConfig) {
		c.penalizer = p
		c.cost = cost
	}
}

// TenantGuard rejects requests whose principal is not a member of the
// tenant named in the claim header. It must run after Auth, which attaches
// the principal, and before any handler that touches tenant data.
//
// Requests the guard does not deny are passed on unmodified.
func TenantGuard(guard *tenancy.Guard, header string, opts ...TenantGuardOption) Middleware {
	if header == "" {
		header = tenancy.DefaultClaimHeader
	}
	var cfg tenantGuardConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			req := tenancy.Request{
				Path:       r.URL.Path,
				Method:     r.Method,
				RequestID:  gw.RequestIDFromContext(ctx),
				Claim:      tenancy.ExtractClaim(r.Header, header),
				Subrequest: gw.IsSubrequest(ctx),
			}
			if p, ok := gw.PrincipalFromContext(ctx); ok {
				req.Principal = &p
			}

			notes := gw.AccessLogFromContext(ctx)
			d, err := guard.Evaluate(ctx, req)
			if err != nil {
				// The client is gone; there is nobody to answer.
				notes.Add("tenant_decision", "aborted")
				slog.DebugContext(ctx, "tenant check aborted", "error", err, "request_id", req.RequestID)
				return
			}

			notes.Add("tenant_decision", d.State.String())
			if d.Claim.Kind == tenancy.ClaimValid {
				notes.Add("tenant_id", int64(d.Claim.TenantID))
			}
			if d.Denied() {
				notes.Add("tenant_deny_reason", d.Reason.String())
				slog.DebugContext(ctx, "tenant check denied", "error", d.Err(), "request_id", req.RequestID)
				if cfg.penalizer != nil && req.Principal != nil && !req.Principal.SuperAdmin {
					cfg.penalizer.Penalize(principalKey(req.Principal.ID), cfg.cost)
				}
				tenancy.WriteDenial(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
