package gateway

import (
	"context"
	"crypto/rsa"
	"net/http"
	"sync"

	"marketgate/internal/domain"
)

// JWKSProvider fetches and caches public keys from the Identity Service's JWKS endpoint.
type JWKSProvider interface {
	// GetKey returns the public key for the given key ID.
	GetKey(ctx context.Context, kid string) (*rsa.PublicKey, error)
}

// RateLimiter decides whether a request identified by key should be allowed.
type RateLimiter interface {
	Allow(key string) RateLimitResult
}

// Penalizer charges a key extra tokens outside the normal request flow.
type Penalizer interface {
	Penalize(key string, cost float64)
}

// RateLimitResult holds the outcome of a rate limit check.
type RateLimitResult struct {
	Allowed    bool
	RetryAfter int // seconds until next token available; 0 if allowed
}

// MembershipStore answers membership lookups for the tenant guard.
type MembershipStore interface {
	// FindMembership returns (nil, nil) when no membership exists, including
	// when the tenant itself does not exist.
	FindMembership(ctx context.Context, principalID string, tenantID domain.TenantID) (*domain.Membership, error)
}

// MembershipAdmin manages membership facts. Used by operator tooling, never by the guard.
type MembershipAdmin interface {
	MembershipStore
	Grant(ctx context.Context, m domain.Membership) error
	Revoke(ctx context.Context, principalID string, tenantID domain.TenantID) error
	ListForPrincipal(ctx context.Context, principalID string) ([]domain.Membership, error)
}

// AuditSink receives security events. Implementations append; they never read back.
type AuditSink interface {
	Record(ctx context.Context, ev domain.SecurityEvent) error
}

// StatusWriter wraps http.ResponseWriter to capture the status code.
type StatusWriter struct {
	http.ResponseWriter
	Code int
}

func (sw *StatusWriter) WriteHeader(code int) {
	sw.Code = code
	sw.ResponseWriter.WriteHeader(code)
}

// PrincipalFromContext extracts the authenticated principal from a request context.
func PrincipalFromContext(ctx context.Context) (domain.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(domain.Principal)
	return p, ok
}

// ContextWithPrincipal stores the authenticated principal in the context.
func ContextWithPrincipal(ctx context.Context, p domain.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

type principalKey struct{}

// RequestIDFromContext extracts the request ID from the context.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// ContextWithRequestID stores the request ID in the context.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

type requestIDKey struct{}

// ContextWithSubrequest marks the context as belonging to an internal
// sub-request dispatched while serving another request. The tenant guard
// skips marked requests, since the outer request was already checked.
//
// The gateway itself never dispatches sub-requests and never sets the
// marker. A router embedding the pipeline must set it on the context of
// each internal dispatch it makes, and must never derive it from anything
// the client sent.
func ContextWithSubrequest(ctx context.Context) context.Context {
	return context.WithValue(ctx, subrequestKey{}, true)
}

// IsSubrequest reports whether ctx was marked by ContextWithSubrequest.
func IsSubrequest(ctx context.Context) bool {
	v, _ := ctx.Value(subrequestKey{}).(bool)
	return v
}

type subrequestKey struct{}

// AccessLog collects attributes inner middleware contribute to the
// per-request log line written by the logging middleware.
type AccessLog struct {
	mu    sync.Mutex
	attrs []any
}

// Add appends slog key/value pairs. Safe on a nil receiver.
func (a *AccessLog) Add(args ...any) {
	if a == nil {
		return
	}
	a.mu.Lock()
	a.attrs = append(a.attrs, args...)
	a.mu.Unlock()
}

// Attrs returns a copy of the collected pairs.
func (a *AccessLog) Attrs() []any {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]any(nil), a.attrs...)
}

// ContextWithAccessLog attaches an AccessLog to the context.
func ContextWithAccessLog(ctx context.Context, a *AccessLog) context.Context {
	return context.WithValue(ctx, accessLogKey{}, a)
}

// AccessLogFromContext returns the request's AccessLog, or nil.
func AccessLogFromContext(ctx context.Context) *AccessLog {
	a, _ := ctx.Value(accessLogKey{}).(*AccessLog)
	return a
}

type accessLogKey struct{}
