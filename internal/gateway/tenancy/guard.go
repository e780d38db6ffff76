package tenancy

import (
	"context"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"marketgate/internal/domain"
	gw "marketgate/internal/gateway"
	"marketgate/internal/platform/telemetry"
)

// Request is the guard's view of an inbound HTTP request.
type Request struct {
	Path      string
	Method    string
	RequestID string
	Claim     Claim
	// Principal is nil when authentication did not attach one.
	Principal *domain.Principal
	// Subrequest marks internal dispatches; only the top-level request is checked.
	Subrequest bool
}

// Guard enforces tenant isolation. It holds no mutable state and is safe for
// concurrent use.
type Guard struct {
	oracle  *Oracle
	exempt  *ExemptionMatcher
	sink    gw.AuditSink
	logger  *slog.Logger
	metrics *telemetry.GatewayMetrics
	now     func() time.Time
}

// Option configures a Guard.
type Option func(*Guard)

// WithLogger sets the logger for internal errors. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(g *Guard) { g.logger = l }
}

// WithMetrics enables decision metrics.
func WithMetrics(m *telemetry.GatewayMetrics) Option {
	return func(g *Guard) { g.metrics = m }
}

// WithClock overrides the audit timestamp source.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) { g.now = now }
}

// NewGuard wires the guard's collaborators.
func NewGuard(oracle *Oracle, exempt *ExemptionMatcher, sink gw.AuditSink, opts ...Option) *Guard {
	g := &Guard{
		oracle: oracle,
		exempt: exempt,
		sink:   sink,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Evaluate decides req. On StateDenied exactly one SecurityEvent has been
// recorded when Evaluate returns.
//
// A non-nil error is only returned when ctx ended before a decision was
// reached; the decision is then StatePending, nothing is audited, and the
// caller must not let the request proceed.
func (g *Guard) Evaluate(ctx context.Context, req Request) (Decision, error) {
	d, err := g.decide(ctx, req)
	if err != nil {
		g.metrics.RecordTenantDecision(ctx, "aborted", "")
		return d, err
	}

	g.metrics.RecordTenantDecision(ctx, d.State.String(), d.Reason.String())
	if d.Denied() {
		g.audit(context.WithoutCancel(ctx), req, d)
	}
	return d, nil
}

func (g *Guard) decide(ctx context.Context, req Request) (d Decision, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			g.logger.Error("tenant guard internal error",
				"panic", rec,
				"path", req.Path,
				"request_id", req.RequestID,
				"stack", string(debug.Stack()),
			)
			d, err = deny(req.Claim, ReasonInternalError), nil
		}
	}()

	if req.Subrequest {
		return notApplicable(req.Claim), nil
	}
	if req.Claim.Kind == ClaimNone {
		return notApplicable(req.Claim), nil
	}
	if ex, ok := g.exempt.Match(req.Path); ok {
		d = notApplicable(req.Claim)
		d.Exemption = ex
		return d, nil
	}
	if req.Claim.Kind != ClaimValid {
		return deny(req.Claim, ReasonInvalidClaim), nil
	}
	if req.Principal == nil {
		return notApplicable(req.Claim), nil
	}

	ok, lookupErr := g.oracle.HasAccess(ctx, *req.Principal, req.Claim.TenantID)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Decision{State: StatePending, Claim: req.Claim}, ctxErr
	}
	if lookupErr != nil {
		g.logger.Error("membership lookup failed",
			"error", lookupErr,
			"principal_id", req.Principal.ID,
			"tenant_id", req.Claim.TenantID,
			"request_id", req.RequestID,
		)
		return deny(req.Claim, ReasonLookupFailure), nil
	}
	if !ok {
		return deny(req.Claim, ReasonNoMembership), nil
	}
	return Decision{State: StateAllowed, Claim: req.Claim}, nil
}

func (g *Guard) audit(ctx context.Context, req Request, d Decision) {
	ev := domain.SecurityEvent{
		ID:                uuid.NewString(),
		Kind:              domain.EventTenantSpoofing,
		AttemptedTenantID: d.AttemptedTenant(),
		Path:              req.Path,
		Method:            req.Method,
		RequestID:         req.RequestID,
		Reason:            d.Reason.String(),
		OccurredAt:        g.now().UTC(),
	}
	if d.Claim.Kind != ClaimValid {
		ev.RawClaim = d.Claim.Raw
	}
	if req.Principal != nil {
		ev.PrincipalID = req.Principal.ID
		ev.PrincipalLabel = req.Principal.Label()
	}

	defer func() {
		if rec := recover(); rec != nil {
			g.logger.Error("audit sink panicked", "panic", rec, "event_id", ev.ID)
		}
	}()
	if err := g.sink.Record(ctx, ev); err != nil {
		g.logger.Error("recording security event", "error", err, "event_id", ev.ID, "kind", ev.Kind)
	}
}
