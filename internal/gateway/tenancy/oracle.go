package tenancy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"marketgate/internal/domain"
	gw "marketgate/internal/gateway"
	"marketgate/internal/platform/telemetry"
)

// ErrMembershipLookup wraps membership store failures. The guard treats it as a denial.
var ErrMembershipLookup = errors.New("membership lookup failed")

// Oracle answers whether a principal may act on a tenant.
type Oracle struct {
	store   gw.MembershipStore
	metrics *telemetry.GatewayMetrics
}

// NewOracle creates an Oracle backed by store. metrics may be nil.
func NewOracle(store gw.MembershipStore, m *telemetry.GatewayMetrics) *Oracle {
	return &Oracle{store: store, metrics: m}
}

// HasAccess reports whether p may act on tenant t.
//
// Super-admins are allowed without a lookup. For everyone else an unknown
// tenant and a missing membership both yield false, so callers cannot probe
// which tenant ids exist. Store errors yield false with an error wrapping
// ErrMembershipLookup; the result is never true on error.
func (o *Oracle) HasAccess(ctx context.Context, p domain.Principal, t domain.TenantID) (bool, error) {
	if p.SuperAdmin {
		return true, nil
	}
	if !t.Valid() || p.ID == "" {
		return false, nil
	}

	start := time.Now()
	m, err := o.store.FindMembership(ctx, p.ID, t)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		o.metrics.RecordMembershipLookup(ctx, "error", elapsed)
		return false, fmt.Errorf("%w: principal %s tenant %s: %w", ErrMembershipLookup, p.ID, t, err)
	}
	if m == nil {
		o.metrics.RecordMembershipLookup(ctx, "not_found", elapsed)
		return false, nil
	}
	o.metrics.RecordMembershipLookup(ctx, "found", elapsed)
	return true, nil
}
