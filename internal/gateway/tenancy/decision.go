package tenancy

import (
	"fmt"

	"marketgate/internal/domain"
)

// State is the guard's verdict for one request.
type State int

const (
	// StateNotApplicable means the guard renders no decision; the request proceeds.
	StateNotApplicable State = iota
	// StatePending is only observed when evaluation was cut short by cancellation.
	StatePending
	StateAllowed
	StateDenied
)

func (s State) String() string {
	switch s {
	case StateNotApplicable:
		return "not_applicable"
	case StatePending:
		return "pending"
	case StateAllowed:
		return "allowed"
	case StateDenied:
		return "denied"
	default:
		return "unknown"
	}
}

// DenyReason explains a denial to operators. Clients never see it.
type DenyReason int

const (
	ReasonNone DenyReason = iota
	ReasonInvalidClaim
	ReasonNoMembership
	ReasonLookupFailure
	ReasonInternalError
)

func (r DenyReason) String() string {
	switch r {
	case ReasonInvalidClaim:
		return "invalid_claim"
	case ReasonNoMembership:
		return "no_membership"
	case ReasonLookupFailure:
		return "lookup_failure"
	case ReasonInternalError:
		return "internal_error"
	default:
		return ""
	}
}

// Decision is the outcome of Guard.Evaluate.
type Decision struct {
	State     State
	Reason    DenyReason
	Claim     Claim
	Exemption Exemption
}

// Denied reports whether the request must be rejected.
func (d Decision) Denied() bool { return d.State == StateDenied }

// Err is nil unless the request was denied. A denial wraps
// domain.ErrTenantAccessDenied with its reason.
func (d Decision) Err() error {
	if !d.Denied() {
		return nil
	}
	return fmt.Errorf("%w: %s", domain.ErrTenantAccessDenied, d.Reason)
}

// AttemptedTenant returns the claimed tenant, or zero when the claim was unusable.
func (d Decision) AttemptedTenant() domain.TenantID {
	if d.Claim.Kind != ClaimValid {
		return 0
	}
	return d.Claim.TenantID
}

func notApplicable(c Claim) Decision {
	return Decision{State: StateNotApplicable, Claim: c}
}

func deny(c Claim, r DenyReason) Decision {
	return Decision{State: StateDenied, Reason: r, Claim: c}
}
