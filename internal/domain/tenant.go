package domain

import (
	"strconv"
	"time"
)

// TenantID identifies an isolated customer organization. Valid ids are > 0.
type TenantID int64

// Valid reports whether the id can name a tenant.
func (t TenantID) Valid() bool { return t > 0 }

func (t TenantID) String() string {
	return strconv.FormatInt(int64(t), 10)
}

// Membership asserts that a principal belongs to a tenant.
// Role is carried for administration tooling; the guard only checks existence.
type Membership struct {
	PrincipalID string    `json:"principal_id"`
	TenantID    TenantID  `json:"tenant_id"`
	Role        string    `json:"role,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// SecurityEventKind classifies an audit record.
type SecurityEventKind string

// EventTenantSpoofing is recorded once for every denied tenant claim.
const EventTenantSpoofing SecurityEventKind = "TENANT_SPOOFING_ATTEMPT"

// SecurityEvent is an append-only audit record.
type SecurityEvent struct {
	ID             string            `json:"id"`
	Kind           SecurityEventKind `json:"kind"`
	PrincipalID    string            `json:"principal_id"`
	PrincipalLabel string            `json:"principal_label,omitempty"`
	// AttemptedTenantID is zero when the claim could not be parsed.
	AttemptedTenantID TenantID  `json:"attempted_tenant_id,omitempty"`
	RawClaim          string    `json:"raw_claim,omitempty"`
	Path              string    `json:"path"`
	Method            string    `json:"method"`
	RequestID         string    `json:"request_id,omitempty"`
	Reason            string    `json:"reason"`
	OccurredAt        time.Time `json:"occurred_at"`
}
