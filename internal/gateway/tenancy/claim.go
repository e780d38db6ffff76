// Package tenancy decides whether a request may act on the tenant it claims.
//
// The Guard runs after authentication and before business handlers. It parses
// the claimed tenant id, skips exempt routes, asks the Oracle whether the
// principal is a member of the claimed tenant, and audits every denial.
// Every failure path resolves to a denial.
package tenancy

import (
	"net/http"
	"strconv"
	"strings"

	"marketgate/internal/domain"
)

// DefaultClaimHeader carries the caller's tenant claim.
const DefaultClaimHeader = "X-Tenant-ID"

// maxRawClaimLen bounds how much of an attacker-supplied claim reaches the audit trail.
const maxRawClaimLen = 128

// ClaimKind classifies the tenant claim of a request.
type ClaimKind int

const (
	// ClaimNone means the request carries no claim; the guard does not apply.
	ClaimNone ClaimKind = iota
	ClaimValid
	// ClaimInvalid means a claim is present but is not a positive base-10 integer.
	ClaimInvalid
)

func (k ClaimKind) String() string {
	switch k {
	case ClaimNone:
		return "none"
	case ClaimValid:
		return "valid"
	case ClaimInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Claim is the parsed tenant claim. TenantID is set only for ClaimValid.
type Claim struct {
	Kind     ClaimKind
	TenantID domain.TenantID
	Raw      string
}

// ParseClaim parses a raw claim. The whole value must be ASCII digits forming
// a positive int64. There is no partial extraction: "1 OR 1=1" is invalid,
// not tenant 1.
func ParseClaim(raw string) Claim {
	if raw == "" {
		return Claim{Kind: ClaimNone}
	}
	invalid := Claim{Kind: ClaimInvalid, Raw: truncate(raw)}
	for i := 0; i < len(raw); i++ {
		if raw[i] < '0' || raw[i] > '9' {
			return invalid
		}
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n <= 0 {
		return invalid
	}
	return Claim{Kind: ClaimValid, TenantID: domain.TenantID(n), Raw: raw}
}

// ExtractClaim reads the claim header. Repeated headers are accepted only when
// every value names the same tenant.
func ExtractClaim(h http.Header, name string) Claim {
	values := h.Values(name)
	if len(values) == 0 {
		return Claim{Kind: ClaimNone}
	}
	if len(values) == 1 {
		return ParseClaim(values[0])
	}

	first := ParseClaim(values[0])
	for _, v := range values[1:] {
		c := ParseClaim(v)
		if c.Kind != first.Kind || c.TenantID != first.TenantID {
			return Claim{Kind: ClaimInvalid, Raw: truncate(strings.Join(values, ","))}
		}
	}
	return first
}

func truncate(s string) string {
	if len(s) <= maxRawClaimLen {
		return s
	}
	return s[:maxRawClaimLen]
}
