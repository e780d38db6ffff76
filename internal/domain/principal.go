package domain

import "slices"

// Scope represents an authorization scope (e.g. "marketplace:read").
type Scope string

// PrincipalType distinguishes between human users and service accounts.
type PrincipalType int

const (
	PrincipalUnknown PrincipalType = iota
	PrincipalUser
	PrincipalService
)

func (pt PrincipalType) String() string {
	switch pt {
	case PrincipalUser:
		return "user"
	case PrincipalService:
		return "service"
	default:
		return "unknown"
	}
}

// Principal represents an authenticated entity (user or service account).
// It is request-scoped and never mutated once the Auth middleware builds it.
type Principal struct {
	ID     string
	Email  string
	Type   PrincipalType
	Scopes []Scope
	// SuperAdmin bypasses per-tenant membership checks.
	SuperAdmin bool
}

// HasScope reports whether the principal has the given scope.
func (p Principal) HasScope(s Scope) bool {
	return slices.Contains(p.Scopes, s)
}

// Label returns a human-readable identifier for audit records.
func (p Principal) Label() string {
	if p.Email != "" {
		return p.Email
	}
	return p.ID
}

// TokenPair is the token issuance response returned by the identity service.
type TokenPair struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
}
