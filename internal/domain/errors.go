package domain

import "errors"

// Sentinel errors used across service boundaries.
var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not found")
	ErrRateLimited        = errors.New("rate limited")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenExpired       = errors.New("token expired")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTenantAccessDenied = errors.New("tenant access denied")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrUnknownStatus      = errors.New("unknown status")
	ErrInvalidMembership  = errors.New("invalid membership")
)

// CodeTenantAccessDenied is the machine-readable code of a tenant denial.
// Downstream clients branch on it; changing it is a breaking change.
const CodeTenantAccessDenied = "TENANT_ACCESS_DENIED"

// ErrorResponse is the standard JSON error envelope returned to clients.
type ErrorResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retry_after,omitempty"`
}

// DenialResponse is the body of a tenant access denial.
type DenialResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
