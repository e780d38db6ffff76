package tenancy

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"marketgate/internal/domain"
)

// DenialMessage is the human-readable text of every tenant denial. It is the
// same for malformed and unauthorized claims.
const DenialMessage = "access to the requested tenant is denied"

// WriteDenial writes the canonical 403 tenant denial.
func WriteDenial(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	if err := json.NewEncoder(w).Encode(domain.DenialResponse{
		Error: DenialMessage,
		Code:  domain.CodeTenantAccessDenied,
	}); err != nil {
		slog.Error("encoding denial response", "error", err)
	}
}
