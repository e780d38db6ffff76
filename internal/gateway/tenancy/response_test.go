package tenancy_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"marketgate/internal/domain"
	"marketgate/internal/gateway/tenancy"
)

func TestWriteDenial(t *testing.T) {
	rec := httptest.NewRecorder()
	tenancy.WriteDenial(rec)

	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected application/json, got %q", ct)
	}

	var body domain.DenialResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if body.Code != "TENANT_ACCESS_DENIED" {
		t.Errorf("expected TENANT_ACCESS_DENIED, got %q", body.Code)
	}
	if body.Error != tenancy.DenialMessage {
		t.Errorf("expected denial message, got %q", body.Error)
	}
}
