package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"marketgate/internal/gateway/middleware"
)

func TestCanonicalPath(t *testing.T) {
	tests := []struct {
		target string
		want   int
	}{
		{"/api/marketplace/engagements", http.StatusOK},
		{"/api/marketplace/catalog/", http.StatusOK},
		{"/", http.StatusOK},
		{"/api/marketplace/catalog/..%2Fengagements", http.StatusBadRequest},
		{"/api/marketplace/catalog/%2e%2e/engagements", http.StatusBadRequest},
		{"/api/marketplace/catalog/%2E%2E/engagements", http.StatusBadRequest},
		{"/api/marketplace/catalog/./items", http.StatusBadRequest},
		{"/api/marketplace/catalog//items", http.StatusBadRequest},
		{"/api/marketplace/catalog%2Fitems", http.StatusBadRequest},
		{"/api/marketplace/catalog%5C..%5Cengagements", http.StatusBadRequest},
	}
	for _, tt := range tests {
		reached := false
		handler := middleware.CanonicalPath(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reached = true
		}))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.target, nil))

		if rec.Code != tt.want {
			t.Errorf("%s: expected %d, got %d", tt.target, tt.want, rec.Code)
		}
		if reached != (tt.want == http.StatusOK) {
			t.Errorf("%s: expected reached=%v, got %v", tt.target, tt.want == http.StatusOK, reached)
		}
	}
}
