package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"marketgate/internal/domain"
)

// engagement is the mock's only tenant-owned record.
type engagement struct {
	ID         int64                   `json:"id"`
	TenantID   domain.TenantID         `json:"tenant_id"`
	ProviderID string                  `json:"provider_id"`
	Status     domain.EngagementStatus `json:"-"`
	StatusName string                  `json:"status"`
	UpdatedAt  time.Time               `json:"updated_at"`
}

// marketplace serves engagement endpoints scoped by the X-Tenant-ID header the
// gateway has already validated. Records of other tenants are reported as
// not found.
type marketplace struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]*engagement
}

func newMarketplace() *marketplace {
	return &marketplace{byID: make(map[int64]*engagement)}
}

func (m *marketplace) register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/marketplace/engagements", m.list)
	mux.HandleFunc("POST /api/marketplace/engagements", m.create)
	mux.HandleFunc("PATCH /api/marketplace/engagements/{id}/status", m.transition)
}

func tenantOf(r *http.Request) (domain.TenantID, bool) {
	n, err := strconv.ParseInt(r.Header.Get("X-Tenant-ID"), 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return domain.TenantID(n), true
}

func (m *marketplace) list(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantOf(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "bad_request", "X-Tenant-ID is required")
		return
	}

	m.mu.Lock()
	out := []engagement{}
	for id := int64(1); id <= m.nextID; id++ {
		if e, ok := m.byID[id]; ok && e.TenantID == tenant {
			out = append(out, *e)
		}
	}
	m.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"engagements": out})
}

func (m *marketplace) create(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantOf(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "bad_request", "X-Tenant-ID is required")
		return
	}
	var req struct {
		ProviderID string `json:"provider_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ProviderID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "provider_id is required")
		return
	}

	m.mu.Lock()
	m.nextID++
	e := &engagement{
		ID:         m.nextID,
		TenantID:   tenant,
		ProviderID: req.ProviderID,
		Status:     domain.EngagementRequested,
		StatusName: domain.EngagementRequested.String(),
		UpdatedAt:  time.Now().UTC(),
	}
	m.byID[e.ID] = e
	snapshot := *e
	m.mu.Unlock()

	writeJSON(w, http.StatusCreated, snapshot)
}

func (m *marketplace) transition(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantOf(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "bad_request", "X-Tenant-ID is required")
		return
	}
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", "engagement not found")
		return
	}
	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	next, err := domain.ParseEngagementStatus(req.Status)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.byID[id]
	if !ok || e.TenantID != tenant {
		writeError(w, http.StatusNotFound, "not_found", "engagement not found")
		return
	}
	status, err := e.Status.TransitionTo(next)
	if errors.Is(err, domain.ErrInvalidTransition) {
		writeError(w, http.StatusConflict, "invalid_transition", err.Error())
		return
	}
	e.Status = status
	e.StatusName = status.String()
	e.UpdatedAt = time.Now().UTC()

	writeJSON(w, http.StatusOK, *e)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, domain.ErrorResponse{Error: code, Message: msg})
}
