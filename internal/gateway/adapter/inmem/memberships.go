package inmem

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"marketgate/internal/domain"
)

type membershipKey struct {
	principalID string
	tenantID    domain.TenantID
}

// MembershipStore keeps membership facts in memory. It backs local
// development and tests; revocations take effect on the next lookup.
type MembershipStore struct {
	now func() time.Time

	mu      sync.RWMutex
	members map[membershipKey]domain.Membership
}

// NewMembershipStore creates an empty store.
func NewMembershipStore(clock func() time.Time) *MembershipStore {
	return &MembershipStore{
		now:     clock,
		members: make(map[membershipKey]domain.Membership),
	}
}

// FindMembership implements gateway.MembershipStore.
func (s *MembershipStore) FindMembership(_ context.Context, principalID string, tenantID domain.TenantID) (*domain.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.members[membershipKey{principalID, tenantID}]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

// Grant records a membership, replacing the role of an existing one.
func (s *MembershipStore) Grant(_ context.Context, m domain.Membership) error {
	if !m.TenantID.Valid() || m.PrincipalID == "" {
		return domain.ErrInvalidMembership
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[membershipKey{m.PrincipalID, m.TenantID}] = m
	return nil
}

// Revoke removes a membership. Revoking a missing membership returns ErrNotFound.
func (s *MembershipStore) Revoke(_ context.Context, principalID string, tenantID domain.TenantID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := membershipKey{principalID, tenantID}
	if _, ok := s.members[k]; !ok {
		return domain.ErrNotFound
	}
	delete(s.members, k)
	return nil
}

// ListForPrincipal returns the principal's memberships ordered by tenant id.
func (s *MembershipStore) ListForPrincipal(_ context.Context, principalID string) ([]domain.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Membership
	for k, m := range s.members {
		if k.principalID == principalID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TenantID < out[j].TenantID })
	return out, nil
}

// Len returns the number of stored memberships (for testing).
func (s *MembershipStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.members)
}

// ParseSeed reads memberships written as "principal:tenant[:role]" entries
// separated by commas, e.g. "1:42,2:99:owner".
func ParseSeed(list string) ([]domain.Membership, error) {
	var out []domain.Membership
	for _, entry := range strings.Split(list, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) < 2 || len(parts) > 3 || parts[0] == "" {
			return nil, fmt.Errorf("seed entry %q: %w", entry, domain.ErrInvalidMembership)
		}
		n, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("seed entry %q: %w", entry, domain.ErrInvalidMembership)
		}
		m := domain.Membership{PrincipalID: parts[0], TenantID: domain.TenantID(n), Role: "member"}
		if len(parts) == 3 && parts[2] != "" {
			m.Role = parts[2]
		}
		out = append(out, m)
	}
	return out, nil
}
