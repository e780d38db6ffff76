package inmem_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"marketgate/internal/domain"
	"marketgate/internal/gateway/adapter/inmem"
)

func TestMembershipGrantAndFind(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	store := inmem.NewMembershipStore(func() time.Time { return now })
	ctx := context.Background()

	if err := store.Grant(ctx, domain.Membership{PrincipalID: "1", TenantID: 42, Role: "admin"}); err != nil {
		t.Fatalf("grant: %v", err)
	}

	m, err := store.FindMembership(ctx, "1", 42)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if m == nil {
		t.Fatal("expected membership")
	}
	if m.Role != "admin" {
		t.Errorf("expected role admin, got %q", m.Role)
	}
	if !m.CreatedAt.Equal(now) {
		t.Errorf("expected created_at %v, got %v", now, m.CreatedAt)
	}
}

func TestMembershipMissingIsNilNil(t *testing.T) {
	store := inmem.NewMembershipStore(time.Now)
	ctx := context.Background()
	store.Grant(ctx, domain.Membership{PrincipalID: "1", TenantID: 42})

	tests := []struct {
		name      string
		principal string
		tenant    domain.TenantID
	}{
		{"other tenant", "1", 43},
		{"unknown tenant", "1", 999999},
		{"other principal", "2", 42},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := store.FindMembership(ctx, tt.principal, tt.tenant)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if m != nil {
				t.Errorf("expected no membership, got %+v", m)
			}
		})
	}
}

func TestMembershipRevoke(t *testing.T) {
	store := inmem.NewMembershipStore(time.Now)
	ctx := context.Background()
	store.Grant(ctx, domain.Membership{PrincipalID: "1", TenantID: 42})

	if err := store.Revoke(ctx, "1", 42); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if m, _ := store.FindMembership(ctx, "1", 42); m != nil {
		t.Error("revoked membership should not be found")
	}
	if err := store.Revoke(ctx, "1", 42); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound on second revoke, got %v", err)
	}
}

func TestMembershipGrantRejectsInvalid(t *testing.T) {
	store := inmem.NewMembershipStore(time.Now)
	ctx := context.Background()

	for _, m := range []domain.Membership{
		{PrincipalID: "", TenantID: 1},
		{PrincipalID: "1", TenantID: 0},
		{PrincipalID: "1", TenantID: -5},
	} {
		if err := store.Grant(ctx, m); !errors.Is(err, domain.ErrInvalidMembership) {
			t.Errorf("%+v: expected ErrInvalidMembership, got %v", m, err)
		}
	}
	if store.Len() != 0 {
		t.Errorf("expected empty store, got %d", store.Len())
	}
}

func TestMembershipListForPrincipalSorted(t *testing.T) {
	store := inmem.NewMembershipStore(time.Now)
	ctx := context.Background()
	for _, tid := range []domain.TenantID{7, 3, 11} {
		store.Grant(ctx, domain.Membership{PrincipalID: "1", TenantID: tid})
	}
	store.Grant(ctx, domain.Membership{PrincipalID: "2", TenantID: 5})

	list, err := store.ListForPrincipal(ctx, "1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []domain.TenantID{3, 7, 11}
	if len(list) != len(want) {
		t.Fatalf("expected %d memberships, got %d", len(want), len(list))
	}
	for i, m := range list {
		if m.TenantID != want[i] {
			t.Errorf("position %d: expected tenant %d, got %d", i, want[i], m.TenantID)
		}
	}
}

func TestMembershipConcurrentAccess(t *testing.T) {
	store := inmem.NewMembershipStore(time.Now)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			store.Grant(ctx, domain.Membership{PrincipalID: "p", TenantID: domain.TenantID(i + 1)})
		}()
		go func() {
			defer wg.Done()
			store.FindMembership(ctx, "p", domain.TenantID(i+1))
		}()
	}
	wg.Wait()

	if store.Len() != 50 {
		t.Errorf("expected 50 memberships, got %d", store.Len())
	}
}

func TestParseSeed(t *testing.T) {
	got, err := inmem.ParseSeed(" 1:42, 2:99:owner ,,")
	if err != nil {
		t.Fatalf("ParseSeed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 memberships, got %d", len(got))
	}
	if got[0].PrincipalID != "1" || got[0].TenantID != 42 || got[0].Role != "member" {
		t.Errorf("unexpected first entry: %+v", got[0])
	}
	if got[1].Role != "owner" {
		t.Errorf("expected owner role, got %q", got[1].Role)
	}
}

func TestParseSeedRejectsBadEntries(t *testing.T) {
	for _, entry := range []string{"1", "1:abc", "1:0", ":42", "1:2:3:4"} {
		if _, err := inmem.ParseSeed(entry); !errors.Is(err, domain.ErrInvalidMembership) {
			t.Errorf("%q: expected ErrInvalidMembership, got %v", entry, err)
		}
	}
}
