package stores_test

import (
	"context"
	"errors"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"

	"marketgate/internal/domain"
	"marketgate/internal/platform/config"
	"marketgate/internal/platform/stores"
)

func TestOpenMemorySeeded(t *testing.T) {
	ctx := context.Background()
	m, err := stores.OpenMembership(ctx, config.MembershipConfig{Backend: config.BackendMemory, Seed: "1:42,2:99"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer m.Close(ctx)

	got, err := m.Admin.FindMembership(ctx, "1", 42)
	if err != nil || got == nil {
		t.Fatalf("expected seeded membership, got (%v, %v)", got, err)
	}
	if m.Postgres != nil {
		t.Error("memory backend should not expose a postgres store")
	}
	if err := m.Ping(ctx); err != nil {
		t.Errorf("memory ping: %v", err)
	}
}

func TestOpenMemoryBadSeed(t *testing.T) {
	_, err := stores.OpenMembership(context.Background(), config.MembershipConfig{Backend: config.BackendMemory, Seed: "1:abc"})
	if !errors.Is(err, domain.ErrInvalidMembership) {
		t.Errorf("expected ErrInvalidMembership, got %v", err)
	}
}

func TestOpenRedis(t *testing.T) {
	srv, err := miniredis.Run()
	if err != nil {
		t.Skipf("miniredis unavailable: %v", err)
	}
	defer srv.Close()

	ctx := context.Background()
	m, err := stores.OpenMembership(ctx, config.MembershipConfig{Backend: config.BackendRedis, RedisURL: "redis://" + srv.Addr()})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer m.Close(ctx)

	if err := m.Admin.Grant(ctx, domain.Membership{PrincipalID: "1", TenantID: 7}); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if err := m.Ping(ctx); err != nil {
		t.Errorf("ping: %v", err)
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := stores.OpenMembership(context.Background(), config.MembershipConfig{Backend: "etcd"})
	if !errors.Is(err, config.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}
