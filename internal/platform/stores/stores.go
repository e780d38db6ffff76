// Package stores opens the configured membership backend. It is shared by
// the gateway and the tenantctl operator tool so both read the same facts.
package stores

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	gw "marketgate/internal/gateway"
	"marketgate/internal/gateway/adapter/inmem"
	"marketgate/internal/gateway/adapter/postgres"
	"marketgate/internal/gateway/adapter/redisstore"
	"marketgate/internal/platform/config"
)

// Membership is an opened membership backend.
type Membership struct {
	Admin gw.MembershipAdmin
	// Postgres is set when the backend is postgres, so the audit table can
	// share its pool.
	Postgres *postgres.Store

	ping  func(context.Context) error
	close func() error
}

// Ping checks the backend is reachable.
func (m *Membership) Ping(ctx context.Context) error {
	if m.ping == nil {
		return nil
	}
	return m.ping(ctx)
}

// Close releases the backend's connections.
func (m *Membership) Close(context.Context) error {
	if m.close == nil {
		return nil
	}
	return m.close()
}

// OpenMembership connects to the backend named by cfg.Backend.
func OpenMembership(ctx context.Context, cfg config.MembershipConfig) (*Membership, error) {
	switch cfg.Backend {
	case config.BackendPostgres:
		s, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return &Membership{
			Admin:    s,
			Postgres: s,
			ping:     s.Ping,
			close:    func() error { s.Close(); return nil },
		}, nil

	case config.BackendRedis:
		s, err := redisstore.Open(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		return &Membership{Admin: s, ping: s.Ping, close: s.Close}, nil

	case config.BackendMemory, "":
		s := inmem.NewMembershipStore(time.Now)
		seed, err := inmem.ParseSeed(cfg.Seed)
		if err != nil {
			return nil, fmt.Errorf("membership seed: %w", err)
		}
		for _, m := range seed {
			if err := s.Grant(ctx, m); err != nil {
				return nil, fmt.Errorf("membership seed: %w", err)
			}
		}
		if len(seed) > 0 {
			slog.Info("seeded in-memory memberships", "count", len(seed))
		}
		return &Membership{Admin: s}, nil

	default:
		return nil, fmt.Errorf("%w: unknown membership backend %q", config.ErrInvalidConfig, cfg.Backend)
	}
}
