// Package redisstore keeps tenant memberships in Redis.
//
// Each membership is a hash at marketgate:membership:{principal}:{tenant};
// a per-principal set indexes the tenant ids for listing.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"marketgate/internal/domain"
)

const keyPrefix = "marketgate:"

// Store implements gateway.MembershipAdmin on Redis.
type Store struct {
	client *redis.Client
	now    func() time.Time
}

// Open parses a redis:// URL and verifies connectivity.
func Open(ctx context.Context, url string) (*Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return New(client), nil
}

// New wraps an existing client.
func New(client *redis.Client) *Store {
	return &Store{client: client, now: time.Now}
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

// Ping checks the server is reachable, for readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func membershipKey(principalID string, tenantID domain.TenantID) string {
	return keyPrefix + "membership:" + principalID + ":" + tenantID.String()
}

func principalKey(principalID string) string {
	return keyPrefix + "principal:" + principalID + ":tenants"
}

// FindMembership implements gateway.MembershipStore.
func (s *Store) FindMembership(ctx context.Context, principalID string, tenantID domain.TenantID) (*domain.Membership, error) {
	fields, err := s.client.HGetAll(ctx, membershipKey(principalID, tenantID)).Result()
	if err != nil {
		return nil, fmt.Errorf("find membership: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	m := decode(principalID, tenantID, fields)
	return &m, nil
}

// Grant stores a membership, replacing the role of an existing one.
func (s *Store) Grant(ctx context.Context, m domain.Membership) error {
	if !m.TenantID.Valid() || m.PrincipalID == "" {
		return domain.ErrInvalidMembership
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now().UTC()
	}
	key := membershipKey(m.PrincipalID, m.TenantID)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSetNX(ctx, key, "created_at", m.CreatedAt.Format(time.RFC3339Nano))
		pipe.HSet(ctx, key, "role", m.Role)
		pipe.SAdd(ctx, principalKey(m.PrincipalID), m.TenantID.String())
		return nil
	})
	if err != nil {
		return fmt.Errorf("grant membership: %w", err)
	}
	return nil
}

// Revoke deletes a membership; ErrNotFound when none existed.
func (s *Store) Revoke(ctx context.Context, principalID string, tenantID domain.TenantID) error {
	var del *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, membershipKey(principalID, tenantID))
		pipe.SRem(ctx, principalKey(principalID), tenantID.String())
		return nil
	})
	if err != nil {
		return fmt.Errorf("revoke membership: %w", err)
	}
	if del.Val() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListForPrincipal returns the principal's memberships ordered by tenant id.
func (s *Store) ListForPrincipal(ctx context.Context, principalID string) ([]domain.Membership, error) {
	members, err := s.client.SMembers(ctx, principalKey(principalID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}

	ids := make([]domain.TenantID, 0, len(members))
	for _, raw := range members {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, domain.TenantID(n))
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, membershipKey(principalID, id))
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("load memberships: %w", err)
	}

	out := make([]domain.Membership, 0, len(ids))
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		out = append(out, decode(principalID, ids[i], fields))
	}
	return out, nil
}

func decode(principalID string, tenantID domain.TenantID, fields map[string]string) domain.Membership {
	m := domain.Membership{
		PrincipalID: principalID,
		TenantID:    tenantID,
		Role:        fields["role"],
	}
	if ts, err := time.Parse(time.RFC3339Nano, fields["created_at"]); err == nil {
		m.CreatedAt = ts
	}
	return m
}
