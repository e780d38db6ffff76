// Package postgres stores tenant memberships and the security audit trail in PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"marketgate/internal/domain"
)

// querier is the subset of *pgxpool.Pool the store uses.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements gateway.MembershipAdmin and gateway.AuditSink.
type Store struct {
	db   querier
	pool *pgxpool.Pool
}

// Open connects to dsn, verifies connectivity and ensures the schema exists.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &Store{db: pool, pool: pool}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing querier. The caller owns its lifecycle.
func New(db querier) *Store {
	return &Store{db: db}
}

// Close releases the pool when the store owns one.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping checks the database is reachable, for readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, "SELECT 1"); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// EnsureSchema creates the membership and audit tables.
func (s *Store) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tenant_memberships (
			principal_id TEXT NOT NULL,
			tenant_id BIGINT NOT NULL CHECK (tenant_id > 0),
			role TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (principal_id, tenant_id)
		)`,
		`CREATE TABLE IF NOT EXISTS security_events (
			id UUID PRIMARY KEY,
			kind TEXT NOT NULL,
			principal_id TEXT NOT NULL,
			principal_label TEXT NOT NULL,
			attempted_tenant_id BIGINT,
			raw_claim TEXT NOT NULL,
			path TEXT NOT NULL,
			method TEXT NOT NULL,
			request_id TEXT NOT NULL,
			reason TEXT NOT NULL,
			occurred_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_security_events_occurred_at ON security_events (occurred_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// FindMembership implements gateway.MembershipStore. Only the membership
// table is consulted, so a tenant that does not exist looks like no membership.
func (s *Store) FindMembership(ctx context.Context, principalID string, tenantID domain.TenantID) (*domain.Membership, error) {
	var (
		m   domain.Membership
		tid int64
	)
	err := s.db.QueryRow(ctx, `
		SELECT principal_id, tenant_id, role, created_at
		FROM tenant_memberships
		WHERE principal_id = $1 AND tenant_id = $2
	`, principalID, int64(tenantID)).Scan(&m.PrincipalID, &tid, &m.Role, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find membership: %w", err)
	}
	m.TenantID = domain.TenantID(tid)
	return &m, nil
}

// Grant inserts a membership or updates the role of an existing one.
func (s *Store) Grant(ctx context.Context, m domain.Membership) error {
	if !m.TenantID.Valid() || m.PrincipalID == "" {
		return domain.ErrInvalidMembership
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	if _, err := s.db.Exec(ctx, `
		INSERT INTO tenant_memberships (principal_id, tenant_id, role, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (principal_id, tenant_id) DO UPDATE SET role = EXCLUDED.role
	`, m.PrincipalID, int64(m.TenantID), m.Role, m.CreatedAt); err != nil {
		return fmt.Errorf("grant membership: %w", err)
	}
	return nil
}

// Revoke deletes a membership; ErrNotFound when none existed.
func (s *Store) Revoke(ctx context.Context, principalID string, tenantID domain.TenantID) error {
	tag, err := s.db.Exec(ctx, `
		DELETE FROM tenant_memberships WHERE principal_id = $1 AND tenant_id = $2
	`, principalID, int64(tenantID))
	if err != nil {
		return fmt.Errorf("revoke membership: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListForPrincipal returns a principal's memberships ordered by tenant id.
func (s *Store) ListForPrincipal(ctx context.Context, principalID string) ([]domain.Membership, error) {
	rows, err := s.db.Query(ctx, `
		SELECT principal_id, tenant_id, role, created_at
		FROM tenant_memberships
		WHERE principal_id = $1
		ORDER BY tenant_id
	`, principalID)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	defer rows.Close()

	var out []domain.Membership
	for rows.Next() {
		var (
			m   domain.Membership
			tid int64
		)
		if err := rows.Scan(&m.PrincipalID, &tid, &m.Role, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		m.TenantID = domain.TenantID(tid)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list memberships rows: %w", err)
	}
	return out, nil
}

// Record implements gateway.AuditSink by appending to security_events.
func (s *Store) Record(ctx context.Context, ev domain.SecurityEvent) error {
	var attempted *int64
	if ev.AttemptedTenantID.Valid() {
		v := int64(ev.AttemptedTenantID)
		attempted = &v
	}
	if _, err := s.db.Exec(ctx, `
		INSERT INTO security_events (
			id, kind, principal_id, principal_label, attempted_tenant_id,
			raw_claim, path, method, request_id, reason, occurred_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, ev.ID, string(ev.Kind), ev.PrincipalID, ev.PrincipalLabel, attempted,
		ev.RawClaim, ev.Path, ev.Method, ev.RequestID, ev.Reason, ev.OccurredAt); err != nil {
		return fmt.Errorf("record security event: %w", err)
	}
	return nil
}
