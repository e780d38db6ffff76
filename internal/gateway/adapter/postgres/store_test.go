package postgres_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"marketgate/internal/domain"
	"marketgate/internal/gateway/adapter/postgres"
)

// fakeDB records statements and replays canned results.
type fakeDB struct {
	row      fakeRow
	rows     [][]any
	queryErr error
	execTag  pgconn.CommandTag
	execErr  error

	execSQL  []string
	execArgs [][]any
	rowArgs  []any
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execSQL = append(f.execSQL, sql)
	f.execArgs = append(f.execArgs, args)
	return f.execTag, f.execErr
}

func (f *fakeDB) Query(_ context.Context, _ string, _ ...any) (pgx.Rows, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return &fakeRows{data: f.rows, idx: -1}, nil
}

func (f *fakeDB) QueryRow(_ context.Context, _ string, args ...any) pgx.Row {
	f.rowArgs = args
	return f.row
}

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return assign(dest, r.values)
}

type fakeRows struct {
	data [][]any
	idx  int
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag("SELECT") }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Next() bool                                   { r.idx++; return r.idx < len(r.data) }
func (r *fakeRows) Scan(dest ...any) error                       { return assign(dest, r.data[r.idx]) }
func (r *fakeRows) Values() ([]any, error)                       { return r.data[r.idx], nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func assign(dest, values []any) error {
	if len(dest) != len(values) {
		return fmt.Errorf("scan: %d destinations for %d values", len(dest), len(values))
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = values[i].(string)
		case *int64:
			*p = values[i].(int64)
		case *time.Time:
			*p = values[i].(time.Time)
		default:
			return fmt.Errorf("scan: unsupported destination %T", d)
		}
	}
	return nil
}

func TestFindMembershipFound(t *testing.T) {
	created := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	db := &fakeDB{row: fakeRow{values: []any{"1", int64(42), "owner", created}}}
	store := postgres.New(db)

	m, err := store.FindMembership(context.Background(), "1", 42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m == nil {
		t.Fatal("expected membership")
	}
	if m.TenantID != 42 || m.Role != "owner" || !m.CreatedAt.Equal(created) {
		t.Errorf("unexpected membership: %+v", m)
	}
	if len(db.rowArgs) != 2 || db.rowArgs[0] != "1" || db.rowArgs[1] != int64(42) {
		t.Errorf("expected bound args [1 42], got %v", db.rowArgs)
	}
}

func TestFindMembershipNoRowsIsNilNil(t *testing.T) {
	db := &fakeDB{row: fakeRow{err: pgx.ErrNoRows}}
	store := postgres.New(db)

	m, err := store.FindMembership(context.Background(), "1", 999)
	if err != nil {
		t.Fatalf("expected nil error for missing row, got %v", err)
	}
	if m != nil {
		t.Errorf("expected nil membership, got %+v", m)
	}
}

func TestFindMembershipPropagatesErrors(t *testing.T) {
	boom := errors.New("connection reset")
	store := postgres.New(&fakeDB{row: fakeRow{err: boom}})

	_, err := store.FindMembership(context.Background(), "1", 42)
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped driver error, got %v", err)
	}
}

func TestFindMembershipClaimIsBoundNotInterpolated(t *testing.T) {
	db := &fakeDB{row: fakeRow{err: pgx.ErrNoRows}}
	store := postgres.New(db)

	store.FindMembership(context.Background(), "1' OR '1'='1", 7)
	if db.rowArgs[0] != "1' OR '1'='1" {
		t.Errorf("principal id should be passed as a bind argument, got %v", db.rowArgs)
	}
}

func TestGrantUpserts(t *testing.T) {
	db := &fakeDB{execTag: pgconn.NewCommandTag("INSERT 0 1")}
	store := postgres.New(db)

	err := store.Grant(context.Background(), domain.Membership{PrincipalID: "5", TenantID: 9, Role: "member"})
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	if len(db.execSQL) != 1 || !strings.Contains(db.execSQL[0], "ON CONFLICT") {
		t.Errorf("expected upsert statement, got %v", db.execSQL)
	}
	if db.execArgs[0][1] != int64(9) {
		t.Errorf("expected tenant arg 9, got %v", db.execArgs[0][1])
	}
}

func TestGrantRejectsInvalidMembership(t *testing.T) {
	db := &fakeDB{}
	store := postgres.New(db)

	err := store.Grant(context.Background(), domain.Membership{PrincipalID: "5", TenantID: 0})
	if !errors.Is(err, domain.ErrInvalidMembership) {
		t.Fatalf("expected ErrInvalidMembership, got %v", err)
	}
	if len(db.execSQL) != 0 {
		t.Error("invalid membership should not reach the database")
	}
}

func TestRevokeMissingReturnsNotFound(t *testing.T) {
	store := postgres.New(&fakeDB{execTag: pgconn.NewCommandTag("DELETE 0")})

	if err := store.Revoke(context.Background(), "1", 2); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRevokeExisting(t *testing.T) {
	store := postgres.New(&fakeDB{execTag: pgconn.NewCommandTag("DELETE 1")})

	if err := store.Revoke(context.Background(), "1", 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestListForPrincipal(t *testing.T) {
	now := time.Now().UTC()
	db := &fakeDB{rows: [][]any{
		{"1", int64(3), "member", now},
		{"1", int64(8), "owner", now},
	}}
	store := postgres.New(db)

	list, err := store.ListForPrincipal(context.Background(), "1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 memberships, got %d", len(list))
	}
	if list[0].TenantID != 3 || list[1].TenantID != 8 {
		t.Errorf("unexpected tenants: %+v", list)
	}
}

func TestRecordSecurityEvent(t *testing.T) {
	db := &fakeDB{execTag: pgconn.NewCommandTag("INSERT 0 1")}
	store := postgres.New(db)

	ev := domain.SecurityEvent{
		ID:                "6f1c1d0e-8f7e-4f7c-9d1c-1f2e3d4c5b6a",
		Kind:              domain.EventTenantSpoofing,
		PrincipalID:       "1",
		AttemptedTenantID: 999,
		Path:              "/api/marketplace/engagements",
		Method:            "GET",
		Reason:            "no_membership",
		OccurredAt:        time.Now().UTC(),
	}
	if err := store.Record(context.Background(), ev); err != nil {
		t.Fatalf("record: %v", err)
	}
	args := db.execArgs[0]
	if args[1] != "TENANT_SPOOFING_ATTEMPT" {
		t.Errorf("expected kind arg, got %v", args[1])
	}
	attempted, ok := args[4].(*int64)
	if !ok || attempted == nil || *attempted != 999 {
		t.Errorf("expected attempted tenant 999, got %v", args[4])
	}
}

func TestRecordInvalidClaimStoresNullTenant(t *testing.T) {
	db := &fakeDB{execTag: pgconn.NewCommandTag("INSERT 0 1")}
	store := postgres.New(db)

	store.Record(context.Background(), domain.SecurityEvent{
		ID:       "00000000-0000-0000-0000-000000000001",
		Kind:     domain.EventTenantSpoofing,
		RawClaim: "1 OR 1=1",
		Reason:   "invalid_claim",
	})
	if attempted, _ := db.execArgs[0][4].(*int64); attempted != nil {
		t.Errorf("expected NULL attempted tenant, got %d", *attempted)
	}
}

func TestEnsureSchema(t *testing.T) {
	db := &fakeDB{}
	store := postgres.New(db)

	if err := store.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	joined := strings.Join(db.execSQL, "\n")
	for _, table := range []string{"tenant_memberships", "security_events"} {
		if !strings.Contains(joined, table) {
			t.Errorf("schema should create %s", table)
		}
	}
}

func TestPing(t *testing.T) {
	boom := errors.New("no route to host")
	if err := postgres.New(&fakeDB{}).Ping(context.Background()); err != nil {
		t.Errorf("expected healthy ping, got %v", err)
	}
	if err := postgres.New(&fakeDB{execErr: boom}).Ping(context.Background()); !errors.Is(err, boom) {
		t.Errorf("expected wrapped ping error, got %v", err)
	}
}
