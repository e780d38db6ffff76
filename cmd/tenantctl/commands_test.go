package main

import (
	"bytes"
	"strings"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCheckAgainstSeededMemory(t *testing.T) {
	mem := []string{"--backend", "memory", "--seed", "1:42"}

	out, err := run(t, append([]string{"check", "1", "42"}, mem...)...)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !strings.Contains(out, "access=true") {
		t.Errorf("expected access=true, got %q", out)
	}

	out, err = run(t, append([]string{"check", "1", "999"}, mem...)...)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !strings.Contains(out, "access=false") {
		t.Errorf("expected access=false, got %q", out)
	}

	out, _ = run(t, append([]string{"check", "1", "999", "--super-admin"}, mem...)...)
	if !strings.Contains(out, "access=true") {
		t.Errorf("expected super-admin access=true, got %q", out)
	}
}

func TestRejectsMalformedTenant(t *testing.T) {
	for _, raw := range []string{"abc", "0", "-1", "1 OR 1=1"} {
		_, err := run(t, "check", "--backend", "memory", "--", "1", raw)
		if err == nil || !strings.Contains(err.Error(), "invalid tenant id") {
			t.Errorf("%q: expected invalid tenant id error, got %v", raw, err)
		}
	}
}

func TestGrantListRevokeOnRedis(t *testing.T) {
	srv, err := miniredis.Run()
	if err != nil {
		t.Skipf("miniredis unavailable: %v", err)
	}
	defer srv.Close()
	backend := []string{"--backend", "redis", "--redis-url", "redis://" + srv.Addr()}

	if _, err := run(t, append([]string{"grant", "7", "12", "--role", "owner"}, backend...)...); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if _, err := run(t, append([]string{"grant", "7", "3"}, backend...)...); err != nil {
		t.Fatalf("grant: %v", err)
	}

	out, err := run(t, append([]string{"list", "7"}, backend...)...)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header and 2 rows, got %q", out)
	}
	if !strings.HasPrefix(lines[1], "3 ") || !strings.Contains(lines[2], "owner") {
		t.Errorf("expected rows ordered by tenant, got %q", out)
	}

	if _, err := run(t, append([]string{"revoke", "7", "12"}, backend...)...); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := run(t, append([]string{"revoke", "7", "12"}, backend...)...); err == nil {
		t.Error("expected revoking a missing membership to fail")
	}

	out, _ = run(t, append([]string{"check", "7", "12"}, backend...)...)
	if !strings.Contains(out, "access=false") {
		t.Errorf("expected access=false after revoke, got %q", out)
	}
}

func TestListEmpty(t *testing.T) {
	out, err := run(t, "list", "nobody", "--backend", "memory")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if strings.TrimSpace(out) != "no memberships" {
		t.Errorf("expected 'no memberships', got %q", out)
	}
}
