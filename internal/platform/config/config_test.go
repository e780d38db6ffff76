package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"marketgate/internal/platform/config"
)

func mustLoad(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return cfg
}

func TestLoadDefaults(t *testing.T) {
	cfg := mustLoad(t)

	if cfg.GatewayAddr != ":8080" {
		t.Errorf("expected default gateway addr :8080, got %q", cfg.GatewayAddr)
	}
	if cfg.MarketplaceURL != "http://localhost:8082" {
		t.Errorf("expected default marketplace URL, got %q", cfg.MarketplaceURL)
	}
	if cfg.JWKSEndpoint != "http://localhost:8081/.well-known/jwks.json" {
		t.Errorf("expected default JWKS endpoint, got %q", cfg.JWKSEndpoint)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected default log level 'info', got %q", cfg.LogLevel)
	}
	if cfg.Tenancy.ClaimHeader != "X-Tenant-ID" {
		t.Errorf("expected default claim header X-Tenant-ID, got %q", cfg.Tenancy.ClaimHeader)
	}
	if !slices.Contains(cfg.Tenancy.PublicPrefixes, "/api/marketplace/catalog") {
		t.Errorf("expected catalog to be public by default, got %v", cfg.Tenancy.PublicPrefixes)
	}
	if !slices.Contains(cfg.Tenancy.DiagnosticPrefixes, "/healthz") {
		t.Errorf("expected /healthz to be diagnostic by default, got %v", cfg.Tenancy.DiagnosticPrefixes)
	}
	if cfg.Membership.Backend != config.BackendMemory {
		t.Errorf("expected memory backend by default, got %q", cfg.Membership.Backend)
	}
	if cfg.RateLimit.DenialCost != 5 {
		t.Errorf("expected default denial cost 5, got %v", cfg.RateLimit.DenialCost)
	}
}

func TestLoadSeedAndDenialCostFromEnv(t *testing.T) {
	t.Setenv("MEMBERSHIP_SEED", "1:42,2:99:owner")
	t.Setenv("TENANT_DENIAL_COST", "0")

	cfg := mustLoad(t)

	if cfg.Membership.Seed != "1:42,2:99:owner" {
		t.Errorf("expected seed from env, got %q", cfg.Membership.Seed)
	}
	if cfg.RateLimit.DenialCost != 0 {
		t.Errorf("expected denial cost 0, got %v", cfg.RateLimit.DenialCost)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("GATEWAY_ADDR", ":9090")
	t.Setenv("MARKETPLACE_URL", "http://marketplace:9092")
	t.Setenv("JWKS_ENDPOINT", "http://custom:9091/.well-known/jwks.json")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("TENANT_HEADER", "X-Org-ID")
	t.Setenv("TENANT_PUBLIC_PREFIXES", " /api/marketplace/catalog , ,/docs")
	t.Setenv("MEMBERSHIP_BACKEND", "Redis")
	t.Setenv("REDIS_URL", "redis://cache:6379/0")
	t.Setenv("NATS_URL", "nats://bus:4222")

	cfg := mustLoad(t)

	if cfg.GatewayAddr != ":9090" {
		t.Errorf("expected :9090, got %q", cfg.GatewayAddr)
	}
	if cfg.MarketplaceURL != "http://marketplace:9092" {
		t.Errorf("expected marketplace URL, got %q", cfg.MarketplaceURL)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("expected 'debug', got %q", cfg.LogLevel)
	}
	if cfg.Tenancy.ClaimHeader != "X-Org-ID" {
		t.Errorf("expected X-Org-ID, got %q", cfg.Tenancy.ClaimHeader)
	}
	want := []string{"/api/marketplace/catalog", "/docs"}
	if !slices.Equal(cfg.Tenancy.PublicPrefixes, want) {
		t.Errorf("expected %v, got %v", want, cfg.Tenancy.PublicPrefixes)
	}
	if cfg.Membership.Backend != config.BackendRedis {
		t.Errorf("expected redis backend, got %q", cfg.Membership.Backend)
	}
	if cfg.Audit.NATSURL != "nats://bus:4222" {
		t.Errorf("expected NATS URL, got %q", cfg.Audit.NATSURL)
	}
}

func TestEmptyPrefixListDisablesExemptions(t *testing.T) {
	t.Setenv("TENANT_DIAGNOSTIC_PREFIXES", "")

	cfg := mustLoad(t)
	if len(cfg.Tenancy.DiagnosticPrefixes) != 0 {
		t.Errorf("expected no diagnostic prefixes, got %v", cfg.Tenancy.DiagnosticPrefixes)
	}
}

func TestRateLimitDefaults(t *testing.T) {
	cfg := mustLoad(t)

	if cfg.RateLimit.Rate != 100 {
		t.Errorf("expected rate 100, got %f", cfg.RateLimit.Rate)
	}
	if cfg.RateLimit.Burst != 20 {
		t.Errorf("expected burst 20, got %d", cfg.RateLimit.Burst)
	}
}

func TestInvalidNumbersFallBack(t *testing.T) {
	t.Setenv("RATE_LIMIT_BURST", "lots")
	t.Setenv("AUDIT_POSTGRES", "maybe")

	cfg := mustLoad(t)
	if cfg.RateLimit.Burst != 20 {
		t.Errorf("expected fallback burst 20, got %d", cfg.RateLimit.Burst)
	}
	if cfg.Audit.Postgres {
		t.Error("expected invalid bool to fall back to false")
	}
}

func TestYAMLOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gateway.yaml")
	err := os.WriteFile(path, []byte(`
tenancy:
  claim_header: X-Workspace-ID
  public_prefixes:
    - /api/marketplace/catalog
  diagnostic_prefixes:
    - /healthz
membership:
  backend: postgres
  postgres_dsn: postgres://gw@db/marketplace
audit:
  postgres: true
`), 0o600)
	if err != nil {
		t.Fatalf("writing config: %v", err)
	}
	t.Setenv("GATEWAY_CONFIG_FILE", path)
	t.Setenv("TENANT_HEADER", "X-Tenant-ID")

	cfg := mustLoad(t)

	if cfg.Tenancy.ClaimHeader != "X-Tenant-ID" {
		t.Errorf("environment should win over the file, got %q", cfg.Tenancy.ClaimHeader)
	}
	if !slices.Equal(cfg.Tenancy.PublicPrefixes, []string{"/api/marketplace/catalog"}) {
		t.Errorf("expected prefixes from file, got %v", cfg.Tenancy.PublicPrefixes)
	}
	if cfg.Membership.Backend != config.BackendPostgres || cfg.Membership.PostgresDSN == "" {
		t.Errorf("expected postgres backend from file, got %+v", cfg.Membership)
	}
	if !cfg.Audit.Postgres {
		t.Error("expected postgres audit from file")
	}
}

func TestYAMLOverlayErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		t.Setenv("GATEWAY_CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))
		if _, err := config.Load(); err == nil {
			t.Error("expected error for missing config file")
		}
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		os.WriteFile(path, []byte("tenancy: [unclosed"), 0o600)
		t.Setenv("GATEWAY_CONFIG_FILE", path)
		if _, err := config.Load(); err == nil {
			t.Error("expected error for malformed config file")
		}
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown backend", map[string]string{"MEMBERSHIP_BACKEND": "etcd"}},
		{"postgres without dsn", map[string]string{"MEMBERSHIP_BACKEND": "postgres"}},
		{"redis without url", map[string]string{"MEMBERSHIP_BACKEND": "redis"}},
		{"postgres audit without dsn", map[string]string{"AUDIT_POSTGRES": "true"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := config.Load()
			if !errors.Is(err, config.ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}
