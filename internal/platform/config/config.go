// Package config loads gateway settings from the environment, optionally
// layered over a YAML file named by GATEWAY_CONFIG_FILE. Environment
// variables win over the file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Membership backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// ErrInvalidConfig is returned by Load when settings are inconsistent.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds all configuration for the gateway system.
type Config struct {
	GatewayAddr    string
	MarketplaceURL string // Full URL for proxy target (e.g. http://marketplace:8082)
	IdentityURL    string // Full URL for identity service proxy target (e.g. http://identity:8081)
	JWKSEndpoint   string
	LogLevel       string
	RateLimit      RateLimitConfig
	Tenancy        TenancyConfig
	Membership     MembershipConfig
	Audit          AuditConfig
}

// RateLimitConfig holds token bucket parameters. Rate and Burst apply per
// client IP; the Principal pair applies per authenticated principal.
// DenialCost is the extra charge to a principal's bucket per tenant denial.
type RateLimitConfig struct {
	Rate           float64
	Burst          int
	PrincipalRate  float64
	PrincipalBurst int
	DenialCost     float64
}

// TenancyConfig configures the tenant guard.
type TenancyConfig struct {
	ClaimHeader        string   `yaml:"claim_header"`
	PublicPrefixes     []string `yaml:"public_prefixes"`
	DiagnosticPrefixes []string `yaml:"diagnostic_prefixes"`
}

// MembershipConfig selects where membership facts live.
type MembershipConfig struct {
	Backend     string `yaml:"backend"`
	PostgresDSN string `yaml:"postgres_dsn"`
	RedisURL    string `yaml:"redis_url"`
	// Seed lists memberships loaded into the memory backend at startup,
	// as "principal:tenant[:role]" entries separated by commas.
	Seed string `yaml:"seed"`
}

// AuditConfig selects the security event sinks. The log sink is always on.
type AuditConfig struct {
	NATSURL  string `yaml:"nats_url"`
	Subject  string `yaml:"subject"`
	Postgres bool   `yaml:"postgres"`
}

// DefaultPublicPrefixes are exempt from tenant checks as public business data.
var DefaultPublicPrefixes = []string{
	"/api/marketplace/catalog",
	"/api/marketplace/reviews/provider",
	"/auth/token",
	"/.well-known/jwks.json",
}

// DefaultDiagnosticPrefixes are exempt from tenant checks as operational endpoints.
var DefaultDiagnosticPrefixes = []string{"/healthz", "/readyz", "/metrics"}

// Load reads configuration: defaults, then the optional YAML file, then
// environment variables.
func Load() (Config, error) {
	cfg := Config{
		GatewayAddr:    ":8080",
		MarketplaceURL: "http://localhost:8082",
		IdentityURL:    "http://localhost:8081",
		JWKSEndpoint:   "http://localhost:8081/.well-known/jwks.json",
		LogLevel:       "info",
		RateLimit: RateLimitConfig{
			Rate:           100,
			Burst:          20,
			PrincipalRate:  50,
			PrincipalBurst: 50,
			DenialCost:     5,
		},
		Tenancy: TenancyConfig{
			ClaimHeader:        "X-Tenant-ID",
			PublicPrefixes:     DefaultPublicPrefixes,
			DiagnosticPrefixes: DefaultDiagnosticPrefixes,
		},
		Membership: MembershipConfig{Backend: BackendMemory},
		Audit:      AuditConfig{Subject: "marketgate.security.events"},
	}

	if path := os.Getenv("GATEWAY_CONFIG_FILE"); path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return Config{}, err
		}
	}

	cfg.GatewayAddr = EnvOr("GATEWAY_ADDR", cfg.GatewayAddr)
	cfg.MarketplaceURL = EnvOr("MARKETPLACE_URL", cfg.MarketplaceURL)
	cfg.IdentityURL = EnvOr("IDENTITY_URL", cfg.IdentityURL)
	cfg.JWKSEndpoint = EnvOr("JWKS_ENDPOINT", cfg.JWKSEndpoint)
	cfg.LogLevel = EnvOr("LOG_LEVEL", cfg.LogLevel)
	cfg.RateLimit.Rate = envFloat("RATE_LIMIT_RATE", cfg.RateLimit.Rate)
	cfg.RateLimit.Burst = envInt("RATE_LIMIT_BURST", cfg.RateLimit.Burst)
	cfg.RateLimit.PrincipalRate = envFloat("PRINCIPAL_RATE_LIMIT_RATE", cfg.RateLimit.PrincipalRate)
	cfg.RateLimit.PrincipalBurst = envInt("PRINCIPAL_RATE_LIMIT_BURST", cfg.RateLimit.PrincipalBurst)
	cfg.RateLimit.DenialCost = envFloat("TENANT_DENIAL_COST", cfg.RateLimit.DenialCost)
	cfg.Tenancy.ClaimHeader = EnvOr("TENANT_HEADER", cfg.Tenancy.ClaimHeader)
	cfg.Tenancy.PublicPrefixes = envList("TENANT_PUBLIC_PREFIXES", cfg.Tenancy.PublicPrefixes)
	cfg.Tenancy.DiagnosticPrefixes = envList("TENANT_DIAGNOSTIC_PREFIXES", cfg.Tenancy.DiagnosticPrefixes)
	cfg.Membership.Backend = strings.ToLower(EnvOr("MEMBERSHIP_BACKEND", cfg.Membership.Backend))
	cfg.Membership.PostgresDSN = EnvOr("POSTGRES_DSN", cfg.Membership.PostgresDSN)
	cfg.Membership.RedisURL = EnvOr("REDIS_URL", cfg.Membership.RedisURL)
	cfg.Membership.Seed = EnvOr("MEMBERSHIP_SEED", cfg.Membership.Seed)
	cfg.Audit.NATSURL = EnvOr("NATS_URL", cfg.Audit.NATSURL)
	cfg.Audit.Subject = EnvOr("AUDIT_SUBJECT", cfg.Audit.Subject)
	cfg.Audit.Postgres = envBool("AUDIT_POSTGRES", cfg.Audit.Postgres)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// fileConfig is the YAML shape; only the sections worth keeping in a file.
type fileConfig struct {
	Tenancy    *TenancyConfig    `yaml:"tenancy"`
	Membership *MembershipConfig `yaml:"membership"`
	Audit      *AuditConfig      `yaml:"audit"`
}

func (c *Config) overlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if t := fc.Tenancy; t != nil {
		if t.ClaimHeader != "" {
			c.Tenancy.ClaimHeader = t.ClaimHeader
		}
		if t.PublicPrefixes != nil {
			c.Tenancy.PublicPrefixes = t.PublicPrefixes
		}
		if t.DiagnosticPrefixes != nil {
			c.Tenancy.DiagnosticPrefixes = t.DiagnosticPrefixes
		}
	}
	if m := fc.Membership; m != nil {
		if m.Backend != "" {
			c.Membership.Backend = m.Backend
		}
		if m.PostgresDSN != "" {
			c.Membership.PostgresDSN = m.PostgresDSN
		}
		if m.RedisURL != "" {
			c.Membership.RedisURL = m.RedisURL
		}
		if m.Seed != "" {
			c.Membership.Seed = m.Seed
		}
	}
	if a := fc.Audit; a != nil {
		if a.NATSURL != "" {
			c.Audit.NATSURL = a.NATSURL
		}
		if a.Subject != "" {
			c.Audit.Subject = a.Subject
		}
		c.Audit.Postgres = c.Audit.Postgres || a.Postgres
	}
	return nil
}

// Validate reports settings the gateway cannot start with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Tenancy.ClaimHeader) == "" {
		return fmt.Errorf("%w: tenant claim header is empty", ErrInvalidConfig)
	}
	switch c.Membership.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Membership.PostgresDSN == "" {
			return fmt.Errorf("%w: POSTGRES_DSN is required for the postgres backend", ErrInvalidConfig)
		}
	case BackendRedis:
		if c.Membership.RedisURL == "" {
			return fmt.Errorf("%w: REDIS_URL is required for the redis backend", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown membership backend %q", ErrInvalidConfig, c.Membership.Backend)
	}
	if c.Audit.Postgres && c.Membership.PostgresDSN == "" {
		return fmt.Errorf("%w: AUDIT_POSTGRES requires POSTGRES_DSN", ErrInvalidConfig)
	}
	return nil
}

// EnvOr returns the environment variable key, or fallback when it is unset or empty.
func EnvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			slog.Warn("invalid integer env var, using default", "key", key, "value", v, "default", fallback)
			return fallback
		}
		return n
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			slog.Warn("invalid float env var, using default", "key", key, "value", v, "default", fallback)
			return fallback
		}
		return f
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			slog.Warn("invalid boolean env var, using default", "key", key, "value", v, "default", fallback)
			return fallback
		}
		return b
	}
	return fallback
}

// envList splits a comma-separated variable, dropping blank entries.
func envList(key string, fallback []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
