package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marketgate/internal/gateway/adapter/audit"
	"marketgate/internal/gateway/adapter/inmem"
	"marketgate/internal/gateway/adapter/jwks"
	"marketgate/internal/gateway/adapter/postgres"
	"marketgate/internal/gateway/adapter/proxy"
	"marketgate/internal/gateway/middleware"
	"marketgate/internal/gateway/tenancy"
	"marketgate/internal/platform/config"
	"marketgate/internal/platform/server"
	"marketgate/internal/platform/stores"
	"marketgate/internal/platform/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("configuration error", "error", err)
		os.Exit(1)
	}

	// Logging
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Telemetry
	shutdown, err := telemetry.Setup(context.Background(), "marketgate")
	if err != nil {
		slog.Error("telemetry setup failed", "error", err)
		os.Exit(1)
	}

	// Metrics
	metrics, err := telemetry.NewGatewayMetrics()
	if err != nil {
		slog.Error("metrics initialization failed", "error", err)
		os.Exit(1)
	}

	// JWKS client
	jwksClient := jwks.NewClient(cfg.JWKSEndpoint, 5*time.Minute, jwks.WithMetrics(metrics))
	warmCtx, cancelWarm := context.WithTimeout(ctx, 5*time.Second)
	if err := jwksClient.Warm(warmCtx); err != nil {
		slog.Warn("jwks warm-up failed, keys will be fetched on demand", "error", err)
	}
	cancelWarm()

	// Rate limiters
	ipLimiter := inmem.NewRateLimiter(cfg.RateLimit.Rate, cfg.RateLimit.Burst, time.Now)
	principalLimiter := inmem.NewRateLimiter(cfg.RateLimit.PrincipalRate, cfg.RateLimit.PrincipalBurst, time.Now)
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				ipLimiter.Cleanup()
				principalLimiter.Cleanup()
			}
		}
	}()

	mux := http.NewServeMux()
	srv := server.New(cfg.GatewayAddr, mux)

	// Membership facts
	memberships, err := stores.OpenMembership(ctx, cfg.Membership)
	if err != nil {
		slog.Error("membership store initialization failed", "backend", cfg.Membership.Backend, "error", err)
		os.Exit(1)
	}
	srv.OnShutdown("membership store", memberships.Close)

	// Security event sinks
	sinks := []audit.Named{{Name: "log", Sink: audit.NewLogSink(logger)}}
	if cfg.Audit.NATSURL != "" {
		natsSink, err := audit.ConnectNATS(cfg.Audit.NATSURL, cfg.Audit.Subject)
		if err != nil {
			slog.Error("nats audit sink initialization failed", "error", err)
			os.Exit(1)
		}
		srv.OnShutdown("nats audit sink", func(context.Context) error { return natsSink.Close() })
		sinks = append(sinks, audit.Named{Name: "nats", Sink: natsSink})
	}
	if cfg.Audit.Postgres {
		pg := memberships.Postgres
		if pg == nil {
			pg, err = postgres.Open(ctx, cfg.Membership.PostgresDSN)
			if err != nil {
				slog.Error("postgres audit sink initialization failed", "error", err)
				os.Exit(1)
			}
			srv.OnShutdown("postgres audit sink", func(context.Context) error { pg.Close(); return nil })
		}
		sinks = append(sinks, audit.Named{Name: "postgres", Sink: pg})
	}

	// Tenant guard
	guard := tenancy.NewGuard(
		tenancy.NewOracle(memberships.Admin, metrics),
		tenancy.NewExemptionMatcher(cfg.Tenancy.PublicPrefixes, cfg.Tenancy.DiagnosticPrefixes),
		audit.NewMulti(metrics, sinks...),
		tenancy.WithLogger(logger),
		tenancy.WithMetrics(metrics),
	)

	// Router
	router, err := proxy.NewRouter(cfg.MarketplaceURL, cfg.IdentityURL, metrics,
		proxy.ReadinessCheck{Name: "jwks", Check: func(ctx context.Context) error {
			if jwksClient.KeyCount() > 0 {
				return nil
			}
			return jwksClient.Warm(ctx)
		}},
		proxy.ReadinessCheck{Name: "membership store", Check: memberships.Ping},
	)
	if err != nil {
		slog.Error("router initialization failed", "error", err)
		os.Exit(1)
	}

	// Paths that skip authentication. A valid token on them still attaches
	// a principal.
	var publicPaths []string
	publicPaths = append(publicPaths, cfg.Tenancy.PublicPrefixes...)
	publicPaths = append(publicPaths, cfg.Tenancy.DiagnosticPrefixes...)
	publicPaths = append(publicPaths, proxy.IdentityPublicPaths...)
	publicPaths = append(publicPaths, proxy.MarketplacePublicPrefixes...)

	mux.Handle("/metrics", telemetry.MetricsHandler())
	mux.Handle("/", middleware.Pipeline(router, middleware.PipelineConfig{
		Logger:             logger,
		Metrics:            metrics,
		MaxBodyBytes:       middleware.DefaultMaxBodyBytes,
		IPLimiter:          ipLimiter,
		PrincipalLimiter:   principalLimiter,
		DenialCost:         cfg.RateLimit.DenialCost,
		JWKS:               jwksClient,
		AuthPublicPrefixes: publicPaths,
		Guard:              guard,
		TenantHeader:       cfg.Tenancy.ClaimHeader,
	}))

	slog.Info("gateway starting",
		"addr", cfg.GatewayAddr,
		"jwks_endpoint", cfg.JWKSEndpoint,
		"marketplace_url", cfg.MarketplaceURL,
		"identity_url", cfg.IdentityURL,
		"membership_backend", cfg.Membership.Backend,
		"tenant_header", cfg.Tenancy.ClaimHeader,
		"audit_nats", cfg.Audit.NATSURL != "",
		"audit_postgres", cfg.Audit.Postgres,
	)

	if err := srv.Run(ctx); err != nil {
		slog.Error("server error", "error", err)
	}

	if err := shutdown(context.Background()); err != nil {
		slog.Error("telemetry shutdown error", "error", err)
	}
}
