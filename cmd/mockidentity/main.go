// Command mockidentity is a development identity provider for the gateway.
// It issues RS256 access tokens for a small set of marketplace personas and
// publishes its signing keys as a JWKS document.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marketgate/internal/platform/config"
	"marketgate/internal/platform/server"
)

func main() {
	addr := config.EnvOr("IDENTITY_ADDR", ":8081")
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	personas, err := loadPersonas(os.Getenv("IDENTITY_ACCOUNTS_FILE"))
	if err != nil {
		slog.Error("loading accounts", "error", err)
		os.Exit(1)
	}
	dir, err := newDirectory(personas)
	if err != nil {
		slog.Error("loading accounts", "error", err)
		os.Exit(1)
	}
	keys, err := newKeyring(2048)
	if err != nil {
		slog.Error("creating keyring", "error", err)
		os.Exit(1)
	}

	ip := &identityProvider{
		dir:   dir,
		keys:  keys,
		now:   time.Now,
		admin: os.Getenv("IDENTITY_ADMIN_TOKEN"),
	}
	for _, p := range personas {
		slog.Info("account", "id", p.ID, "email", p.Email, "role", p.Role, "super_admin", p.SuperAdmin, "tenants", p.Tenants)
	}
	slog.Info("mock identity service starting", "addr", addr, "kid", keys.signer().kid, "rotation_enabled", ip.admin != "")

	srv := server.New(addr, ip.routes())
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		slog.Error("server error", "error", err)
	}
}
