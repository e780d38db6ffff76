// Command mockbackend stands in for the marketplace service behind the
// gateway. It trusts the principal and tenant headers the gateway forwards.
package main

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"marketgate/internal/platform/config"
	"marketgate/internal/platform/server"
)

// latency is the simulated processing time of each request.
type latency struct {
	base, jitter time.Duration
}

func (l latency) wait() {
	if l.base == 0 && l.jitter == 0 {
		return
	}
	delay := l.base
	if l.jitter > 0 {
		delay += time.Duration(rand.Int64N(int64(l.jitter)))
	}
	time.Sleep(delay)
}

func main() {
	addr := config.EnvOr("ADDR", ":8082")
	name := config.EnvOr("BACKEND_NAME", "mock-marketplace")
	lat := latency{base: envMillis("LATENCY_BASE"), jitter: envMillis("LATENCY_JITTER")}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	slog.Info("mock marketplace starting", "addr", addr, "name", name,
		"latency_base", lat.base, "latency_jitter", lat.jitter)

	srv := server.New(addr, routes(name, lat))
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		slog.Error("server error", "error", err)
	}
}

func routes(name string, lat latency) http.Handler {
	mux := http.NewServeMux()
	newMarketplace().register(mux)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": name})
	})

	// Public catalog: no tenant, no principal required.
	mux.HandleFunc("GET /api/marketplace/catalog", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"items": []map[string]string{
				{"id": "svc-1", "title": "Website audit"},
				{"id": "svc-2", "title": "Logo design"},
			},
		})
	})

	// Everything else echoes what the gateway forwarded.
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		lat.wait()
		writeJSON(w, http.StatusOK, map[string]any{
			"backend":          name,
			"method":           r.Method,
			"path":             r.URL.Path,
			"principal_id":     r.Header.Get("X-Principal-ID"),
			"principal_email":  r.Header.Get("X-Principal-Email"),
			"principal_scopes": r.Header.Get("X-Principal-Scopes"),
			"super_admin":      r.Header.Get("X-Principal-Super-Admin") == "true",
			"tenant_id":        r.Header.Get("X-Tenant-ID"),
			"request_id":       r.Header.Get("X-Request-ID"),
		})
	})
	return mux
}

// envMillis reads a duration in milliseconds (e.g. "50" -> 50ms); unset or
// malformed values mean zero.
func envMillis(key string) time.Duration {
	ms, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}
