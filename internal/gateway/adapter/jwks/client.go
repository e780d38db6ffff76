// Package jwks verifies gateway tokens against the identity provider's
// published signing keys.
package jwks

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"marketgate/internal/platform/telemetry"
)

// maxDocumentBytes caps the key set document read from the provider.
const maxDocumentBytes = 1 << 20

// ErrUnknownKey is returned when a token names a kid the provider does not
// publish, even after a refresh.
var ErrUnknownKey = errors.New("signing key not published")

// snapshot is an immutable view of the provider's keys.
type snapshot struct {
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

// Client resolves token kids to public keys. Lookups read an atomically
// swapped snapshot; an unknown kid triggers at most one refresh per
// minRefresh interval, which is how rotated keys are picked up. A failed
// refresh keeps the previous snapshot.
type Client struct {
	endpoint   string
	minRefresh time.Duration
	httpClient *http.Client
	metrics    *telemetry.GatewayMetrics
	now        func() time.Time

	current atomic.Pointer[snapshot]
	fetchMu sync.Mutex
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithMetrics records every refresh attempt.
func WithMetrics(m *telemetry.GatewayMetrics) ClientOption {
	return func(c *Client) { c.metrics = m }
}

// WithHTTPClient replaces the default 10s-timeout client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithClock overrides time.Now for the refresh interval.
func WithClock(now func() time.Time) ClientOption {
	return func(c *Client) { c.now = now }
}

// NewClient creates a client for the key set at endpoint.
func NewClient(endpoint string, minRefresh time.Duration, opts ...ClientOption) *Client {
	c := &Client{
		endpoint:   endpoint,
		minRefresh: minRefresh,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		now:        time.Now,
	}
	c.current.Store(&snapshot{})
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Warm fetches the key set unconditionally. The gateway calls it at
// startup and from its readiness check.
func (c *Client) Warm(ctx context.Context) error {
	c.fetchMu.Lock()
	defer c.fetchMu.Unlock()
	return c.refreshLocked(ctx)
}

// KeyCount returns the number of cached signing keys.
func (c *Client) KeyCount() int {
	return len(c.current.Load().keys)
}

// GetKey implements gateway.JWKSProvider.
func (c *Client) GetKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if key, ok := c.current.Load().keys[kid]; ok {
		return key, nil
	}

	c.fetchMu.Lock()
	defer c.fetchMu.Unlock()

	// A concurrent caller may have fetched while this one waited.
	snap := c.current.Load()
	if key, ok := snap.keys[kid]; ok {
		return key, nil
	}
	if snap.fetchedAt.IsZero() || c.now().Sub(snap.fetchedAt) >= c.minRefresh {
		if err := c.refreshLocked(ctx); err != nil {
			return nil, fmt.Errorf("resolving kid %q: %w", kid, err)
		}
		if key, ok := c.current.Load().keys[kid]; ok {
			return key, nil
		}
	}
	return nil, fmt.Errorf("%w: kid %q", ErrUnknownKey, kid)
}

func (c *Client) refreshLocked(ctx context.Context) error {
	keys, err := c.fetch(ctx)
	if err != nil {
		c.metrics.RecordJWKSRefresh(ctx, "failure")
		return err
	}
	c.metrics.RecordJWKSRefresh(ctx, "success")
	c.current.Store(&snapshot{keys: keys, fetchedAt: c.now()})
	return nil
}

func (c *Client) fetch(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating JWKS request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching JWKS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("JWKS endpoint returned %d", resp.StatusCode)
	}

	var set KeySet
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxDocumentBytes)).Decode(&set); err != nil {
		return nil, fmt.Errorf("decoding JWKS: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, k := range set.Keys {
		pub, err := k.PublicKey()
		if errors.Is(err, errUnsupportedKey) {
			slog.DebugContext(ctx, "skipping JWKS key", "kid", k.Kid, "error", err)
			continue
		}
		if err != nil {
			slog.WarnContext(ctx, "failed to parse JWKS key", "kid", k.Kid, "error", err)
			continue
		}
		keys[k.Kid] = pub
	}
	if len(keys) == 0 {
		return nil, errors.New("JWKS document has no usable RS256 keys")
	}
	return keys, nil
}
