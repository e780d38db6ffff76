package main

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"marketgate/internal/domain"
	"marketgate/internal/gateway/adapter/jwks"
)

const (
	issuer     = "mock-identity"
	defaultTTL = 15 * time.Minute
	minTTL     = time.Minute
	maxTTL     = time.Hour
)

// persona is one marketplace login. Tenants is informational: memberships
// live in the gateway's store, this only documents the intended seed.
type persona struct {
	Email      string   `yaml:"email"`
	Password   string   `yaml:"password"`
	ID         string   `yaml:"id"`
	Role       string   `yaml:"role"`
	ReadOnly   bool     `yaml:"read_only"`
	SuperAdmin bool     `yaml:"super_admin"`
	Tenants    []int64  `yaml:"tenants"`
	APIKey     string   `yaml:"api_key"`
	Service    bool     `yaml:"service"`
	Scopes     []string `yaml:"scopes"`
}

// directory is the set of personas, looked up by email or API key.
type directory struct {
	byEmail  map[string]persona
	byAPIKey map[string]persona
}

// defaultPersonas line up with MEMBERSHIP_SEED="1:42,2:99,3:42" on the gateway.
func defaultPersonas() []persona {
	return []persona{
		{Email: "alice@example.com", Password: "password", ID: "1", Role: "buyer", Tenants: []int64{42}},
		{Email: "bob@example.com", Password: "password", ID: "2", Role: "provider", Tenants: []int64{99}},
		{Email: "carol@example.com", Password: "password", ID: "3", Role: "auditor", ReadOnly: true, Tenants: []int64{42}},
		{Email: "ops@example.com", Password: "admin", ID: "100", Role: "platform", SuperAdmin: true},
		{ID: "svc-catalog-sync", Role: "service", Service: true, APIKey: "test-api-key-1", ReadOnly: true},
	}
}

// loadPersonas reads a YAML list of personas, or the defaults when path is empty.
func loadPersonas(path string) ([]persona, error) {
	if path == "" {
		return defaultPersonas(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading accounts file: %w", err)
	}
	var doc struct {
		Accounts []persona `yaml:"accounts"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing accounts file: %w", err)
	}
	if len(doc.Accounts) == 0 {
		return nil, fmt.Errorf("accounts file %s lists no accounts", path)
	}
	return doc.Accounts, nil
}

func newDirectory(personas []persona) (*directory, error) {
	d := &directory{byEmail: map[string]persona{}, byAPIKey: map[string]persona{}}
	for _, p := range personas {
		if p.ID == "" {
			return nil, fmt.Errorf("account %q has no id", p.Email)
		}
		if p.Email == "" && p.APIKey == "" {
			return nil, fmt.Errorf("account %s needs an email or an api_key", p.ID)
		}
		if p.Email != "" {
			d.byEmail[strings.ToLower(p.Email)] = p
		}
		if p.APIKey != "" {
			d.byAPIKey[p.APIKey] = p
		}
	}
	return d, nil
}

func (d *directory) login(email, password string) (persona, bool) {
	p, ok := d.byEmail[strings.ToLower(email)]
	if !ok || p.Password == "" {
		return persona{}, false
	}
	return p, subtle.ConstantTimeCompare([]byte(p.Password), []byte(password)) == 1
}

func (d *directory) apiKey(key string) (persona, bool) {
	p, ok := d.byAPIKey[key]
	return p, ok
}

func (p persona) principal() domain.Principal {
	scopes := []domain.Scope{"marketplace:read"}
	if !p.ReadOnly {
		scopes = append(scopes, "marketplace:write")
	}
	for _, s := range p.Scopes {
		scopes = append(scopes, domain.Scope(s))
	}
	typ := domain.PrincipalUser
	if p.Service {
		typ = domain.PrincipalService
	}
	return domain.Principal{ID: p.ID, Email: p.Email, Type: typ, Scopes: scopes, SuperAdmin: p.SuperAdmin}
}

type signingKey struct {
	kid  string
	priv *rsa.PrivateKey
}

// keyring signs with the newest key and publishes it together with the one
// before it, so tokens issued just before a rotation still verify.
type keyring struct {
	mu       sync.RWMutex
	current  signingKey
	previous *signingKey
	bits     int
}

func newKeyring(bits int) (*keyring, error) {
	k := &keyring{bits: bits}
	if _, err := k.rotate(); err != nil {
		return nil, err
	}
	return k, nil
}

func (k *keyring) rotate() (string, error) {
	priv, err := rsa.GenerateKey(rand.Reader, k.bits)
	if err != nil {
		return "", fmt.Errorf("generating RSA key: %w", err)
	}
	next := signingKey{kid: "mock-" + uuid.NewString(), priv: priv}

	k.mu.Lock()
	defer k.mu.Unlock()
	if k.current.priv != nil {
		prev := k.current
		k.previous = &prev
	}
	k.current = next
	return next.kid, nil
}

func (k *keyring) signer() signingKey {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.current
}

func (k *keyring) keySet() jwks.KeySet {
	k.mu.RLock()
	defer k.mu.RUnlock()
	set := jwks.KeySet{Keys: []jwks.Key{jwks.RS256Key(k.current.kid, &k.current.priv.PublicKey)}}
	if k.previous != nil {
		set.Keys = append(set.Keys, jwks.RS256Key(k.previous.kid, &k.previous.priv.PublicKey))
	}
	return set
}

// tokenClaims is the access token body the gateway's Auth middleware reads.
type tokenClaims struct {
	Type       string `json:"type"`
	Scopes     string `json:"scopes"`
	Email      string `json:"email,omitempty"`
	SuperAdmin bool   `json:"super_admin,omitempty"`
	jwt.RegisteredClaims
}

func (k *keyring) issue(p domain.Principal, ttl time.Duration, now time.Time) (string, error) {
	scopes := make([]string, len(p.Scopes))
	for i, s := range p.Scopes {
		scopes[i] = string(s)
	}
	claims := tokenClaims{
		Type:       p.Type.String(),
		Scopes:     strings.Join(scopes, " "),
		Email:      p.Email,
		SuperAdmin: p.SuperAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			Issuer:    issuer,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	key := k.signer()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = key.kid
	return token.SignedString(key.priv)
}

// clampTTL bounds a requested token lifetime; zero means the default.
func clampTTL(seconds int) time.Duration {
	if seconds <= 0 {
		return defaultTTL
	}
	ttl := time.Duration(seconds) * time.Second
	return min(max(ttl, minTTL), maxTTL)
}

type identityProvider struct {
	dir   *directory
	keys  *keyring
	now   func() time.Time
	admin string
}

func (ip *identityProvider) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /.well-known/jwks.json", ip.handleJWKS)
	mux.HandleFunc("POST /auth/token", ip.handleToken)
	mux.HandleFunc("POST /admin/keys/rotate", ip.handleRotate)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": issuer})
	})
	return mux
}

func (ip *identityProvider) handleJWKS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "max-age=60")
	writeJSON(w, http.StatusOK, ip.keys.keySet())
}

type tokenRequest struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	APIKey     string `json:"api_key"`
	TTLSeconds int    `json:"ttl_seconds"`
}

func (ip *identityProvider) handleToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}

	var (
		who persona
		ok  bool
	)
	switch {
	case req.APIKey != "":
		who, ok = ip.dir.apiKey(req.APIKey)
	case req.Username != "":
		who, ok = ip.dir.login(req.Username, req.Password)
	default:
		writeError(w, http.StatusBadRequest, "bad_request", "provide username/password or api_key")
		return
	}
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid credentials")
		return
	}

	ttl := clampTTL(req.TTLSeconds)
	signed, err := ip.keys.issue(who.principal(), ttl, ip.now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to sign token")
		return
	}
	writeJSON(w, http.StatusOK, domain.TokenPair{
		AccessToken: signed,
		ExpiresIn:   int(ttl.Seconds()),
		TokenType:   "Bearer",
	})
}

// handleRotate swaps in a new signing key. It is guarded by a shared admin
// token and disabled when none is configured.
func (ip *identityProvider) handleRotate(w http.ResponseWriter, r *http.Request) {
	got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if ip.admin == "" || subtle.ConstantTimeCompare([]byte(got), []byte(ip.admin)) != 1 {
		writeError(w, http.StatusForbidden, "forbidden", "key rotation is not permitted")
		return
	}
	kid, err := ip.keys.rotate()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to rotate key")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"kid": kid})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, domain.ErrorResponse{Error: code, Message: msg})
}
