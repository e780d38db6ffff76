package jwks

import (
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
)

// KeySet is the JSON document served at /.well-known/jwks.json.
type KeySet struct {
	Keys []Key `json:"keys"`
}

// Key is one RSA signing key of a KeySet.
type Key struct {
	Kty string `json:"kty"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// RS256Key encodes pub as a signing key published under kid.
func RS256Key(kid string, pub *rsa.PublicKey) Key {
	return Key{
		Kty: "RSA",
		Alg: "RS256",
		Use: "sig",
		Kid: kid,
		N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}
}

var errUnsupportedKey = errors.New("unsupported key type")

// PublicKey decodes an RS256 signing key. Other key types are rejected so
// a published HMAC or EC key can never be used to verify a gateway token.
func (k Key) PublicKey() (*rsa.PublicKey, error) {
	if k.Kty != "RSA" || k.Alg != "RS256" {
		return nil, fmt.Errorf("%w: kty=%s alg=%s", errUnsupportedKey, k.Kty, k.Alg)
	}
	if k.Use != "" && k.Use != "sig" {
		return nil, fmt.Errorf("%w: use=%s", errUnsupportedKey, k.Use)
	}
	n, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("decoding n: %w", err)
	}
	e, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("decoding e: %w", err)
	}
	exp := new(big.Int).SetBytes(e)
	if len(n) == 0 || !exp.IsInt64() || exp.Int64() < 3 {
		return nil, errors.New("malformed RSA key")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: int(exp.Int64())}, nil
}
