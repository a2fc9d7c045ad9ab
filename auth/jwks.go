// Package auth validates bearer tokens against the platform auth service.
// Public keys are fetched from its JWKS endpoint and cached; the cache is
// refreshed once when a token references an unknown key id.
package auth

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"
)

type jwksDocument struct {
	Keys []jwksKey `json:"keys"`
}

type jwksKey struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// KeySet fetches and caches RSA public keys from a JWKS endpoint.
// Safe for concurrent use.
type KeySet struct {
	url    string
	client *http.Client

	mu      sync.Mutex
	keys    map[string]*rsa.PublicKey
	fetched bool
}

func NewKeySet(jwksURL string) *KeySet {
	return &KeySet{
		url:    jwksURL,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Key returns the public key for kid. On a miss with a warm cache it
// refetches once before giving up, so key rotation does not require a
// process restart.
func (ks *KeySet) Key(kid string) (*rsa.PublicKey, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	if !ks.fetched {
		if err := ks.fetchLocked(); err != nil {
			return nil, err
		}
	}
	if key, ok := ks.keys[kid]; ok {
		return key, nil
	}
	if err := ks.fetchLocked(); err != nil {
		return nil, err
	}
	if key, ok := ks.keys[kid]; ok {
		return key, nil
	}
	return nil, fmt.Errorf("auth: unknown signing key %q", kid)
}

func (ks *KeySet) fetchLocked() error {
	resp, err := ks.client.Get(ks.url)
	if err != nil {
		return fmt.Errorf("auth: fetch jwks: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("auth: fetch jwks: unexpected status %d", resp.StatusCode)
	}
	var doc jwksDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return fmt.Errorf("auth: decode jwks: %w", err)
	}
	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Kty != "RSA" || k.Kid == "" {
			continue
		}
		pub, err := k.publicKey()
		if err != nil {
			continue // skip malformed entries, keep the rest usable
		}
		keys[k.Kid] = pub
	}
	ks.keys = keys
	ks.fetched = true
	return nil
}

func (k jwksKey) publicKey() (*rsa.PublicKey, error) {
	nb, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("decode modulus: %w", err)
	}
	eb, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("decode exponent: %w", err)
	}
	e := 0
	for _, b := range eb {
		e = e<<8 | int(b)
	}
	if e <= 0 {
		return nil, fmt.Errorf("non-positive exponent")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nb), E: e}, nil
}
