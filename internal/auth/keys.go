package auth

import (
	"crypto/rsa"
	"fmt"
	"strings"
	"sync"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultKid is assumed when a token header carries no kid.
const DefaultKid = "v1"

type keyRef struct {
	issuer string
	kid    string
}

// KeyStore holds verification keys per (issuer, kid). Safe for concurrent use so
// keys can be rotated while the server is running.
type KeyStore struct {
	mu        sync.RWMutex
	hs256Keys map[keyRef][]byte
	rs256Keys map[keyRef]*rsa.PublicKey
}

// NewKeyStore creates an empty KeyStore
func NewKeyStore() *KeyStore {
	return &KeyStore{
		hs256Keys: make(map[keyRef][]byte),
		rs256Keys: make(map[keyRef]*rsa.PublicKey),
	}
}

// LoadHS256Key registers a shared secret.
func (ks *KeyStore) LoadHS256Key(issuer, kid string, secret []byte) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	ks.hs256Keys[keyRef{issuer, kid}] = secret
}

// LoadRS256Key registers a PEM-encoded public key. Literal "\n" sequences are
// accepted since keys usually arrive through environment variables.
func (ks *KeyStore) LoadRS256Key(issuer, kid string, publicKeyPEM string) error {
	normalized := strings.TrimSpace(strings.ReplaceAll(publicKeyPEM, `\n`, "\n"))

	publicKey, err := jwt.ParseRSAPublicKeyFromPEM([]byte(normalized))
	if err != nil {
		return fmt.Errorf("failed to parse RSA public key: %w", err)
	}

	ks.mu.Lock()
	defer ks.mu.Unlock()
	ks.rs256Keys[keyRef{issuer, kid}] = publicKey
	return nil
}

// GetHS256Key retrieves an HS256 secret for an issuer and kid
func (ks *KeyStore) GetHS256Key(issuer, kid string) ([]byte, bool) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	secret, ok := ks.hs256Keys[keyRef{issuer, kid}]
	return secret, ok
}

// GetRS256Key retrieves an RS256 public key for an issuer and kid
func (ks *KeyStore) GetRS256Key(issuer, kid string) (*rsa.PublicKey, bool) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	key, ok := ks.rs256Keys[keyRef{issuer, kid}]
	return key, ok
}
