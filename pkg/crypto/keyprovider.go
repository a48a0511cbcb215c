package crypto

import (
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// KeyProvider resolves a signing Signer for a given keyID. Production
// callers back this with a real key store; tests back it with
// DeterministicKeyProvider so fixtures sign and verify reproducibly without
// persisting random key material.
type KeyProvider interface {
	Signer(keyID string) (Signer, error)
}

// DeterministicKeyProvider derives Ed25519 key pairs from a fixed secret
// via HKDF, so the same keyID always yields the same key pair across test
// runs without ever touching disk or an RNG.
type DeterministicKeyProvider struct {
	secret []byte
}

// NewDeterministicKeyProvider builds a provider seeded by secret. Tests
// typically use a fixed literal seed so fixture signatures are stable
// across runs.
func NewDeterministicKeyProvider(secret []byte) *DeterministicKeyProvider {
	return &DeterministicKeyProvider{secret: secret}
}

func (p *DeterministicKeyProvider) Signer(keyID string) (Signer, error) {
	kdf := hkdf.New(sha256.New, p.secret, []byte("repomesh-test-keys"), []byte(keyID))
	seed := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(kdf, seed); err != nil {
		return nil, fmt.Errorf("crypto: derive seed for %q: %w", keyID, err)
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return NewEd25519SignerFromKey(priv, keyID), nil
}
