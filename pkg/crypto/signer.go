// Package crypto provides Ed25519 signing and verification over repomesh
// content hashes. The signature is always computed over the raw 32 bytes
// decoded from a hex canonicalHash, never over canonical JSON bytes
// directly — callers must decode before signing and verifying.
package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// Signer signs a content hash's raw bytes and reports its public material.
type Signer interface {
	Sign(hashBytes []byte) (string, error)
	KeyID() string
	PublicKeyHex() string
}

// Verifier verifies a hex-encoded signature against a content hash's raw
// bytes and a hex-encoded public key.
type Verifier interface {
	Verify(pubKeyHex, sigHex string, hashBytes []byte) (bool, error)
}

// Ed25519Signer signs with an in-memory Ed25519 private key.
type Ed25519Signer struct {
	privKey ed25519.PrivateKey
	pubKey  ed25519.PublicKey
	keyID   string
}

// NewEd25519Signer generates a fresh random key pair.
func NewEd25519Signer(keyID string) (*Ed25519Signer, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("crypto: key generation failed: %w", err)
	}
	return &Ed25519Signer{privKey: priv, pubKey: pub, keyID: keyID}, nil
}

// NewEd25519SignerFromKey wraps an existing private key.
func NewEd25519SignerFromKey(priv ed25519.PrivateKey, keyID string) *Ed25519Signer {
	return &Ed25519Signer{
		privKey: priv,
		pubKey:  priv.Public().(ed25519.PublicKey),
		keyID:   keyID,
	}
}

// Sign signs the raw hash bytes (must be exactly 32 bytes — the decoded
// canonicalHash, never the canonical JSON or its hex string) and returns
// the hex-encoded signature.
func (s *Ed25519Signer) Sign(hashBytes []byte) (string, error) {
	if len(hashBytes) != 32 {
		return "", fmt.Errorf("crypto: refusing to sign %d bytes, expected exactly 32 (a decoded SHA-256 hash)", len(hashBytes))
	}
	sig := ed25519.Sign(s.privKey, hashBytes)
	return hex.EncodeToString(sig), nil
}

func (s *Ed25519Signer) KeyID() string       { return s.keyID }
func (s *Ed25519Signer) PublicKeyHex() string { return hex.EncodeToString(s.pubKey) }

// Ed25519Verifier verifies signatures given only public key material.
type Ed25519Verifier struct{}

// Verify checks a hex signature against hex public key and raw hash bytes.
func (Ed25519Verifier) Verify(pubKeyHex, sigHex string, hashBytes []byte) (bool, error) {
	if len(hashBytes) != 32 {
		return false, fmt.Errorf("crypto: hash to verify must be exactly 32 bytes, got %d", len(hashBytes))
	}
	pubKey, err := hex.DecodeString(pubKeyHex)
	if err != nil {
		return false, fmt.Errorf("crypto: invalid public key hex: %w", err)
	}
	if len(pubKey) != ed25519.PublicKeySize {
		return false, fmt.Errorf("crypto: invalid public key size %d", len(pubKey))
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return false, fmt.Errorf("crypto: invalid signature hex: %w", err)
	}
	return ed25519.Verify(ed25519.PublicKey(pubKey), hashBytes, sig), nil
}
