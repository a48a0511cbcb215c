package eventlog

import (
	"encoding/hex"
	"fmt"

	"github.com/mcp-tool-shop-org/repomesh/pkg/canon"
	"github.com/mcp-tool-shop-org/repomesh/pkg/rmerror"
)

// CanonicalHash computes the content hash of e with its whole signature
// object removed, per the wire rule that a signature cannot bind itself.
func CanonicalHash(e Event) (string, error) {
	return canon.CanonicalHash(e.hashable())
}

// VerifyCanonicalHash recomputes e's content hash and compares it against
// the embedded Signature.CanonicalHash.
func VerifyCanonicalHash(e Event) error {
	got, err := CanonicalHash(e)
	if err != nil {
		return rmerror.Wrap(rmerror.KindMalformedEvent, err, "failed to compute canonical hash")
	}
	if got != e.Signature.CanonicalHash {
		return rmerror.New(rmerror.KindCanonicalHashMismatch,
			"embedded canonicalHash %s does not match recomputed %s", e.Signature.CanonicalHash, got)
	}
	return nil
}

// HashBytes decodes a canonicalHash hex string into its raw 32 bytes — the
// exact value that is signed, not the hex string or the canonical JSON.
func HashBytes(canonicalHash string) ([]byte, error) {
	b, err := hex.DecodeString(canonicalHash)
	if err != nil {
		return nil, fmt.Errorf("eventlog: canonicalHash is not valid hex: %w", err)
	}
	if len(b) != 32 {
		return nil, fmt.Errorf("eventlog: canonicalHash decodes to %d bytes, want 32", len(b))
	}
	return b, nil
}
