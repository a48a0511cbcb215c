// Package participant maintains the federation's participant manifests and
// resolves signing-key authority, including historical (point-in-time)
// resolution for verifying events signed under since-rotated or
// since-revoked keys.
package participant

// Kind enumerates the roles a participant manifest can declare.
type Kind string

const (
	KindRegistry   Kind = "registry"
	KindAttestor   Kind = "attestor"
	KindPolicy     Kind = "policy"
	KindOracle     Kind = "oracle"
	KindCompute    Kind = "compute"
	KindSettlement Kind = "settlement"
	KindGovernance Kind = "governance"
	KindIdentity   Kind = "identity"
)

// Maintainer is a named keyholder for a participant manifest.
type Maintainer struct {
	Name      string `json:"name"`
	KeyID     string `json:"keyId"`
	PublicKey string `json:"publicKey"` // hex-encoded raw Ed25519 public key
	Contact   string `json:"contact,omitempty"`
}

// Manifest describes a federation participant: its identity, role,
// capability surface, and the keys authorized to sign on its behalf.
type Manifest struct {
	ID             string       `json:"id"` // "<org>/<name>", unique in the network
	Kind           Kind         `json:"kind"`
	Provides       []string     `json:"provides,omitempty"`
	Consumes       []string     `json:"consumes,omitempty"`
	Maintainers    []Maintainer `json:"maintainers"`
	RevokedKeyIDs  []string     `json:"revokedKeyIds,omitempty"`
}

// KeyIDs returns every keyId declared in the manifest, preserving
// maintainer declaration order. Duplicate keyId values within one manifest
// are a caller-side validation concern, not this accessor's.
func (m Manifest) KeyIDs() []string {
	ids := make([]string, 0, len(m.Maintainers))
	for _, mt := range m.Maintainers {
		ids = append(ids, mt.KeyID)
	}
	return ids
}

// MaintainerByKeyID finds the maintainer record for a keyId, or false if
// absent.
func (m Manifest) MaintainerByKeyID(keyID string) (Maintainer, bool) {
	for _, mt := range m.Maintainers {
		if mt.KeyID == keyID {
			return mt, true
		}
	}
	return Maintainer{}, false
}
