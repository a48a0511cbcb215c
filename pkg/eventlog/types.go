// Package eventlog implements the append-only event log that
// backs repomesh's trust verification: admission (schema, uniqueness,
// timestamp, signature), storage, and cached lookup of parsed events.
package eventlog

import "encoding/json"

// EventType enumerates the kinds of events the log admits.
type EventType string

const (
	EventReleasePublished      EventType = "ReleasePublished"
	EventAttestationPublished  EventType = "AttestationPublished"
	EventPolicyViolation       EventType = "PolicyViolation"
	EventBreakingChangeDetected EventType = "BreakingChangeDetected"
	EventHealthCheckFailed     EventType = "HealthCheckFailed"
	EventDependencyVulnFound   EventType = "DependencyVulnFound"
	EventInterfaceUpdated      EventType = "InterfaceUpdated"
)

// Artifact is a named, hashed build output referenced by a release event.
type Artifact struct {
	Name   string `json:"name"`
	SHA256 string `json:"sha256"`
	URI    string `json:"uri"`
}

// Attestation references a check kind and the URI that carries its verdict,
// e.g. "repomesh:attestor:license.audit:pass".
type Attestation struct {
	Type string `json:"type"`
	URI  string `json:"uri"`
}

// Signature carries the Ed25519 signature and its binding content hash.
// Fields are ordered to match the canonical wire representation; the whole
// Signature object is excluded from the content hash computed over the event.
type Signature struct {
	Alg           string `json:"alg"`
	KeyID         string `json:"keyId"`
	Value         string `json:"value"`
	CanonicalHash string `json:"canonicalHash"`
}

// Event is the fundamental, immutable record admitted to the log.
type Event struct {
	Type          EventType     `json:"type"`
	Repo          string        `json:"repo"`
	Version       string        `json:"version"`
	Commit        string        `json:"commit"`
	Timestamp     string        `json:"timestamp"`
	Artifacts     []Artifact    `json:"artifacts,omitempty"`
	Attestations  []Attestation `json:"attestations,omitempty"`
	Notes         string        `json:"notes,omitempty"`
	Signature     Signature     `json:"signature"`

	// ingestSource records how an event reached admission (native log
	// append vs. webhook bridge). It never participates in canonicalization
	// or the content hash — it is local bookkeeping only.
	IngestSource string `json:"-"`
}

// hashable returns a copy of the event's JSON representation suitable for
// content hashing: the entire signature is removed, not merely its Value
// and CanonicalHash fields, so canonicalHash = SHA-256(canonical bytes of
// event_minus_signature) matches whatever any other conformant
// implementation reconstructs from the same event.
func (e Event) hashable() map[string]interface{} {
	raw, _ := json.Marshal(e)
	var m map[string]interface{}
	_ = json.Unmarshal(raw, &m)
	delete(m, "ingestSource")
	delete(m, "signature")
	return m
}

// UniquenessKey returns the tuple the log enforces global uniqueness over
// for most event types. AttestationPublished events additionally
// differentiate on signer (see AttestationUniquenessKey) so independent
// verifiers can each publish a verdict for the same target.
func (e Event) UniquenessKey() string {
	return e.Repo + "\x00" + e.Version + "\x00" + string(e.Type)
}

// AttestationUniquenessKey differentiates AttestationPublished events by
// signer in addition to the base tuple, so multiple independent attestors
// can each publish a verdict for the same (repo, version, check-kind)
// without tripping DuplicateEvent.
func (e Event) AttestationUniquenessKey() string {
	return e.UniquenessKey() + "\x00" + e.Signature.KeyID
}
