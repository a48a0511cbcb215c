package participant

import (
	"fmt"
	"sync"

	"github.com/mcp-tool-shop-org/repomesh/pkg/rmerror"
)

// KeyEventType enumerates the lifecycle transitions a participant's signing
// key can undergo. These are internal bookkeeping events derived from
// manifest updates — distinct from the federation's Event log.
type KeyEventType string

const (
	KeyAdded   KeyEventType = "KEY_ADDED"
	KeyRevoked KeyEventType = "KEY_REVOKED"
	KeyRotated KeyEventType = "KEY_ROTATED"
)

// KeyEvent records one key lifecycle transition for a participant.
type KeyEvent struct {
	EventType KeyEventType
	Participant string
	KeyID       string
	PublicKey   string // hex-encoded Ed25519 public key
	Lamport     uint64
}

// Registry is an event-sourced store of participant manifests and their
// signing keys, supporting point-in-time authority resolution: a key
// revoked today must still verify signatures it made before revocation,
// because verification is with respect to the key material registered at
// signing time, not at verification time.
type Registry struct {
	mu sync.RWMutex

	events    []KeyEvent
	manifests map[string]Manifest // participant id -> current manifest
	// keys is the complete, never-pruned view: participant -> keyId ->
	// public key hex, for every key ever added. Revocation never deletes
	// from this map — a key's material must stay resolvable forever so
	// that events it signed before revocation still verify.
	keys map[string]map[string]string
	// revoked tracks which keys are no longer authorized to sign new
	// events, consulted only by the current-authorization checks
	// (ResolveActiveKey, ResolveActiveParticipant), never by the plain
	// resolvers that historical re-verification uses.
	revoked map[string]map[string]bool
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		manifests: make(map[string]Manifest),
		keys:      make(map[string]map[string]string),
		revoked:   make(map[string]map[string]bool),
	}
}

// PutManifest registers or replaces a participant's manifest, emitting
// KeyEvents for every key addition implied by the new manifest.
// Lamport is the caller-assigned monotonic height for this update.
func (r *Registry) PutManifest(m Manifest, lamport uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, mt := range m.Maintainers {
		ev := KeyEvent{
			EventType:   KeyAdded,
			Participant: m.ID,
			KeyID:       mt.KeyID,
			PublicKey:   mt.PublicKey,
			Lamport:     lamport,
		}
		if err := r.applyLocked(ev); err != nil {
			return err
		}
	}
	for _, revoked := range m.RevokedKeyIDs {
		ev := KeyEvent{
			EventType:   KeyRevoked,
			Participant: m.ID,
			KeyID:       revoked,
			Lamport:     lamport,
		}
		if err := r.applyLocked(ev); err != nil {
			return err
		}
	}
	r.manifests[m.ID] = m
	return nil
}

func (r *Registry) applyLocked(ev KeyEvent) error {
	switch ev.EventType {
	case KeyAdded, KeyRotated:
		if ev.PublicKey == "" {
			return fmt.Errorf("participant: %s event for %s/%s must include public key", ev.EventType, ev.Participant, ev.KeyID)
		}
		if r.keys[ev.Participant] == nil {
			r.keys[ev.Participant] = make(map[string]string)
		}
		r.keys[ev.Participant][ev.KeyID] = ev.PublicKey
		if tenant, ok := r.revoked[ev.Participant]; ok {
			delete(tenant, ev.KeyID)
		}
	case KeyRevoked:
		// Do NOT delete from r.keys: the key material must stay
		// resolvable so events it signed before revocation still verify.
		// Only mark it as no longer authorized for new signatures.
		if r.revoked[ev.Participant] == nil {
			r.revoked[ev.Participant] = make(map[string]bool)
		}
		r.revoked[ev.Participant][ev.KeyID] = true
	default:
		return fmt.Errorf("participant: unknown key event type %q", ev.EventType)
	}
	r.events = append(r.events, ev)
	return nil
}

// ResolvePublicKey finds the public key for keyId under participant at a
// given Lamport height, regardless of any later revocation. height == 0
// resolves against the complete ever-registered view; a positive height
// replays events up to (and including) that height instead. Use this for
// re-verifying an already-admitted event signed in the past — per the
// registry's point-in-time authority model, a key revoked today must still
// verify signatures it made before revocation. Callers deciding whether a
// *new* signature is currently authorized must use ResolveActiveKey
// instead.
func (r *Registry) ResolvePublicKey(participant, keyID string, height uint64) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if height == 0 {
		tenant, ok := r.keys[participant]
		if !ok {
			return "", rmerror.New(rmerror.KindUnknownKey, "no keys registered for participant %q", participant)
		}
		pub, ok := tenant[keyID]
		if !ok {
			return "", rmerror.New(rmerror.KindUnknownKey, "keyId %q not registered for participant %q", keyID, participant)
		}
		return pub, nil
	}

	snapshot := make(map[string]string)
	for _, ev := range r.events {
		if ev.Participant != participant {
			continue
		}
		if ev.Lamport > height {
			break
		}
		switch ev.EventType {
		case KeyAdded, KeyRotated:
			snapshot[ev.KeyID] = ev.PublicKey
		case KeyRevoked:
			delete(snapshot, ev.KeyID)
		}
	}
	pub, ok := snapshot[keyID]
	if !ok {
		return "", rmerror.New(rmerror.KindUnknownKey, "keyId %q not authorized for participant %q at height %d", keyID, participant, height)
	}
	return pub, nil
}

// ResolveAnyParticipant finds which participant (if any) registered keyID,
// regardless of target repo — used for the third-party-signer authority
// rule (AttestationPublished, PolicyViolation, etc., where signer and
// target need not coincide) when re-verifying past events. height == 0
// searches every key ever registered, revoked or not; a positive height
// replays key events up to that height. New signatures go through
// ResolveActiveParticipant instead.
func (r *Registry) ResolveAnyParticipant(keyID string, height uint64) (participant, publicKeyHex string, err error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if height == 0 {
		for p, keys := range r.keys {
			if pub, ok := keys[keyID]; ok {
				return p, pub, nil
			}
		}
		return "", "", rmerror.New(rmerror.KindUnknownKey, "keyId %q is not currently registered to any participant", keyID)
	}

	// Replay all participants' histories up to height, last writer wins
	// per participant; a key can only ever belong to one participant at a
	// time by registration discipline, so the first match found is used.
	byParticipant := make(map[string]map[string]string)
	for _, ev := range r.events {
		if ev.Lamport > height {
			break
		}
		if byParticipant[ev.Participant] == nil {
			byParticipant[ev.Participant] = make(map[string]string)
		}
		switch ev.EventType {
		case KeyAdded, KeyRotated:
			byParticipant[ev.Participant][ev.KeyID] = ev.PublicKey
		case KeyRevoked:
			delete(byParticipant[ev.Participant], ev.KeyID)
		}
	}
	for p, keys := range byParticipant {
		if pub, ok := keys[keyID]; ok {
			return p, pub, nil
		}
	}
	return "", "", rmerror.New(rmerror.KindUnknownKey, "keyId %q was not authorized to any participant at height %d", keyID, height)
}

// ResolveActiveKey finds the public key for keyId under participant,
// rejecting it with KindUnknownKey if it has since been revoked. This is
// the current-authorization check a *new* signature must pass — unlike
// ResolvePublicKey, which stays permissive for historical re-verification.
func (r *Registry) ResolveActiveKey(participant, keyID string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tenant, ok := r.keys[participant]
	if !ok {
		return "", rmerror.New(rmerror.KindUnknownKey, "no keys registered for participant %q", participant)
	}
	pub, ok := tenant[keyID]
	if !ok {
		return "", rmerror.New(rmerror.KindUnknownKey, "keyId %q not registered for participant %q", keyID, participant)
	}
	if r.revoked[participant][keyID] {
		return "", rmerror.New(rmerror.KindUnknownKey, "keyId %q was revoked for participant %q", keyID, participant)
	}
	return pub, nil
}

// ResolveActiveParticipant finds which participant currently authorizes
// keyID for a brand new signature, rejecting revoked keys — the
// current-authorization counterpart to ResolveAnyParticipant.
func (r *Registry) ResolveActiveParticipant(keyID string) (participant, publicKeyHex string, err error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for p, keys := range r.keys {
		pub, ok := keys[keyID]
		if !ok {
			continue
		}
		if r.revoked[p][keyID] {
			continue
		}
		return p, pub, nil
	}
	return "", "", rmerror.New(rmerror.KindUnknownKey, "keyId %q is not currently registered to any participant", keyID)
}

// Manifest returns the currently registered manifest for a participant.
func (r *Registry) Manifest(id string) (Manifest, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.manifests[id]
	return m, ok
}

// EventCount reports the number of key lifecycle events applied so far.
func (r *Registry) EventCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.events)
}
