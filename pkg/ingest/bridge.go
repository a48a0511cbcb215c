// Package ingest implements the webhook ingestion bridge: out-of-process
// verifier implementations submit a signed opinion as a JWT, which this
// package authenticates against the registered participant's public key
// and re-emits as a canonical Event for admission through the ordinary
// eventlog pipeline. It never constructs an Event that bypasses admission.
package ingest

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mcp-tool-shop-org/repomesh/pkg/eventlog"
	"github.com/mcp-tool-shop-org/repomesh/pkg/participant"
	"github.com/mcp-tool-shop-org/repomesh/pkg/rmerror"
)

// AttestationClaims carries the same fields as an AttestationPublished
// event body inside a JWT's claim set. The signer's participant identity
// is resolved from the token's "kid" header, not from any claim field, so
// a forged "signer" claim can't be used to impersonate another attestor.
type AttestationClaims struct {
	jwt.RegisteredClaims
	Repo                 string                 `json:"repo"`
	Version              string                 `json:"version"`
	Commit               string                 `json:"commit,omitempty"`
	Timestamp            string                 `json:"timestamp"`
	Attestations         []eventlog.Attestation `json:"attestations"`
	Notes                string                 `json:"notes,omitempty"`
	DetachedSignatureHex string                 `json:"detachedSignature"`
}

// Bridge authenticates incoming webhook tokens and admits them as
// AttestationPublished events.
type Bridge struct {
	Registry *participant.Registry
	Log      *eventlog.Log
	Limiter  *Limiter
	Policy   RatePolicy
}

// New builds a Bridge. limiter may be nil to disable rate limiting
// (e.g. in tests); policy is ignored in that case.
func New(registry *participant.Registry, log *eventlog.Log, limiter *Limiter, policy RatePolicy) *Bridge {
	return &Bridge{Registry: registry, Log: log, Limiter: limiter, Policy: policy}
}

// keyFunc resolves the Ed25519 public key for a token's "kid" header via
// ResolveActiveParticipant — signer and attestation target need not
// coincide, matching the eventlog admission rule for non-release events.
// A revoked key is rejected here even though it remains resolvable for
// re-verifying events it signed in the past, because this token is
// authenticating a brand new submission.
func (b *Bridge) keyFunc(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodEd25519); !ok {
		return nil, fmt.Errorf("ingest: unexpected signing method %v", token.Header["alg"])
	}
	kid, ok := token.Header["kid"].(string)
	if !ok || kid == "" {
		return nil, fmt.Errorf("ingest: token missing kid header")
	}
	_, pubKeyHex, err := b.Registry.ResolveActiveParticipant(kid)
	if err != nil {
		return nil, err
	}
	raw, err := hex.DecodeString(pubKeyHex)
	if err != nil {
		return nil, fmt.Errorf("ingest: malformed public key for kid %q: %w", kid, err)
	}
	return ed25519.PublicKey(raw), nil
}

// Ingest authenticates tokenString, rate-limits the submitting participant,
// converts the verified claims into a canonical AttestationPublished Event
// stamped with IngestSource, and admits it through the ordinary log
// pipeline — the only way this package ever commits an event.
func (b *Bridge) Ingest(ctx context.Context, tokenString string) (eventlog.Event, error) {
	claims := &AttestationClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, b.keyFunc)
	if err != nil {
		return eventlog.Event{}, rmerror.Wrap(rmerror.KindIngestUnauthorized, err, "webhook token failed verification")
	}
	if !token.Valid {
		return eventlog.Event{}, rmerror.New(rmerror.KindIngestUnauthorized, "webhook token is not valid")
	}
	kid, _ := token.Header["kid"].(string)

	if b.Limiter != nil {
		allowed, err := b.Limiter.Allow(ctx, kid, b.Policy, 1)
		if err != nil {
			return eventlog.Event{}, rmerror.Wrap(rmerror.KindIngestRateLimited, err, "rate limiter unavailable for %s", kid)
		}
		if !allowed {
			return eventlog.Event{}, rmerror.New(rmerror.KindIngestRateLimited, "participant %s exceeded webhook rate limit", kid)
		}
	}

	ev := eventlog.Event{
		Type:         eventlog.EventAttestationPublished,
		Repo:         claims.Repo,
		Version:      claims.Version,
		Commit:       claims.Commit,
		Timestamp:    claims.Timestamp,
		Attestations: claims.Attestations,
		Notes:        claims.Notes,
		IngestSource: "webhook",
	}
	ev.Signature = eventlog.Signature{Alg: "ed25519", KeyID: kid}

	hash, err := eventlog.CanonicalHash(ev)
	if err != nil {
		return eventlog.Event{}, err
	}
	ev.Signature.CanonicalHash = hash

	// admission verifies Signature.Value as a raw Ed25519 signature over
	// the canonical hash bytes, a different message than the JWT itself
	// signs — so the claim carries that detached signature separately.
	ev.Signature.Value = claims.DetachedSignatureHex

	line, err := eventlog.EncodeLine(ev)
	if err != nil {
		return eventlog.Event{}, err
	}
	if err := b.Log.Admit([][]byte{line}); err != nil {
		return eventlog.Event{}, err
	}
	return ev, nil
}
