package participant

import (
	"testing"

	"github.com/mcp-tool-shop-org/repomesh/pkg/rmerror"
)

func TestRegistry_CurrentStateResolution(t *testing.T) {
	r := NewRegistry()
	m := Manifest{
		ID:   "acme/widgets",
		Kind: KindRegistry,
		Maintainers: []Maintainer{
			{Name: "alice", KeyID: "k1", PublicKey: "deadbeef"},
		},
	}
	if err := r.PutManifest(m, 1); err != nil {
		t.Fatalf("PutManifest: %v", err)
	}

	pub, err := r.ResolvePublicKey("acme/widgets", "k1", 0)
	if err != nil {
		t.Fatalf("ResolvePublicKey: %v", err)
	}
	if pub != "deadbeef" {
		t.Errorf("got %q, want deadbeef", pub)
	}
}

func TestRegistry_HistoricalResolutionSurvivesRevocation(t *testing.T) {
	r := NewRegistry()
	m1 := Manifest{ID: "acme/widgets", Maintainers: []Maintainer{{KeyID: "k1", PublicKey: "aaaa"}}}
	if err := r.PutManifest(m1, 1); err != nil {
		t.Fatal(err)
	}

	// Revoke k1 at a later height.
	m2 := Manifest{ID: "acme/widgets", Maintainers: nil, RevokedKeyIDs: []string{"k1"}}
	if err := r.PutManifest(m2, 5); err != nil {
		t.Fatal(err)
	}

	// ResolvePublicKey never prunes key material, so an event k1 signed
	// before revocation remains verifiable no matter which height a caller
	// asks at — including 0, the only height the real re-verification path
	// (pkg/verify) actually has available to it.
	pub, err := r.ResolvePublicKey("acme/widgets", "k1", 0)
	if err != nil {
		t.Fatalf("expected historical resolution at height 0 to survive revocation, got: %v", err)
	}
	if pub != "aaaa" {
		t.Errorf("got %q, want aaaa", pub)
	}

	pub, err = r.ResolvePublicKey("acme/widgets", "k1", 1)
	if err != nil {
		t.Fatalf("expected historical resolution to succeed, got: %v", err)
	}
	if pub != "aaaa" {
		t.Errorf("got %q, want aaaa", pub)
	}

	// ResolveActiveKey is the current-authorization check a *new* signature
	// must pass: it must reject k1 now that it is revoked.
	if _, err := r.ResolveActiveKey("acme/widgets", "k1"); err == nil {
		t.Fatal("expected k1 to be rejected for a new signature after revocation")
	}
}

func TestRegistry_ResolveActiveKeyAcceptsNonRevokedKey(t *testing.T) {
	r := NewRegistry()
	m := Manifest{ID: "acme/widgets", Maintainers: []Maintainer{{KeyID: "k1", PublicKey: "aaaa"}}}
	if err := r.PutManifest(m, 1); err != nil {
		t.Fatal(err)
	}

	pub, err := r.ResolveActiveKey("acme/widgets", "k1")
	if err != nil {
		t.Fatalf("ResolveActiveKey: %v", err)
	}
	if pub != "aaaa" {
		t.Errorf("got %q, want aaaa", pub)
	}
}

func TestRegistry_ResolveActiveParticipantRejectsRevokedKey(t *testing.T) {
	r := NewRegistry()
	if err := r.PutManifest(Manifest{ID: "attestors/scanner", Maintainers: []Maintainer{{KeyID: "k9", PublicKey: "bbbb"}}}, 1); err != nil {
		t.Fatal(err)
	}
	if err := r.PutManifest(Manifest{ID: "attestors/scanner", RevokedKeyIDs: []string{"k9"}}, 2); err != nil {
		t.Fatal(err)
	}

	if _, _, err := r.ResolveActiveParticipant("k9"); err == nil {
		t.Fatal("expected k9 to be rejected for a new signature after revocation")
	}
	// But ResolveAnyParticipant, used for historical re-verification, must
	// still find it.
	p, pub, err := r.ResolveAnyParticipant("k9", 0)
	if err != nil {
		t.Fatalf("ResolveAnyParticipant: %v", err)
	}
	if p != "attestors/scanner" || pub != "bbbb" {
		t.Errorf("got (%q, %q)", p, pub)
	}
}

func TestRegistry_UnknownKeyIsUnknownKeyKind(t *testing.T) {
	r := NewRegistry()
	_, err := r.ResolvePublicKey("acme/widgets", "ghost", 0)
	if !rmerror.Is(err, rmerror.KindUnknownKey) {
		t.Errorf("expected KindUnknownKey, got %v", err)
	}
}

func TestRegistry_ResolveAnyParticipantFindsThirdPartySigner(t *testing.T) {
	r := NewRegistry()
	if err := r.PutManifest(Manifest{ID: "attestors/scanner", Maintainers: []Maintainer{{KeyID: "k9", PublicKey: "bbbb"}}}, 1); err != nil {
		t.Fatal(err)
	}

	p, pub, err := r.ResolveAnyParticipant("k9", 0)
	if err != nil {
		t.Fatalf("ResolveAnyParticipant: %v", err)
	}
	if p != "attestors/scanner" || pub != "bbbb" {
		t.Errorf("got (%q, %q)", p, pub)
	}
}
