package verify

import (
	"context"
	"testing"
	"time"

	"github.com/mcp-tool-shop-org/repomesh/pkg/anchor"
	"github.com/mcp-tool-shop-org/repomesh/pkg/crypto"
	"github.com/mcp-tool-shop-org/repomesh/pkg/eventlog"
	"github.com/mcp-tool-shop-org/repomesh/pkg/ledgerclient"
	"github.com/mcp-tool-shop-org/repomesh/pkg/participant"
	"github.com/mcp-tool-shop-org/repomesh/pkg/rmerror"
)

// memManifestStore is an in-memory anchor.ManifestStore, for orchestrator
// tests that don't need a real database/sql backend.
type memManifestStore struct {
	byPartition map[string]anchor.Manifest
	memos       map[string]string
	order       []string
}

func newMemManifestStore() *memManifestStore {
	return &memManifestStore{byPartition: make(map[string]anchor.Manifest), memos: make(map[string]string)}
}

func (s *memManifestStore) Put(ctx context.Context, m anchor.Manifest, memo string) error {
	s.byPartition[m.PartitionID] = m
	s.memos[m.PartitionID] = memo
	s.order = append(s.order, m.PartitionID)
	return nil
}

func (s *memManifestStore) Get(ctx context.Context, partitionID string) (anchor.Manifest, error) {
	m, ok := s.byPartition[partitionID]
	if !ok {
		return anchor.Manifest{}, anchor.ErrManifestNotFound
	}
	return m, nil
}

func (s *memManifestStore) Latest(ctx context.Context) (anchor.Manifest, bool, error) {
	if len(s.order) == 0 {
		return anchor.Manifest{}, false, nil
	}
	return s.byPartition[s.order[len(s.order)-1]], true, nil
}

func (s *memManifestStore) List(ctx context.Context) ([]anchor.Manifest, error) {
	out := make([]anchor.Manifest, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byPartition[id])
	}
	return out, nil
}

func fixedClock() func() time.Time {
	t, _ := time.Parse(time.RFC3339, "2026-06-01T00:00:00Z")
	return func() time.Time { return t }
}

func newFixture(t *testing.T) (*eventlog.Log, *participant.Registry, crypto.Signer) {
	t.Helper()
	kp := crypto.NewDeterministicKeyProvider([]byte("verify-fixture-seed"))
	signer, err := kp.Signer("k1")
	if err != nil {
		t.Fatalf("signer: %v", err)
	}

	reg := participant.NewRegistry()
	if err := reg.PutManifest(participant.Manifest{
		ID:   "acme/widgets",
		Kind: participant.KindRegistry,
		Maintainers: []participant.Maintainer{
			{Name: "alice", KeyID: "k1", PublicKey: signer.PublicKeyHex()},
		},
	}, 1); err != nil {
		t.Fatalf("PutManifest: %v", err)
	}

	log := eventlog.NewLog(reg, crypto.Ed25519Verifier{}).WithClock(fixedClock())
	return log, reg, signer
}

func signedEvent(t *testing.T, signer crypto.Signer, ev eventlog.Event) eventlog.Event {
	t.Helper()
	ev.Signature = eventlog.Signature{Alg: "ed25519", KeyID: signer.KeyID()}
	hash, err := eventlog.CanonicalHash(ev)
	if err != nil {
		t.Fatalf("CanonicalHash: %v", err)
	}
	ev.Signature.CanonicalHash = hash

	hashBytes, err := eventlog.HashBytes(hash)
	if err != nil {
		t.Fatalf("HashBytes: %v", err)
	}
	sig, err := signer.Sign(hashBytes)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	ev.Signature.Value = sig
	return ev
}

func admit(t *testing.T, log *eventlog.Log, ev eventlog.Event) {
	t.Helper()
	line, err := eventlog.EncodeLine(ev)
	if err != nil {
		t.Fatalf("EncodeLine: %v", err)
	}
	if err := log.Admit([][]byte{line}); err != nil {
		t.Fatalf("Admit: %v", err)
	}
}

func releaseEvent() eventlog.Event {
	return eventlog.Event{
		Type:      eventlog.EventReleasePublished,
		Repo:      "acme/widgets",
		Version:   "1.0.0",
		Commit:    "abc123",
		Timestamp: "2026-06-01T00:00:00.000Z",
		Artifacts: []eventlog.Artifact{
			{Name: "x.tgz", SHA256: "0000000000000000000000000000000000000000000000000000000000000000"[:64], URI: "https://example.com/x.tgz"},
		},
	}
}

func TestVerifyRelease_SucceedsForSignedReleaseUnanchored(t *testing.T) {
	log, reg, signer := newFixture(t)
	ev := signedEvent(t, signer, releaseEvent())
	admit(t, log, ev)

	orch := New(log, reg, crypto.Ed25519Verifier{}, newMemManifestStore())
	result, err := orch.VerifyRelease(context.Background(), "acme/widgets", "1.0.0", false)
	if err != nil {
		t.Fatalf("VerifyRelease: %v", err)
	}
	if !result.OK {
		t.Error("expected ok=true")
	}
	if result.Anchor.Anchored {
		t.Error("expected Anchored=false when anchored=false was requested")
	}
}

func TestVerifyRelease_NotFoundForUnknownRelease(t *testing.T) {
	log, reg, _ := newFixture(t)
	orch := New(log, reg, crypto.Ed25519Verifier{}, newMemManifestStore())
	_, err := orch.VerifyRelease(context.Background(), "acme/widgets", "9.9.9", false)
	if !rmerror.Is(err, rmerror.KindReleaseNotFound) {
		t.Fatalf("expected KindReleaseNotFound, got %v", err)
	}
}

func TestVerifyRelease_IncludesAttestationVerdicts(t *testing.T) {
	log, reg, signer := newFixture(t)
	admit(t, log, signedEvent(t, signer, releaseEvent()))

	att := eventlog.Event{
		Type:         eventlog.EventAttestationPublished,
		Repo:         "acme/widgets",
		Version:      "1.0.0",
		Timestamp:    "2026-06-01T00:00:00.000Z",
		Attestations: []eventlog.Attestation{{Type: "license.audit", URI: "repomesh:attestor:license.audit:pass"}},
	}
	admit(t, log, signedEvent(t, signer, att))

	orch := New(log, reg, crypto.Ed25519Verifier{}, newMemManifestStore())
	result, err := orch.VerifyRelease(context.Background(), "acme/widgets", "1.0.0", false)
	if err != nil {
		t.Fatalf("VerifyRelease: %v", err)
	}
	if len(result.Attestations) != 1 || !result.Attestations[0].SignatureOK {
		t.Fatalf("Attestations = %+v", result.Attestations)
	}
}

func TestVerifyRelease_AnchoredTrueFindsContainingPartition(t *testing.T) {
	log, reg, signer := newFixture(t)
	release := signedEvent(t, signer, releaseEvent())
	admit(t, log, release)

	releaseHash, err := eventlog.CanonicalHash(release)
	if err != nil {
		t.Fatalf("CanonicalHash: %v", err)
	}

	store := newMemManifestStore()
	m, err := anchor.Materialize("genesis", "xrpl-testnet", nil, []string{releaseHash})
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if err := store.Put(context.Background(), *m, "deadbeef"); err != nil {
		t.Fatalf("Put: %v", err)
	}

	orch := New(log, reg, crypto.Ed25519Verifier{}, store)
	result, err := orch.VerifyRelease(context.Background(), "acme/widgets", "1.0.0", true)
	if err != nil {
		t.Fatalf("VerifyRelease: %v", err)
	}
	if !result.Anchor.Anchored || result.Anchor.PartitionID != "genesis" {
		t.Fatalf("Anchor = %+v", result.Anchor)
	}
}

func TestVerifyRelease_AnchoredTrueButNotYetAnchoredIsNotAnError(t *testing.T) {
	log, reg, signer := newFixture(t)
	admit(t, log, signedEvent(t, signer, releaseEvent()))

	orch := New(log, reg, crypto.Ed25519Verifier{}, newMemManifestStore())
	result, err := orch.VerifyRelease(context.Background(), "acme/widgets", "1.0.0", true)
	if err != nil {
		t.Fatalf("expected no error for not-yet-anchored release, got %v", err)
	}
	if result.Anchor.Anchored {
		t.Error("expected Anchored=false")
	}
}

type fakeLedgerClient struct {
	memo string
	err  error
}

func (f *fakeLedgerClient) Submit(ctx context.Context, hexMemo string) (ledgerclient.SubmitResult, error) {
	return ledgerclient.SubmitResult{}, nil
}

func (f *fakeLedgerClient) FetchMemo(ctx context.Context, txHash string) (string, error) {
	return f.memo, f.err
}

func TestVerifyAnchorProof_Succeeds(t *testing.T) {
	log, reg, signer := newFixture(t)
	release := signedEvent(t, signer, releaseEvent())
	admit(t, log, release)

	releaseHash, _ := eventlog.CanonicalHash(release)
	store := newMemManifestStore()
	m, err := anchor.Materialize("genesis", "xrpl-testnet", nil, []string{releaseHash})
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	memo, err := anchor.EncodeMemo(*m)
	if err != nil {
		t.Fatalf("EncodeMemo: %v", err)
	}
	if err := store.Put(context.Background(), *m, memo); err != nil {
		t.Fatalf("Put: %v", err)
	}

	orch := New(log, reg, crypto.Ed25519Verifier{}, store)
	proof, err := orch.VerifyAnchorProof(context.Background(), &fakeLedgerClient{memo: memo}, "deadbeef")
	if err != nil {
		t.Fatalf("VerifyAnchorProof: %v", err)
	}
	if !proof.OK || proof.PartitionID != "genesis" || proof.Root != m.Root {
		t.Fatalf("proof = %+v", proof)
	}
}

func TestVerifyAnchorProof_RootMismatchWhenMemoTampered(t *testing.T) {
	log, reg, signer := newFixture(t)
	release := signedEvent(t, signer, releaseEvent())
	admit(t, log, release)

	releaseHash, _ := eventlog.CanonicalHash(release)
	store := newMemManifestStore()
	m, err := anchor.Materialize("genesis", "xrpl-testnet", nil, []string{releaseHash})
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if err := store.Put(context.Background(), *m, "unused"); err != nil {
		t.Fatalf("Put: %v", err)
	}

	tampered := *m
	tampered.Root = "f" + m.Root[1:]
	memo, err := anchor.EncodeMemo(tampered)
	if err != nil {
		t.Fatalf("EncodeMemo: %v", err)
	}

	orch := New(log, reg, crypto.Ed25519Verifier{}, store)
	_, err = orch.VerifyAnchorProof(context.Background(), &fakeLedgerClient{memo: memo}, "deadbeef")
	if !rmerror.Is(err, rmerror.KindRootMismatch) {
		t.Fatalf("expected KindRootMismatch, got %v", err)
	}
}
