// Package verify implements the verification orchestrator (C6): the
// end-to-end "is this release authentic, attested, and anchored?" check,
// and the independent anchor-proof replay path against an external-ledger
// transaction.
package verify

import (
	"context"

	"github.com/mcp-tool-shop-org/repomesh/pkg/anchor"
	"github.com/mcp-tool-shop-org/repomesh/pkg/crypto"
	"github.com/mcp-tool-shop-org/repomesh/pkg/eventlog"
	"github.com/mcp-tool-shop-org/repomesh/pkg/ledgerclient"
	"github.com/mcp-tool-shop-org/repomesh/pkg/observability"
	"github.com/mcp-tool-shop-org/repomesh/pkg/participant"
	"github.com/mcp-tool-shop-org/repomesh/pkg/rmerror"
)

// AttestationResult is one attestation's verification verdict within a
// release verification result.
type AttestationResult struct {
	SignerKeyID string
	CheckKind   string
	Verdict     string
	SignatureOK bool
}

// AnchorResult describes whether, and where, a release was found anchored.
type AnchorResult struct {
	Anchored    bool
	PartitionID string
}

// ReleaseVerification is the structured result of verifyRelease.
type ReleaseVerification struct {
	OK           bool
	Release      eventlog.Event
	Attestations []AttestationResult
	Anchor       AnchorResult
}

// Orchestrator wires together the log, registry, verifier, and manifest
// store needed to answer the end-to-end verification predicates.
type Orchestrator struct {
	Log       *eventlog.Log
	Registry  *participant.Registry
	Verifier  crypto.Verifier
	Manifest  anchor.ManifestStore
	Telemetry *observability.Provider // optional; nil disables spans/metrics
}

// New builds an Orchestrator over the given collaborators.
func New(log *eventlog.Log, registry *participant.Registry, verifier crypto.Verifier, manifests anchor.ManifestStore) *Orchestrator {
	return &Orchestrator{Log: log, Registry: registry, Verifier: verifier, Manifest: manifests}
}

// WithTelemetry attaches an observability Provider so VerifyRelease and
// VerifyAnchorProof are traced and their outcomes recorded as RED metrics.
func (o *Orchestrator) WithTelemetry(p *observability.Provider) *Orchestrator {
	o.Telemetry = p
	return o
}

// VerifyRelease implements spec.md §4.6's five-step procedure for
// (repo, version). When anchored is false, step 4 (anchor walk) is
// skipped entirely and AnchorResult.Anchored is always false.
func (o *Orchestrator) VerifyRelease(ctx context.Context, repo, version string, anchored bool) (result ReleaseVerification, err error) {
	if o.Telemetry != nil {
		var finish func(error)
		ctx, finish = o.Telemetry.TrackOperation(ctx, "verifyRelease", observability.EventOperation(string(eventlog.EventReleasePublished), repo, version)...)
		defer func() { finish(err) }()
	}
	return o.verifyRelease(ctx, repo, version, anchored)
}

func (o *Orchestrator) verifyRelease(ctx context.Context, repo, version string, anchored bool) (ReleaseVerification, error) {
	release, err := o.findRelease(repo, version)
	if err != nil {
		return ReleaseVerification{}, err
	}

	if err := o.verifyEventSignature(release); err != nil {
		return ReleaseVerification{}, rmerror.Wrap(rmerror.KindSignatureInvalid, err, "release signature invalid for %s@%s", repo, version)
	}

	var results []AttestationResult
	for _, e := range o.Log.Events() {
		if e.Type != eventlog.EventAttestationPublished || e.Repo != repo || e.Version != version {
			continue
		}
		sigErr := o.verifyEventSignature(e)
		for _, att := range e.Attestations {
			results = append(results, AttestationResult{
				SignerKeyID: e.Signature.KeyID,
				CheckKind:   att.Type,
				Verdict:     att.URI,
				SignatureOK: sigErr == nil,
			})
		}
	}

	result := ReleaseVerification{OK: true, Release: release, Attestations: results}

	if anchored {
		anchorResult, err := o.walkAnchorsForRelease(ctx, release)
		if err != nil {
			return ReleaseVerification{}, err
		}
		result.Anchor = anchorResult
	}

	return result, nil
}

func (o *Orchestrator) findRelease(repo, version string) (eventlog.Event, error) {
	for _, e := range o.Log.Events() {
		if e.Type == eventlog.EventReleasePublished && e.Repo == repo && e.Version == version {
			return e, nil
		}
	}
	return eventlog.Event{}, rmerror.New(rmerror.KindReleaseNotFound, "no ReleasePublished event for %s@%s", repo, version)
}

func (o *Orchestrator) verifyEventSignature(e eventlog.Event) error {
	hashBytes, err := eventlog.HashBytes(e.Signature.CanonicalHash)
	if err != nil {
		return err
	}
	var pubKeyHex string
	if e.Type == eventlog.EventReleasePublished {
		pubKeyHex, err = o.Registry.ResolvePublicKey(e.Repo, e.Signature.KeyID, 0)
	} else {
		_, pubKeyHex, err = o.Registry.ResolveAnyParticipant(e.Signature.KeyID, 0)
	}
	if err != nil {
		return err
	}
	ok, err := o.Verifier.Verify(pubKeyHex, e.Signature.Value, hashBytes)
	if err != nil {
		return err
	}
	if !ok {
		return rmerror.New(rmerror.KindSignatureInvalid, "signature does not verify under key %s", e.Signature.KeyID)
	}
	return nil
}

// walkAnchorsForRelease walks recorded manifests newest-first, checking
// whether the release's own content hash is among the leaves covered by
// each partition, per spec.md §4.6 step 4. "Not anchored yet" is reported
// as AnchorResult{Anchored: false}, never as an error.
func (o *Orchestrator) walkAnchorsForRelease(ctx context.Context, release eventlog.Event) (AnchorResult, error) {
	releaseHash, err := eventlog.CanonicalHash(release)
	if err != nil {
		return AnchorResult{}, err
	}

	manifests, err := o.Manifest.List(ctx)
	if err != nil {
		return AnchorResult{}, rmerror.Wrap(rmerror.KindManifestUnavailable, err, "listing manifests")
	}
	reverseManifests(manifests) // List returns oldest-first; walk newest-first per spec.md §4.6

	allEvents := o.Log.Events()
	for _, m := range manifests {
		if err := anchor.VerifySelfBinding(m); err != nil {
			return AnchorResult{}, err
		}

		partitionEvents, err := anchor.SelectPartition(allEvents, m.PartitionID)
		if err != nil {
			return AnchorResult{}, err
		}
		leaves, found := make([]string, 0, len(partitionEvents)), false
		for _, e := range partitionEvents {
			h, err := eventlog.CanonicalHash(e)
			if err != nil {
				return AnchorResult{}, err
			}
			leaves = append(leaves, h)
			if h == releaseHash {
				found = true
			}
		}
		if !found {
			continue
		}

		root, err := anchor.MerkleRootHex(leaves)
		if err != nil {
			return AnchorResult{}, err
		}
		if root != m.Root {
			return AnchorResult{}, rmerror.New(rmerror.KindRootMismatch, "partition %s recomputed root %s disagrees with stored root %s", m.PartitionID, root, m.Root)
		}
		return AnchorResult{Anchored: true, PartitionID: m.PartitionID}, nil
	}
	return AnchorResult{Anchored: false}, nil
}

func reverseManifests(m []anchor.Manifest) {
	for i, j := 0, len(m)-1; i < j; i, j = i+1, j-1 {
		m[i], m[j] = m[j], m[i]
	}
}

// AnchorProof is the outcome of replaying a manifest against an
// external-ledger memo, per spec.md §4.6's second bullet.
type AnchorProof struct {
	OK          bool
	PartitionID string
	Root        string
}

// VerifyAnchorProof fetches the external-ledger transaction at txHash,
// decodes its memo, locates the corresponding local manifest, recomputes
// the Merkle root from the log, checks the stored manifest's self-binding
// manifestHash, and asserts root and manifestHash agree with what the memo
// claims.
func (o *Orchestrator) VerifyAnchorProof(ctx context.Context, client ledgerclient.Client, txHash string) (proof AnchorProof, err error) {
	if o.Telemetry != nil {
		var finish func(error)
		ctx, finish = o.Telemetry.TrackOperation(ctx, "verifyAnchor", observability.AttrAnchorRoot.String(txHash))
		defer func() { finish(err) }()
	}
	return o.verifyAnchorProof(ctx, client, txHash)
}

func (o *Orchestrator) verifyAnchorProof(ctx context.Context, client ledgerclient.Client, txHash string) (AnchorProof, error) {
	hexMemo, err := client.FetchMemo(ctx, txHash)
	if err != nil {
		return AnchorProof{}, rmerror.Wrap(rmerror.KindExternalLedgerUnavailable, err, "fetching memo for tx %s", txHash)
	}

	memo, err := anchor.DecodeMemo(hexMemo)
	if err != nil {
		return AnchorProof{}, err
	}
	if memo.V != anchor.ManifestSchemaVersion {
		return AnchorProof{}, rmerror.New(rmerror.KindMemoDecodeFailed, "memo schema version %d unsupported", memo.V)
	}

	stored, err := o.Manifest.Get(ctx, memo.PartitionID)
	if err != nil {
		return AnchorProof{}, rmerror.Wrap(rmerror.KindManifestUnavailable, err, "loading manifest for partition %s", memo.PartitionID)
	}
	if stored.Count != memo.Count {
		return AnchorProof{}, rmerror.New(rmerror.KindPartitionLeafCountMismatch, "stored count %d disagrees with memo count %d", stored.Count, memo.Count)
	}

	allEvents := o.Log.Events()
	partitionEvents, err := anchor.SelectPartition(allEvents, memo.PartitionID)
	if err != nil {
		return AnchorProof{}, err
	}
	leaves := make([]string, 0, len(partitionEvents))
	for _, e := range partitionEvents {
		h, err := eventlog.CanonicalHash(e)
		if err != nil {
			return AnchorProof{}, err
		}
		leaves = append(leaves, h)
	}

	root, err := anchor.MerkleRootHex(leaves)
	if err != nil {
		return AnchorProof{}, err
	}
	if root != memo.Root {
		return AnchorProof{}, rmerror.New(rmerror.KindRootMismatch, "recomputed root %s disagrees with memo root %s", root, memo.Root)
	}

	if err := anchor.VerifySelfBinding(stored); err != nil {
		return AnchorProof{}, err
	}
	if stored.ManifestHash != memo.ManifestHash {
		return AnchorProof{}, rmerror.New(rmerror.KindManifestTampered, "stored manifestHash %s disagrees with memo manifestHash %s", stored.ManifestHash, memo.ManifestHash)
	}

	return AnchorProof{OK: true, PartitionID: memo.PartitionID, Root: root}, nil
}
