// Package scoring implements the scoring engine (C5): integrity and
// assurance scores for a release, and the coverage projection that shows
// which required checks are attested, missing, or unattested.
package scoring

import (
	"sort"

	"github.com/mcp-tool-shop-org/repomesh/pkg/attestation"
	"github.com/mcp-tool-shop-org/repomesh/pkg/config"
	"github.com/mcp-tool-shop-org/repomesh/pkg/eventlog"
)

// Score is the computed result for one (repo, version) release.
type Score struct {
	Repo            string
	Version         string
	IntegrityScore  int
	AssuranceScore  int
	Breakdown       map[string]int
	ExpectedChecks  []string
	CompletedChecks []string
	MissingChecks   []string
}

const (
	pointsSigned             = 15
	pointsHasArtifacts       = 15
	pointsNoPolicyViolations = 15
	pointsSBOMPresent        = 20
	pointsProvenancePresent  = 20
	pointsSignatureChain     = 15
)

// ReleaseView is the subset of log state the scoring engine needs for one
// release: the release event itself plus whether any policy violation has
// been recorded against it. Other events touching the release reach the
// engine only through the per-check consensus map.
type ReleaseView struct {
	Release        eventlog.Event
	PolicyViolated bool
}

// ComputeIntegrityScore awards the fixed integrity points per §4.5. Every
// admitted release is "signed" unconditionally — admission itself proved
// the signature.
func ComputeIntegrityScore(view ReleaseView, consensus map[string]attestation.Consensus) (int, map[string]int) {
	breakdown := map[string]int{"signed": pointsSigned}
	total := pointsSigned

	if len(view.Release.Artifacts) > 0 {
		breakdown["hasArtifacts"] = pointsHasArtifacts
		total += pointsHasArtifacts
	}
	if !view.PolicyViolated {
		breakdown["noPolicyViolations"] = pointsNoPolicyViolations
		total += pointsNoPolicyViolations
	}
	if hasInlineOrConsensusPass(view.Release, consensus, "sbom", "sbom.present") {
		breakdown["sbom.present"] = pointsSBOMPresent
		total += pointsSBOMPresent
	}
	if hasInlineOrConsensusPass(view.Release, consensus, "provenance", "provenance.present") {
		breakdown["provenance.present"] = pointsProvenancePresent
		total += pointsProvenancePresent
	}
	if consensus["signature.chain"] == attestation.ConsensusPass {
		breakdown["signature.chain"] = pointsSignatureChain
		total += pointsSignatureChain
	}

	if total > 100 {
		total = 100
	}
	return total, breakdown
}

func hasInlineOrConsensusPass(release eventlog.Event, consensus map[string]attestation.Consensus, inlineNames ...string) bool {
	if consensus[inlineNames[len(inlineNames)-1]] == attestation.ConsensusPass {
		return true
	}
	for _, att := range release.Attestations {
		for _, name := range inlineNames {
			if att.Type == name {
				return true
			}
		}
	}
	return false
}

// ComputeAssuranceScore awards weights[consensus] for each required check,
// normalizing the raw sum to 0-100 when the configured pass-weights do not
// already sum to 100.
func ComputeAssuranceScore(requiredChecks []string, consensus map[string]attestation.Consensus, weights map[string]config.CheckWeights) (int, map[string]int) {
	breakdown := make(map[string]int, len(requiredChecks))
	if len(requiredChecks) == 0 {
		return 0, breakdown
	}

	rawSum := 0
	maxPossible := 0
	for _, check := range requiredChecks {
		w, ok := weights[check]
		if !ok {
			breakdown[check] = 0
			continue
		}
		maxPossible += w.Pass

		awarded := 0
		switch consensus[check] {
		case attestation.ConsensusPass:
			awarded = w.Pass
		case attestation.ConsensusWarn:
			awarded = w.Warn
		case attestation.ConsensusFail:
			awarded = w.Fail
		default:
			awarded = 0 // untrusted/mixed/unattested
		}
		breakdown[check] = awarded
		rawSum += awarded
	}

	if maxPossible == 0 {
		return 0, breakdown
	}
	if maxPossible == 100 {
		if rawSum > 100 {
			rawSum = 100
		}
		return rawSum, breakdown
	}

	normalized := (rawSum * 100) / maxPossible
	if normalized > 100 {
		normalized = 100
	}
	return normalized, breakdown
}

// Coverage is the expected/completed/missing check projection for a
// release against its effective profile.
type Coverage struct {
	ExpectedChecks  []string
	CompletedChecks []string
	MissingChecks   []string
}

// ComputeCoverage compares the profile's required sets against the
// per-check consensus map: a check counts as completed once any consensus
// value (including untrusted/mixed) has been recorded for it, missing
// otherwise.
func ComputeCoverage(profile *config.Profile, consensus map[string]attestation.Consensus) Coverage {
	expected := append(append([]string{}, profile.RequiredChecks.Integrity...), profile.RequiredChecks.Assurance...)
	sort.Strings(expected)

	var completed, missing []string
	for _, check := range expected {
		if _, ok := consensus[check]; ok {
			completed = append(completed, check)
		} else {
			missing = append(missing, check)
		}
	}
	return Coverage{ExpectedChecks: expected, CompletedChecks: completed, MissingChecks: missing}
}

// Compute assembles the full Score for a release given its view, the
// per-check consensus map, and its effective profile/overrides.
func Compute(view ReleaseView, consensus map[string]attestation.Consensus, profile *config.Profile, overrides *config.Overrides) Score {
	integrity, integrityBreakdown := ComputeIntegrityScore(view, consensus)

	weights := config.EffectiveWeights(profile, overrides)
	assurance, assuranceBreakdown := ComputeAssuranceScore(profile.RequiredChecks.Assurance, consensus, weights)

	coverage := ComputeCoverage(profile, consensus)

	breakdown := make(map[string]int, len(integrityBreakdown)+len(assuranceBreakdown))
	for k, v := range integrityBreakdown {
		breakdown[k] = v
	}
	for k, v := range assuranceBreakdown {
		breakdown[k] = v
	}

	return Score{
		Repo:            view.Release.Repo,
		Version:         view.Release.Version,
		IntegrityScore:  integrity,
		AssuranceScore:  assurance,
		Breakdown:       breakdown,
		ExpectedChecks:  coverage.ExpectedChecks,
		CompletedChecks: coverage.CompletedChecks,
		MissingChecks:   coverage.MissingChecks,
	}
}
