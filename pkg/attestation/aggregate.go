// Package attestation implements the attestation aggregator (C4):
// collecting per-check verdicts from AttestationPublished events and
// resolving them to a consensus under a verifier policy.
package attestation

import (
	"regexp"
	"sort"
	"strings"

	"github.com/mcp-tool-shop-org/repomesh/pkg/config"
	"github.com/mcp-tool-shop-org/repomesh/pkg/eventlog"
	"github.com/mcp-tool-shop-org/repomesh/pkg/policygate"
)

// Verdict is a single source's opinion on a check.
type Verdict string

const (
	VerdictPass Verdict = "pass"
	VerdictWarn Verdict = "warn"
	VerdictFail Verdict = "fail"
)

// Consensus is the resolved outcome across all surviving sources for one
// check on one release.
type Consensus string

const (
	ConsensusPass      Consensus = "pass"
	ConsensusWarn      Consensus = "warn"
	ConsensusFail      Consensus = "fail"
	ConsensusMixed     Consensus = "mixed"
	ConsensusUntrusted Consensus = "untrusted"
)

// Source is one signer's verdict on a check, extracted from a single
// AttestationPublished event.
type Source struct {
	SignerNode string
	Verdict    Verdict
	EventIndex int // position in the log, earliest wins on duplicate signer
}

// Dispute is an attestation.dispute event surfaced alongside an
// aggregate — observational only, never altering the consensus.
type Dispute struct {
	SignerNode string
	TargetHash string // canonical hash of the disputed attestation, from notes
	Notes      string
}

// Aggregate is the per-(repo, version, checkKind) aggregation result.
type Aggregate struct {
	Repo      string
	Version   string
	CheckKind string
	Sources   []Source
	Consensus Consensus
	Disputes  []Dispute
}

var uriVerdictPattern = regexp.MustCompile(`^repomesh:attestor:([a-z][a-z0-9.]*):(pass|warn|fail)$`)
var notesVerdictPattern = regexp.MustCompile(`^([a-z][a-z0-9.]*):\s*(pass|warn|fail)\s*(?:—|-)?\s*(.*)$`)

// ExtractVerdict reads a check kind and verdict from an attestation's URI,
// falling back to the structured notes prefix when the URI does not carry
// the grammar directly.
func ExtractVerdict(att eventlog.Attestation, notes string) (kind string, verdict Verdict, ok bool) {
	if m := uriVerdictPattern.FindStringSubmatch(att.URI); m != nil {
		return m[1], Verdict(m[2]), true
	}
	if m := notesVerdictPattern.FindStringSubmatch(strings.TrimSpace(notes)); m != nil {
		return m[1], Verdict(m[2]), true
	}
	return "", "", false
}

// Aggregator collects AttestationPublished events and resolves consensus.
type Aggregator struct {
	events []eventlog.Event
}

// NewAggregator builds an aggregator over an ordered event slice, as
// returned by an eventlog.Log.
func NewAggregator(events []eventlog.Event) *Aggregator {
	return &Aggregator{events: events}
}

// Aggregate resolves the consensus for (repo, version, checkKind) under
// policy. Every attestation.dispute entry on the same (repo, version) is
// returned alongside, whatever it targets, but never changes the consensus
// value itself.
func (a *Aggregator) Aggregate(repo, version, checkKind string, policy config.VerifierPolicy) Aggregate {
	sources := a.collectSources(repo, version, checkKind)
	disputes := a.collectDisputes(repo, version, checkKind)

	result := Aggregate{Repo: repo, Version: version, CheckKind: checkKind, Sources: sources, Disputes: disputes}

	surviving := sources
	if policy.Mode == "trusted-set" {
		surviving = filterTrusted(sources, policy.TrustedNodes)
		if len(surviving) == 0 {
			result.Consensus = ConsensusUntrusted
			return result
		}
	}

	if len(surviving) == 0 {
		result.Consensus = ConsensusUntrusted
		return result
	}

	if allAgree(surviving) {
		result.Consensus = Consensus(surviving[0].Verdict)
		return result
	}

	switch policy.ConflictPolicy {
	case "majority":
		result.Consensus = majorityConsensus(surviving)
	case "quorum-pass":
		result.Consensus = quorumConsensus(surviving, policy.Quorum)
	default: // "fail-wins", and the safe default for an unrecognized policy
		result.Consensus = failWinsConsensus(surviving)
	}
	return result
}

func (a *Aggregator) collectSources(repo, version, checkKind string) []Source {
	seen := make(map[string]bool)
	var sources []Source
	for i, e := range a.events {
		if e.Type != eventlog.EventAttestationPublished || e.Repo != repo || e.Version != version {
			continue
		}
		for _, att := range e.Attestations {
			kind, verdict, ok := ExtractVerdict(att, e.Notes)
			if !ok || kind != checkKind {
				continue
			}
			signer := e.Signature.KeyID
			if seen[signer] {
				continue // earliest observation per signer wins
			}
			seen[signer] = true
			sources = append(sources, Source{SignerNode: signer, Verdict: verdict, EventIndex: i})
		}
	}
	return sources
}

// disputeAttestationType marks an attestation entry as disputing another
// attestation (identified by canonical hash in the event's notes) rather
// than reporting a check verdict of its own.
const disputeAttestationType = "attestation.dispute"

func (a *Aggregator) collectDisputes(repo, version, checkKind string) []Dispute {
	var disputes []Dispute
	for _, e := range a.events {
		if e.Type != eventlog.EventAttestationPublished || e.Repo != repo || e.Version != version {
			continue
		}
		for _, att := range e.Attestations {
			if att.Type != disputeAttestationType {
				continue
			}
			disputes = append(disputes, Dispute{
				SignerNode: e.Signature.KeyID,
				TargetHash: extractDisputeTarget(e.Notes),
				Notes:      e.Notes,
			})
		}
	}
	return disputes
}

var disputeTargetPattern = regexp.MustCompile(`[0-9a-f]{64}`)

func extractDisputeTarget(notes string) string {
	if m := disputeTargetPattern.FindString(notes); m != "" {
		return m
	}
	return ""
}

func filterTrusted(sources []Source, trusted []string) []Source {
	allowed := make(map[string]bool, len(trusted))
	for _, n := range trusted {
		allowed[n] = true
	}
	var out []Source
	for _, s := range sources {
		if allowed[s.SignerNode] {
			out = append(out, s)
		}
	}
	return out
}

func allAgree(sources []Source) bool {
	for i := 1; i < len(sources); i++ {
		if sources[i].Verdict != sources[0].Verdict {
			return false
		}
	}
	return true
}

// failWinsConsensus: fail beats warn beats pass; with no fail/warn present
// but non-unanimity (unreachable given allAgree already handled unanimous
// cases, kept for clarity) consensus would be mixed.
func failWinsConsensus(sources []Source) Consensus {
	hasFail, hasWarn := false, false
	for _, s := range sources {
		switch s.Verdict {
		case VerdictFail:
			hasFail = true
		case VerdictWarn:
			hasWarn = true
		}
	}
	switch {
	case hasFail:
		return ConsensusFail
	case hasWarn:
		return ConsensusWarn
	default:
		return ConsensusMixed
	}
}

func majorityConsensus(sources []Source) Consensus {
	counts := map[Verdict]int{}
	for _, s := range sources {
		counts[s.Verdict]++
	}
	order := []Verdict{VerdictFail, VerdictWarn, VerdictPass} // safety tiebreak order
	best := order[0]
	bestCount := -1
	for _, v := range order {
		if counts[v] > bestCount {
			bestCount = counts[v]
			best = v
		}
	}
	// A true tie between two verdicts resolves to whichever is safer —
	// iterate in safety order and keep strict > so earlier (safer) wins ties.
	return Consensus(best)
}

func quorumConsensus(sources []Source, quorum int) Consensus {
	passCount := 0
	for _, s := range sources {
		if s.Verdict == VerdictPass {
			passCount++
		}
	}
	if passCount >= quorum {
		return ConsensusPass
	}
	return ConsensusFail
}

// AggregateWithGate runs the fail-closed policygate system rules against
// the verifier policy before resolving consensus, rejecting a malformed
// policy (e.g. trusted-set naming no trusted nodes) outright rather than
// silently degrading to ConsensusUntrusted. gate may be nil, in which
// case this is equivalent to Aggregate.
func (a *Aggregator) AggregateWithGate(gate *policygate.Gate, repo, version, checkKind string, policy config.VerifierPolicy) (Aggregate, error) {
	if gate != nil {
		input := map[string]any{
			"policy": map[string]any{
				"mode":           policy.Mode,
				"trustedNodes":   policy.TrustedNodes,
				"conflictPolicy": policy.ConflictPolicy,
				"quorum":         int64(policy.Quorum),
			},
			"sources": []any{},
		}
		if err := gate.Evaluate(input, ""); err != nil {
			return Aggregate{}, err
		}
	}
	return a.Aggregate(repo, version, checkKind, policy), nil
}

// SortedSigners returns the source signer node IDs in stable order, for
// deterministic output.
func SortedSigners(sources []Source) []string {
	out := make([]string, len(sources))
	for i, s := range sources {
		out[i] = s.SignerNode
	}
	sort.Strings(out)
	return out
}
