package main

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/mcp-tool-shop-org/repomesh/pkg/attestation"
	"github.com/mcp-tool-shop-org/repomesh/pkg/config"
)

// runAggregateAttestationsCmd implements the aggregateAttestations
// predicate (C4): resolve consensus for one (repo, version, checkKind)
// across every independent attestor that has published a verdict.
func runAggregateAttestationsCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("aggregate-attestations", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		repo           string
		version        string
		checkKind      string
		mode           string
		conflictPolicy string
		quorum         int
		trustedNodes   stringSliceFlag
	)
	cmd.StringVar(&repo, "repo", "", "Repository identifier (REQUIRED)")
	cmd.StringVar(&version, "version", "", "Release version (REQUIRED)")
	cmd.StringVar(&checkKind, "check", "", "Check kind, e.g. license.audit (REQUIRED)")
	cmd.StringVar(&mode, "mode", "open", `Verifier policy mode: "open" or "trusted-set"`)
	cmd.StringVar(&conflictPolicy, "conflict-policy", "fail-wins", `"fail-wins", "majority", or "quorum-pass"`)
	cmd.IntVar(&quorum, "quorum", 0, "Quorum count, used only with -conflict-policy=quorum-pass")
	cmd.Var(&trustedNodes, "trusted-node", "Trusted participant id; repeatable, used only with -mode=trusted-set")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if repo == "" || version == "" || checkKind == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --repo, --version, and --check are required")
		return 2
	}

	ctx := context.Background()
	env, err := newEnvironment(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer env.close(ctx)

	if env.telemetry != nil {
		var finish func(error)
		_, finish = env.telemetry.TrackOperation(ctx, "aggregateAttestations")
		defer func() { finish(err) }()
	}

	policy := config.VerifierPolicy{
		CheckKind:      checkKind,
		Mode:           mode,
		TrustedNodes:   trustedNodes,
		ConflictPolicy: conflictPolicy,
		Quorum:         quorum,
	}

	aggregator := attestation.NewAggregator(env.log.Events())
	agg, err := aggregator.AggregateWithGate(env.attestationGate, repo, version, checkKind, policy)
	if err != nil {
		return writeError(stderr, err)
	}

	return writeResult(stdout, map[string]interface{}{"ok": true, "aggregate": agg})
}

// stringSliceFlag implements flag.Value to collect a repeatable string
// flag into a slice, matching how the teacher binary's own multi-value
// flags are declared.
type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	if s == nil {
		return ""
	}
	return fmt.Sprint([]string(*s))
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, value)
	return nil
}
