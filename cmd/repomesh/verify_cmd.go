package main

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/mcp-tool-shop-org/repomesh/pkg/verify"
)

// runVerifyReleaseCmd implements the verifyRelease predicate as a
// subcommand: the end-to-end "is this release authentic, attested, and
// (optionally) anchored?" check, per spec.md §4.6.
func runVerifyReleaseCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("verify-release", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		repo     string
		version  string
		anchored bool
	)
	cmd.StringVar(&repo, "repo", "", "Repository identifier, e.g. acme/widgets (REQUIRED)")
	cmd.StringVar(&version, "version", "", "Release version (REQUIRED)")
	cmd.BoolVar(&anchored, "anchored", false, "Also walk recorded manifests for anchor inclusion")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if repo == "" || version == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --repo and --version are required")
		return 2
	}

	ctx := context.Background()
	env, err := newEnvironment(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer env.close(ctx)

	orchestrator := verify.New(env.log, env.registry, env.verifier, env.manifests)
	if env.telemetry != nil {
		orchestrator.WithTelemetry(env.telemetry)
	}

	result, err := orchestrator.VerifyRelease(ctx, repo, version, anchored)
	if err != nil {
		return writeError(stderr, err)
	}

	code := writeResult(stdout, map[string]interface{}{"ok": result.OK, "result": result})
	if !result.OK {
		return 1
	}
	return code
}

// runVerifyAnchorCmd implements the verifyAnchor predicate: replaying a
// manifest against an external-ledger memo found at txHash.
func runVerifyAnchorCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("verify-anchor", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var txHash string
	cmd.StringVar(&txHash, "tx", "", "External-ledger transaction hash (REQUIRED)")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if txHash == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --tx is required")
		return 2
	}

	ctx := context.Background()
	env, err := newEnvironment(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer env.close(ctx)

	orchestrator := verify.New(env.log, env.registry, env.verifier, env.manifests)
	if env.telemetry != nil {
		orchestrator.WithTelemetry(env.telemetry)
	}

	proof, err := orchestrator.VerifyAnchorProof(ctx, env.ledger, txHash)
	if err != nil {
		return writeError(stderr, err)
	}

	code := writeResult(stdout, map[string]interface{}{"ok": proof.OK, "result": proof})
	if !proof.OK {
		return 1
	}
	return code
}
