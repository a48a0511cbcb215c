package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"path/filepath"

	"github.com/mcp-tool-shop-org/repomesh/pkg/attestation"
	"github.com/mcp-tool-shop-org/repomesh/pkg/config"
	"github.com/mcp-tool-shop-org/repomesh/pkg/eventlog"
	"github.com/mcp-tool-shop-org/repomesh/pkg/scoring"
)

// runComputeScoresCmd implements the computeScores predicate (C5): project
// a release's attested state through a named profile into integrity,
// assurance, and coverage scores.
func runComputeScoresCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("compute-scores", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		repo        string
		version      string
		profileName  string
		profilesDir  string
		overridesDir string
	)
	cmd.StringVar(&repo, "repo", "", "Repository identifier (REQUIRED)")
	cmd.StringVar(&version, "version", "", "Release version (REQUIRED)")
	cmd.StringVar(&profileName, "profile", "", "Profile name (defaults to REPOMESH_DEFAULT_PROFILE)")
	cmd.StringVar(&profilesDir, "profiles-dir", "", "Directory of profile_<name>.yaml files (defaults to <data-dir>/profiles)")
	cmd.StringVar(&overridesDir, "overrides-dir", "", "Directory of per-repo override YAML files (defaults to <data-dir>/overrides)")

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

	if profileName == "" {
		profileName = env.cfg.DefaultProfile
	}
	if profilesDir == "" {
		profilesDir = filepath.Join(env.cfg.DataDir, "profiles")
	}
	if overridesDir == "" {
		overridesDir = filepath.Join(env.cfg.DataDir, "overrides")
	}

	profile, err := config.LoadProfile(profilesDir, profileName)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	overrides, err := config.LoadOverrides(overridesDir, repo)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	var finish func(error)
	if env.telemetry != nil {
		ctx, finish = env.telemetry.TrackOperation(ctx, "computeScores")
		defer func() { finish(err) }()
	}

	events := env.log.Events()
	release, found := findReleaseEvent(events, repo, version)
	if !found {
		err = fmt.Errorf("repomesh: no ReleasePublished event for %s@%s", repo, version)
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	aggregator := attestation.NewAggregator(events)
	consensus := make(map[string]attestation.Consensus)
	for _, checkKind := range append(profile.RequiredChecks.Integrity, profile.RequiredChecks.Assurance...) {
		agg := aggregator.Aggregate(repo, version, checkKind, config.VerifierPolicy{CheckKind: checkKind, Mode: "open", ConflictPolicy: "fail-wins"})
		consensus[checkKind] = agg.Consensus
	}

	view := scoring.ReleaseView{Release: release, PolicyViolated: hasPolicyViolation(events, repo, version)}
	score := scoring.Compute(view, consensus, profile, overrides)

	return writeResult(stdout, map[string]interface{}{"ok": true, "score": score})
}

func findReleaseEvent(events []eventlog.Event, repo, version string) (eventlog.Event, bool) {
	for _, e := range events {
		if e.Type == eventlog.EventReleasePublished && e.Repo == repo && e.Version == version {
			return e, true
		}
	}
	return eventlog.Event{}, false
}

func hasPolicyViolation(events []eventlog.Event, repo, version string) bool {
	for _, e := range events {
		if e.Type == eventlog.EventPolicyViolation && e.Repo == repo && e.Version == version {
			return true
		}
	}
	return false
}
