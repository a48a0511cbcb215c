package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/mcp-tool-shop-org/repomesh/pkg/anchor"
	"github.com/mcp-tool-shop-org/repomesh/pkg/config"
	"github.com/mcp-tool-shop-org/repomesh/pkg/eventlog"
)

// runEmitAnchorCmd implements the emitAnchor predicate (C3): select the
// next unanchored partition of the event log, materialize its manifest,
// and submit the manifest's memo to the external ledger.
func runEmitAnchorCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("emit-anchor", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	if err := cmd.Parse(args); err != nil {
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
		_, finish = env.telemetry.TrackOperation(ctx, "emitAnchor")
		defer func() { finish(err) }()
	}

	allEvents := env.log.Events()

	var prevRoot *string
	lastAnchorTimestamp := ""
	if latest, found, lerr := env.manifests.Latest(ctx); lerr != nil {
		err = lerr
		_, _ = fmt.Fprintf(stderr, "Error: reading latest manifest: %v\n", err)
		return 2
	} else if found {
		root := latest.Root
		prevRoot = &root
		if len(latest.Range) == 2 {
			ts, terr := timestampOfLeaf(allEvents, latest.Range[1])
			if terr != nil {
				err = terr
				_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
				return 2
			}
			lastAnchorTimestamp = ts
		}
	}

	partitionID := anchor.NextPartitionID(lastAnchorTimestamp)
	events, err := anchor.SelectPartition(allEvents, partitionID)
	if err != nil {
		return writeError(stderr, err)
	}
	if len(events) == 0 {
		return writeResult(stdout, map[string]interface{}{
			"ok":      true,
			"skipped": true,
			"reason":  "no new events to anchor",
		})
	}

	leafHexes := make([]string, 0, len(events))
	for _, e := range events {
		leaf, herr := eventlog.CanonicalHash(e)
		if herr != nil {
			err = herr
			return writeError(stderr, err)
		}
		leafHexes = append(leafHexes, leaf)
	}

	manifest, err := anchor.Materialize(partitionID, env.cfg.Network, prevRoot, leafHexes)
	if err != nil {
		return writeError(stderr, err)
	}

	if err = checkManifestGate(env, *manifest); err != nil {
		return writeError(stderr, err)
	}

	memo, err := anchor.EncodeMemo(*manifest)
	if err != nil {
		return writeError(stderr, err)
	}

	result, err := env.ledger.Submit(ctx, memo)
	if err != nil {
		return writeError(stderr, err)
	}

	if err = env.manifests.Put(ctx, *manifest, memo); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: persisting manifest: %v\n", err)
		return 2
	}

	return writeResult(stdout, map[string]interface{}{
		"ok":       true,
		"manifest": manifest,
		"txHash":   result.TxHash,
	})
}

// checkManifestGate runs the manifest policygate's structural system rules
// over the about-to-be-persisted manifest, paired with whatever the data
// directory's default profile declares — the manifest/profile validation
// half of the CEL policy shared with aggregateAttestations (pkg/policygate
// also serves attest_cmd.go). A missing profile file is not fatal here:
// the rules that matter for a manifest are structural and don't depend on
// profile content existing.
func checkManifestGate(env *environment, m anchor.Manifest) error {
	profilesDir := filepath.Join(env.cfg.DataDir, "profiles")
	profileInput := map[string]any{}
	if profile, err := config.LoadProfile(profilesDir, env.cfg.DefaultProfile); err == nil {
		profileInput["name"] = profile.Name
		profileInput["requiredEvidence"] = profile.RequiredEvidence
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}

	input := map[string]any{
		"manifest": map[string]any{
			"schemaVersion": int64(m.V),
			"algo":          m.Algo,
			"count":         int64(m.Count),
		},
		"profile": profileInput,
	}
	return env.manifestGate.Evaluate(input, "")
}

// timestampOfLeaf finds the event whose canonical hash matches leafHex and
// returns its Timestamp — the anchor manifest records leaf content hashes,
// not timestamps directly, so NextPartitionID's "since:<ts>" selector needs
// this lookup to resume partitioning after the last anchored event.
func timestampOfLeaf(events []eventlog.Event, leafHex string) (string, error) {
	for _, e := range events {
		hash, err := eventlog.CanonicalHash(e)
		if err != nil {
			return "", err
		}
		if hash == leafHex {
			return e.Timestamp, nil
		}
	}
	return "", fmt.Errorf("repomesh: no event in the log matches the last anchored leaf %s", leafHex)
}
