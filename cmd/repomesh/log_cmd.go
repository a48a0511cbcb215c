package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/mcp-tool-shop-org/repomesh/pkg/eventlog"
)

// runAppendBatchCmd implements the appendBatch predicate (C2): admit a
// newline-delimited batch of signed event JSON lines, all-or-nothing.
func runAppendBatchCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("append-batch", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var file string
	cmd.StringVar(&file, "file", "", "Path to a newline-delimited JSON batch of signed events (REQUIRED)")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if file == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --file is required")
		return 2
	}

	data, err := os.ReadFile(file)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: reading %s: %v\n", file, err)
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
		_, finish = env.telemetry.TrackOperation(ctx, "appendBatch")
		defer func() { finish(err) }()
	}

	batch := eventlog.SplitLines(data)
	lenBefore := env.log.Len()

	if err = env.log.Admit(batch); err != nil {
		return writeError(stderr, err)
	}
	if err = env.persistLog(); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: persisting log: %v\n", err)
		return 2
	}

	return writeResult(stdout, map[string]interface{}{
		"ok":      true,
		"admitted": env.log.Len() - lenBefore,
		"total":   env.log.Len(),
	})
}
