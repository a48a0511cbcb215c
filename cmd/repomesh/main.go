package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"

	"github.com/mcp-tool-shop-org/repomesh/pkg/rmerror"
)

// Dispatcher
func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint for testing: it never calls os.Exit itself so a
// test can assert on the returned code.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stdout)
		return 2
	}

	switch args[1] {
	case "verify-release":
		return runVerifyReleaseCmd(args[2:], stdout, stderr)
	case "verify-anchor":
		return runVerifyAnchorCmd(args[2:], stdout, stderr)
	case "compute-scores":
		return runComputeScoresCmd(args[2:], stdout, stderr)
	case "aggregate-attestations":
		return runAggregateAttestationsCmd(args[2:], stdout, stderr)
	case "append-batch":
		return runAppendBatchCmd(args[2:], stdout, stderr)
	case "emit-anchor":
		return runEmitAnchorCmd(args[2:], stdout, stderr)
	case "sign-event":
		return runSignEventCmd(args[2:], stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

// ANSI Colors
const (
	ColorReset  = "\033[0m"
	ColorBold   = "\033[1m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorBlue   = "\033[34m"
	ColorCyan   = "\033[36m"
	ColorGray   = "\033[37m"
)

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "%srepomesh %s%s\n", ColorBold+ColorBlue, "v0.1.0", ColorReset)
	fmt.Fprintf(w, "%sa thin driver over repomesh-core's exposed predicates%s\n", ColorGray, ColorReset)
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "%sUSAGE:%s\n", ColorBold, ColorReset)
	fmt.Fprintln(w, "  repomesh <command> [flags]")
	fmt.Fprintln(w, "")

	printSection(w, "VERIFICATION (C6)")
	printCommand(w, "verify-release", "Verify a release end-to-end (--repo, --version, --anchored)")
	printCommand(w, "verify-anchor", "Replay an anchor proof against an external-ledger tx (--tx)")

	printSection(w, "SCORING & ATTESTATION (C4, C5)")
	printCommand(w, "compute-scores", "Compute integrity/assurance scores for a release (--repo, --version, --profile)")
	printCommand(w, "aggregate-attestations", "Aggregate attestations for a check kind (--repo, --version, --check)")

	printSection(w, "LOG & ANCHORING (C2, C3)")
	printCommand(w, "append-batch", "Admit a batch of signed events (--file, newline-delimited JSON)")
	printCommand(w, "emit-anchor", "Materialize and submit the next anchor partition")

	printSection(w, "DEVELOPMENT")
	printCommand(w, "sign-event", "Sign an event with a disk-persisted dev key (--file, --key-id)")
	printCommand(w, "help", "Show this help")
	fmt.Fprintln(w, "")
}

func printSection(w io.Writer, title string) {
	fmt.Fprintf(w, "%s%s:%s\n", ColorBold+ColorCyan, title, ColorReset)
}

func printCommand(w io.Writer, name, desc string) {
	fmt.Fprintf(w, "  %s%-24s%s %s\n", ColorGreen, name, ColorReset, desc)
}

// writeResult prints a successful structured result as indented JSON.
func writeResult(w io.Writer, v interface{}) int {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		_, _ = fmt.Fprintf(w, `{"ok":false,"kind":"MalformedEvent","detail":%q}`+"\n", err.Error())
		return 2
	}
	_, _ = fmt.Fprintln(w, string(data))
	return 0
}

// writeError prints a failed predicate's RFC 7807 ProblemDetail to stderr
// and returns the exit code a warn-class kind should produce (1, same as a
// plain verification failure) versus a hard error (2).
func writeError(w io.Writer, err error) int {
	rmErr := rmerror.AsRepomeshError(err)
	if rmErr == nil {
		_, _ = fmt.Fprintf(w, `{"ok":false,"kind":"Internal","detail":%q}`+"\n", err.Error())
		return 2
	}
	problem := rmErr.ToProblemDetail("", uuid.NewString())
	data, _ := json.MarshalIndent(map[string]interface{}{"ok": false, "problem": problem}, "", "  ")
	_, _ = fmt.Fprintln(w, string(data))
	if rmerror.ClassificationOf(rmErr.Kind) == rmerror.ClassWarn {
		return 1
	}
	return 2
}
