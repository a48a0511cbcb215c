package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/mcp-tool-shop-org/repomesh/pkg/eventlog"
)

// runSignEventCmd is a development helper, not one of the six predicates:
// it signs an unsigned event JSON file with a disk-persisted Ed25519 test
// key so operators can hand-assemble a batch for append-batch without
// standing up a real participant's signing infrastructure.
func runSignEventCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("sign-event", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		file   string
		keyID  string
		dataDir string
	)
	cmd.StringVar(&file, "file", "", "Path to an unsigned event JSON document (REQUIRED)")
	cmd.StringVar(&keyID, "key-id", "dev", "Test signing key name, reused across invocations")
	cmd.StringVar(&dataDir, "data-dir", "", "Key storage directory (defaults to REPOMESH_DATA_DIR)")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if file == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --file is required")
		return 2
	}

	raw, err := os.ReadFile(file)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: reading %s: %v\n", file, err)
		return 2
	}
	var event eventlog.Event
	if err := json.Unmarshal(raw, &event); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: parsing %s: %v\n", file, err)
		return 2
	}

	if dataDir == "" {
		dataDir = os.Getenv("REPOMESH_DATA_DIR")
		if dataDir == "" {
			dataDir = "data"
		}
	}

	signer, err := loadOrGenerateTestSigner(dataDir, keyID)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	event.Signature = eventlog.Signature{Alg: "ed25519", KeyID: signer.KeyID()}

	canonicalHash, err := eventlog.CanonicalHash(event)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: computing canonical hash: %v\n", err)
		return 2
	}
	hashBytes, err := eventlog.HashBytes(canonicalHash)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	sigHex, err := signer.Sign(hashBytes)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: signing: %v\n", err)
		return 2
	}

	event.Signature.Value = sigHex
	event.Signature.CanonicalHash = canonicalHash

	return writeResult(stdout, map[string]interface{}{
		"ok":           true,
		"event":        event,
		"publicKeyHex": signer.PublicKeyHex(),
	})
}
