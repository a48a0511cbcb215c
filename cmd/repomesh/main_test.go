package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/mcp-tool-shop-org/repomesh/pkg/participant"
)

// withDataDir points REPOMESH_DATA_DIR at a fresh temp directory for the
// duration of one test, so each test gets its own sqlite db and key files.
func withDataDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("REPOMESH_DATA_DIR", dir)
	t.Setenv("REPOMESH_LEDGER_RPC_URL", "")
	return dir
}

// seedParticipant writes a one-maintainer participant manifest into
// dataDir/participants, so that a ReleasePublished event signed by keyID
// under repo's own identity resolves during admission — mirroring how an
// operator would register a repo's maintainer key before its first release.
func seedParticipant(t *testing.T, dataDir, repo, keyID, publicKeyHex string) {
	t.Helper()
	participantsDir := filepath.Join(dataDir, "participants")
	if err := os.MkdirAll(participantsDir, 0o750); err != nil {
		t.Fatalf("mkdir participants dir: %v", err)
	}
	m := participant.Manifest{
		ID:   repo,
		Kind: participant.KindRegistry,
		Maintainers: []participant.Maintainer{
			{Name: "test maintainer", KeyID: keyID, PublicKey: publicKeyHex},
		},
	}
	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal manifest: %v", err)
	}
	fileName := filepath.Join(participantsDir, "acme-widgets.json")
	if err := os.WriteFile(fileName, data, 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
}

func TestRun_HelpPrintsUsageAndExitsZero(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Run([]string{"repomesh", "help"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}
	if !bytes.Contains(stdout.Bytes(), []byte("repomesh")) {
		t.Error("expected usage banner in stdout")
	}
}

func TestRun_UnknownCommandExitsTwo(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Run([]string{"repomesh", "not-a-command"}, &stdout, &stderr)
	if code != 2 {
		t.Fatalf("exit code = %d, want 2", code)
	}
}

func TestRun_SignEventThenAppendBatch(t *testing.T) {
	dir := withDataDir(t)

	signer, err := loadOrGenerateTestSigner(dir, "test-signer")
	if err != nil {
		t.Fatalf("loadOrGenerateTestSigner: %v", err)
	}
	seedParticipant(t, dir, "acme/widgets", signer.KeyID(), signer.PublicKeyHex())

	eventPath := filepath.Join(dir, "event.json")
	unsigned := `{
		"type": "ReleasePublished",
		"repo": "acme/widgets",
		"version": "1.0.0",
		"commit": "abc123",
		"timestamp": "2026-01-01T00:00:00Z"
	}`
	if err := os.WriteFile(eventPath, []byte(unsigned), 0o644); err != nil {
		t.Fatalf("write event fixture: %v", err)
	}

	var signOut, signErr bytes.Buffer
	code := Run([]string{"repomesh", "sign-event", "--file", eventPath, "--key-id", "test-signer"}, &signOut, &signErr)
	if code != 0 {
		t.Fatalf("sign-event exit code = %d, stderr = %s", code, signErr.String())
	}

	var signed struct {
		OK    bool            `json:"ok"`
		Event json.RawMessage `json:"event"`
	}
	if err := json.Unmarshal(signOut.Bytes(), &signed); err != nil {
		t.Fatalf("parse sign-event output: %v", err)
	}
	if !signed.OK {
		t.Fatal("sign-event reported ok=false")
	}

	batchPath := filepath.Join(dir, "batch.jsonl")
	if err := os.WriteFile(batchPath, append(signed.Event, '\n'), 0o644); err != nil {
		t.Fatalf("write batch fixture: %v", err)
	}

	var appendOut, appendErr bytes.Buffer
	code = Run([]string{"repomesh", "append-batch", "--file", batchPath}, &appendOut, &appendErr)
	if code != 0 {
		t.Fatalf("append-batch exit code = %d, stderr = %s", code, appendErr.String())
	}

	var result struct {
		OK       bool `json:"ok"`
		Admitted int  `json:"admitted"`
		Total    int  `json:"total"`
	}
	if err := json.Unmarshal(appendOut.Bytes(), &result); err != nil {
		t.Fatalf("parse append-batch output: %v", err)
	}
	if result.Admitted != 1 || result.Total != 1 {
		t.Errorf("result = %+v, want admitted=1 total=1", result)
	}
}

func TestRun_AppendBatchMissingFileFlagExitsTwo(t *testing.T) {
	withDataDir(t)

	var stdout, stderr bytes.Buffer
	code := Run([]string{"repomesh", "append-batch"}, &stdout, &stderr)
	if code != 2 {
		t.Fatalf("exit code = %d, want 2", code)
	}
}

func TestRun_EmitAnchorMaterializesAndSubmitsPartition(t *testing.T) {
	dir := withDataDir(t)

	signer, err := loadOrGenerateTestSigner(dir, "test-signer")
	if err != nil {
		t.Fatalf("loadOrGenerateTestSigner: %v", err)
	}
	seedParticipant(t, dir, "acme/widgets", signer.KeyID(), signer.PublicKeyHex())

	eventPath := filepath.Join(dir, "event.json")
	unsigned := `{
		"type": "ReleasePublished",
		"repo": "acme/widgets",
		"version": "1.0.0",
		"commit": "abc123",
		"timestamp": "2026-01-01T00:00:00Z"
	}`
	if err := os.WriteFile(eventPath, []byte(unsigned), 0o644); err != nil {
		t.Fatalf("write event fixture: %v", err)
	}

	var signOut, signErr bytes.Buffer
	if code := Run([]string{"repomesh", "sign-event", "--file", eventPath, "--key-id", "test-signer"}, &signOut, &signErr); code != 0 {
		t.Fatalf("sign-event exit code = %d, stderr = %s", code, signErr.String())
	}
	var signed struct {
		Event json.RawMessage `json:"event"`
	}
	if err := json.Unmarshal(signOut.Bytes(), &signed); err != nil {
		t.Fatalf("parse sign-event output: %v", err)
	}
	batchPath := filepath.Join(dir, "batch.jsonl")
	if err := os.WriteFile(batchPath, append(signed.Event, '\n'), 0o644); err != nil {
		t.Fatalf("write batch fixture: %v", err)
	}
	var appendOut, appendErr bytes.Buffer
	if code := Run([]string{"repomesh", "append-batch", "--file", batchPath}, &appendOut, &appendErr); code != 0 {
		t.Fatalf("append-batch exit code = %d, stderr = %s", code, appendErr.String())
	}

	var anchorOut, anchorErr bytes.Buffer
	code := Run([]string{"repomesh", "emit-anchor"}, &anchorOut, &anchorErr)
	if code != 0 {
		t.Fatalf("emit-anchor exit code = %d, stderr = %s", code, anchorErr.String())
	}

	var result struct {
		OK       bool   `json:"ok"`
		TxHash   string `json:"txHash"`
		Manifest struct {
			PartitionID string `json:"partitionId"`
			Count       int    `json:"count"`
		} `json:"manifest"`
	}
	if err := json.Unmarshal(anchorOut.Bytes(), &result); err != nil {
		t.Fatalf("parse emit-anchor output: %v", err)
	}
	if result.TxHash == "" {
		t.Error("expected a non-empty tx hash")
	}
	if result.Manifest.PartitionID != "genesis" {
		t.Errorf("partitionId = %s, want genesis", result.Manifest.PartitionID)
	}
	if result.Manifest.Count != 1 {
		t.Errorf("manifest count = %d, want 1", result.Manifest.Count)
	}

	var emptyOut, emptyErr bytes.Buffer
	code = Run([]string{"repomesh", "emit-anchor"}, &emptyOut, &emptyErr)
	if code != 0 {
		t.Fatalf("second emit-anchor exit code = %d, stderr = %s", code, emptyErr.String())
	}
	var skipped struct {
		Skipped bool `json:"skipped"`
	}
	if err := json.Unmarshal(emptyOut.Bytes(), &skipped); err != nil {
		t.Fatalf("parse second emit-anchor output: %v", err)
	}
	if !skipped.Skipped {
		t.Error("expected the second emit-anchor with no new events to be skipped")
	}
}

func TestRun_VerifyReleaseUnknownReleaseReportsFailure(t *testing.T) {
	withDataDir(t)

	var stdout, stderr bytes.Buffer
	code := Run([]string{"repomesh", "verify-release", "--repo", "acme/widgets", "--version", "9.9.9"}, &stdout, &stderr)
	if code == 0 {
		t.Fatal("expected a non-zero exit code for a release with no ReleasePublished event")
	}
}
