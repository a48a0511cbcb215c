package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

const testProfileYAML = `
name: baseline
requiredEvidence: []
requiredChecks:
  integrity: []
  assurance: []
scoring:
  assuranceWeights: {}
`

func seedProfile(t *testing.T, dataDir, name string) {
	t.Helper()
	profilesDir := filepath.Join(dataDir, "profiles")
	if err := os.MkdirAll(profilesDir, 0o750); err != nil {
		t.Fatalf("mkdir profiles dir: %v", err)
	}
	path := filepath.Join(profilesDir, "profile_"+name+".yaml")
	if err := os.WriteFile(path, []byte(testProfileYAML), 0o644); err != nil {
		t.Fatalf("write profile fixture: %v", err)
	}
}

func TestRun_ComputeScoresForAPublishedRelease(t *testing.T) {
	dir := withDataDir(t)
	seedProfile(t, dir, "baseline")

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

	var scoreOut, scoreErr bytes.Buffer
	code := Run([]string{"repomesh", "compute-scores", "--repo", "acme/widgets", "--version", "1.0.0", "--profile", "baseline"}, &scoreOut, &scoreErr)
	if code != 0 {
		t.Fatalf("compute-scores exit code = %d, stderr = %s", code, scoreErr.String())
	}

	var result struct {
		OK    bool `json:"ok"`
		Score struct {
			Repo    string `json:"repo"`
			Version string `json:"version"`
		} `json:"score"`
	}
	if err := json.Unmarshal(scoreOut.Bytes(), &result); err != nil {
		t.Fatalf("parse compute-scores output: %v", err)
	}
	if !result.OK {
		t.Fatal("compute-scores reported ok=false")
	}
}

func TestRun_ComputeScoresMissingRequiredFlagsExitsTwo(t *testing.T) {
	withDataDir(t)

	var stdout, stderr bytes.Buffer
	code := Run([]string{"repomesh", "compute-scores", "--repo", "acme/widgets"}, &stdout, &stderr)
	if code != 2 {
		t.Fatalf("exit code = %d, want 2", code)
	}
}
