package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

func TestLoadProfile_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "profile_regulated.yaml"), `
name: regulated
requiredEvidence: [sbom, provenance]
requiredChecks:
  integrity: [signed, hasArtifacts]
  assurance: [license.audit, security.scan]
scoring:
  assuranceWeights:
    license.audit:
      pass: 100
      warn: 40
      fail: 0
`)

	p, err := LoadProfile(dir, "regulated")
	if err != nil {
		t.Fatalf("LoadProfile: %v", err)
	}
	if p.Name != "regulated" {
		t.Errorf("Name = %s, want regulated", p.Name)
	}
	if len(p.RequiredEvidence) != 2 {
		t.Errorf("RequiredEvidence = %v", p.RequiredEvidence)
	}
	if p.Scoring.AssuranceWeights["license.audit"].Pass != 100 {
		t.Errorf("license.audit pass weight = %d, want 100", p.Scoring.AssuranceWeights["license.audit"].Pass)
	}
}

func TestLoadOverrides_MissingFileReturnsEmptyOverrides(t *testing.T) {
	dir := t.TempDir()
	o, err := LoadOverrides(dir, "acme/widgets")
	if err != nil {
		t.Fatalf("LoadOverrides: %v", err)
	}
	if o.Repo != "acme/widgets" {
		t.Errorf("Repo = %s, want acme/widgets", o.Repo)
	}
}

func TestEffectiveWeights_TargetWinsOverProfile(t *testing.T) {
	profile := &Profile{
		Scoring: ScoringConfig{
			AssuranceWeights: map[string]CheckWeights{
				"license.audit": {Pass: 100, Warn: 40, Fail: 0},
			},
		},
	}
	overrides := &Overrides{
		Scoring: ScoringConfig{
			AssuranceWeights: map[string]CheckWeights{
				"license.audit": {Pass: 80, Warn: 20, Fail: 0},
			},
		},
	}

	eff := EffectiveWeights(profile, overrides)
	if eff["license.audit"].Pass != 80 {
		t.Errorf("effective pass weight = %d, want 80 (override should win)", eff["license.audit"].Pass)
	}
}
