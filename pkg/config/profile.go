// Package config loads and layers the named Profiles and per-target
// Overrides, and defines the per-check VerifierPolicy; together they
// parameterize scoring, attestation consensus, and evidence requirements.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// CheckWeights is the per-verdict scoring weight for one assurance check.
type CheckWeights struct {
	Pass int `yaml:"pass" json:"pass"`
	Warn int `yaml:"warn" json:"warn"`
	Fail int `yaml:"fail" json:"fail"`
}

// RequiredChecks partitions the checks a profile requires into the
// integrity and assurance buckets scored separately by C5.
type RequiredChecks struct {
	Integrity []string `yaml:"integrity" json:"integrity"`
	Assurance []string `yaml:"assurance" json:"assurance"`
}

// ScoringConfig carries per-check weight overrides.
type ScoringConfig struct {
	AssuranceWeights map[string]CheckWeights `yaml:"assuranceWeights" json:"assuranceWeights"`
}

// Profile is a named configuration — "baseline", "open-source",
// "regulated" — declaring evidence and check requirements plus default
// scoring weights.
type Profile struct {
	Name             string         `yaml:"name" json:"name"`
	RequiredEvidence []string       `yaml:"requiredEvidence" json:"requiredEvidence"`
	RequiredChecks   RequiredChecks `yaml:"requiredChecks" json:"requiredChecks"`
	Scoring          ScoringConfig  `yaml:"scoring" json:"scoring"`
}

// IgnoredVuln is a security vulnerability a target has chosen to ignore,
// with the mandatory justification the spec requires for that choice.
type IgnoredVuln struct {
	ID            string `yaml:"id" json:"id"`
	Justification string `yaml:"justification" json:"justification"`
}

// LicenseOverrides adjusts license-allowlist handling for one target.
type LicenseOverrides struct {
	AllowlistAdd      []string `yaml:"allowlistAdd,omitempty" json:"allowlistAdd,omitempty"`
	AllowlistRemove   []string `yaml:"allowlistRemove,omitempty" json:"allowlistRemove,omitempty"`
	TreatUnknownAs    string   `yaml:"treatUnknownAs,omitempty" json:"treatUnknownAs,omitempty"` // "warn" | "fail"
}

// SecurityOverrides adjusts vulnerability handling for one target.
type SecurityOverrides struct {
	IgnoreVulns      []IgnoredVuln `yaml:"ignoreVulns,omitempty" json:"ignoreVulns,omitempty"`
	FailOnSeverities []string      `yaml:"failOnSeverities,omitempty" json:"failOnSeverities,omitempty"`
}

// Overrides is a per-target leaf document layered atop a Profile; target
// settings win over the profile's on every field present here.
type Overrides struct {
	Repo     string            `yaml:"repo" json:"repo"`
	License  LicenseOverrides  `yaml:"license" json:"license"`
	Security SecurityOverrides `yaml:"security" json:"security"`
	Scoring  ScoringConfig     `yaml:"scoring" json:"scoring"`
}

// VerifierPolicy governs consensus resolution for one check-kind.
type VerifierPolicy struct {
	CheckKind      string   `yaml:"checkKind" json:"checkKind"`
	Mode           string   `yaml:"mode" json:"mode"` // "open" | "trusted-set"
	TrustedNodes   []string `yaml:"trustedNodes,omitempty" json:"trustedNodes,omitempty"`
	ConflictPolicy string   `yaml:"conflictPolicy" json:"conflictPolicy"` // "fail-wins" | "majority" | "quorum-pass"
	Quorum         int      `yaml:"quorum,omitempty" json:"quorum,omitempty"`
}

// LoadProfile reads profile_<name>.yaml from profilesDir.
func LoadProfile(profilesDir, name string) (*Profile, error) {
	name = strings.ToLower(name)
	path := filepath.Join(profilesDir, fmt.Sprintf("profile_%s.yaml", name))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: load profile %q: %w", name, err)
	}

	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("config: parse profile %q: %w", name, err)
	}
	if p.Name == "" {
		p.Name = name
	}
	return &p, nil
}

// LoadAllProfiles loads every profile_*.yaml file in profilesDir, keyed by
// profile name.
func LoadAllProfiles(profilesDir string) (map[string]*Profile, error) {
	matches, err := filepath.Glob(filepath.Join(profilesDir, "profile_*.yaml"))
	if err != nil {
		return nil, err
	}

	profiles := make(map[string]*Profile, len(matches))
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		var p Profile
		if err := yaml.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		if p.Name == "" {
			base := filepath.Base(path)
			p.Name = strings.TrimSuffix(strings.TrimPrefix(base, "profile_"), ".yaml")
		}
		profiles[p.Name] = &p
	}
	return profiles, nil
}

// LoadOverrides reads overrides_<repo-flattened>.yaml for a target repo
// ("org/name" becomes "org_name" on disk).
func LoadOverrides(overridesDir, repo string) (*Overrides, error) {
	flat := strings.ReplaceAll(repo, "/", "_")
	path := filepath.Join(overridesDir, fmt.Sprintf("overrides_%s.yaml", flat))

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Overrides{Repo: repo}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: load overrides for %q: %w", repo, err)
	}

	var o Overrides
	if err := yaml.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("config: parse overrides for %q: %w", repo, err)
	}
	if o.Repo == "" {
		o.Repo = repo
	}
	return &o, nil
}

// EffectiveWeights layers profile.Scoring.AssuranceWeights under
// overrides.Scoring.AssuranceWeights, target wins per §4.5.
func EffectiveWeights(profile *Profile, overrides *Overrides) map[string]CheckWeights {
	out := make(map[string]CheckWeights, len(profile.Scoring.AssuranceWeights))
	for k, v := range profile.Scoring.AssuranceWeights {
		out[k] = v
	}
	if overrides != nil {
		for k, v := range overrides.Scoring.AssuranceWeights {
			out[k] = v
		}
	}
	return out
}
