package scoring

import (
	"sort"

	"github.com/Masterminds/semver/v3"
)

// LatestScoredRelease picks the highest-semver-version Score per repo from
// an unordered batch of scores, discarding superseded releases. A release
// whose version does not parse as semver is never preferred over one that
// does, and ties within a repo keep whichever score sorted first into this
// call (stable, not arbitrary).
func LatestScoredRelease(scores []Score) map[string]Score {
	latest := make(map[string]Score, len(scores))
	latestVer := make(map[string]*semver.Version, len(scores))

	for _, s := range scores {
		v, err := semver.NewVersion(s.Version)
		if err != nil {
			if _, exists := latest[s.Repo]; !exists {
				latest[s.Repo] = s
			}
			continue
		}
		if cur, ok := latestVer[s.Repo]; !ok || v.GreaterThan(cur) {
			latestVer[s.Repo] = v
			latest[s.Repo] = s
		}
	}
	return latest
}

// IsSuperseded reports whether candidate's version is strictly older than
// any version in knownVersions for the same repo. Unparseable versions are
// never treated as superseding or superseded by anything.
func IsSuperseded(candidate string, knownVersions []string) bool {
	cv, err := semver.NewVersion(candidate)
	if err != nil {
		return false
	}
	for _, known := range knownVersions {
		kv, err := semver.NewVersion(known)
		if err != nil {
			continue
		}
		if kv.GreaterThan(cv) {
			return true
		}
	}
	return false
}

// LeaderboardEntry is one ranked row in the top-attested-repos view.
type LeaderboardEntry struct {
	Repo           string
	Version        string
	IntegrityScore int
	AssuranceScore int
	Rank           int
}

// Leaderboard ranks the latest scored release per repo by combined score
// (integrity + assurance, descending), using a stable sort so that repos
// tied on score keep their relative input order — the same determinism
// discipline as a hash-chained ledger's ordering guarantees.
func Leaderboard(scores []Score) []LeaderboardEntry {
	latest := LatestScoredRelease(scores)

	entries := make([]LeaderboardEntry, 0, len(latest))
	for _, s := range scores {
		cur, ok := latest[s.Repo]
		if !ok || cur.Version != s.Version {
			continue
		}
		entries = append(entries, LeaderboardEntry{
			Repo:           s.Repo,
			Version:        s.Version,
			IntegrityScore: s.IntegrityScore,
			AssuranceScore: s.AssuranceScore,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return combined(entries[i]) > combined(entries[j])
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

func combined(e LeaderboardEntry) int {
	return e.IntegrityScore + e.AssuranceScore
}
