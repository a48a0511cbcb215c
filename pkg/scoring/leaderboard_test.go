package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLatestScoredRelease_PicksHighestSemver(t *testing.T) {
	scores := []Score{
		{Repo: "acme/widgets", Version: "1.0.0", IntegrityScore: 50},
		{Repo: "acme/widgets", Version: "1.2.0", IntegrityScore: 60},
		{Repo: "acme/widgets", Version: "1.1.0", IntegrityScore: 55},
	}
	latest := LatestScoredRelease(scores)
	assert.Equal(t, "1.2.0", latest["acme/widgets"].Version)
}

func TestLatestScoredRelease_UnparseableVersionNeverWinsOverSemver(t *testing.T) {
	scores := []Score{
		{Repo: "acme/widgets", Version: "not-a-version", IntegrityScore: 90},
		{Repo: "acme/widgets", Version: "1.0.0", IntegrityScore: 10},
	}
	latest := LatestScoredRelease(scores)
	assert.Equal(t, "1.0.0", latest["acme/widgets"].Version)
}

func TestIsSuperseded_DetectsOlderVersion(t *testing.T) {
	assert.True(t, IsSuperseded("1.0.0", []string{"1.0.0", "1.1.0"}))
	assert.False(t, IsSuperseded("1.1.0", []string{"1.0.0", "1.1.0"}))
}

func TestIsSuperseded_UnparseableVersionsAreInert(t *testing.T) {
	assert.False(t, IsSuperseded("not-a-version", []string{"1.0.0"}))
	assert.False(t, IsSuperseded("1.0.0", []string{"not-a-version"}))
}

func TestLeaderboard_RanksByCombinedScoreDescending(t *testing.T) {
	scores := []Score{
		{Repo: "acme/widgets", Version: "1.0.0", IntegrityScore: 40, AssuranceScore: 40},
		{Repo: "acme/gadgets", Version: "2.0.0", IntegrityScore: 90, AssuranceScore: 90},
		{Repo: "acme/sprockets", Version: "0.9.0", IntegrityScore: 60, AssuranceScore: 60},
	}
	board := Leaderboard(scores)
	assert.Len(t, board, 3)
	assert.Equal(t, "acme/gadgets", board[0].Repo)
	assert.Equal(t, 1, board[0].Rank)
	assert.Equal(t, "acme/sprockets", board[1].Repo)
	assert.Equal(t, "acme/widgets", board[2].Repo)
}

func TestLeaderboard_OnlyRanksLatestVersionPerRepo(t *testing.T) {
	scores := []Score{
		{Repo: "acme/widgets", Version: "1.0.0", IntegrityScore: 100, AssuranceScore: 100},
		{Repo: "acme/widgets", Version: "2.0.0", IntegrityScore: 10, AssuranceScore: 10},
	}
	board := Leaderboard(scores)
	assert.Len(t, board, 1)
	assert.Equal(t, "2.0.0", board[0].Version)
}
