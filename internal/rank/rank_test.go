package rank

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobagent-engine/internal/domain"
)

func TestRank_OrdersByDescendingScore(t *testing.T) {
	profile := domain.Profile{
		Summary: "Go backend engineer",
		Skills:  []string{"go", "kubernetes"},
		Bullets: []domain.Bullet{{ID: "b1", Text: "Built a Go microservice", Skills: []string{"go"}}},
	}
	jobs := []domain.Posting{
		{ID: "J1", Title: "Go Engineer", Company: "Acme", Remote: true, Requirements: []string{"Go"}},
		{ID: "J2", Title: "PM Senior", Company: "Acme", Requirements: []string{"management"}},
	}
	policy := domain.Policy{Enabled: true}
	scores := map[string]float64{"J1": 0.8, "J2": 0.1}

	matches := Rank(profile, jobs, policy, scores)

	require.Len(t, matches, 2)
	assert.Equal(t, "J1", matches[0].JobID)
	assert.Equal(t, "J2", matches[1].JobID)
	assert.Greater(t, matches[0].Score, matches[1].Score)
}

func TestRank_FiltersBlockedCompanies(t *testing.T) {
	profile := domain.Profile{Summary: "Go engineer"}
	jobs := []domain.Posting{
		{ID: "J1", Company: "AcmeCorp"},
		{ID: "J2", Company: "OtherCo"},
	}
	policy := domain.Policy{Enabled: true, BlockedCompanies: []string{"AcmeCorp"}}

	matches := Rank(profile, jobs, policy, nil)

	require.Len(t, matches, 1)
	assert.Equal(t, "J2", matches[0].JobID)
}

func TestRank_FiltersNonRemoteWhenRequired(t *testing.T) {
	profile := domain.Profile{}
	jobs := []domain.Posting{
		{ID: "J1", Remote: false},
		{ID: "J2", Remote: true},
	}
	policy := domain.Policy{Enabled: true, RequireRemote: true}

	matches := Rank(profile, jobs, policy, nil)

	require.Len(t, matches, 1)
	assert.Equal(t, "J2", matches[0].JobID)
}

func TestRank_TieBreaksByJobIDLexicographic(t *testing.T) {
	profile := domain.Profile{}
	jobs := []domain.Posting{
		{ID: "J2"},
		{ID: "J1"},
	}
	policy := domain.Policy{Enabled: true}

	matches := Rank(profile, jobs, policy, nil)

	require.Len(t, matches, 2)
	assert.Equal(t, "J1", matches[0].JobID)
	assert.Equal(t, "J2", matches[1].JobID)
}

func TestTokenOverlapScore(t *testing.T) {
	assert.True(t, TokenOverlapScore("Go backend experience", "i write go and python daily"))
	assert.False(t, TokenOverlapScore("Rust systems programming", "i write go and python daily"))
}
