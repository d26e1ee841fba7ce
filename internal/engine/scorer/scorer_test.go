package scorer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/routellm/llmrouter/internal/core/domain"
	"github.com/routellm/llmrouter/internal/engine/scorer"
)

func TestScoreProvider_ExcludesExhaustedCapacity(t *testing.T) {
	s := scorer.New(0, 0, 0, 0)
	_, ok := s.ScoreProvider(domain.ScoreInput{
		Name: "a", RPMUsed: 100, RPMLimit: 100, TPMUsed: 0, TPMLimit: 1000,
		Priority: domain.PriorityNormal,
	})
	assert.False(t, ok)
}

func TestScoreProvider_ReservesCapacityForHighPriority(t *testing.T) {
	s := scorer.New(0, 0, 0, 0)
	in := domain.ScoreInput{
		Name: "a", RPMUsed: 85, RPMLimit: 100, TPMUsed: 0, TPMLimit: 1000,
		HighPriorityReservePct: 0.2, Priority: domain.PriorityNormal,
	}
	_, ok := s.ScoreProvider(in)
	assert.False(t, ok, "normal priority should be excluded inside the reserve")

	in.Priority = domain.PriorityHigh
	_, ok = s.ScoreProvider(in)
	assert.True(t, ok, "high priority should bypass the reserve")
}

func TestScoreProvider_ExcludesAtRiskForNonHighPriority(t *testing.T) {
	s := scorer.New(0, 0, 0, 0)
	in := domain.ScoreInput{
		Name: "a", RPMUsed: 10, RPMLimit: 100, TPMUsed: 10, TPMLimit: 1000,
		IsAtRisk: true, Priority: domain.PriorityNormal,
	}
	_, ok := s.ScoreProvider(in)
	assert.False(t, ok)

	in.Priority = domain.PriorityHigh
	_, ok = s.ScoreProvider(in)
	assert.True(t, ok)
}

func TestScoreProvider_HigherWeightBeatsLowerWeight(t *testing.T) {
	s := scorer.New(0, 0, 0, 0)
	base := domain.ScoreInput{
		RPMUsed: 10, RPMLimit: 100, TPMUsed: 10, TPMLimit: 1000,
		LatencyEMAMs: 500, Priority: domain.PriorityNormal,
	}

	low := base
	low.Name, low.StaticWeight = "low", 0.1
	high := base
	high.Name, high.StaticWeight = "high", 0.9

	lowScore, ok := s.ScoreProvider(low)
	require.True(t, ok)
	highScore, ok := s.ScoreProvider(high)
	require.True(t, ok)

	assert.Greater(t, highScore.Score, lowScore.Score)
}

func TestRank_SortsDescendingAndStable(t *testing.T) {
	s := scorer.New(0, 0, 0, 0)
	scores := []domain.ProviderScore{
		{Name: "a", Score: 0.5},
		{Name: "b", Score: 0.9},
		{Name: "c", Score: 0.5},
	}
	ranked := s.Rank(scores)
	require.Len(t, ranked, 3)
	assert.Equal(t, "b", ranked[0].Name)
	assert.Equal(t, "a", ranked[1].Name, "ties keep input order")
	assert.Equal(t, "c", ranked[2].Name)
}
