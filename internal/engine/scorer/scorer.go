// Package scorer implements the provider ranking formula: a weighted sum
// of remaining capacity headroom, inverse latency, and static operator
// preference, with the weighting shifted by request priority.
package scorer

import (
	"sort"

	"github.com/routellm/llmrouter/internal/core/domain"
)

// Default tuning constants, mirroring the reference implementation's
// constants module.
const (
	DefaultLatencyCeilingMs = 3000.0
)

type weights struct{ capacity, latency, static float64 }

var priorityWeights = map[domain.Priority]weights{
	domain.PriorityHigh:   {capacity: 0.5, latency: 0.4, static: 0.1},
	domain.PriorityNormal: {capacity: 0.5, latency: 0.3, static: 0.2},
	domain.PriorityLow:    {capacity: 0.3, latency: 0.1, static: 0.6},
}

// Scorer implements ports.Scorer. It holds no state and makes no I/O
// calls -- every input it needs is passed in by the caller.
type Scorer struct {
	latencyCeilingMs float64
	normalWeights    weights
}

// New builds a Scorer. normalCapacity/normalLatency/normalStatic override
// the normal-priority coefficients (the configuration surface only lets an
// operator tune the normal-priority weighting); pass zero for all three to
// keep the built-in defaults. high/low priority weighting is fixed.
func New(latencyCeilingMs float64, normalCapacity, normalLatency, normalStatic float64) *Scorer {
	if latencyCeilingMs <= 0 {
		latencyCeilingMs = DefaultLatencyCeilingMs
	}
	normal := priorityWeights[domain.PriorityNormal]
	if normalCapacity != 0 || normalLatency != 0 || normalStatic != 0 {
		normal = weights{capacity: normalCapacity, latency: normalLatency, static: normalStatic}
	}
	return &Scorer{latencyCeilingMs: latencyCeilingMs, normalWeights: normal}
}

// ScoreProvider scores one candidate. It returns ok=false when the
// provider must be excluded outright: no rpm/tpm headroom left, headroom
// within the high-priority reserve for a non-high request, or flagged
// at-risk by the predictor for a non-high request.
func (s *Scorer) ScoreProvider(in domain.ScoreInput) (domain.ProviderScore, bool) {
	rpmHeadroom := headroom(in.RPMUsed, in.RPMLimit)
	tpmHeadroom := headroom(in.TPMUsed+in.EstimatedTokens, in.TPMLimit)

	if in.Priority != domain.PriorityHigh {
		reserve := in.HighPriorityReservePct
		if rpmHeadroom <= reserve || tpmHeadroom <= reserve {
			return domain.ProviderScore{}, false
		}
	}

	if rpmHeadroom <= 0 || tpmHeadroom <= 0 {
		return domain.ProviderScore{}, false
	}

	if in.IsAtRisk && in.Priority != domain.PriorityHigh {
		return domain.ProviderScore{}, false
	}

	capacityScore := min(rpmHeadroom, tpmHeadroom)
	latencyScore := max0(1.0 - in.LatencyEMAMs/s.latencyCeilingMs)
	staticScore := clamp01(in.StaticWeight)

	w, ok := priorityWeights[in.Priority]
	if !ok || in.Priority == domain.PriorityNormal {
		w = s.normalWeights
	}

	total := capacityScore*w.capacity + latencyScore*w.latency + staticScore*w.static

	return domain.ProviderScore{
		Name:          in.Name,
		Score:         total,
		CapacityScore: capacityScore,
		LatencyScore:  latencyScore,
		StaticScore:   staticScore,
		RPMHeadroom:   rpmHeadroom,
		TPMHeadroom:   tpmHeadroom,
		IsAtRisk:      in.IsAtRisk,
	}, true
}

// Rank sorts scores by Score descending, stable so tied candidates keep
// their relative order from the caller (registration order).
func (s *Scorer) Rank(scores []domain.ProviderScore) []domain.ProviderScore {
	out := make([]domain.ProviderScore, len(scores))
	copy(out, scores)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

func headroom(used, limit int) float64 {
	if limit <= 0 {
		return 0
	}
	h := 1.0 - float64(used)/float64(limit)
	return clamp01(h)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func max0(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
