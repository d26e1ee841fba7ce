// Package predictor projects whether a provider is on track to exhaust
// its rate limit within a look-ahead window, so the router can
// shift load away from a provider that is ramping up fast even though it
// still shows nominal headroom right now.
package predictor

import (
	"math"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
)

const (
	// DefaultWindow is how far back consumption history is retained.
	DefaultWindow = 60 * time.Second

	// DefaultLookAhead is how far forward exhaustion is projected.
	DefaultLookAhead = 120 * time.Second

	// DefaultMultiplier is how far above the reference utilisation a
	// provider's observed rate must run before it is considered elevated.
	DefaultMultiplier = 3.0

	// DefaultReferenceUtilisation is the assumed steady-state fraction of
	// a provider's limit consumed under normal load. Retained from the
	// reference implementation's 50% baseline as a documented, tunable
	// default rather than a hardcoded assumption.
	DefaultReferenceUtilisation = 0.5
)

type sample struct {
	at     time.Time
	tokens int
}

// history is one provider's bounded consumption log, guarded by its own
// mutex so providers never contend with each other.
type history struct {
	mu      sync.Mutex
	samples []sample
}

// Predictor implements ports.ExhaustionPredictor using a lock-free
// per-provider map, the same xsync-backed pattern the breaker and
// registry packages use for per-key state.
type Predictor struct {
	byProvider           *xsync.Map[string, *history]
	window               time.Duration
	lookAhead            time.Duration
	multiplier           float64
	referenceUtilisation float64
}

// New returns a Predictor. Zero/negative arguments fall back to the
// package defaults.
func New(window, lookAhead time.Duration, multiplier, referenceUtilisation float64) *Predictor {
	if window <= 0 {
		window = DefaultWindow
	}
	if lookAhead <= 0 {
		lookAhead = DefaultLookAhead
	}
	if multiplier <= 0 {
		multiplier = DefaultMultiplier
	}
	if referenceUtilisation <= 0 {
		referenceUtilisation = DefaultReferenceUtilisation
	}
	return &Predictor{
		byProvider:           xsync.NewMap[string, *history](),
		window:               window,
		lookAhead:            lookAhead,
		multiplier:           multiplier,
		referenceUtilisation: referenceUtilisation,
	}
}

// Record appends one completed request's token count to provider's
// consumption history, purging samples older than the window.
func (p *Predictor) Record(provider string, tokens int) {
	h, _ := p.byProvider.LoadOrStore(provider, &history{})
	now := time.Now()
	h.mu.Lock()
	defer h.mu.Unlock()
	h.samples = purge(append(h.samples, sample{at: now, tokens: tokens}), now, p.window)
}

// IsAtRisk reports whether provider's projected usage trajectory, under
// its recently observed consumption rate, crosses its rpm/tpm limit
// within the look-ahead window. It returns false for a provider with no
// recorded history, or whose observed rate is not elevated above
// referenceUtilisation*multiplier.
func (p *Predictor) IsAtRisk(provider string, rpmUsed, rpmLimit, tpmUsed, tpmLimit int) bool {
	h, ok := p.byProvider.Load(provider)
	if !ok {
		return false
	}

	now := time.Now()
	h.mu.Lock()
	h.samples = purge(h.samples, now, p.window)
	samples := append([]sample(nil), h.samples...)
	h.mu.Unlock()

	if len(samples) == 0 {
		return false
	}

	elapsed := now.Sub(samples[0].at).Seconds()
	if elapsed < 1.0 {
		elapsed = 1.0
	}

	tokensSum := 0
	for _, s := range samples {
		tokensSum += s.tokens
	}

	observedRPM := float64(len(samples)) / elapsed * 60
	observedTPM := float64(tokensSum) / elapsed * 60

	avgRPM := float64(rpmLimit) * p.referenceUtilisation
	avgTPM := float64(tpmLimit) * p.referenceUtilisation

	rpmElevated := observedRPM > avgRPM*p.multiplier
	tpmElevated := observedTPM > avgTPM*p.multiplier
	if !rpmElevated && !tpmElevated {
		return false
	}

	rpmRemaining := float64(rpmLimit - rpmUsed)
	tpmRemaining := float64(tpmLimit - tpmUsed)

	secondsToRPMExhaustion := projectSeconds(rpmRemaining, observedRPM)
	secondsToTPMExhaustion := projectSeconds(tpmRemaining, observedTPM)

	projected := secondsToRPMExhaustion
	if secondsToTPMExhaustion < projected {
		projected = secondsToTPMExhaustion
	}

	return projected < p.lookAhead.Seconds()
}

func projectSeconds(remaining, observedPerMinute float64) float64 {
	if observedPerMinute <= 0 {
		return math.Inf(1)
	}
	return (remaining / observedPerMinute) * 60
}

func purge(hist []sample, now time.Time, window time.Duration) []sample {
	cutoff := now.Add(-window)
	i := 0
	for i < len(hist) && hist[i].at.Before(cutoff) {
		i++
	}
	if i == 0 {
		return hist
	}
	return append([]sample(nil), hist[i:]...)
}
