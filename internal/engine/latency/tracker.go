// Package latency implements a process-local exponential moving average
// tracker of per-provider response latency.
package latency

import "sync"

const (
	// DefaultAlpha is the EMA smoothing factor: higher weights recent
	// samples more heavily.
	DefaultAlpha = 0.2

	// DefaultInitialMs is the assumed latency for a provider with no
	// recorded observations yet.
	DefaultInitialMs = 500.0
)

// Tracker maintains one EMA per provider. It is intentionally not shared
// across instances or backed by shared storage: a little cross-process
// inconsistency is an acceptable trade against a Redis round-trip on
// every completed request.
type Tracker struct {
	mu    sync.Mutex
	alpha float64
	seed  float64
	ema   map[string]float64
}

// New returns a Tracker with the given smoothing factor and seed latency.
// Passing alpha<=0 or seedMs<=0 falls back to the package defaults.
func New(alpha, seedMs float64) *Tracker {
	if alpha <= 0 {
		alpha = DefaultAlpha
	}
	if seedMs <= 0 {
		seedMs = DefaultInitialMs
	}
	return &Tracker{alpha: alpha, seed: seedMs, ema: make(map[string]float64)}
}

// Update folds one observed latency sample into provider's running EMA.
func (t *Tracker) Update(provider string, latencyMs float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	current, ok := t.ema[provider]
	if !ok {
		current = t.seed
	}
	t.ema[provider] = t.alpha*latencyMs + (1-t.alpha)*current
}

// Average returns provider's current EMA, or the seed value if no sample
// has landed yet.
func (t *Tracker) Average(provider string) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if v, ok := t.ema[provider]; ok {
		return v
	}
	return t.seed
}
