// Package ports declares the narrow collaborator contracts the router
// depends on. Every engine/adapter package implements one of these; the
// router itself never reaches past a port into a concrete type.
package ports

import (
	"context"
	"time"

	"github.com/routellm/llmrouter/internal/core/domain"
)

// Adapter re-exports the upstream capability contract so callers outside
// the domain package can spell it as ports.Adapter, matching every other
// collaborator in this package. The interface itself lives in domain to
// keep Provider.Adapter's field type free of an import cycle back here.
type Adapter = domain.Adapter

// StateBackend is the single capability a usage-accounting backend must
// offer: record a completed request, read back current usage, and pin/
// resolve a session to a provider. The in-process and shared (Redis)
// variants are interchangeable behind this contract; selection happens
// once at startup based on whether a shared-storage URL is configured.
type StateBackend interface {
	// RecordRequest appends one usage sample for provider at time now,
	// consuming one request and tokens tokens from the sliding window.
	// window bounds how long the backend needs to retain the sample (the
	// shared backend uses it to size a TTL; the in-process backend purges
	// eagerly regardless).
	RecordRequest(ctx context.Context, provider string, tokens int, window time.Duration, now time.Time) error

	// GetUsage returns the request count and token count observed for
	// provider within the trailing window ending at now.
	GetUsage(ctx context.Context, provider string, window time.Duration, now time.Time) (requests int, tokens int, err error)

	// GetSessionProvider returns the provider previously pinned to
	// sessionID, and whether a pin exists.
	GetSessionProvider(ctx context.Context, sessionID string) (provider string, ok bool, err error)

	// SetSessionProvider pins sessionID to provider for ttl.
	SetSessionProvider(ctx context.Context, sessionID, provider string, ttl time.Duration) error

	Close() error
}

// CircuitBreaker tracks consecutive failures per provider and opens a
// cooldown window once a threshold is crossed.
type CircuitBreaker interface {
	// IsOpen reports whether provider is currently tripped.
	IsOpen(provider string) bool

	// RecordSuccess resets provider's failure streak and closes its
	// circuit if it was open.
	RecordSuccess(provider string)

	// RecordFailure increments provider's failure streak, opening its
	// circuit once the streak reaches the configured threshold.
	RecordFailure(provider string)
}

// SharedCircuitStore is the optional cross-instance half of a
// CircuitBreaker: a marker key per provider with a TTL equal to the
// cooldown, so peer routers sharing a Redis backend see an OPEN circuit
// without polling each other. A CircuitBreaker with no store configured
// degrades to purely local, per-instance state.
type SharedCircuitStore interface {
	// MarkOpen writes a marker for provider that expires after ttl.
	MarkOpen(ctx context.Context, provider string, ttl time.Duration) error

	// IsMarkedOpen reports whether a live marker exists for provider.
	IsMarkedOpen(ctx context.Context, provider string) (bool, error)
}

// LatencyTracker maintains a process-local exponential moving average of
// observed latency per provider, seeded at an initial estimate until the
// first real sample arrives.
type LatencyTracker interface {
	// Update folds one observed latency sample (in milliseconds) into
	// provider's running average.
	Update(provider string, latencyMs float64)

	// Average returns provider's current EMA, or the seed value if no
	// sample has landed yet.
	Average(provider string) float64
}

// ExhaustionPredictor tracks per-provider consumption velocity and
// projects whether a provider is at risk of hitting its rate limit within
// a forward-looking window.
type ExhaustionPredictor interface {
	// Record appends one completed request's token count to provider's
	// short consumption history, purging samples outside the window.
	Record(provider string, tokens int)

	// IsAtRisk reports whether provider's projected usage trajectory,
	// under its recently observed consumption rate, crosses its limit
	// within the predictor's look-ahead window.
	IsAtRisk(provider string, rpmUsed, rpmLimit, tpmUsed, tpmLimit int) bool
}

// Scorer ranks eligible providers for one request. It is a pure function
// of its inputs: no I/O, no shared state, safe to call from any goroutine.
type Scorer interface {
	// ScoreProvider scores a single candidate, returning ok=false if the
	// provider should be excluded outright (no capacity, reserved for
	// high priority, or flagged at-risk for a non-high-priority request).
	ScoreProvider(in domain.ScoreInput) (domain.ProviderScore, bool)

	// Rank sorts scores by Score descending, stable on ties.
	Rank(scores []domain.ProviderScore) []domain.ProviderScore
}

// TokenEstimator produces a conservative token count for a set of
// messages, used for pre-flight eligibility checks and usage accounting
// before a real usage figure is available from the upstream response.
type TokenEstimator interface {
	EstimateTokens(messages []domain.Message) int
}

// ProviderRegistry owns the set of configured upstreams and hands out
// point-in-time snapshots so an in-flight request's ranking is stable
// even if configuration reloads mid-request.
type ProviderRegistry interface {
	// Register adds or replaces a statically configured provider.
	Register(spec domain.Provider) error

	// RegisterBYOC adds a caller-supplied, already-constructed adapter
	// under name, subject to the same spec validation as Register.
	RegisterBYOC(name string, adapter Adapter, spec domain.Provider) error

	// Snapshot returns the current set of enabled providers.
	Snapshot() []domain.Provider

	// Get returns the named provider, if registered, regardless of its
	// enabled state.
	Get(name string) (domain.Provider, bool)
}
