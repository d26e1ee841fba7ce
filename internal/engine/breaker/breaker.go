// Package breaker implements a per-provider circuit breaker: it trips
// after a run of consecutive failures and, once its cooldown has elapsed,
// admits one probe request per provider before reopening to all callers
// a second later.
package breaker

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/routellm/llmrouter/internal/core/ports"
)

const (
	// DefaultFailureThreshold is the number of consecutive failures that
	// trips a provider's breaker.
	DefaultFailureThreshold = 5

	// DefaultCooldown is how long a tripped breaker stays open before
	// admitting a single half-open probe.
	DefaultCooldown = 30 * time.Second
)

type circuitState struct {
	failures    int64
	lastFailure int64
	lastAttempt int64
	isOpen      int32
}

// Breaker implements ports.CircuitBreaker using a lock-free per-provider
// map, following the same sync.Map-plus-atomics design as the health
// checker this package is descended from, generalised to xsync.Map so the
// per-key state survives generic typing instead of interface{} boxing.
type Breaker struct {
	state            *xsync.Map[string, *circuitState]
	failureThreshold int
	cooldown         time.Duration
	shared           ports.SharedCircuitStore
}

// New returns a Breaker with the given threshold and cooldown. Passing
// threshold<=0 or cooldown<=0 falls back to the package defaults. The
// breaker is purely local; use NewWithSharedStore to additionally consult
// and publish to a cross-instance marker store.
func New(failureThreshold int, cooldown time.Duration) *Breaker {
	return NewWithSharedStore(failureThreshold, cooldown, nil)
}

// NewWithSharedStore returns a Breaker backed by shared for cross-instance
// visibility: IsOpen consults shared before local state, and RecordFailure
// writes a marker to shared (TTL = cooldown) once the breaker trips, so
// peer instances see OPEN without polling each other. Pass nil shared for
// the purely local, single-instance behaviour.
func NewWithSharedStore(failureThreshold int, cooldown time.Duration, shared ports.SharedCircuitStore) *Breaker {
	if failureThreshold <= 0 {
		failureThreshold = DefaultFailureThreshold
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Breaker{
		state:            xsync.NewMap[string, *circuitState](),
		failureThreshold: failureThreshold,
		cooldown:         cooldown,
		shared:           shared,
	}
}

// IsOpen reports whether provider's breaker is currently tripped. When a
// shared store is configured it is consulted first, so a marker written by
// a peer instance trips this instance's view even with no local failures
// recorded. Otherwise, a tripped breaker whose cooldown has elapsed admits
// one half-open probe: the first caller past the cooldown sees
// IsOpen=false and every caller behind it still sees true until that probe
// reports its outcome via RecordSuccess/RecordFailure or one second has
// passed since the probe was admitted, whichever comes first; after that
// second every caller sees false until the next RecordFailure.
func (b *Breaker) IsOpen(provider string) bool {
	if b.shared != nil {
		if marked, err := b.shared.IsMarkedOpen(context.Background(), provider); err == nil && marked {
			return true
		}
	}

	state, ok := b.state.Load(provider)
	if !ok {
		return false
	}

	if atomic.LoadInt32(&state.isOpen) != 1 {
		return false
	}

	now := time.Now()
	lastFailure := atomic.LoadInt64(&state.lastFailure)
	if !time.Unix(0, lastFailure).Add(b.cooldown).Before(now) {
		return true
	}

	if atomic.CompareAndSwapInt64(&state.lastAttempt, 0, now.UnixNano()) {
		return false
	}

	lastAttempt := atomic.LoadInt64(&state.lastAttempt)
	return time.Unix(0, lastAttempt).Add(time.Second).After(now)
}

// RecordSuccess resets provider's failure streak and closes its circuit.
func (b *Breaker) RecordSuccess(provider string) {
	state, ok := b.state.Load(provider)
	if !ok {
		return
	}
	atomic.StoreInt64(&state.failures, 0)
	atomic.StoreInt32(&state.isOpen, 0)
	atomic.StoreInt64(&state.lastAttempt, 0)
}

// RecordFailure increments provider's failure streak, opening its circuit
// once the streak reaches the configured threshold.
func (b *Breaker) RecordFailure(provider string) {
	state, _ := b.state.LoadOrStore(provider, &circuitState{})

	failures := atomic.AddInt64(&state.failures, 1)
	atomic.StoreInt64(&state.lastFailure, time.Now().UnixNano())
	atomic.StoreInt64(&state.lastAttempt, 0)

	if failures >= int64(b.failureThreshold) {
		atomic.StoreInt32(&state.isOpen, 1)
		if b.shared != nil {
			_ = b.shared.MarkOpen(context.Background(), provider, b.cooldown)
		}
	}
}
