package breaker_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/routellm/llmrouter/internal/engine/breaker"
)

// fakeSharedStore is an in-memory stand-in for the Redis-backed
// SharedCircuitStore, letting breaker tests exercise cross-instance
// visibility without a live Redis.
type fakeSharedStore struct {
	mu     sync.Mutex
	marked map[string]time.Time
}

func newFakeSharedStore() *fakeSharedStore {
	return &fakeSharedStore{marked: make(map[string]time.Time)}
}

func (f *fakeSharedStore) MarkOpen(_ context.Context, provider string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marked[provider] = time.Now().Add(ttl)
	return nil
}

func (f *fakeSharedStore) IsMarkedOpen(_ context.Context, provider string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	expiry, ok := f.marked[provider]
	return ok && time.Now().Before(expiry), nil
}

func TestIsOpen_FalseForUnknownProvider(t *testing.T) {
	b := breaker.New(2, time.Second)
	assert.False(t, b.IsOpen("openai"))
}

func TestRecordFailure_TripsAfterThreshold(t *testing.T) {
	b := breaker.New(2, time.Minute)
	b.RecordFailure("openai")
	assert.False(t, b.IsOpen("openai"), "one failure should not trip a threshold-2 breaker")

	b.RecordFailure("openai")
	assert.True(t, b.IsOpen("openai"))
}

func TestRecordSuccess_ClosesTrippedCircuit(t *testing.T) {
	b := breaker.New(1, time.Minute)
	b.RecordFailure("openai")
	require := assert.New(t)
	require.True(b.IsOpen("openai"))

	b.RecordSuccess("openai")
	require.False(b.IsOpen("openai"))
}

func TestIsOpen_AdmitsProbeAfterCooldown(t *testing.T) {
	b := breaker.New(1, 10*time.Millisecond)
	b.RecordFailure("openai")
	assert.True(t, b.IsOpen("openai"))

	time.Sleep(20 * time.Millisecond)
	assert.False(t, b.IsOpen("openai"), "cooldown elapsed should admit exactly one probe")
}

func TestProviders_AreIndependent(t *testing.T) {
	b := breaker.New(1, time.Minute)
	b.RecordFailure("openai")
	assert.True(t, b.IsOpen("openai"))
	assert.False(t, b.IsOpen("anthropic"))
}

func TestRecordFailure_PublishesMarkerToSharedStore(t *testing.T) {
	shared := newFakeSharedStore()
	b := breaker.NewWithSharedStore(1, time.Minute, shared)

	b.RecordFailure("openai")

	marked, err := shared.IsMarkedOpen(context.Background(), "openai")
	require.NoError(t, err)
	assert.True(t, marked, "tripping the breaker should publish a marker for peer instances")
}

func TestIsOpen_TrustsSharedMarkerOverLocalState(t *testing.T) {
	shared := newFakeSharedStore()
	require.NoError(t, shared.MarkOpen(context.Background(), "openai", time.Minute))

	b := breaker.NewWithSharedStore(5, time.Minute, shared)
	assert.True(t, b.IsOpen("openai"), "a peer's marker should trip this instance even with zero local failures")
}
