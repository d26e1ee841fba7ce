package router_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/routellm/llmrouter/internal/core/domain"
	"github.com/routellm/llmrouter/internal/core/ports"
	"github.com/routellm/llmrouter/internal/logger"
	"github.com/routellm/llmrouter/internal/observability"
	"github.com/routellm/llmrouter/internal/router"
)

func newTestRouter(t *testing.T, registry ports.ProviderRegistry) *router.Router {
	t.Helper()
	cfg := router.Config{WindowSeconds: 60, HighPriorityReservePct: 0.2, SessionTTL: time.Hour}
	return router.New(
		cfg, registry,
		ports.NewMockScorer(),
		ports.NewMockLatencyTracker(500),
		ports.NewMockExhaustionPredictor(),
		ports.NewMockCircuitBreaker(),
		ports.NewMockStateBackend(),
		&ports.MockTokenEstimator{Fixed: 10},
		observability.New(nil),
		logger.NewNoop(),
	)
}

func registerProvider(t *testing.T, reg ports.ProviderRegistry, name string, weight float64, adapter *ports.MockAdapter) {
	t.Helper()
	require.NoError(t, reg.Register(domain.Provider{
		Name: name, Model: "m", RPMLimit: 100, TPMLimit: 10000, Weight: weight, Enabled: true, Adapter: adapter,
	}))
}

func TestChat_ReturnsFirstSuccessfulProvider(t *testing.T) {
	reg := ports.NewMockProviderRegistry()
	registerProvider(t, reg, "openai", 0.9, &ports.MockAdapter{})

	r := newTestRouter(t, reg)
	resp, err := r.Chat(context.Background(), domain.Request{Messages: []domain.Message{{Role: "user", Content: "hi"}}})
	require.NoError(t, err)
	assert.Equal(t, "openai", resp.Provider)
	assert.Equal(t, 1, resp.Attempts)
}

func TestChat_FallsBackToNextProviderOnFailure(t *testing.T) {
	reg := ports.NewMockProviderRegistry()
	failing := &ports.MockAdapter{ChatFunc: func(ctx context.Context, req domain.Request) (domain.Response, error) {
		return domain.Response{}, errors.New("boom")
	}}
	registerProvider(t, reg, "flaky", 0.9, failing)
	registerProvider(t, reg, "stable", 0.1, &ports.MockAdapter{})

	r := newTestRouter(t, reg)
	resp, err := r.Chat(context.Background(), domain.Request{Messages: []domain.Message{{Role: "user", Content: "hi"}}})
	require.NoError(t, err)
	assert.Equal(t, "stable", resp.Provider)
	assert.Equal(t, 2, resp.Attempts)
}

func TestChat_AllProvidersFailedCarriesOrderedErrors(t *testing.T) {
	reg := ports.NewMockProviderRegistry()
	boom := errors.New("boom")
	bad := &ports.MockAdapter{ChatFunc: func(ctx context.Context, req domain.Request) (domain.Response, error) {
		return domain.Response{}, boom
	}}
	registerProvider(t, reg, "a", 0.9, bad)
	registerProvider(t, reg, "b", 0.1, bad)

	r := newTestRouter(t, reg)
	_, err := r.Chat(context.Background(), domain.Request{Messages: []domain.Message{{Role: "user", Content: "hi"}}})
	require.Error(t, err)

	var failed *domain.AllProvidersFailedError
	require.ErrorAs(t, err, &failed)
	require.Len(t, failed.Errors(), 2)
	assert.Equal(t, "a", failed.Errors()[0].Provider)
	assert.Equal(t, "b", failed.Errors()[1].Provider)
}

func TestChat_NoProvidersConfigured(t *testing.T) {
	reg := ports.NewMockProviderRegistry()
	r := newTestRouter(t, reg)

	_, err := r.Chat(context.Background(), domain.Request{Messages: []domain.Message{{Role: "user", Content: "hi"}}})
	require.Error(t, err)
	var notConfigured *domain.NoProvidersConfiguredError
	assert.ErrorAs(t, err, &notConfigured)
}

func TestStream_FallsBackBeforeFirstChunk(t *testing.T) {
	reg := ports.NewMockProviderRegistry()
	failsBeforeFirstByte := &ports.MockAdapter{StreamFunc: func(ctx context.Context, req domain.Request, emit func(string)) (domain.Response, error) {
		return domain.Response{}, errors.New("boom before first byte")
	}}
	registerProvider(t, reg, "flaky", 0.9, failsBeforeFirstByte)
	registerProvider(t, reg, "stable", 0.1, &ports.MockAdapter{})

	r := newTestRouter(t, reg)
	var chunks []string
	resp, err := r.Stream(context.Background(), domain.Request{Messages: []domain.Message{{Role: "user", Content: "hi"}}}, func(c string) {
		chunks = append(chunks, c)
	})
	require.NoError(t, err)
	assert.Equal(t, "stable", resp.Provider)
	assert.Len(t, chunks, 1)
}

func TestStream_NoFallbackAfterFirstChunk(t *testing.T) {
	reg := ports.NewMockProviderRegistry()
	failsAfterFirstByte := &ports.MockAdapter{StreamFunc: func(ctx context.Context, req domain.Request, emit func(string)) (domain.Response, error) {
		emit("partial")
		return domain.Response{Content: "partial"}, errors.New("boom mid-stream")
	}}
	registerProvider(t, reg, "flaky", 0.9, failsAfterFirstByte)
	registerProvider(t, reg, "stable", 0.1, &ports.MockAdapter{})

	r := newTestRouter(t, reg)
	var chunks []string
	_, err := r.Stream(context.Background(), domain.Request{Messages: []domain.Message{{Role: "user", Content: "hi"}}}, func(c string) {
		chunks = append(chunks, c)
	})
	require.Error(t, err)
	assert.Equal(t, []string{"partial"}, chunks, "stable provider must not be tried once a chunk reached the caller")
}

func TestChat_TokenLimitExceededBeforeAnyAttempt(t *testing.T) {
	reg := ports.NewMockProviderRegistry()
	attempted := false
	adapter := &ports.MockAdapter{ChatFunc: func(ctx context.Context, req domain.Request) (domain.Response, error) {
		attempted = true
		return domain.Response{}, nil
	}}
	require.NoError(t, reg.Register(domain.Provider{
		Name: "small", Model: "m", RPMLimit: 100, TPMLimit: 5, Weight: 1, Enabled: true, Adapter: adapter,
	}))

	cfg := router.Config{WindowSeconds: 60, HighPriorityReservePct: 0.2, SessionTTL: time.Hour}
	r := router.New(
		cfg, reg,
		ports.NewMockScorer(),
		ports.NewMockLatencyTracker(500),
		ports.NewMockExhaustionPredictor(),
		ports.NewMockCircuitBreaker(),
		ports.NewMockStateBackend(),
		&ports.MockTokenEstimator{Fixed: 1000},
		observability.New(nil),
		logger.NewNoop(),
	)

	_, err := r.Chat(context.Background(), domain.Request{Messages: []domain.Message{{Role: "user", Content: "hi"}}})
	require.Error(t, err)
	var tooLarge *domain.TokenLimitExceededError
	require.ErrorAs(t, err, &tooLarge)
	assert.False(t, attempted, "no adapter should be called once every provider's tpm_limit is below the estimate")
}

func TestChat_AllCircuitsOpenYieldsNoProvidersConfigured(t *testing.T) {
	reg := ports.NewMockProviderRegistry()
	registerProvider(t, reg, "a", 0.9, &ports.MockAdapter{})
	registerProvider(t, reg, "b", 0.5, &ports.MockAdapter{})

	breaker := ports.NewMockCircuitBreaker()
	breaker.SetOpen("a", true)
	breaker.SetOpen("b", true)

	cfg := router.Config{WindowSeconds: 60, HighPriorityReservePct: 0.2, SessionTTL: time.Hour}
	r := router.New(
		cfg, reg,
		ports.NewMockScorer(),
		ports.NewMockLatencyTracker(500),
		ports.NewMockExhaustionPredictor(),
		breaker,
		ports.NewMockStateBackend(),
		&ports.MockTokenEstimator{Fixed: 10},
		observability.New(nil),
		logger.NewNoop(),
	)

	_, err := r.Chat(context.Background(), domain.Request{Messages: []domain.Message{{Role: "user", Content: "hi"}}})
	require.Error(t, err)
	var notConfigured *domain.NoProvidersConfiguredError
	assert.ErrorAs(t, err, &notConfigured)
}

func TestChat_DoesNotRecheckBreakerForCandidatesRankAlreadyApproved(t *testing.T) {
	reg := ports.NewMockProviderRegistry()
	registerProvider(t, reg, "a", 0.9, &ports.MockAdapter{})

	breaker := ports.NewMockCircuitBreaker()

	cfg := router.Config{WindowSeconds: 60, HighPriorityReservePct: 0.2, SessionTTL: time.Hour}
	r := router.New(
		cfg, reg,
		ports.NewMockScorer(),
		ports.NewMockLatencyTracker(500),
		ports.NewMockExhaustionPredictor(),
		breaker,
		ports.NewMockStateBackend(),
		&ports.MockTokenEstimator{Fixed: 10},
		observability.New(nil),
		logger.NewNoop(),
	)

	resp, err := r.Chat(context.Background(), domain.Request{Messages: []domain.Message{{Role: "user", Content: "hi"}}})
	require.NoError(t, err)
	assert.Equal(t, "a", resp.Provider)

	// rank() already excluded every open-circuit candidate; the attempt
	// loop re-checking IsOpen would lose the breaker's single-probe CAS
	// and wrongly skip the candidate rank() just approved.
	assert.Equal(t, 1, breaker.IsOpenCalls("a"),
		"breaker.IsOpen must be consulted exactly once per provider per request")
}

func TestChat_StickySessionRoutesBackToSameProvider(t *testing.T) {
	reg := ports.NewMockProviderRegistry()
	registerProvider(t, reg, "a", 0.1, &ports.MockAdapter{})
	registerProvider(t, reg, "b", 0.9, &ports.MockAdapter{})

	r := newTestRouter(t, reg)
	req := domain.Request{
		Messages:  []domain.Message{{Role: "user", Content: "hi"}},
		SessionID: "s1",
	}

	first, err := r.Chat(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "b", first.Provider, "higher static weight should win the first, unpinned route")

	second, err := r.Chat(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first.Provider, second.Provider, "second call with the same session id must stick to the first provider")
}

func TestStatus_ReportsPerProviderSnapshot(t *testing.T) {
	reg := ports.NewMockProviderRegistry()
	registerProvider(t, reg, "openai", 0.9, &ports.MockAdapter{})

	r := newTestRouter(t, reg)
	_, err := r.Chat(context.Background(), domain.Request{Messages: []domain.Message{{Role: "user", Content: "hi"}}})
	require.NoError(t, err)

	status, err := r.Status(context.Background())
	require.NoError(t, err)
	require.Contains(t, status, "openai")
	assert.False(t, status["openai"].CircuitOpen)
}
