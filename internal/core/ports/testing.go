package ports

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/routellm/llmrouter/internal/core/domain"
)

// MockAdapter is a scriptable domain.Adapter for exercising router logic
// without a real upstream. ChatFunc/StreamFunc default to a fixed,
// always-succeeding response when left nil.
type MockAdapter struct {
	ChatFunc   func(ctx context.Context, req domain.Request) (domain.Response, error)
	StreamFunc func(ctx context.Context, req domain.Request, emit func(chunk string)) (domain.Response, error)
	Closed     bool
}

func (m *MockAdapter) Chat(ctx context.Context, req domain.Request) (domain.Response, error) {
	if m.ChatFunc != nil {
		return m.ChatFunc(ctx, req)
	}
	return domain.Response{Content: "mock response", Attempts: 1}, nil
}

func (m *MockAdapter) Stream(ctx context.Context, req domain.Request, emit func(chunk string)) (domain.Response, error) {
	if m.StreamFunc != nil {
		return m.StreamFunc(ctx, req, emit)
	}
	emit("mock chunk")
	return domain.Response{Content: "mock chunk", Attempts: 1}, nil
}

func (m *MockAdapter) Close() error {
	m.Closed = true
	return nil
}

// MockStateBackend is an in-memory StateBackend fake, bypassing the real
// sliding-window bookkeeping entirely: it just remembers the last recorded
// totals per provider, which is all most router-level tests need.
type MockStateBackend struct {
	mu       sync.Mutex
	requests map[string]int
	tokens   map[string]int
	sessions map[string]string
}

func NewMockStateBackend() *MockStateBackend {
	return &MockStateBackend{
		requests: make(map[string]int),
		tokens:   make(map[string]int),
		sessions: make(map[string]string),
	}
}

func (m *MockStateBackend) RecordRequest(_ context.Context, provider string, tokens int, _ time.Duration, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests[provider]++
	m.tokens[provider] += tokens
	return nil
}

func (m *MockStateBackend) GetUsage(_ context.Context, provider string, _ time.Duration, _ time.Time) (int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[provider], m.tokens[provider], nil
}

func (m *MockStateBackend) GetSessionProvider(_ context.Context, sessionID string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.sessions[sessionID]
	return p, ok, nil
}

func (m *MockStateBackend) SetSessionProvider(_ context.Context, sessionID, provider string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sessionID] = provider
	return nil
}

func (m *MockStateBackend) Close() error { return nil }

// MockCircuitBreaker is a CircuitBreaker fake whose open/closed state is
// set directly by the test via SetOpen rather than derived from failure
// counting: a single RecordFailure opens it and RecordSuccess closes it.
type MockCircuitBreaker struct {
	mu         sync.Mutex
	open       map[string]bool
	isOpenHits map[string]int
}

func NewMockCircuitBreaker() *MockCircuitBreaker {
	return &MockCircuitBreaker{open: make(map[string]bool), isOpenHits: make(map[string]int)}
}

func (m *MockCircuitBreaker) IsOpen(provider string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.isOpenHits[provider]++
	return m.open[provider]
}

// IsOpenCalls returns how many times IsOpen was called for provider,
// letting a test assert the caller consulted it at most once per
// decision rather than re-checking a CAS-gated probe mid-request.
func (m *MockCircuitBreaker) IsOpenCalls(provider string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isOpenHits[provider]
}

func (m *MockCircuitBreaker) RecordSuccess(provider string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open[provider] = false
}

func (m *MockCircuitBreaker) RecordFailure(provider string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open[provider] = true
}

// SetOpen lets a test force provider's breaker state directly.
func (m *MockCircuitBreaker) SetOpen(provider string, open bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open[provider] = open
}

// MockLatencyTracker returns a fixed average per provider, defaulting to
// the seed value passed to NewMockLatencyTracker for any provider that
// hasn't been overridden via Set.
type MockLatencyTracker struct {
	mu   sync.Mutex
	avg  map[string]float64
	seed float64
}

func NewMockLatencyTracker(seed float64) *MockLatencyTracker {
	return &MockLatencyTracker{avg: make(map[string]float64), seed: seed}
}

func (m *MockLatencyTracker) Update(provider string, latencyMs float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.avg[provider] = latencyMs
}

func (m *MockLatencyTracker) Average(provider string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.avg[provider]; ok {
		return v
	}
	return m.seed
}

// MockExhaustionPredictor returns a fixed verdict per provider, true for
// every provider named in AtRisk. Record is a no-op observer.
type MockExhaustionPredictor struct {
	AtRisk map[string]bool
}

func NewMockExhaustionPredictor() *MockExhaustionPredictor {
	return &MockExhaustionPredictor{AtRisk: make(map[string]bool)}
}

func (m *MockExhaustionPredictor) Record(_ string, _ int) {}

func (m *MockExhaustionPredictor) IsAtRisk(provider string, _, _, _, _ int) bool {
	return m.AtRisk[provider]
}

// MockScorer returns the candidate's static weight as its score, excluding
// nothing, unless the provider name is listed in Excluded.
type MockScorer struct {
	Excluded map[string]bool
}

func NewMockScorer() *MockScorer {
	return &MockScorer{Excluded: make(map[string]bool)}
}

func (m *MockScorer) ScoreProvider(in domain.ScoreInput) (domain.ProviderScore, bool) {
	if m.Excluded[in.Name] {
		return domain.ProviderScore{}, false
	}
	return domain.ProviderScore{Name: in.Name, Score: in.StaticWeight, StaticScore: in.StaticWeight}, true
}

func (m *MockScorer) Rank(scores []domain.ProviderScore) []domain.ProviderScore {
	out := make([]domain.ProviderScore, len(scores))
	copy(out, scores)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// MockTokenEstimator returns a fixed token count regardless of input.
type MockTokenEstimator struct {
	Fixed int
}

func (m *MockTokenEstimator) EstimateTokens(_ []domain.Message) int {
	return m.Fixed
}

// MockProviderRegistry is a ProviderRegistry fake backed by a plain map,
// preserving registration order for Snapshot.
type MockProviderRegistry struct {
	mu    sync.Mutex
	order []string
	byName map[string]domain.Provider
}

func NewMockProviderRegistry() *MockProviderRegistry {
	return &MockProviderRegistry{byName: make(map[string]domain.Provider)}
}

func (m *MockProviderRegistry) Register(spec domain.Provider) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byName[spec.Name]; !exists {
		m.order = append(m.order, spec.Name)
	}
	m.byName[spec.Name] = spec
	return nil
}

func (m *MockProviderRegistry) RegisterBYOC(name string, adapter Adapter, spec domain.Provider) error {
	spec.Name = name
	spec.Adapter = adapter
	return m.Register(spec)
}

func (m *MockProviderRegistry) Snapshot() []domain.Provider {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Provider, 0, len(m.order))
	for _, name := range m.order {
		if p := m.byName[name]; p.Enabled {
			out = append(out, p)
		}
	}
	return out
}

func (m *MockProviderRegistry) Get(name string) (domain.Provider, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byName[name]
	return p, ok
}
