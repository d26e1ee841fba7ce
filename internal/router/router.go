// Package router implements the orchestrator: the single object a caller
// talks to. It owns no collaborator's internals, only their ports, and
// wires together ranking, the attempt loop, usage bookkeeping and the
// observability hook.
package router

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/routellm/llmrouter/internal/core/domain"
	"github.com/routellm/llmrouter/internal/core/ports"
	"github.com/routellm/llmrouter/internal/logger"
	"github.com/routellm/llmrouter/internal/observability"
	"github.com/routellm/llmrouter/pkg/pool"
)

// rankScratch holds the slices rank() needs per call. Every chat/stream
// request re-ranks from scratch, so these would otherwise be a fresh
// allocation on every request; pooling them lets warmed-up calls reuse
// these two slices (rank still allocates its lookup maps and result list).
type rankScratch struct {
	scores   []domain.ProviderScore
	fallback []domain.Provider
}

func (s *rankScratch) Reset() {
	s.scores = s.scores[:0]
	s.fallback = s.fallback[:0]
}

var scratchPool = pool.NewLitePool(func() *rankScratch { return &rankScratch{} })

// Config holds the tunables a Router needs beyond its collaborators --
// the values RouterConfig loads from YAML/env.
type Config struct {
	WindowSeconds          int
	HighPriorityReservePct float64
	SessionTTL             time.Duration
}

// Router is the adaptive, rate-limit-aware routing orchestrator. All of
// its collaborators are narrow ports; Router never reaches past one into
// a concrete implementation.
type Router struct {
	cfg Config

	registry  ports.ProviderRegistry
	scorer    ports.Scorer
	latency   ports.LatencyTracker
	predictor ports.ExhaustionPredictor
	breaker   ports.CircuitBreaker
	state     ports.StateBackend
	estimator ports.TokenEstimator
	hook      *observability.Hook
	log       *logger.StyledLogger

	inFlight sync.Map // provider name -> *int64
}

// New assembles a Router from its collaborators. Construction does no
// I/O. The registry and state backend are passed in already built; the
// Router performs no deferred initialisation on its first request.
func New(cfg Config, registry ports.ProviderRegistry, scorer ports.Scorer, latency ports.LatencyTracker,
	predictor ports.ExhaustionPredictor, breaker ports.CircuitBreaker, state ports.StateBackend,
	estimator ports.TokenEstimator, hook *observability.Hook, log *logger.StyledLogger) *Router {
	return &Router{
		cfg: cfg, registry: registry, scorer: scorer, latency: latency,
		predictor: predictor, breaker: breaker, state: state,
		estimator: estimator, hook: hook, log: log,
	}
}

func (r *Router) window() time.Duration {
	seconds := r.cfg.WindowSeconds
	if seconds <= 0 {
		seconds = 60
	}
	return time.Duration(seconds) * time.Second
}

// Chat routes a non-streaming request, trying ranked candidates in order
// until one succeeds or every candidate has been tried.
func (r *Router) Chat(ctx context.Context, req domain.Request) (domain.Response, error) {
	ranked, err := r.rank(ctx, req)
	if err != nil {
		return domain.Response{}, err
	}

	var attempted []domain.AttemptError
	for i, p := range ranked {
		attemptNumber := i + 1

		// rank() already excluded every provider whose circuit is open --
		// IsOpen must not be called a second time here. Breaker.IsOpen
		// admits a single half-open probe via a CAS; a
		// second call on the same provider within this request would lose
		// that CAS and wrongly report OPEN, skipping the very candidate
		// rank() just approved and starving recovery.
		r.trackInFlight(p.Name, 1)
		t0 := time.Now()
		resp, err := p.Adapter.Chat(ctx, req)
		r.trackInFlight(p.Name, -1)

		if err != nil {
			attempted = append(attempted, domain.AttemptError{Provider: p.Name, Err: err})
			r.breaker.RecordFailure(p.Name)
			r.log.Warn("provider attempt failed", "provider", p.Name, "attempt", attemptNumber, "error", err)
			continue
		}

		latencyMs := float64(time.Since(t0).Microseconds()) / 1000.0
		r.recordSuccess(ctx, p, req, resp.InputTokens+resp.OutputTokens, latencyMs)

		resp.Provider = p.Name
		resp.Model = p.Model
		resp.LatencyMs = latencyMs
		resp.Attempts = attemptNumber

		r.fireRouteEvent(ctx, p, req, resp.InputTokens, resp.OutputTokens, latencyMs, attemptNumber, false)
		return resp, nil
	}

	return domain.Response{}, &domain.AllProvidersFailedError{Attempted: attempted}
}

// Stream routes a streaming request. If a candidate fails before its
// first chunk, Stream falls back to the next candidate. Once a chunk has
// been emitted to the caller, no further fallback happens: the error (if
// any) is returned alongside whatever content already reached emit.
func (r *Router) Stream(ctx context.Context, req domain.Request, emit func(chunk string)) (domain.Response, error) {
	ranked, err := r.rank(ctx, req)
	if err != nil {
		return domain.Response{}, err
	}

	var attempted []domain.AttemptError
	for i, p := range ranked {
		attemptNumber := i + 1

		// See the matching comment in Chat: rank() already excluded every
		// open-circuit provider, and IsOpen must not be re-checked here.

		firstByteSent := false
		wrappedEmit := func(chunk string) {
			firstByteSent = true
			emit(chunk)
		}

		r.trackInFlight(p.Name, 1)
		t0 := time.Now()
		resp, err := p.Adapter.Stream(ctx, req, wrappedEmit)
		r.trackInFlight(p.Name, -1)

		if err != nil {
			r.breaker.RecordFailure(p.Name)
			attempted = append(attempted, domain.AttemptError{Provider: p.Name, Err: err})
			if firstByteSent {
				// Streaming already reached the caller; no fallback is
				// possible once a byte has been delivered.
				resp.Provider = p.Name
				resp.Model = p.Model
				resp.Attempts = attemptNumber
				return resp, err
			}
			continue
		}

		estimatedTokens := r.estimator.EstimateTokens(req.Messages)
		latencyMs := float64(time.Since(t0).Microseconds()) / 1000.0
		tokens := resp.InputTokens + resp.OutputTokens
		if tokens == 0 {
			tokens = estimatedTokens
		}
		r.recordSuccess(ctx, p, req, tokens, latencyMs)

		resp.Provider = p.Name
		resp.Model = p.Model
		resp.LatencyMs = latencyMs
		resp.Attempts = attemptNumber

		r.fireRouteEvent(ctx, p, req, resp.InputTokens, resp.OutputTokens, latencyMs, attemptNumber, false)
		return resp, nil
	}

	r.log.Error("all providers failed", "attempts", len(attempted))
	return domain.Response{}, &domain.AllProvidersFailedError{Attempted: attempted}
}

// RegisterBYOC registers a caller-supplied adapter at runtime.
func (r *Router) RegisterBYOC(name string, adapter domain.Adapter, spec domain.Provider) error {
	return r.registry.RegisterBYOC(name, adapter, spec)
}

// Status returns a per-provider usage/health snapshot.
func (r *Router) Status(ctx context.Context) (map[string]domain.ProviderStatus, error) {
	out := make(map[string]domain.ProviderStatus)
	for _, p := range r.registry.Snapshot() {
		rpmUsed, tpmUsed, err := r.state.GetUsage(ctx, p.Name, r.window(), time.Now())
		if err != nil {
			return nil, fmt.Errorf("reading usage for %s: %w", p.Name, err)
		}

		rpmHeadroomPct := headroomPct(rpmUsed, p.RPMLimit)
		tpmHeadroomPct := headroomPct(tpmUsed, p.TPMLimit)
		headroomPctVal := rpmHeadroomPct
		if tpmHeadroomPct < headroomPctVal {
			headroomPctVal = tpmHeadroomPct
		}

		out[p.Name] = domain.ProviderStatus{
			RPMUsed: rpmUsed, RPMLimit: p.RPMLimit,
			TPMUsed: tpmUsed, TPMLimit: p.TPMLimit,
			HeadroomPct:      headroomPctVal,
			CircuitOpen:      r.breaker.IsOpen(p.Name),
			AvgLatencyMs:     r.latency.Average(p.Name),
			RequestsInFlight: r.loadInFlight(p.Name),
		}
	}
	return out, nil
}

// Close releases every registered adapter and the state backend.
func (r *Router) Close() error {
	for _, p := range r.registry.Snapshot() {
		if p.Adapter != nil {
			_ = p.Adapter.Close()
		}
	}
	return r.state.Close()
}

// rank resolves session affinity, scores every eligible provider and
// returns the ranked candidate list: ranked-by-score first, then
// capacity-exhausted providers as a last resort, with the pinned
// provider (session or forced) promoted to the front. Every provider in
// the returned list has already passed a breaker.IsOpen check here --
// callers walking the list must not call IsOpen again for the same
// provider within the same request (see Chat/Stream).
func (r *Router) rank(ctx context.Context, req domain.Request) ([]domain.Provider, error) {
	all := r.registry.Snapshot()
	if len(all) == 0 {
		return nil, &domain.NoProvidersConfiguredError{Reason: "no providers are registered"}
	}

	var pinnedName string
	if req.SessionID != "" {
		if p, ok, err := r.state.GetSessionProvider(ctx, req.SessionID); err == nil && ok {
			pinnedName = p
		}
	}
	if req.ForceProvider != "" {
		pinnedName = req.ForceProvider
	}

	estimatedTokens := r.estimator.EstimateTokens(req.Messages)

	largestTPM := 0
	for _, p := range all {
		if p.TPMLimit > largestTPM {
			largestTPM = p.TPMLimit
		}
	}
	if largestTPM < estimatedTokens {
		return nil, &domain.TokenLimitExceededError{EstimatedTokens: estimatedTokens, LargestTPMLimit: largestTPM}
	}

	scratch := scratchPool.Get()
	defer scratchPool.Put(scratch)

	byName := make(map[string]domain.Provider, len(all))
	openByName := make(map[string]bool, len(all))

	for _, p := range all {
		byName[p.Name] = p

		// Cache this request's IsOpen verdict per provider: Breaker.IsOpen
		// admits a single half-open probe via a CAS, so
		// calling it twice for the same provider in one request would lose
		// that CAS on the second call and wrongly report OPEN.
		open := r.breaker.IsOpen(p.Name)
		openByName[p.Name] = open
		if open {
			continue
		}

		rpmUsed, tpmUsed, err := r.state.GetUsage(ctx, p.Name, r.window(), time.Now())
		if err != nil {
			continue
		}

		atRisk := r.predictor.IsAtRisk(p.Name, rpmUsed, p.RPMLimit, tpmUsed, p.TPMLimit)

		score, ok := r.scorer.ScoreProvider(domain.ScoreInput{
			Name: p.Name, RPMUsed: rpmUsed, RPMLimit: p.RPMLimit,
			TPMUsed: tpmUsed, TPMLimit: p.TPMLimit,
			EstimatedTokens: estimatedTokens, LatencyEMAMs: r.latency.Average(p.Name),
			StaticWeight: p.Weight, Priority: req.Priority, IsAtRisk: atRisk,
			HighPriorityReservePct: r.cfg.HighPriorityReservePct,
		})
		if ok {
			scratch.scores = append(scratch.scores, score)
		} else {
			scratch.fallback = append(scratch.fallback, p)
		}
	}

	rankedScores := r.scorer.Rank(scratch.scores)

	ranked := make([]domain.Provider, 0, len(rankedScores))
	for _, s := range rankedScores {
		if p, ok := byName[s.Name]; ok {
			ranked = append(ranked, p)
		}
	}

	if pinnedName != "" {
		if pinned, ok := byName[pinnedName]; ok && !openByName[pinnedName] {
			ranked = removeNamed(ranked, pinnedName)
			ranked = append([]domain.Provider{pinned}, ranked...)
		}
	}

	for _, p := range scratch.fallback {
		if !containsNamed(ranked, p.Name) {
			ranked = append(ranked, p)
		}
	}

	if len(ranked) == 0 {
		return nil, &domain.NoProvidersConfiguredError{Reason: "every registered provider's circuit is open"}
	}

	return ranked, nil
}

func (r *Router) recordSuccess(ctx context.Context, p domain.Provider, req domain.Request, tokens int, latencyMs float64) {
	_ = r.state.RecordRequest(ctx, p.Name, tokens, r.window(), time.Now())
	r.latency.Update(p.Name, latencyMs)
	r.predictor.Record(p.Name, tokens)
	r.breaker.RecordSuccess(p.Name)

	if req.SessionID != "" {
		_ = r.state.SetSessionProvider(ctx, req.SessionID, p.Name, r.sessionTTL())
	}
}

func (r *Router) sessionTTL() time.Duration {
	if r.cfg.SessionTTL <= 0 {
		return time.Hour
	}
	return r.cfg.SessionTTL
}

func (r *Router) fireRouteEvent(ctx context.Context, p domain.Provider, req domain.Request, inputTokens, outputTokens int, latencyMs float64, attemptNumber int, circuitOpen bool) {
	if r.hook == nil {
		return
	}
	rpmUsed, tpmUsed, err := r.state.GetUsage(ctx, p.Name, r.window(), time.Now())
	headroom := 0.0
	if err == nil {
		rpmHeadroom := headroomPct(rpmUsed, p.RPMLimit)
		tpmHeadroom := headroomPct(tpmUsed, p.TPMLimit)
		headroom = rpmHeadroom
		if tpmHeadroom < headroom {
			headroom = tpmHeadroom
		}
	}

	r.hook.Fire(domain.RouteEvent{
		Provider: p.Name, Model: p.Model,
		InputTokens: inputTokens, OutputTokens: outputTokens,
		LatencyMs: latencyMs, HeadroomPct: headroom, CircuitOpen: circuitOpen,
		Timestamp: time.Now().Unix(), AttemptNumber: attemptNumber,
		SessionID: req.SessionID, Priority: req.Priority,
	})
}

func (r *Router) trackInFlight(provider string, delta int64) {
	v, _ := r.inFlight.LoadOrStore(provider, new(int64))
	counter := v.(*int64)
	atomic.AddInt64(counter, delta)
}

func (r *Router) loadInFlight(provider string) int64 {
	v, ok := r.inFlight.Load(provider)
	if !ok {
		return 0
	}
	return atomic.LoadInt64(v.(*int64))
}

func headroomPct(used, limit int) float64 {
	if limit <= 0 {
		return 0
	}
	h := 1.0 - float64(used)/float64(limit)
	if h < 0 {
		h = 0
	}
	return h * 100
}

func removeNamed(providers []domain.Provider, name string) []domain.Provider {
	out := make([]domain.Provider, 0, len(providers))
	for _, p := range providers {
		if p.Name != name {
			out = append(out, p)
		}
	}
	return out
}

func containsNamed(providers []domain.Provider, name string) bool {
	for _, p := range providers {
		if p.Name == name {
			return true
		}
	}
	return false
}
