// Package state implements the two StateBackend variants: an in-process
// sliding window for single-instance deployments, and a Redis-backed
// shared window for multi-instance deployments that must agree on usage.
package state

import (
	"context"
	"sync"
	"time"
)

type windowEntry struct {
	at     time.Time
	tokens int
}

type sessionEntry struct {
	provider string
	expiry   time.Time
}

// InMemory is the zero-dependency, single-process StateBackend. It keeps
// one FIFO window per provider and a flat session map, each behind its
// own mutex exactly as the reference in-process backend does -- usage
// accounting and session affinity never need to block each other.
type InMemory struct {
	mu      sync.Mutex
	windows map[string][]windowEntry

	sessionMu sync.Mutex
	sessions  map[string]sessionEntry
}

func NewInMemory() *InMemory {
	return &InMemory{
		windows:  make(map[string][]windowEntry),
		sessions: make(map[string]sessionEntry),
	}
}

// RecordRequest appends one usage sample for provider. window is unused
// here: the in-process backend purges eagerly on every read instead of
// relying on a TTL.
func (m *InMemory) RecordRequest(_ context.Context, provider string, tokens int, _ time.Duration, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.windows[provider] = append(m.windows[provider], windowEntry{at: now, tokens: tokens})
	return nil
}

// GetUsage purges samples outside window then returns the request and
// token counts remaining.
func (m *InMemory) GetUsage(_ context.Context, provider string, window time.Duration, now time.Time) (int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries := purgeWindow(m.windows[provider], now, window)
	m.windows[provider] = entries

	tokens := 0
	for _, e := range entries {
		tokens += e.tokens
	}
	return len(entries), tokens, nil
}

func purgeWindow(entries []windowEntry, now time.Time, window time.Duration) []windowEntry {
	cutoff := now.Add(-window)
	i := 0
	for i < len(entries) && entries[i].at.Before(cutoff) {
		i++
	}
	if i == 0 {
		return entries
	}
	return append([]windowEntry(nil), entries[i:]...)
}

// GetSessionProvider returns the provider pinned to sessionID, lazily
// expiring the pin if its TTL has passed.
func (m *InMemory) GetSessionProvider(_ context.Context, sessionID string) (string, bool, error) {
	m.sessionMu.Lock()
	defer m.sessionMu.Unlock()

	entry, ok := m.sessions[sessionID]
	if !ok {
		return "", false, nil
	}
	if time.Now().After(entry.expiry) {
		delete(m.sessions, sessionID)
		return "", false, nil
	}
	return entry.provider, true, nil
}

// SetSessionProvider pins sessionID to provider for ttl.
func (m *InMemory) SetSessionProvider(_ context.Context, sessionID, provider string, ttl time.Duration) error {
	m.sessionMu.Lock()
	defer m.sessionMu.Unlock()
	m.sessions[sessionID] = sessionEntry{provider: provider, expiry: time.Now().Add(ttl)}
	return nil
}

// Close is a no-op: there is no external resource to release.
func (m *InMemory) Close() error { return nil }
