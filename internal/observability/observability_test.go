package observability_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/routellm/llmrouter/internal/core/domain"
	"github.com/routellm/llmrouter/internal/observability"
)

func TestFire_InvokesOnRouteCallback(t *testing.T) {
	var received domain.RouteEvent
	h := observability.New(func(e domain.RouteEvent) { received = e })
	defer h.Close()

	h.Fire(domain.RouteEvent{Provider: "openai"})
	assert.Equal(t, "openai", received.Provider)
}

func TestFire_DeliversToSubscribers(t *testing.T) {
	h := observability.New(nil)
	defer h.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, cleanup := h.Subscribe(ctx)
	defer cleanup()

	h.Fire(domain.RouteEvent{Provider: "anthropic"})

	select {
	case e := <-ch:
		assert.Equal(t, "anthropic", e.Provider)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for subscriber delivery")
	}
}

func TestFire_RecoversFromPanickingCallback(t *testing.T) {
	h := observability.New(func(e domain.RouteEvent) { panic("boom") })
	defer h.Close()

	assert.NotPanics(t, func() {
		h.Fire(domain.RouteEvent{Provider: "openai"})
	})
}

func TestEncodeJSONL_RoundTripsProviderField(t *testing.T) {
	data, err := observability.EncodeJSONL(domain.RouteEvent{Provider: "groq"})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"groq"`)
}
