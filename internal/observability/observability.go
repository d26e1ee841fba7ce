// Package observability fans a router's routing decisions out to one or
// more observers. The router itself only ever calls a single on_route
// callback; this package is what lets a caller attach additional sinks
// (a JSONL file, a metrics counter) without the router knowing there is
// more than one.
package observability

import (
	"context"

	jsoniter "github.com/json-iterator/go"

	"github.com/routellm/llmrouter/internal/core/domain"
	"github.com/routellm/llmrouter/pkg/eventbus"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Hook wraps a generic RouteEvent bus. Fire is the router's single
// integration point; Subscribe lets any number of observers listen in.
type Hook struct {
	bus    *eventbus.EventBus[domain.RouteEvent]
	onRoute func(domain.RouteEvent)
}

// New returns a Hook. onRoute may be nil if the caller only wants to use
// Subscribe.
func New(onRoute func(domain.RouteEvent)) *Hook {
	return &Hook{bus: eventbus.New[domain.RouteEvent](), onRoute: onRoute}
}

// Fire delivers event to the primary on_route callback, if set, and
// publishes it to every subscriber. Fire never blocks on a slow
// subscriber: delivery to the bus is best-effort, so routing never waits
// on observability. A panicking
// callback is recovered and discarded -- observability must never affect
// the caller-visible routing outcome.
func (h *Hook) Fire(event domain.RouteEvent) {
	if h.onRoute != nil {
		h.invokeOnRoute(event)
	}
	h.bus.Publish(event)
}

func (h *Hook) invokeOnRoute(event domain.RouteEvent) {
	defer func() { _ = recover() }()
	h.onRoute(event)
}

// Subscribe returns a channel of events and a cleanup function, per
// eventbus.EventBus's contract.
func (h *Hook) Subscribe(ctx context.Context) (<-chan domain.RouteEvent, func()) {
	return h.bus.Subscribe(ctx)
}

// Close shuts down the underlying event bus.
func (h *Hook) Close() {
	h.bus.Shutdown()
}

// EncodeJSONL marshals event as a single JSONL line (without the
// trailing newline), using the jsoniter codec for parity with the
// router's other JSON encode paths.
func EncodeJSONL(event domain.RouteEvent) ([]byte, error) {
	return json.Marshal(event)
}
