// Package eventbus provides the in-memory event bus plugins subscribe to.
// It implements the plugin.EventBus collaborator interface; subscriptions
// are identified by opaque tokens so they can be reversed during teardown.
package eventbus

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/harun/plugkit/pkg/plugin"
)

// Bus is an in-memory publish/subscribe bus. Callbacks run sequentially on
// the publisher's goroutine.
type Bus struct {
	logger zerolog.Logger

	mu   sync.RWMutex
	subs map[string]map[string]plugin.EventCallback // event -> token -> callback
}

// New creates an empty bus.
func New(logger zerolog.Logger) *Bus {
	return &Bus{
		logger: logger.With().Str("component", "event-bus").Logger(),
		subs:   make(map[string]map[string]plugin.EventCallback),
	}
}

// Subscribe registers a callback for an event and returns the subscription
// token.
func (b *Bus) Subscribe(event string, cb plugin.EventCallback) string {
	token := uuid.NewString()

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs[event] == nil {
		b.subs[event] = make(map[string]plugin.EventCallback)
	}
	b.subs[event][token] = cb

	b.logger.Debug().Str("event", event).Str("token", token).Msg("Subscribed")
	return token
}

// Unsubscribe removes a subscription by token. Unknown tokens are a no-op.
func (b *Bus) Unsubscribe(event, token string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	callbacks, ok := b.subs[event]
	if !ok {
		return
	}
	delete(callbacks, token)
	if len(callbacks) == 0 {
		delete(b.subs, event)
	}
}

// Publish delivers an event to every subscriber. A panicking callback is
// logged and does not affect the remaining subscribers.
func (b *Bus) Publish(ctx context.Context, event string, payload map[string]any) {
	b.mu.RLock()
	callbacks := make([]plugin.EventCallback, 0, len(b.subs[event]))
	for _, cb := range b.subs[event] {
		callbacks = append(callbacks, cb)
	}
	b.mu.RUnlock()

	for _, cb := range callbacks {
		b.deliver(ctx, event, cb, payload)
	}
}

func (b *Bus) deliver(ctx context.Context, event string, cb plugin.EventCallback, payload map[string]any) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().
				Str("event", event).
				Interface("panic", r).
				Msg("Event callback panicked")
		}
	}()
	cb(ctx, payload)
}

// SubscriberCount reports how many callbacks are registered for an event.
func (b *Bus) SubscriberCount(event string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[event])
}
