package messaging

import (
	"context"
	"encoding/json"
)

// EventBus is the pub/sub transport used to broadcast PO events to all
// connected clients. Implementations must provide at-least-once delivery;
// consumers deduplicate.
type EventBus interface {
	// Publish sends a named event with a JSON-encodable payload on a channel.
	Publish(ctx context.Context, channel, event string, payload interface{}) error

	// Subscribe opens a subscription to a channel. Handlers are bound per
	// event name on the returned Subscription.
	Subscribe(channel string) (Subscription, error)
}

// Subscription is one live binding to a channel
type Subscription interface {
	// On binds a handler for a named event. Binding again replaces the
	// previous handler.
	On(event string, fn func(data json.RawMessage))

	// Off removes the handler for a named event.
	Off(event string)

	// Close unsubscribes and releases the subscription. Safe to call more
	// than once.
	Close() error
}
