package messaging

import (
	"context"
	"encoding/json"
	"sync"

	"example.com/potrack/internal/events"

	"github.com/pkg/errors"
)

// MemoryBus is an in-process EventBus. It backs single-process deployments
// and gives tests deterministic, synchronous delivery.
type MemoryBus struct {
	mu   sync.RWMutex
	subs map[string][]*memorySubscription
}

// NewMemoryBus creates an in-process event bus
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string][]*memorySubscription)}
}

// Publish delivers the event synchronously to every open subscription on
// the channel
func (b *MemoryBus) Publish(ctx context.Context, channel, event string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "failed to marshal event payload")
	}

	b.mu.RLock()
	subs := make([]*memorySubscription, len(b.subs[channel]))
	copy(subs, b.subs[channel])
	b.mu.RUnlock()

	for _, sub := range subs {
		sub.deliver(events.Envelope{Event: event, Data: data})
	}

	return nil
}

// Subscribe opens a subscription on the channel
func (b *MemoryBus) Subscribe(channel string) (Subscription, error) {
	sub := &memorySubscription{
		bus:      b,
		channel:  channel,
		handlers: make(map[string]func(json.RawMessage)),
	}

	b.mu.Lock()
	b.subs[channel] = append(b.subs[channel], sub)
	b.mu.Unlock()

	return sub, nil
}

type memorySubscription struct {
	bus     *MemoryBus
	channel string

	mu       sync.RWMutex
	handlers map[string]func(json.RawMessage)
	closed   bool
}

func (s *memorySubscription) deliver(envelope events.Envelope) {
	s.mu.RLock()
	handler := s.handlers[envelope.Event]
	closed := s.closed
	s.mu.RUnlock()

	if closed || handler == nil {
		return
	}
	handler(envelope.Data)
}

func (s *memorySubscription) On(event string, fn func(data json.RawMessage)) {
	s.mu.Lock()
	s.handlers[event] = fn
	s.mu.Unlock()
}

func (s *memorySubscription) Off(event string) {
	s.mu.Lock()
	delete(s.handlers, event)
	s.mu.Unlock()
}

func (s *memorySubscription) Close() error {
	s.mu.Lock()
	s.closed = true
	s.handlers = make(map[string]func(json.RawMessage))
	s.mu.Unlock()

	s.bus.mu.Lock()
	subs := s.bus.subs[s.channel]
	for i, sub := range subs {
		if sub == s {
			s.bus.subs[s.channel] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	s.bus.mu.Unlock()

	return nil
}
