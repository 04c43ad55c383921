package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"example.com/potrack/config"
	"example.com/potrack/internal/events"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// RedisBus implements EventBus on top of Redis pub/sub
type RedisBus struct {
	client *redis.Client
}

// NewRedisBus creates a Redis-backed event bus
func NewRedisBus(cfg config.RedisConfig) (*RedisBus, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test the connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, errors.Wrap(err, "failed to connect to Redis")
	}

	return &RedisBus{client: client}, nil
}

// Publish sends an event envelope on the channel
func (b *RedisBus) Publish(ctx context.Context, channel, event string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "failed to marshal event payload")
	}

	envelope, err := json.Marshal(events.Envelope{Event: event, Data: data})
	if err != nil {
		return errors.Wrap(err, "failed to marshal event envelope")
	}

	if err := b.client.Publish(ctx, channel, envelope).Err(); err != nil {
		return errors.Wrap(err, "failed to publish event")
	}

	return nil
}

// Subscribe opens a pub/sub subscription and starts its receive loop
func (b *RedisBus) Subscribe(channel string) (Subscription, error) {
	pubsub := b.client.Subscribe(context.Background(), channel)

	// Force the subscription to be established before returning
	if _, err := pubsub.Receive(context.Background()); err != nil {
		_ = pubsub.Close()
		return nil, errors.Wrap(err, "failed to subscribe to channel")
	}

	sub := &redisSubscription{
		channel:  channel,
		pubsub:   pubsub,
		handlers: make(map[string]func(json.RawMessage)),
		done:     make(chan struct{}),
	}

	go sub.receiveLoop()

	return sub, nil
}

// Close closes the underlying Redis connection
func (b *RedisBus) Close() error {
	return b.client.Close()
}

type redisSubscription struct {
	channel string
	pubsub  *redis.PubSub

	mu       sync.RWMutex
	handlers map[string]func(json.RawMessage)

	closeOnce sync.Once
	done      chan struct{}
}

func (s *redisSubscription) receiveLoop() {
	ch := s.pubsub.Channel()
	for {
		select {
		case <-s.done:
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			s.dispatch([]byte(msg.Payload))
		}
	}
}

func (s *redisSubscription) dispatch(raw []byte) {
	var envelope events.Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		log.Error().Err(err).Str("channel", s.channel).Msg("Dropping malformed event envelope")
		return
	}

	s.mu.RLock()
	handler := s.handlers[envelope.Event]
	s.mu.RUnlock()

	if handler == nil {
		log.Debug().Str("event", envelope.Event).Msg("No handler bound for event")
		return
	}

	// Handlers are called in delivery order on the receive goroutine. A
	// panicking handler must not take down the subscription.
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("event", envelope.Event).
				Interface("panic", r).
				Msg("Event handler panicked")
		}
	}()
	handler(envelope.Data)
}

func (s *redisSubscription) On(event string, fn func(data json.RawMessage)) {
	s.mu.Lock()
	s.handlers[event] = fn
	s.mu.Unlock()
}

func (s *redisSubscription) Off(event string) {
	s.mu.Lock()
	delete(s.handlers, event)
	s.mu.Unlock()
}

func (s *redisSubscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.pubsub.Close()
	})
	return err
}
