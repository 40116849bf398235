package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisBroker shares topics between instances through Redis Pub/Sub.
type RedisBroker struct {
	client *redis.Client
	buffer int
	log    zerolog.Logger

	mu     sync.Mutex
	subs   map[*redis.PubSub]struct{}
	closed bool
}

// NewRedisBroker wraps an existing client. The caller keeps ownership of the
// client and closes it after the broker.
func NewRedisBroker(client *redis.Client, buffer int, log zerolog.Logger) *RedisBroker {
	if buffer <= 0 {
		buffer = 64
	}
	return &RedisBroker{
		client: client,
		buffer: buffer,
		log:    log.With().Str("component", "realtime.redis").Logger(),
		subs:   make(map[*redis.PubSub]struct{}),
	}
}

// Publish sends ev as JSON on its topic.
func (b *RedisBroker) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("realtime: encode event: %w", err)
	}
	if err := b.client.Publish(ctx, ev.Topic(), data).Err(); err != nil {
		return fmt.Errorf("realtime: publish %s: %w", ev.Topic(), err)
	}
	eventsPublished.WithLabelValues(ev.Resource).Inc()
	return nil
}

// Subscribe opens a Redis subscription on topic and waits for the server to
// confirm it before returning.
func (b *RedisBroker) Subscribe(ctx context.Context, topic string) (*Subscription, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	b.mu.Unlock()

	ps := b.client.Subscribe(ctx, topic)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("realtime: subscribe %s: %w", topic, err)
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		_ = ps.Close()
		return nil, ErrClosed
	}
	b.subs[ps] = struct{}{}
	b.mu.Unlock()

	ch := make(chan Event, b.buffer)
	done := make(chan struct{})
	sub := &Subscription{C: ch, Topic: topic}
	sub.close = func() {
		close(done)
		b.mu.Lock()
		delete(b.subs, ps)
		b.mu.Unlock()
		_ = ps.Close()
	}

	msgs := ps.Channel()
	go func() {
		defer close(ch)
		for {
			select {
			case <-ctx.Done():
				sub.Close()
				return
			case <-done:
				return
			case m, ok := <-msgs:
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(m.Payload), &ev); err != nil {
					b.log.Warn().Err(err).Str("topic", topic).Msg("discarding malformed event")
					continue
				}
				offer(ch, ev)
			}
		}
	}()
	return sub, nil
}

// Close ends every subscription opened through this broker.
func (b *RedisBroker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := make([]*redis.PubSub, 0, len(b.subs))
	for ps := range b.subs {
		subs = append(subs, ps)
	}
	b.subs = map[*redis.PubSub]struct{}{}
	b.mu.Unlock()

	for _, ps := range subs {
		_ = ps.Close()
	}
	return nil
}
