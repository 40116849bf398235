package realtime

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by a broker after Close.
var ErrClosed = errors.New("realtime: broker closed")

// Broker publishes events and hands out per-topic subscriptions.
type Broker interface {
	Publish(ctx context.Context, ev Event) error
	Subscribe(ctx context.Context, topic string) (*Subscription, error)
	Close() error
}

// Subscription is a live feed for one topic. C is closed after Close, after
// the subscribe context is done, or when the broker shuts down.
type Subscription struct {
	C     <-chan Event
	Topic string

	once  sync.Once
	close func()
}

// Close stops delivery. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(s.close)
}

// offer delivers ev to ch without blocking. It reports false when the
// subscriber buffer is full and the event was dropped.
func offer(ch chan Event, ev Event) bool {
	select {
	case ch <- ev:
		return true
	default:
		eventsDropped.WithLabelValues(ev.Resource).Inc()
		return false
	}
}

// MemoryBroker is an in-process Broker. It only reaches subscribers of the
// same process.
type MemoryBroker struct {
	buffer int

	mu     sync.Mutex
	subs   map[string]map[chan Event]struct{}
	closed bool
}

// NewMemoryBroker returns a broker whose subscriptions buffer up to buffer
// events (64 when buffer <= 0).
func NewMemoryBroker(buffer int) *MemoryBroker {
	if buffer <= 0 {
		buffer = 64
	}
	return &MemoryBroker{buffer: buffer, subs: make(map[string]map[chan Event]struct{})}
}

// Publish delivers ev to every current subscriber of its topic.
func (b *MemoryBroker) Publish(_ context.Context, ev Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	eventsPublished.WithLabelValues(ev.Resource).Inc()
	for ch := range b.subs[ev.Topic()] {
		offer(ch, ev)
	}
	return nil
}

// Subscribe registers a subscriber for topic until ctx is done or the
// subscription is closed.
func (b *MemoryBroker) Subscribe(ctx context.Context, topic string) (*Subscription, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	ch := make(chan Event, b.buffer)
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[chan Event]struct{})
	}
	b.subs[topic][ch] = struct{}{}
	b.mu.Unlock()

	done := make(chan struct{})
	sub := &Subscription{C: ch, Topic: topic}
	sub.close = func() {
		close(done)
		b.remove(topic, ch)
	}
	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-done:
		}
	}()
	return sub, nil
}

func (b *MemoryBroker) remove(topic string, ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.subs[topic]
	if !ok {
		return
	}
	if _, ok := set[ch]; !ok {
		return
	}
	delete(set, ch)
	if len(set) == 0 {
		delete(b.subs, topic)
	}
	close(ch)
}

// Subscribers returns the number of live subscriptions on topic.
func (b *MemoryBroker) Subscribers(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[topic])
}

// Close ends every subscription.
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for topic, set := range b.subs {
		for ch := range set {
			close(ch)
		}
		delete(b.subs, topic)
	}
	return nil
}
