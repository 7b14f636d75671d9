package eventbus

import (
	"context"
	"sync"

	"videoingest/internal/videomodel"
)

// MemoryBus is an in-process Bus for unit tests. It keeps no history: an
// event reaches only the subscriptions that exist when it is published, and
// Publish blocks while a subscriber's 64-event buffer is full.
type MemoryBus struct {
	mu   sync.Mutex
	subs map[string][]*memorySubscription
}

// NewMemory constructs an empty MemoryBus.
func NewMemory() *MemoryBus {
	return &MemoryBus{subs: make(map[string][]*memorySubscription)}
}

func (b *MemoryBus) Publish(_ context.Context, event videomodel.StatusEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs[TopicVideoStatus] {
		sub.deliver(event)
	}
	return nil
}

func (b *MemoryBus) Subscribe(_ context.Context, topic string) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := &memorySubscription{events: make(chan videomodel.StatusEvent, 64)}
	b.subs[topic] = append(b.subs[topic], sub)
	return sub, nil
}

func (b *MemoryBus) Close() error { return nil }

type memorySubscription struct {
	mu     sync.Mutex
	events chan videomodel.StatusEvent
	closed bool
}

func (s *memorySubscription) deliver(event videomodel.StatusEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.events <- event
}

func (s *memorySubscription) Events() <-chan videomodel.StatusEvent { return s.events }

func (s *memorySubscription) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
	return nil
}

var _ Bus = (*MemoryBus)(nil)
