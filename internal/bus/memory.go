// ABOUTME: In-process Bus implementation for tests, grounded on the teacher's EventBroadcaster
// ABOUTME: Delivers synchronously to every subscriber of a subject

package bus

import (
	"context"
	"sync"
)

// MemoryBus is an in-process Bus used by tests that don't need a real NATS
// server. It mirrors the teacher's EventBroadcaster shape: a mutex-guarded
// map of subject to subscriber handlers, snapshotted before delivery.
type MemoryBus struct {
	mu   sync.RWMutex
	subs map[string]map[int]func([]byte)
	next int
}

// NewMemoryBus returns a ready-to-use in-process bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: map[string]map[int]func([]byte){}}
}

// Publish invokes every handler currently subscribed to subject, synchronously.
func (b *MemoryBus) Publish(_ context.Context, subject string, payload []byte) error {
	b.mu.RLock()
	handlers := make([]func([]byte), 0, len(b.subs[subject]))
	for _, h := range b.subs[subject] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(payload)
	}
	return nil
}

type memorySubscription struct {
	bus     *MemoryBus
	subject string
	id      int
}

func (s *memorySubscription) Unsubscribe() error {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	delete(s.bus.subs[s.subject], s.id)
	if len(s.bus.subs[s.subject]) == 0 {
		delete(s.bus.subs, s.subject)
	}
	return nil
}

// Subscribe registers handler for subject, returning a Subscription that
// removes it on Unsubscribe.
func (b *MemoryBus) Subscribe(subject string, handler func(payload []byte)) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subs[subject] == nil {
		b.subs[subject] = map[int]func([]byte){}
	}
	id := b.next
	b.next++
	b.subs[subject][id] = handler

	return &memorySubscription{bus: b, subject: subject, id: id}, nil
}

// Close is a no-op for the in-process bus.
func (b *MemoryBus) Close() error {
	return nil
}
