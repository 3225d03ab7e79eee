// Package eventbus provides a small typed publish/subscribe bus used to
// deliver host session lifecycle events to interested components.
package eventbus

import (
	"sync"
	"sync/atomic"
)

// Handler receives published events
type Handler[T any] func(T)

// Subscription is a registered handler. Unsubscribe is idempotent.
type Subscription interface {
	Unsubscribe()
}

// Bus delivers events of type T to subscribers synchronously, in
// subscription order, on the publisher's goroutine.
type Bus[T any] struct {
	mu     sync.RWMutex
	subs   map[uint64]Handler[T]
	order  []uint64
	nextID atomic.Uint64
	closed bool
}

// New creates an empty bus
func New[T any]() *Bus[T] {
	return &Bus[T]{subs: make(map[uint64]Handler[T])}
}

type subscription[T any] struct {
	bus  *Bus[T]
	id   uint64
	once sync.Once
}

func (s *subscription[T]) Unsubscribe() {
	s.once.Do(func() { s.bus.remove(s.id) })
}

// Subscribe registers h. A closed bus returns a no-op subscription.
func (b *Bus[T]) Subscribe(h Handler[T]) Subscription {
	id := b.nextID.Add(1)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return &subscription[T]{bus: b, id: id}
	}
	b.subs[id] = h
	b.order = append(b.order, id)
	return &subscription[T]{bus: b, id: id}
}

func (b *Bus[T]) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[id]; !ok {
		return
	}
	delete(b.subs, id)
	for i, v := range b.order {
		if v == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

// Publish delivers ev to every current subscriber
func (b *Bus[T]) Publish(ev T) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	handlers := make([]Handler[T], 0, len(b.order))
	for _, id := range b.order {
		handlers = append(handlers, b.subs[id])
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
}

// SubscriberCount returns the number of active subscribers
func (b *Bus[T]) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close drops all subscribers; later publishes are ignored
func (b *Bus[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subs = map[uint64]Handler[T]{}
	b.order = nil
}
