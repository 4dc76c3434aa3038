// ABOUTME: Typed event bus fanning store change notifications out to observers
// ABOUTME: Synchronous delivery in subscription order, plus a lossy channel adapter for render loops

package eventbus

import (
	"slices"
	"sync"
)

// Handler is a callback function for events.
type Handler[T any] func(T)

type subscriber[T any] struct {
	id int
	fn Handler[T]
}

// Bus is a typed event bus that delivers events to registered handlers.
type Bus[T any] struct {
	mu       sync.RWMutex
	handlers []subscriber[T]
	nextID   int
}

// New creates a new event bus.
func New[T any]() *Bus[T] {
	return &Bus[T]{}
}

// Subscribe registers a handler and returns an unsubscribe function. The
// returned function is idempotent.
func (b *Bus[T]) Subscribe(handler Handler[T]) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.handlers = append(b.handlers, subscriber[T]{id: id, fn: handler})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		b.handlers = slices.DeleteFunc(b.handlers, func(s subscriber[T]) bool { return s.id == id })
		b.mu.Unlock()
	}
}

// Chan subscribes a buffered channel. When the buffer is full the event is
// dropped for this subscriber, so a slow reader never blocks the publisher.
// The unsubscribe function closes the channel.
func (b *Bus[T]) Chan(buffer int) (<-chan T, func()) {
	ch := make(chan T, buffer)
	var (
		mu     sync.Mutex
		closed bool
	)
	unsub := b.Subscribe(func(ev T) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case ch <- ev:
		default:
		}
	})

	return ch, func() {
		unsub()
		mu.Lock()
		defer mu.Unlock()
		if !closed {
			closed = true
			close(ch)
		}
	}
}

// Publish sends an event to all registered handlers, synchronously, in the
// order they subscribed. Handlers may subscribe or unsubscribe re-entrantly.
func (b *Bus[T]) Publish(event T) {
	b.mu.RLock()
	snapshot := slices.Clone(b.handlers)
	b.mu.RUnlock()

	for _, s := range snapshot {
		s.fn(event)
	}
}

// Count returns the number of registered handlers.
func (b *Bus[T]) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers)
}
