// Package events is a small typed publish/subscribe helper.
package events

import "sync"

// Feed delivers values to subscribed channels and callbacks. Channel sends
// never block: a full channel misses the value. Callbacks run synchronously
// in Notify, outside the feed lock.
type Feed[T any] struct {
	mu        sync.RWMutex
	channels  map[uint64]chan<- T
	callbacks map[uint64]func(T)
	nextID    uint64

	replay bool
	last   T
	has    bool
}

// NewFeed returns a Feed. With replay set, a new subscriber immediately
// receives the last notified value, if any.
func NewFeed[T any](replay bool) *Feed[T] {
	return &Feed[T]{
		channels:  make(map[uint64]chan<- T),
		callbacks: make(map[uint64]func(T)),
		replay:    replay,
	}
}

// Listen subscribes ch and returns the function that unsubscribes it.
func (f *Feed[T]) Listen(ch chan<- T) func() {
	if ch == nil {
		panic("Feed: channel cannot be nil")
	}
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.channels[id] = ch
	last, send := f.last, f.replay && f.has
	f.mu.Unlock()

	if send {
		select {
		case ch <- last:
		default:
		}
	}
	return func() {
		f.mu.Lock()
		delete(f.channels, id)
		f.mu.Unlock()
	}
}

// Subscribe registers fn and returns the function that unregisters it.
func (f *Feed[T]) Subscribe(fn func(T)) func() {
	if fn == nil {
		panic("Feed: callback cannot be nil")
	}
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.callbacks[id] = fn
	last, send := f.last, f.replay && f.has
	f.mu.Unlock()

	if send {
		fn(last)
	}
	return func() {
		f.mu.Lock()
		delete(f.callbacks, id)
		f.mu.Unlock()
	}
}

// Notify publishes v to every subscriber.
func (f *Feed[T]) Notify(v T) {
	f.mu.Lock()
	if f.replay {
		f.last, f.has = v, true
	}
	channels := make([]chan<- T, 0, len(f.channels))
	for _, ch := range f.channels {
		channels = append(channels, ch)
	}
	callbacks := make([]func(T), 0, len(f.callbacks))
	for _, fn := range f.callbacks {
		callbacks = append(callbacks, fn)
	}
	f.mu.Unlock()

	for _, ch := range channels {
		select {
		case ch <- v:
		default:
		}
	}
	for _, fn := range callbacks {
		fn(v)
	}
}

// Subscribers returns the number of channels and callbacks subscribed.
func (f *Feed[T]) Subscribers() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.channels) + len(f.callbacks)
}
