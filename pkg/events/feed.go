// Package events provides a small in-process publish/subscribe fan-out,
// modeled on go-ethereum's event.Feed/Subscription shape (only its test
// files were retrieved into the pack, so the channel-fan-out design is
// reproduced from the well-known public API surface, not copied source —
// see DESIGN.md).
package events

import "sync"

// Subscription is a live registration on a Feed. Calling Unsubscribe stops
// delivery and closes the channel returned by Feed.Subscribe.
type Subscription[T any] struct {
	feed *Feed[T]
	ch   chan T
	once sync.Once
}

func (s *Subscription[T]) Chan() <-chan T { return s.ch }

func (s *Subscription[T]) Unsubscribe() {
	s.once.Do(func() {
		s.feed.remove(s)
		close(s.ch)
	})
}

// Feed fans a value out to every current subscriber. Sends are
// non-blocking: a slow or abandoned subscriber drops events rather than
// stalling the publisher (§5: "abandonment by the requester ... does not
// stall the service").
type Feed[T any] struct {
	mu   sync.Mutex
	subs map[*Subscription[T]]struct{}
}

func NewFeed[T any]() *Feed[T] {
	return &Feed[T]{subs: make(map[*Subscription[T]]struct{})}
}

func (f *Feed[T]) Subscribe(buffer int) *Subscription[T] {
	if buffer < 1 {
		buffer = 1
	}
	sub := &Subscription[T]{feed: f, ch: make(chan T, buffer)}
	f.mu.Lock()
	f.subs[sub] = struct{}{}
	f.mu.Unlock()
	return sub
}

func (f *Feed[T]) remove(sub *Subscription[T]) {
	f.mu.Lock()
	delete(f.subs, sub)
	f.mu.Unlock()
}

// Send delivers value to every current subscriber, dropping it for any
// subscriber whose buffer is full.
func (f *Feed[T]) Send(value T) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for sub := range f.subs {
		select {
		case sub.ch <- value:
		default:
		}
	}
}
