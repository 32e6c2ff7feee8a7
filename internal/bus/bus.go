// Package bus is a bounded multi-producer fan-out channel. Every active
// connection holds its own subscription; publishing never blocks — a full
// or cancelled subscriber simply misses the event.
package bus

import "sync"

type Bus[T any] struct {
	mu       sync.Mutex
	capacity int
	subs     map[*Subscription[T]]struct{}
}

type Subscription[T any] struct {
	// C delivers events in publish order for this subscriber.
	C   <-chan T
	ch  chan T
	bus *Bus[T]
}

func New[T any](capacity int) *Bus[T] {
	return &Bus[T]{
		capacity: capacity,
		subs:     make(map[*Subscription[T]]struct{}),
	}
}

func (b *Bus[T]) Subscribe() *Subscription[T] {
	ch := make(chan T, b.capacity)
	sub := &Subscription[T]{C: ch, ch: ch, bus: b}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

// Publish delivers v to every subscriber whose queue has room and reports
// how many deliveries were dropped. It never blocks.
func (b *Bus[T]) Publish(v T) (dropped int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.subs {
		select {
		case sub.ch <- v:
		default:
			dropped++
		}
	}
	return dropped
}

// Cancel removes the subscription and closes its channel. Safe to call
// more than once.
func (s *Subscription[T]) Cancel() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()

	if _, ok := s.bus.subs[s]; !ok {
		return
	}
	delete(s.bus.subs, s)
	close(s.ch)
}
