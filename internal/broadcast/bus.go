// Package broadcast implements the two process-wide lossy
// multi-producer multi-consumer event channels: one for metric events,
// one for service-check events. Publication never blocks the
// producer; a subscriber that falls behind loses its oldest buffered
// events and is told how many it missed.
package broadcast

import (
	"sync"

	"github.com/google/uuid"

	"github.com/guardia-project/guardia/internal/metrics"
)

// Bus is a generic lossy broadcast channel for events of type T.
type Bus[T any] struct {
	capacity int

	mu   sync.RWMutex
	subs map[uuid.UUID]*subscriber[T]

	reg  *metrics.Registry
	name string
}

type subscriber[T any] struct {
	id  uuid.UUID
	bus *Bus[T]

	mu  sync.Mutex
	ch  chan T
	lag chan int
}

// New creates a bus whose subscribers each buffer up to capacity
// events before the oldest is dropped.
func New[T any](capacity int) *Bus[T] {
	if capacity <= 0 {
		capacity = 256
	}
	return &Bus[T]{
		capacity: capacity,
		subs:     make(map[uuid.UUID]*subscriber[T]),
	}
}

// Subscription is a live handle to a bus. Events arrive on Events();
// if the subscriber falls behind, a skip count arrives on Lag() for
// every batch of drops.
type Subscription[T any] struct {
	ID  uuid.UUID
	bus *Bus[T]
	sub *subscriber[T]
}

// SetMetrics attaches a metrics registry so subscriber count and drop
// events on this bus are reported under the given bus name. Called once,
// right after New, before any Subscribe; nil-safe to skip from tests
// that don't care about exposition.
func (b *Bus[T]) SetMetrics(reg *metrics.Registry, name string) {
	b.reg = reg
	b.name = name
	b.setSubscriberGauge()
}

func (b *Bus[T]) setSubscriberGauge() {
	if b.reg == nil {
		return
	}
	b.reg.BroadcastSubscribers.WithLabelValues(b.name).Set(float64(len(b.subs)))
}

func (b *Bus[T]) recordDrop() {
	if b.reg != nil {
		b.reg.BroadcastDropped.WithLabelValues(b.name).Inc()
	}
}

// Subscribe registers a new subscriber and returns its handle. The
// handle is cheaply cloneable in the sense that callers may pass it by
// pointer freely; there is exactly one live channel pair per
// subscription.
func (b *Bus[T]) Subscribe() *Subscription[T] {
	sub := &subscriber[T]{
		id:  uuid.New(),
		bus: b,
		ch:  make(chan T, b.capacity),
		lag: make(chan int, 1),
	}

	b.mu.Lock()
	b.subs[sub.id] = sub
	b.setSubscriberGauge()
	b.mu.Unlock()

	return &Subscription[T]{ID: sub.id, bus: b, sub: sub}
}

// Events returns the channel events are delivered on.
func (s *Subscription[T]) Events() <-chan T { return s.sub.ch }

// Lag returns a channel that receives the number of events dropped
// every time this subscriber falls behind. It is advisory only —
// consumers that care about continuity must resynchronize from
// storage; a slow consumer of Lag itself receives one combined count
// of every drop since its last read.
func (s *Subscription[T]) Lag() <-chan int { return s.sub.lag }

// Unsubscribe removes the subscription from the bus. Publish calls
// already in flight for this subscriber may still deliver; callers
// should stop reading Events() only after Unsubscribe returns.
func (s *Subscription[T]) Unsubscribe() {
	s.bus.mu.Lock()
	delete(s.bus.subs, s.ID)
	s.bus.setSubscriberGauge()
	s.bus.mu.Unlock()
}

// Publish fans an event out to every current subscriber. It never
// blocks: a subscriber whose buffer is full has its oldest event
// dropped to make room, and is notified on Lag().
func (b *Bus[T]) Publish(event T) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		sub.deliver(event)
	}
}

// SubscriberCount reports how many subscribers are currently attached.
func (b *Bus[T]) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (s *subscriber[T]) deliver(event T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case s.ch <- event:
		return
	default:
	}

	dropped := 0
	select {
	case <-s.ch:
		dropped++
	default:
	}

	select {
	case s.ch <- event:
	default:
		dropped++
	}

	if dropped > 0 {
		for i := 0; i < dropped; i++ {
			s.bus.recordDrop()
		}
		select {
		case s.lag <- dropped:
		default:
			// a lag notification is already pending; coalesce by
			// draining and replacing with the combined count.
			select {
			case prev := <-s.lag:
				select {
				case s.lag <- prev + dropped:
				default:
				}
			default:
			}
		}
	}
}
