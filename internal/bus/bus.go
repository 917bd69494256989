// Package bus is an in-process broadcast channel for model.Message values.
//
// Every subscriber owns a bounded buffer. Publish never blocks: when a
// subscriber's buffer is full, the oldest unread message in that buffer is
// discarded to make room and the drop is counted on the subscription. Slow
// subscribers therefore see a gap, never a stalled producer.
package bus

import (
	"sync"
	"sync/atomic"

	"watcher/internal/model"
)

// DefaultCapacity is the per-subscriber buffer size.
const DefaultCapacity = 100

// Bus fans each published message out to all current subscribers.
type Bus struct {
	mu       sync.RWMutex
	subs     map[uint64]*Subscription
	nextID   uint64
	capacity int
	onDrop   func()
}

// Option configures a Bus.
type Option func(*Bus)

// WithDropHook registers fn to be called once per dropped message.
func WithDropHook(fn func()) Option {
	return func(b *Bus) {
		b.onDrop = fn
	}
}

// New creates a bus whose subscribers buffer up to capacity messages.
func New(capacity int, opts ...Option) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	b := &Bus{
		subs:     make(map[uint64]*Subscription),
		capacity: capacity,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscription is one consumer's cursor on the bus.
type Subscription struct {
	id      uint64
	ch      chan model.Message
	bus     *Bus
	dropped atomic.Uint64
	once    sync.Once
}

// Subscribe registers a new subscriber. It only receives messages published
// after this call returns.
func (b *Bus) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{
		id:  b.nextID,
		ch:  make(chan model.Message, b.capacity),
		bus: b,
	}
	b.subs[sub.id] = sub
	return sub
}

// Publish delivers msg to every subscriber and returns how many there were.
func (b *Bus) Publish(msg model.Message) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		sub.offer(msg, b.onDrop)
	}
	return len(b.subs)
}

// Subscribers returns the current subscriber count.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (s *Subscription) offer(msg model.Message, onDrop func()) {
	for {
		select {
		case s.ch <- msg:
			return
		default:
		}
		// Full: evict the oldest message and retry. Concurrent publishers may
		// race for the freed slot, hence the loop.
		select {
		case <-s.ch:
			s.dropped.Add(1)
			if onDrop != nil {
				onDrop()
			}
		default:
		}
	}
}

// C returns the channel messages arrive on. It is closed by Close.
func (s *Subscription) C() <-chan model.Message {
	return s.ch
}

// Dropped returns how many messages this subscriber lost to overflow.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Close unregisters the subscription and closes its channel. It is safe to
// call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs, s.id)
		s.bus.mu.Unlock()
		close(s.ch)
	})
}
