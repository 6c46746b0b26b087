package events

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Subscription receives envelopes published on a Bus.
type Subscription struct {
	id      uint64
	bus     *Bus
	filter  func(Envelope) bool
	ch      chan Envelope
	dropped atomic.Uint64
	once    sync.Once
}

// C returns the receive channel. It is closed by Close.
func (s *Subscription) C() <-chan Envelope { return s.ch }

// Dropped returns how many envelopes were discarded because the buffer was full.
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

// Close detaches the subscription and closes its channel.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs, s.id)
		s.bus.mu.Unlock()
		close(s.ch)
	})
}

// Bus fans committed envelopes out to subscribers. Publishing never blocks:
// a subscriber whose buffer is full loses the envelope and has it counted in
// Dropped. All methods are safe for concurrent use.
type Bus struct {
	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64
	logger *zap.Logger
}

// NewBus creates an empty Bus.
//
// Precondition: logger must be non-nil.
func NewBus(logger *zap.Logger) *Bus {
	return &Bus{
		subs:   make(map[uint64]*Subscription),
		logger: logger,
	}
}

// Subscribe registers a subscriber with the given buffer size. A nil filter
// accepts every envelope.
//
// Postcondition: The returned subscription receives every envelope published
// after this call that passes filter, until Close.
func (b *Bus) Subscribe(buffer int, filter func(Envelope) bool) *Subscription {
	if buffer <= 0 {
		buffer = 64
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	sub := &Subscription{
		id:     b.nextID,
		bus:    b,
		filter: filter,
		ch:     make(chan Envelope, buffer),
	}
	b.subs[sub.id] = sub
	return sub
}

// Publish delivers envs, in order, to every matching subscriber.
func (b *Bus) Publish(envs []Envelope) {
	if len(envs) == 0 {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		for _, env := range envs {
			if sub.filter != nil && !sub.filter(env) {
				continue
			}
			select {
			case sub.ch <- env:
			default:
				sub.dropped.Add(1)
				b.logger.Warn("event subscriber buffer full, dropping event",
					zap.Uint64("subscription", sub.id),
					zap.Uint64("seq", env.Seq),
					zap.String("event", env.Event.Name()),
				)
			}
		}
	}
}

// Subscribers returns the number of active subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
