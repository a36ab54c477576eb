// Package events fans scheduler events out to live subscribers (websocket
// clients) and to external sinks such as NATS.
package events

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/affective-thought-kernel/internal/thought"
)

// DefaultBuffer is the per-subscriber channel size. Character events arrive
// every few tens of milliseconds, so a slow reader falls behind quickly.
const DefaultBuffer = 256

type subscriber struct {
	ch      chan thought.Event
	dropped atomic.Int64
}

// Bus implements thought.Emitter. Delivery to subscribers never blocks: a
// subscriber whose buffer is full misses the event.
type Bus struct {
	buffer int
	logger *zap.Logger

	mu     sync.RWMutex
	subs   map[uint64]*subscriber
	nextID uint64
	sinks  []thought.Emitter
	closed bool
}

// NewBus creates a bus with the given per-subscriber buffer.
func NewBus(buffer int, logger *zap.Logger) *Bus {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		buffer: buffer,
		logger: logger.Named("events"),
		subs:   make(map[uint64]*subscriber),
	}
}

// AddSink registers an emitter that receives every event synchronously.
func (b *Bus) AddSink(sink thought.Emitter) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks = append(b.sinks, sink)
}

// Subscribe returns a channel of events and a function that releases it.
// The channel is closed on release or when the bus closes.
func (b *Bus) Subscribe() (<-chan thought.Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &subscriber{ch: make(chan thought.Event, b.buffer)}
	if b.closed {
		close(sub.ch)
		return sub.ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = sub

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() { b.unsubscribe(id) })
	}
}

func (b *Bus) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub, ok := b.subs[id]
	if !ok {
		return
	}
	delete(b.subs, id)
	close(sub.ch)
	if n := sub.dropped.Load(); n > 0 {
		b.logger.Debug("Subscriber released", zap.Uint64("id", id), zap.Int64("dropped", n))
	}
}

// Emit delivers ev to every sink and subscriber.
func (b *Bus) Emit(ev thought.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	for _, sink := range b.sinks {
		sink.Emit(ev)
	}
	for _, sub := range b.subs {
		select {
		case sub.ch <- ev:
		default:
			sub.dropped.Add(1)
		}
	}
}

// Subscribers returns the number of live subscribers.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close releases all subscribers. Later events are discarded.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		close(sub.ch)
		delete(b.subs, id)
	}
}
