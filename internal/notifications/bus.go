package notifications

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/jang1230/upbit-auto-trader-sub000/internal/logger"
)

// Subscription receives the events it was registered for on C
type Subscription struct {
	Name    string
	C       <-chan Event
	ch      chan Event
	filter  map[EventType]bool
	dropped atomic.Int64
}

// Dropped is how many events were discarded because C was full
func (s *Subscription) Dropped() int64 {
	return s.dropped.Load()
}

func (s *Subscription) wants(t EventType) bool {
	return len(s.filter) == 0 || s.filter[t]
}

// Bus is an in-process publish/subscribe hub. Publish never blocks: a
// subscriber that falls behind loses events instead of stalling traders.
type Bus struct {
	log *logger.Logger

	mu     sync.RWMutex
	subs   []*Subscription
	closed bool
}

// NewBus creates an empty bus
func NewBus(log *logger.Logger) *Bus {
	return &Bus{log: log.Named("bus")}
}

// Subscribe registers a subscriber with a buffer of the given size. With no
// types it receives everything.
func (b *Bus) Subscribe(name string, buffer int, types ...EventType) *Subscription {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)
	sub := &Subscription{Name: name, C: ch, ch: ch, filter: make(map[EventType]bool)}
	for _, t := range types {
		sub.filter[t] = true
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return sub
	}
	b.subs = append(b.subs, sub)
	return sub
}

// Unsubscribe removes sub and closes its channel
func (b *Bus) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s == sub {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			close(s.ch)
			return
		}
	}
}

// Publish delivers e to every interested subscriber that has room
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, s := range b.subs {
		if !s.wants(e.Type) {
			continue
		}
		select {
		case s.ch <- e:
		default:
			if n := s.dropped.Add(1); n == 1 || n%100 == 0 {
				b.log.Warn("subscriber behind, events dropped",
					zap.String("subscriber", s.Name),
					zap.Int64("dropped", n))
			}
		}
	}
}

// Close closes every subscription channel; later publishes are ignored
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, s := range b.subs {
		close(s.ch)
	}
	b.subs = nil
}
