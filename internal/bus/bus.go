// Package bus fans events out to prefix-filtered subscribers. It is the
// seam between the protocol adapter, the sync engine and the lifecycle
// machine: each side publishes under its own namespace and never sees
// the others' types.
package bus

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type subscriber struct {
	prefix string
	ch     chan Event
}

// Bus is an in-process event fanout. Publishing never blocks: a
// subscriber whose buffer is full loses the event, and the loss is
// counted instead of back-pressured, so a slow consumer cannot stall
// the protocol socket.
type Bus struct {
	mu      sync.RWMutex
	subs    map[*subscriber]struct{}
	dropped atomic.Uint64
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[*subscriber]struct{})}
}

// Publish delivers evt to every subscriber whose prefix matches
// evt.Kind. A zero Timestamp is stamped with the current time.
func (b *Bus) Publish(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subs {
		if !strings.HasPrefix(evt.Kind, s.prefix) {
			continue
		}
		select {
		case s.ch <- evt:
		default:
			b.dropped.Add(1)
		}
	}
}

// Subscribe registers a buffered channel for every event whose kind
// starts with prefix; the empty prefix receives everything. The
// returned stop function removes the registration and is safe to call
// more than once. The channel is never closed.
func (b *Bus) Subscribe(prefix string, buf int) (<-chan Event, func()) {
	if buf < 1 {
		buf = 1
	}
	s := &subscriber{prefix: prefix, ch: make(chan Event, buf)}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, s)
			b.mu.Unlock()
		})
	}
	return s.ch, stop
}

// Dropped returns how many events were discarded because a subscriber's
// buffer was full.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}
