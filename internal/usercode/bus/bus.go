// Package bus is the change notification bus: it fans out invalidation keys,
// typically file paths under the data directory, to subscribers.
package bus

import (
	"log/slog"
	"sort"
	"sync"
)

// Listener receives invalidation keys. Listeners must not block.
type Listener func(key string)

// Subscriber is the consumer side of the bus.
type Subscriber interface {
	Subscribe(l Listener) (unsubscribe func())
}

// Publisher is the producer side of the bus.
type Publisher interface {
	Publish(key string)
}

var (
	_ Subscriber = (*Bus)(nil)
	_ Publisher  = (*Bus)(nil)
)

// Bus delivers every published key to every subscriber, synchronously and in
// subscription order.
type Bus struct {
	mu        sync.RWMutex
	listeners map[uint64]Listener
	nextID    uint64
	logger    *slog.Logger
}

// New returns an empty bus.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default().WithGroup("bus.Bus")
	}
	return &Bus{listeners: make(map[uint64]Listener), logger: logger}
}

// Subscribe registers l and returns a function that removes it.
func (b *Bus) Subscribe(l Listener) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.listeners[id] = l

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.listeners, id)
	}
}

// Publish delivers key to all current subscribers.
func (b *Bus) Publish(key string) {
	b.mu.RLock()
	ids := make([]uint64, 0, len(b.listeners))
	for id := range b.listeners {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	listeners := make([]Listener, 0, len(ids))
	for _, id := range ids {
		listeners = append(listeners, b.listeners[id])
	}
	b.mu.RUnlock()

	b.logger.Debug("Publishing invalidation", "key", key, "subscribers", len(listeners))
	for _, l := range listeners {
		l(key)
	}
}
