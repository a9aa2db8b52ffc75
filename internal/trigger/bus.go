package trigger

import (
	"go.uber.org/zap"

	"github.com/campusfound/matchd/internal/domain"
)

// Event signals that a document was created in one of the two collections.
type Event struct {
	Collection domain.Collection
	ID         string
}

// Publisher is the producing side of the trigger bus. Transports publish
// creation events; Publish never blocks the caller.
type Publisher interface {
	Publish(ev Event)
}

// MemoryBus is an in-process trigger bus backed by a buffered channel.
// When the buffer is full events are dropped with a warning rather than
// stalling the publisher: reactive matching is best-effort and a missed
// event is recoverable by an explicit matching call.
type MemoryBus struct {
	ch     chan Event
	logger *zap.Logger
}

// NewMemoryBus creates a bus with the given buffer size.
func NewMemoryBus(size int, logger *zap.Logger) *MemoryBus {
	return &MemoryBus{
		ch:     make(chan Event, size),
		logger: logger,
	}
}

// Publish enqueues an event, dropping it when the buffer is full.
func (b *MemoryBus) Publish(ev Event) {
	select {
	case b.ch <- ev:
	default:
		b.logger.Warn("Trigger buffer full, event dropped",
			zap.String("collection", string(ev.Collection)),
			zap.String("id", ev.ID))
	}
}

// Events exposes the consuming side of the bus.
func (b *MemoryBus) Events() <-chan Event {
	return b.ch
}

// Close stops the bus. Publish must not be called afterwards.
func (b *MemoryBus) Close() {
	close(b.ch)
}
