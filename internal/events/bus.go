package events

import (
	"log/slog"
	"sync"

	"github.com/binwatch/binwatch/internal/id"
)

// subscriberBuffer is the per-subscriber channel capacity. A full reload
// cycle emits at most eight step events plus one error.
const subscriberBuffer = 64

// Bus fans lifecycle events out to subscribers. Sends never block: a slow
// subscriber has events dropped rather than stalling the reload sequence.
type Bus struct {
	logger *slog.Logger

	mu          sync.RWMutex
	subscribers map[string]chan Event
	closed      bool
}

// NewBus creates an event bus.
func NewBus(logger *slog.Logger) *Bus {
	return &Bus{
		logger:      logger,
		subscribers: make(map[string]chan Event),
	}
}

// Subscribe registers a new subscriber and returns its ID and channel.
// The channel is closed on Unsubscribe or when the bus shuts down.
func (b *Bus) Subscribe() (string, <-chan Event) {
	subID := id.MustGenerate("sub")
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		// Late subscriber on a disposed session observes an already
		// closed channel rather than blocking forever.
		close(ch)
		return subID, ch
	}

	b.subscribers[subID] = ch
	return subID, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.subscribers[subID]
	if !ok {
		return
	}
	delete(b.subscribers, subID)
	close(ch)
}

// Publish delivers an event to all subscribers. No-op after Close, so a
// disposed session emits nothing further.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for subID, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			b.logger.Warn("dropped lifecycle event for slow subscriber",
				"subscriber_id", subID,
				"event_type", string(event.Type))
		}
	}
}

// Close shuts the bus down and closes all subscriber channels. Idempotent.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for subID, ch := range b.subscribers {
		delete(b.subscribers, subID)
		close(ch)
	}
}
