package bus

import "sync"

// Channel is the broadcast boundary between the chat core and whatever
// transport fans events out. Publish delivers to the topic's live
// subscribers only; there is no buffering or replay for subscribers that
// are gone or saturated; they catch up through a history pull.
type Channel interface {
	Publish(evt Event)
	Subscribe(topic string, bufSize int) (<-chan Event, func())
}

// Bus is the in-process Channel implementation.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]*subscription
	next   int
	onDrop func(Event)
}

type subscription struct {
	topic string
	ch    chan Event
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{
		subs: make(map[int]*subscription),
	}
}

// Publish sends an event to all subscribers of evt.Topic.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if sub.topic != evt.Topic {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			// Drop event if subscriber is full (non-blocking).
			if b.onDrop != nil {
				b.onDrop(evt)
			}
		}
	}
}

// SetDropHook installs a callback invoked whenever an event is dropped on
// a saturated subscriber. Must be set before the bus is in use.
func (b *Bus) SetDropHook(fn func(Event)) {
	b.mu.Lock()
	b.onDrop = fn
	b.mu.Unlock()
}

// Subscribe returns a channel that receives events published on the given
// topic. bufSize controls the channel buffer. Returns the channel and an
// unsubscribe function.
func (b *Bus) Subscribe(topic string, bufSize int) (<-chan Event, func()) {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = &subscription{topic: topic, ch: ch}
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}
