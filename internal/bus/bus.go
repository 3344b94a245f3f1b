// Package bus provides an in-process publish/subscribe registry keyed by
// topic. Subscriptions are reference-counted handles; fan-out stops and the
// topic is dropped when the last subscriber leaves.
package bus

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is one published item.
type Event struct {
	Topic     string
	Payload   interface{}
	Timestamp time.Time
}

// Handler consumes published events. Handlers run on the publisher's
// goroutine and must not block.
type Handler func(Event)

// Subscription is a handle returned by Subscribe; Cancel removes it.
type Subscription struct {
	id    string
	topic string
	bus   *Bus
}

// Cancel removes this subscription from its topic. Safe to call more than
// once.
func (s *Subscription) Cancel() {
	s.bus.cancel(s.topic, s.id)
}

// Topic returns the topic this subscription listens on.
func (s *Subscription) Topic() string {
	return s.topic
}

// Bus is a topic-keyed fan-out registry.
type Bus struct {
	mu     sync.RWMutex
	topics map[string]map[string]Handler
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{topics: make(map[string]map[string]Handler)}
}

// Subscribe registers handler for topic and returns its handle.
func (b *Bus) Subscribe(topic string, handler Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	handlers, ok := b.topics[topic]
	if !ok {
		handlers = make(map[string]Handler)
		b.topics[topic] = handlers
	}

	id := uuid.NewString()
	handlers[id] = handler
	return &Subscription{id: id, topic: topic, bus: b}
}

// Publish delivers payload to every current subscriber of topic.
func (b *Bus) Publish(topic string, payload interface{}) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.topics[topic]))
	for _, h := range b.topics[topic] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	if len(handlers) == 0 {
		return
	}

	ev := Event{Topic: topic, Payload: payload, Timestamp: time.Now()}
	for _, h := range handlers {
		h(ev)
	}
}

// SubscriberCount reports the number of live subscriptions for topic.
func (b *Bus) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}

func (b *Bus) cancel(topic, id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	handlers, ok := b.topics[topic]
	if !ok {
		return
	}
	delete(handlers, id)
	if len(handlers) == 0 {
		delete(b.topics, topic)
	}
}
