// Package eventbus is the document-scoped publish/subscribe channel shared by every
// component of one designer session.
package eventbus

import (
	"sync"

	"go.uber.org/zap"
)

// Topic names an event and fixes its payload type.
type Topic[T any] struct {
	name string
}

// NewTopic declares a topic carrying payloads of type T.
func NewTopic[T any](name string) Topic[T] {
	return Topic[T]{name: name}
}

// Name returns the event name used in logs.
func (t Topic[T]) Name() string {
	return t.name
}

type subscription struct {
	id      uint64
	handler func(any)
}

// Bus dispatches events synchronously, in registration order, on the emitting goroutine.
// Handlers may emit further events; nested emits run to completion before the outer
// dispatch continues with the next subscriber.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[string][]subscription
	logger *zap.Logger
}

// New creates an empty bus.
func New(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		subs:   make(map[string][]subscription),
		logger: logger,
	}
}

// On registers handler for topic and returns a function that removes it.
func On[T any](b *Bus, topic Topic[T], handler func(T)) func() {
	if b == nil || handler == nil {
		return func() {}
	}

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[topic.name] = append(b.subs[topic.name], subscription{
		id: id,
		handler: func(payload any) {
			handler(payload.(T))
		},
	})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(topic.name, id) })
	}
}

// Emit delivers payload to every current subscriber of topic.
func Emit[T any](b *Bus, topic Topic[T], payload T) {
	if b == nil {
		return
	}

	b.mu.RLock()
	subs := append([]subscription(nil), b.subs[topic.name]...)
	b.mu.RUnlock()

	b.logger.Debug("event emitted",
		zap.String("event", topic.name),
		zap.Int("subscribers", len(subs)))

	for _, sub := range subs {
		sub.handler(payload)
	}
}

// Subscribers returns the number of handlers registered for the named topic.
func (b *Bus) Subscribers(name string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[name])
}

func (b *Bus) remove(name string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[name]
	for i, sub := range subs {
		if sub.id == id {
			b.subs[name] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(b.subs[name]) == 0 {
		delete(b.subs, name)
	}
}
