package channel

import (
	"fmt"
	"log/slog"
	"sync"
)

// Listeners is a topic-indexed handler table for Channel implementations.
// Delivery copies the handler list so handlers may unsubscribe themselves.
type Listeners struct {
	mu       sync.RWMutex
	handlers map[string]map[uint64]Handler
	nextID   uint64
	logger   *slog.Logger
}

// NewListeners creates an empty table. Panics in handlers are logged to logger.
func NewListeners(logger *slog.Logger) *Listeners {
	if logger == nil {
		logger = slog.Default()
	}
	return &Listeners{
		handlers: make(map[string]map[uint64]Handler),
		logger:   logger,
	}
}

// Add registers h for topic.
func (l *Listeners) Add(topic string, h Handler) Subscription {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := l.nextID
	l.nextID++
	if l.handlers[topic] == nil {
		l.handlers[topic] = make(map[uint64]Handler)
	}
	l.handlers[topic][id] = h

	var once sync.Once
	return subscriptionFunc(func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			delete(l.handlers[topic], id)
			if len(l.handlers[topic]) == 0 {
				delete(l.handlers, topic)
			}
		})
	})
}

// Count returns the number of handlers for topic.
func (l *Listeners) Count(topic string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.handlers[topic])
}

// Deliver calls every handler for topic. A panicking handler is logged and
// does not stop delivery to the others.
func (l *Listeners) Deliver(topic string, payload []byte) {
	l.mu.RLock()
	hs := make([]Handler, 0, len(l.handlers[topic]))
	for _, h := range l.handlers[topic] {
		hs = append(hs, h)
	}
	l.mu.RUnlock()

	for _, h := range hs {
		l.call(topic, h, payload)
	}
}

func (l *Listeners) call(topic string, h Handler, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("Channel listener panicked", "topic", topic, "panic", fmt.Sprint(r))
		}
	}()
	h(payload)
}
