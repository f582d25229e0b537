package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/syntrixbase/devbridge/internal/core/pubsub"
)

// broker manages in-memory message routing. Not exported.
type broker struct {
	mu            sync.RWMutex
	subscriptions map[uint64]*subscription
	nextID        uint64
	closed        atomic.Bool
}

// subscription represents a single consumer's subscription.
// Several subscriptions may share a pattern; each gets its own copy.
type subscription struct {
	pattern    string
	msgCh      chan pubsub.Message
	ctx        context.Context
	cancelFunc context.CancelFunc
}

func newBroker() *broker {
	return &broker{
		subscriptions: make(map[uint64]*subscription),
	}
}

// publish sends a message to all matching subscriptions.
// It blocks while a matching subscriber's buffer is full, until ctx expires.
func (b *broker) publish(ctx context.Context, subject string, data []byte) error {
	if b.closed.Load() {
		return ErrEngineClosed
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	now := time.Now()
	for _, sub := range b.subscriptions {
		if !matchSubject(sub.pattern, subject) {
			continue
		}
		msg := &memoryMessage{
			data:      data,
			subject:   subject,
			timestamp: now,
		}
		select {
		case sub.msgCh <- msg:
		case <-ctx.Done():
			return ctx.Err()
		case <-sub.ctx.Done():
			// Subscription cancelled, skip
		}
	}
	return nil
}

// subscribe creates a subscription for the given pattern.
// Returns the message channel, an unsubscribe function, and any error.
func (b *broker) subscribe(ctx context.Context, pattern string, bufSize int) (<-chan pubsub.Message, func(), error) {
	if b.closed.Load() {
		return nil, nil, ErrEngineClosed
	}
	if pattern == "" {
		return nil, nil, ErrInvalidPattern
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	subCtx, cancel := context.WithCancel(ctx)
	msgCh := make(chan pubsub.Message, bufSize)

	id := b.nextID
	b.nextID++
	sub := &subscription{
		pattern:    pattern,
		msgCh:      msgCh,
		ctx:        subCtx,
		cancelFunc: cancel,
	}
	b.subscriptions[id] = sub

	unsubscribe := func() {
		// cancel first so a publisher blocked on this subscription lets go of the read lock
		cancel()
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.subscriptions[id] == sub {
			delete(b.subscriptions, id)
			close(msgCh)
		}
	}

	return msgCh, unsubscribe, nil
}

// close shuts down the broker and all subscriptions.
func (b *broker) close() error {
	if b.closed.Swap(true) {
		return nil // Already closed
	}

	for _, sub := range b.snapshot() {
		sub.cancelFunc()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.subscriptions {
		close(sub.msgCh)
	}
	b.subscriptions = map[uint64]*subscription{}
	return nil
}

func (b *broker) snapshot() []*subscription {
	b.mu.RLock()
	defer b.mu.RUnlock()
	subs := make([]*subscription, 0, len(b.subscriptions))
	for _, sub := range b.subscriptions {
		subs = append(subs, sub)
	}
	return subs
}

// isClosed returns true if the broker is closed.
func (b *broker) isClosed() bool {
	return b.closed.Load()
}

// subscriberCount returns the number of live subscriptions.
func (b *broker) subscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscriptions)
}
