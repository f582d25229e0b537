package memory

import (
	"github.com/syntrixbase/devbridge/internal/core/pubsub"
)

// Compile-time check that Engine implements pubsub.Provider
var _ pubsub.Provider = (*Engine)(nil)

// Engine provides an in-process pubsub provider. Bridges and relays that live
// in the same process (tests, embedded observers) share one Engine.
type Engine struct {
	broker *broker
}

// New creates a new in-memory pubsub engine.
func New() *Engine {
	return &Engine{broker: newBroker()}
}

// NewPublisher creates a new in-memory Publisher.
func (e *Engine) NewPublisher(opts pubsub.PublisherOptions) (pubsub.Publisher, error) {
	if e.IsClosed() {
		return nil, ErrEngineClosed
	}
	return &memoryPublisher{
		broker: e.broker,
		opts:   opts,
	}, nil
}

// NewConsumer creates a new in-memory Consumer.
func (e *Engine) NewConsumer(opts pubsub.ConsumerOptions) (pubsub.Consumer, error) {
	if e.IsClosed() {
		return nil, ErrEngineClosed
	}
	return &memoryConsumer{
		broker: e.broker,
		opts:   opts,
	}, nil
}

// Close shuts down the engine and all subscriptions.
func (e *Engine) Close() error {
	return e.broker.close()
}

// IsClosed returns true if the engine is closed.
func (e *Engine) IsClosed() bool {
	return e.broker.isClosed()
}

// Subscribers returns the number of live subscriptions.
func (e *Engine) Subscribers() int {
	return e.broker.subscriberCount()
}
