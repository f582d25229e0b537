// Package pubsub provides a generic pub/sub abstraction for devtools channel traffic.
//
// Delivery is live and best effort: messages published while nobody is
// subscribed are dropped, and there is no redelivery.
package pubsub

import (
	"context"
	"time"
)

// Message represents a received message.
type Message interface {
	// Data returns the raw message payload.
	Data() []byte

	// Subject returns the message subject/topic.
	Subject() string

	// Timestamp returns when the message was received by this process.
	Timestamp() time.Time
}

// Publisher publishes messages to subjects.
type Publisher interface {
	// Publish sends a message to the specified subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// Close releases resources.
	Close() error
}

// Consumer consumes messages matching a subject pattern.
type Consumer interface {
	// Subscribe starts consuming messages and returns a channel.
	// The channel is closed when the context is cancelled or the provider closes.
	Subscribe(ctx context.Context) (<-chan Message, error)
}
