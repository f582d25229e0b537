// Package channel provides the named, bidirectional message channel that
// devtools bridges and relays talk over, and the process-wide registry that
// shares one channel connection between every bridged store.
package channel

import (
	"context"
	"errors"
)

var (
	// ErrChannelUnavailable is returned when a channel could not be connected.
	ErrChannelUnavailable = errors.New("devtools channel unavailable")
	// ErrChannelClosed is returned when sending on or listening to a closed channel.
	ErrChannelClosed = errors.New("devtools channel closed")
	// ErrNoConnector is returned by a registry that has no connector configured.
	ErrNoConnector = errors.New("no channel connector configured")
)

// DefaultPlugin is the plugin name bridges use when none is configured.
const DefaultPlugin = "devtools"

// Role is the side of a channel a participant is on.
type Role string

const (
	// RoleOrigin is the application process whose stores are bridged.
	RoleOrigin Role = "origin"
	// RoleObserver is the debugging process receiving store traffic.
	RoleObserver Role = "observer"
)

// Handler receives the raw JSON payload of one message.
type Handler func(payload []byte)

// Subscription is returned by AddMessageListener.
type Subscription interface {
	Unsubscribe()
}

// Channel is an opaque bidirectional named-message channel.
type Channel interface {
	// SendMessage JSON-encodes payload and sends it under topic.
	SendMessage(ctx context.Context, topic string, payload any) error

	// AddMessageListener registers h for messages arriving under topic.
	// Handlers for one channel run sequentially in arrival order.
	AddMessageListener(topic string, h Handler) (Subscription, error)

	// Close releases the channel. Further sends fail with ErrChannelClosed.
	Close() error
}

// Connector opens a channel for a plugin name.
type Connector interface {
	Connect(ctx context.Context, plugin string) (Channel, error)
}

// ConnectorFunc adapts a function to Connector.
type ConnectorFunc func(ctx context.Context, plugin string) (Channel, error)

func (f ConnectorFunc) Connect(ctx context.Context, plugin string) (Channel, error) {
	return f(ctx, plugin)
}

type subscriptionFunc func()

func (f subscriptionFunc) Unsubscribe() { f() }
