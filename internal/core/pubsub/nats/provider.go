package nats

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/syntrixbase/devbridge/internal/core/pubsub"
)

// connectFunc connects to NATS (injectable for testing)
type connectFunc func(url string, opts ...nats.Option) (Conn, error)

// defaultConnect is the default implementation that uses nats.Connect
var defaultConnect connectFunc = func(url string, opts ...nats.Option) (Conn, error) {
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}
	return WrapConn(nc), nil
}

// Provider implements pubsub.Provider over core NATS subjects. Nothing is
// persisted: consumers only see messages published while subscribed.
type Provider struct {
	url        string
	clientName string
	connect    connectFunc // injectable for testing

	mu   sync.RWMutex
	conn Conn
}

// Compile-time check that Provider implements pubsub.Provider
var _ pubsub.Provider = (*Provider)(nil)
var _ pubsub.Connectable = (*Provider)(nil)

// NewProvider creates a new NATS-based pubsub provider.
// Connect must be called before creating publishers or consumers.
func NewProvider(url, clientName string) *Provider {
	return &Provider{
		url:        url,
		clientName: clientName,
		connect:    defaultConnect,
	}
}

// Connect establishes the NATS connection.
func (p *Provider) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil {
		return nil
	}

	connectFn := p.connect
	if connectFn == nil {
		connectFn = defaultConnect
	}

	var opts []nats.Option
	if p.clientName != "" {
		opts = append(opts, nats.Name(p.clientName))
	}

	conn, err := connectFn(p.url, opts...)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", p.url, err)
	}
	p.conn = conn

	slog.Info("Connected to NATS", "url", p.url, "client", p.clientName)
	return nil
}

// NewPublisher creates a new Publisher.
func (p *Provider) NewPublisher(opts pubsub.PublisherOptions) (pubsub.Publisher, error) {
	conn := p.current()
	if conn == nil {
		return nil, ErrNotConnected
	}
	return NewPublisher(conn, opts)
}

// NewConsumer creates a new Consumer.
func (p *Provider) NewConsumer(opts pubsub.ConsumerOptions) (pubsub.Consumer, error) {
	conn := p.current()
	if conn == nil {
		return nil, ErrNotConnected
	}
	return NewConsumer(conn, opts)
}

// Close closes the NATS connection.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil {
		slog.Info("Closing NATS connection...", "url", p.url)
		p.conn.Close()
		p.conn = nil
	}
	return nil
}

func (p *Provider) current() Conn {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.conn
}
