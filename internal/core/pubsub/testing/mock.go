// Package testing provides mock implementations of pubsub interfaces for testing.
package testing

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/syntrixbase/devbridge/internal/core/pubsub"
)

// PublishedMessage represents a message that was published.
type PublishedMessage struct {
	Subject string
	Data    []byte
}

// MockPublisher is a mock implementation of pubsub.Publisher.
type MockPublisher struct {
	mu       sync.Mutex
	prefix   string
	messages []PublishedMessage
	err      error
	closed   bool
}

// NewMockPublisher creates a new MockPublisher.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

// Publish records the message under its full subject.
func (m *MockPublisher) Publish(ctx context.Context, subject string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return m.err
	}

	m.messages = append(m.messages, PublishedMessage{
		Subject: pubsub.FullSubject(m.prefix, subject),
		Data:    append([]byte(nil), data...), // Copy to avoid mutation
	})
	return nil
}

// Close marks the publisher as closed.
func (m *MockPublisher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Messages returns all published messages.
func (m *MockPublisher) Messages() []PublishedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]PublishedMessage(nil), m.messages...)
}

// SetError sets an error to return on Publish.
func (m *MockPublisher) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// IsClosed returns whether Close was called.
func (m *MockPublisher) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// MockMessage is a mock implementation of pubsub.Message.
type MockMessage struct {
	data    []byte
	subject string
	ts      time.Time
}

// NewMockMessage creates a new MockMessage.
func NewMockMessage(subject string, data []byte) *MockMessage {
	return &MockMessage{subject: subject, data: data, ts: time.Now()}
}

func (m *MockMessage) Data() []byte         { return m.data }
func (m *MockMessage) Subject() string      { return m.subject }
func (m *MockMessage) Timestamp() time.Time { return m.ts }

// MockConsumer is a mock implementation of pubsub.Consumer.
type MockConsumer struct {
	mu      sync.Mutex
	msgCh   chan pubsub.Message
	started bool
	err     error
}

// NewMockConsumer creates a new MockConsumer.
func NewMockConsumer() *MockConsumer {
	return &MockConsumer{}
}

// Subscribe returns a channel for receiving messages.
func (c *MockConsumer) Subscribe(ctx context.Context) (<-chan pubsub.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err != nil {
		return nil, c.err
	}

	ch := make(chan pubsub.Message, 100)
	c.msgCh = ch
	c.started = true

	go func() {
		<-ctx.Done()
		c.mu.Lock()
		if c.msgCh == ch {
			close(ch)
			c.msgCh = nil
		}
		c.mu.Unlock()
	}()

	return ch, nil
}

// Send sends a message to the consumer channel.
func (c *MockConsumer) Send(msg pubsub.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.msgCh != nil {
		c.msgCh <- msg
	}
}

// IsStarted returns whether Subscribe was called.
func (c *MockConsumer) IsStarted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started
}

// SetError sets an error to return from Subscribe.
func (c *MockConsumer) SetError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

// MockProvider is a mock implementation of pubsub.Provider and
// pubsub.Connectable. Each NewConsumer call gets its own MockConsumer,
// addressable by filter subject.
type MockProvider struct {
	mu           sync.Mutex
	publisher    *MockPublisher
	consumers    map[string]*MockConsumer
	publisherErr error
	consumerErr  error
	connectErr   error
	connectDelay time.Duration
	closed       bool
	connects     atomic.Int32
}

// NewMockProvider creates a new MockProvider.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		publisher: NewMockPublisher(),
		consumers: make(map[string]*MockConsumer),
	}
}

// Connect counts the call, optionally waits, and returns the configured error.
func (p *MockProvider) Connect(ctx context.Context) error {
	p.connects.Add(1)
	p.mu.Lock()
	delay, err := p.connectDelay, p.connectErr
	p.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// NewPublisher returns the shared publisher, configured with opts' prefix.
func (p *MockProvider) NewPublisher(opts pubsub.PublisherOptions) (pubsub.Publisher, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.publisherErr != nil {
		return nil, p.publisherErr
	}
	p.publisher.mu.Lock()
	p.publisher.prefix = opts.SubjectPrefix
	p.publisher.mu.Unlock()
	return p.publisher, nil
}

// NewConsumer returns a consumer registered under opts.FilterSubject.
func (p *MockProvider) NewConsumer(opts pubsub.ConsumerOptions) (pubsub.Consumer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.consumerErr != nil {
		return nil, p.consumerErr
	}
	c := NewMockConsumer()
	p.consumers[opts.FilterSubject] = c
	return c, nil
}

// Close marks the provider as closed.
func (p *MockProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Publisher returns the shared mock publisher.
func (p *MockProvider) Publisher() *MockPublisher {
	return p.publisher
}

// Consumer returns the consumer created for filter, or nil.
func (p *MockProvider) Consumer(filter string) *MockConsumer {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.consumers[filter]
}

// Connects returns how many times Connect was called.
func (p *MockProvider) Connects() int {
	return int(p.connects.Load())
}

// SetConnectError sets an error to return from Connect.
func (p *MockProvider) SetConnectError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connectErr = err
}

// SetConnectDelay makes Connect block for d.
func (p *MockProvider) SetConnectDelay(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connectDelay = d
}

// SetPublisherError sets an error to return from NewPublisher.
func (p *MockProvider) SetPublisherError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.publisherErr = err
}

// SetConsumerError sets an error to return from NewConsumer.
func (p *MockProvider) SetConsumerError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.consumerErr = err
}

// IsClosed returns whether Close was called.
func (p *MockProvider) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
