package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/syntrixbase/devbridge/internal/core/pubsub"
)

// DefaultSubjectPrefix is the root subject for devtools traffic.
const DefaultSubjectPrefix = "devtools"

const (
	directionUp   = "up"
	directionDown = "down"
)

// PubSubOptions configures a pub/sub backed channel.
type PubSubOptions struct {
	// SubjectPrefix roots every subject. Defaults to DefaultSubjectPrefix.
	SubjectPrefix string
	// Plugin names the channel. Defaults to DefaultPlugin.
	Plugin string
	// Role decides the publish direction: origins publish up, observers down.
	Role Role
	// BufSize is the consumer buffer size.
	BufSize int
	Logger  *slog.Logger
}

// PubSubChannel is a Channel over a pubsub.Provider.
//
// Subjects are <prefix>.<plugin>.<up|down>.<topic>. A channel publishes in
// its own direction and holds a single wildcard subscription on the other
// one, so messages are handled in the order they were published.
type PubSubChannel struct {
	opts      PubSubOptions
	publisher pubsub.Publisher
	consumer  pubsub.Consumer
	inbound   string
	listeners *Listeners
	logger    *slog.Logger

	mu      sync.Mutex
	started bool
	closed  bool
	cancel  context.CancelFunc
}

var _ Channel = (*PubSubChannel)(nil)

// NewPubSubChannel creates a channel over provider. The provider must already
// be connected.
func NewPubSubChannel(provider pubsub.Provider, opts PubSubOptions) (*PubSubChannel, error) {
	if opts.SubjectPrefix == "" {
		opts.SubjectPrefix = DefaultSubjectPrefix
	}
	if opts.Plugin == "" {
		opts.Plugin = DefaultPlugin
	}
	if opts.Role == "" {
		opts.Role = RoleOrigin
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "channel", "plugin", opts.Plugin, "role", string(opts.Role))

	out, in := directionUp, directionDown
	if opts.Role == RoleObserver {
		out, in = directionDown, directionUp
	}
	base := pubsub.FullSubject(opts.SubjectPrefix, opts.Plugin)

	publisher, err := provider.NewPublisher(pubsub.PublisherOptions{
		SubjectPrefix: pubsub.FullSubject(base, out),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create publisher: %w", err)
	}

	inbound := pubsub.FullSubject(base, in)
	consumerOpts := pubsub.DefaultConsumerOptions()
	consumerOpts.FilterSubject = inbound + ".>"
	if opts.BufSize > 0 {
		consumerOpts.ChannelBufSize = opts.BufSize
	}
	consumer, err := provider.NewConsumer(consumerOpts)
	if err != nil {
		_ = publisher.Close()
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	return &PubSubChannel{
		opts:      opts,
		publisher: publisher,
		consumer:  consumer,
		inbound:   inbound + ".",
		listeners: NewListeners(logger),
		logger:    logger,
	}, nil
}

// SendMessage publishes payload under topic in this channel's direction.
func (c *PubSubChannel) SendMessage(ctx context.Context, topic string, payload any) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrChannelClosed
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s payload: %w", topic, err)
	}
	if err := c.publisher.Publish(ctx, topic, data); err != nil {
		return fmt.Errorf("failed to publish %s: %w", topic, err)
	}
	return nil
}

// AddMessageListener registers h for topic. The inbound subscription is
// started with the first listener.
func (c *PubSubChannel) AddMessageListener(topic string, h Handler) (Subscription, error) {
	if err := c.start(); err != nil {
		return nil, err
	}
	return c.listeners.Add(topic, h), nil
}

func (c *PubSubChannel) start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrChannelClosed
	}
	if c.started {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	msgCh, err := c.consumer.Subscribe(ctx)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to subscribe to %s: %w", c.inbound, err)
	}

	c.started = true
	c.cancel = cancel
	go c.loop(msgCh)
	return nil
}

func (c *PubSubChannel) loop(msgCh <-chan pubsub.Message) {
	for msg := range msgCh {
		topic, ok := strings.CutPrefix(msg.Subject(), c.inbound)
		if !ok || topic == "" {
			c.logger.Debug("Ignoring message outside channel", "subject", msg.Subject())
			continue
		}
		c.listeners.Deliver(topic, msg.Data())
	}
}

// Close stops the subscription and the publisher. Safe to call from a listener.
func (c *PubSubChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return c.publisher.Close()
}
