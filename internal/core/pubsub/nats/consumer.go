package nats

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/syntrixbase/devbridge/internal/core/pubsub"
)

// natsConsumer implements pubsub.Consumer over a NATS subscription.
type natsConsumer struct {
	conn Conn
	opts pubsub.ConsumerOptions
}

// NewConsumer creates a new Consumer backed by conn.
func NewConsumer(conn Conn, opts pubsub.ConsumerOptions) (pubsub.Consumer, error) {
	if conn == nil {
		return nil, errNilConn
	}
	if opts.ChannelBufSize <= 0 {
		opts.ChannelBufSize = pubsub.DefaultConsumerOptions().ChannelBufSize
	}
	if opts.FilterSubject == "" {
		opts.FilterSubject = ">"
	}
	return &natsConsumer{conn: conn, opts: opts}, nil
}

// Subscribe starts consuming messages and returns a channel.
func (c *natsConsumer) Subscribe(ctx context.Context) (<-chan pubsub.Message, error) {
	msgCh := make(chan pubsub.Message, c.opts.ChannelBufSize)

	// guards msgCh against sends after close
	var mu sync.RWMutex
	closed := false

	sub, err := c.conn.Subscribe(c.opts.FilterSubject, func(msg *nats.Msg) {
		mu.RLock()
		defer mu.RUnlock()
		if closed {
			return
		}
		select {
		case msgCh <- WrapMessage(msg):
		case <-ctx.Done():
		}
	})
	if err != nil {
		close(msgCh)
		return nil, fmt.Errorf("failed to subscribe to %s: %w", c.opts.FilterSubject, err)
	}

	slog.Debug("NATS consumer subscribed", "subject", c.opts.FilterSubject)

	go func() {
		<-ctx.Done()
		if err := sub.Unsubscribe(); err != nil {
			slog.Debug("NATS unsubscribe failed", "subject", c.opts.FilterSubject, "error", err)
		}
		mu.Lock()
		closed = true
		close(msgCh)
		mu.Unlock()
	}()

	return msgCh, nil
}
