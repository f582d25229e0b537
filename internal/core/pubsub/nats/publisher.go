package nats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/syntrixbase/devbridge/internal/core/pubsub"
)

var (
	// ErrNotConnected is returned when the provider has no live connection.
	ErrNotConnected = errors.New("NATS not connected, call Connect first")

	errNilConn = errors.New("nats connection cannot be nil")
)

// natsPublisher implements pubsub.Publisher over a NATS connection.
type natsPublisher struct {
	conn Conn
	opts pubsub.PublisherOptions
}

// NewPublisher creates a new Publisher backed by conn.
func NewPublisher(conn Conn, opts pubsub.PublisherOptions) (pubsub.Publisher, error) {
	if conn == nil {
		return nil, errNilConn
	}
	return &natsPublisher{conn: conn, opts: opts}, nil
}

// Publish sends a message to the specified subject.
func (p *natsPublisher) Publish(ctx context.Context, subject string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	fullSubject := pubsub.FullSubject(p.opts.SubjectPrefix, subject)

	err := p.conn.Publish(fullSubject, data)

	if p.opts.OnPublish != nil {
		p.opts.OnPublish(fullSubject, err, time.Since(start))
	}

	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", fullSubject, err)
	}
	return nil
}

// Close releases resources. The connection is owned by the Provider.
func (p *natsPublisher) Close() error {
	return nil
}
