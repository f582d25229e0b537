package memory

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/syntrixbase/devbridge/internal/core/pubsub"
)

// memoryPublisher implements pubsub.Publisher using an in-memory broker.
type memoryPublisher struct {
	broker *broker
	opts   pubsub.PublisherOptions
	closed atomic.Bool
}

// Publish sends a message to the specified subject.
func (p *memoryPublisher) Publish(ctx context.Context, subject string, data []byte) error {
	if p.closed.Load() {
		return ErrPublisherClosed
	}

	start := time.Now()
	fullSubject := pubsub.FullSubject(p.opts.SubjectPrefix, subject)

	err := p.broker.publish(ctx, fullSubject, data)

	if p.opts.OnPublish != nil {
		p.opts.OnPublish(fullSubject, err, time.Since(start))
	}

	return err
}

// Close releases resources.
func (p *memoryPublisher) Close() error {
	p.closed.Store(true)
	return nil
}
