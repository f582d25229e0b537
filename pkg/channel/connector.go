package channel

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/syntrixbase/devbridge/internal/core/pubsub"
)

// PubSubConnector opens PubSubChannels over a shared provider.
type PubSubConnector struct {
	Provider      pubsub.Provider
	SubjectPrefix string
	Role          Role
	BufSize       int
	Logger        *slog.Logger
}

var _ Connector = (*PubSubConnector)(nil)

// Connect connects the provider if needed and opens a channel for plugin.
func (c *PubSubConnector) Connect(ctx context.Context, plugin string) (Channel, error) {
	if c.Provider == nil {
		return nil, ErrNoConnector
	}
	if err := pubsub.Connect(ctx, c.Provider); err != nil {
		return nil, fmt.Errorf("failed to connect provider: %w", err)
	}
	ch, err := NewPubSubChannel(c.Provider, PubSubOptions{
		SubjectPrefix: c.SubjectPrefix,
		Plugin:        plugin,
		Role:          c.Role,
		BufSize:       c.BufSize,
		Logger:        c.Logger,
	})
	if err != nil {
		return nil, err
	}
	return ch, nil
}
