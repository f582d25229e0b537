package bridge

import (
	"log/slog"
	"time"

	"github.com/syntrixbase/devbridge/pkg/channel"
	"github.com/syntrixbase/devbridge/pkg/model"
)

// DefaultSendTimeout bounds a single channel send.
const DefaultSendTimeout = 5 * time.Second

// Options configures a bridged store. The zero value is usable.
type Options struct {
	// Name identifies the instance to observers. Defaults to "store".
	Name string

	// Disabled makes Wrap fully transparent.
	Disabled bool

	// AnonymousActionType labels unlabeled mutations after initialization.
	// Defaults to "anonymous".
	AnonymousActionType string

	// Codec transforms state crossing the channel. Defaults to JSONCodec{}.
	Codec Codec

	// Plugin is the channel plugin name. Defaults to channel.DefaultPlugin.
	Plugin string

	// Registry shares channel connections. Defaults to channel.Default().
	Registry *channel.Registry

	// SendTimeout bounds each channel send. Defaults to DefaultSendTimeout.
	SendTimeout time.Duration

	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Name == "" {
		o.Name = model.DefaultInstanceName
	}
	if o.AnonymousActionType == "" {
		o.AnonymousActionType = model.DefaultAnonymousActionType
	}
	if o.Codec == nil {
		o.Codec = JSONCodec{}
	}
	if o.Plugin == "" {
		o.Plugin = channel.DefaultPlugin
	}
	if o.Registry == nil {
		o.Registry = channel.Default()
	}
	if o.SendTimeout <= 0 {
		o.SendTimeout = DefaultSendTimeout
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}
