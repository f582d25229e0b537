package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/syntrixbase/devbridge/pkg/channel"
)

// Channel transports
const (
	TransportMemory    = "memory"
	TransportNATS      = "nats"
	TransportWebsocket = "websocket"
)

// ChannelConfig selects how the relay reaches origin stores.
type ChannelConfig struct {
	Transport     string        `yaml:"transport"` // memory, nats, websocket
	Plugin        string        `yaml:"plugin"`
	SubjectPrefix string        `yaml:"subject_prefix"`
	BufSize       int           `yaml:"buf_size"`
	SendTimeout   time.Duration `yaml:"send_timeout"`

	NATS      NATSConfig      `yaml:"nats"`
	Websocket WebsocketConfig `yaml:"websocket"`
}

// NATSConfig holds NATS connection settings.
type NATSConfig struct {
	URL        string `yaml:"url"`
	ClientName string `yaml:"client_name"`
}

// WebsocketConfig holds the origin-facing websocket endpoint settings.
type WebsocketConfig struct {
	Path string `yaml:"path"`
	// RequireAuth makes origins present a relay token on the handshake.
	RequireAuth bool `yaml:"require_auth"`
}

// DefaultChannelConfig returns default channel configuration
func DefaultChannelConfig() ChannelConfig {
	return ChannelConfig{
		Transport:     TransportWebsocket,
		Plugin:        channel.DefaultPlugin,
		SubjectPrefix: channel.DefaultSubjectPrefix,
		BufSize:       256,
		SendTimeout:   5 * time.Second,
		NATS: NATSConfig{
			URL:        "nats://localhost:4222",
			ClientName: "devbridge-relay",
		},
		Websocket: WebsocketConfig{
			Path: "/v1/channel",
		},
	}
}

// ApplyDefaults fills in missing values with defaults
func (c *ChannelConfig) ApplyDefaults() {
	defaults := DefaultChannelConfig()
	if c.Transport == "" {
		c.Transport = defaults.Transport
	}
	if c.Plugin == "" {
		c.Plugin = defaults.Plugin
	}
	if c.SubjectPrefix == "" {
		c.SubjectPrefix = defaults.SubjectPrefix
	}
	if c.BufSize == 0 {
		c.BufSize = defaults.BufSize
	}
	if c.SendTimeout == 0 {
		c.SendTimeout = defaults.SendTimeout
	}
	if c.NATS.URL == "" {
		c.NATS.URL = defaults.NATS.URL
	}
	if c.NATS.ClientName == "" {
		c.NATS.ClientName = defaults.NATS.ClientName
	}
	if c.Websocket.Path == "" {
		c.Websocket.Path = defaults.Websocket.Path
	}
}

// ApplyEnvOverrides applies DEVBRIDGE_TRANSPORT, DEVBRIDGE_PLUGIN and DEVBRIDGE_NATS_URL.
func (c *ChannelConfig) ApplyEnvOverrides() {
	if v := os.Getenv("DEVBRIDGE_TRANSPORT"); v != "" {
		c.Transport = strings.ToLower(v)
	}
	if v := os.Getenv("DEVBRIDGE_PLUGIN"); v != "" {
		c.Plugin = v
	}
	if v := os.Getenv("DEVBRIDGE_NATS_URL"); v != "" {
		c.NATS.URL = v
	}
}

// ResolvePaths is a no-op; the channel section has no file paths.
func (c *ChannelConfig) ResolvePaths(_ string) {}

// Validate validates the configuration
func (c *ChannelConfig) Validate() error {
	switch c.Transport {
	case TransportMemory, TransportNATS, TransportWebsocket:
	default:
		return fmt.Errorf("invalid channel transport: %s (must be memory, nats, or websocket)", c.Transport)
	}
	if strings.ContainsAny(c.Plugin, ".*> ") {
		return fmt.Errorf("invalid channel plugin %q: must not contain '.', '*', '>' or spaces", c.Plugin)
	}
	if c.Transport == TransportWebsocket && !strings.HasPrefix(c.Websocket.Path, "/") {
		return fmt.Errorf("channel websocket path must start with '/': %q", c.Websocket.Path)
	}
	if c.SendTimeout < 0 {
		return fmt.Errorf("channel send timeout must not be negative")
	}
	return nil
}
