package channel

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// DefaultConnectTimeout bounds a single connect attempt.
const DefaultConnectTimeout = 10 * time.Second

// SharedClient is a connected channel handed out by a Registry.
type SharedClient struct {
	Channel
	// ID identifies this connection in logs.
	ID     string
	Plugin string
}

type registryEntry struct {
	client *SharedClient
	err    error
}

// Registry hands out at most one channel connection per plugin name.
//
// Concurrent Acquire calls for the same plugin share one in-flight connect.
// The outcome is cached, including failure: a failed plugin stays failed
// until Reset.
type Registry struct {
	connector Connector
	timeout   time.Duration
	logger    *slog.Logger

	group singleflight.Group

	mu        sync.Mutex
	entries   map[string]registryEntry
	announced map[string]bool
	connects  int
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithConnectTimeout bounds each connect attempt.
func WithConnectTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) { r.timeout = d }
}

// WithLogger sets the registry logger.
func WithLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) { r.logger = logger }
}

// NewRegistry creates a registry that connects through connector.
func NewRegistry(connector Connector, opts ...RegistryOption) *Registry {
	r := &Registry{
		connector: connector,
		timeout:   DefaultConnectTimeout,
		logger:    slog.Default(),
		entries:   make(map[string]registryEntry),
		announced: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "channel-registry")
	return r
}

var (
	defaultMu       sync.Mutex
	defaultRegistry = NewRegistry(nil)
)

// Default returns the process-wide registry.
func Default() *Registry {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	return defaultRegistry
}

// SetDefault replaces the process-wide registry and returns the previous one.
func SetDefault(r *Registry) *Registry {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	prev := defaultRegistry
	defaultRegistry = r
	return prev
}

// Acquire returns the shared client for plugin, connecting on first use.
// ctx only bounds the wait; the connect attempt itself runs to completion so
// other waiters still get its result.
func (r *Registry) Acquire(ctx context.Context, plugin string) (*SharedClient, error) {
	if plugin == "" {
		plugin = DefaultPlugin
	}
	if e, ok := r.cached(plugin); ok {
		return e.client, e.err
	}

	resCh := r.group.DoChan(plugin, func() (any, error) {
		if e, ok := r.cached(plugin); ok {
			return e.client, e.err
		}
		e := r.connect(context.WithoutCancel(ctx), plugin)

		r.mu.Lock()
		r.entries[plugin] = e
		r.mu.Unlock()
		return e.client, e.err
	})

	select {
	case res := <-resCh:
		client, _ := res.Val.(*SharedClient)
		if res.Err != nil {
			return nil, res.Err
		}
		r.announce(client)
		return client, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *Registry) cached(plugin string) (registryEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[plugin]
	return e, ok
}

func (r *Registry) connect(ctx context.Context, plugin string) registryEntry {
	r.mu.Lock()
	r.connects++
	r.mu.Unlock()

	if r.connector == nil {
		r.logger.Warn("Devtools channel unavailable", "plugin", plugin, "error", ErrNoConnector)
		return registryEntry{err: fmt.Errorf("%w: %w", ErrChannelUnavailable, ErrNoConnector)}
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	ch, err := r.connector.Connect(ctx, plugin)
	if err != nil {
		r.logger.Error("Failed to connect devtools channel", "plugin", plugin, "error", err)
		return registryEntry{err: fmt.Errorf("%w: %w", ErrChannelUnavailable, err)}
	}
	return registryEntry{client: &SharedClient{Channel: ch, ID: uuid.NewString(), Plugin: plugin}}
}

// announce logs the first time a plugin's client is handed out.
func (r *Registry) announce(client *SharedClient) {
	r.mu.Lock()
	first := !r.announced[client.Plugin]
	r.announced[client.Plugin] = true
	r.mu.Unlock()

	if first {
		r.logger.Info("Connected to devtools", "plugin", client.Plugin, "client_id", client.ID)
	}
}

// Connects returns how many connect attempts the registry has made.
func (r *Registry) Connects() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connects
}

// Reset forgets cached clients and failures so the next Acquire reconnects.
// Cached clients are closed. Intended for tests and debugging.
func (r *Registry) Reset() {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]registryEntry)
	r.announced = make(map[string]bool)
	r.connects = 0
	r.mu.Unlock()

	for plugin, e := range entries {
		r.group.Forget(plugin)
		if e.client == nil {
			continue
		}
		if err := e.client.Close(); err != nil {
			r.logger.Warn("Failed to close devtools channel", "plugin", plugin, "error", err)
		}
	}
}

// Close closes every cached client.
func (r *Registry) Close() error {
	r.Reset()
	return nil
}
