package relay

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

const broadcastBufSize = 256

// Hub maintains the set of active UI clients and broadcasts relay updates
// to them.
type Hub struct {
	relay *Relay
	auth  *TokenService

	// Registered clients.
	clients map[*Client]bool

	// Outbound messages for every authenticated client.
	broadcast chan BaseMessage

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	mu     sync.RWMutex
	logger *slog.Logger

	runCtx   context.Context
	runCtxMu sync.RWMutex
}

// NewHub creates a hub serving relay. auth may be nil.
func NewHub(relay *Relay, auth *TokenService, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		relay:      relay,
		auth:       auth,
		clients:    make(map[*Client]bool),
		broadcast:  make(chan BaseMessage, broadcastBufSize),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger.With("component", "relay-hub"),
	}
}

// Run serves the hub until ctx is done, forwarding relay updates to clients.
func (h *Hub) Run(ctx context.Context) {
	h.setRunCtx(ctx)
	detach := h.relay.OnUpdate(func(u Update) {
		h.Broadcast(BaseMessage{Type: TypeUpdate, Payload: mustMarshal(u)})
	})
	defer detach()

	for {
		select {
		case <-ctx.Done():
			h.shutdownClients()
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.close()
			}
			h.mu.Unlock()
		case msg := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				if !client.isAuthenticated() {
					continue
				}
				if !client.enqueue(msg) {
					// Slow client; give it a short grace period before dropping.
					select {
					case <-time.After(50 * time.Millisecond):
						client.enqueue(msg)
					case <-ctx.Done():
					}
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Broadcast queues msg for every authenticated client. It never blocks; when
// the queue is full msg is dropped.
func (h *Hub) Broadcast(msg BaseMessage) {
	select {
	case <-h.Done():
		return
	default:
	}

	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("Hub broadcast queue full; dropping message", "type", msg.Type)
	}
}

func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.Done():
		return false
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.Done():
	}
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// snapshot describes every instance the relay knows of.
func (h *Hub) snapshot() SnapshotPayload {
	connected := h.relay.Connected()
	sort.Strings(connected)
	return SnapshotPayload{
		Instances: h.relay.Log().Instances(),
		Connected: connected,
		Selected:  h.relay.Selected(),
		Sync:      h.relay.SyncEnabled(),
	}
}

func (h *Hub) setRunCtx(ctx context.Context) {
	h.runCtxMu.Lock()
	h.runCtx = ctx
	h.runCtxMu.Unlock()
}

// Done is closed when the hub stops. It is nil before Run.
func (h *Hub) Done() <-chan struct{} {
	h.runCtxMu.RLock()
	defer h.runCtxMu.RUnlock()
	if h.runCtx == nil {
		return nil
	}
	return h.runCtx.Done()
}

func (h *Hub) shutdownClients() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		client.close()
		delete(h.clients, client)
	}
}
