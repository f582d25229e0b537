package wschannel

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/syntrixbase/devbridge/pkg/channel"
	"github.com/syntrixbase/devbridge/pkg/model"
)

// ServerOptions configures a Server.
type ServerOptions struct {
	// Plugin restricts the server to one plugin name. Empty accepts any.
	Plugin string
	// Authorize, when set, vets each handshake before upgrading.
	Authorize func(r *http.Request) error
	Logger    *slog.Logger
}

// Server is the observer side of websocket channels. Messages sent on it are
// broadcast to every connected origin; messages from all origins are
// delivered to its listeners one at a time.
//
// When a connection drops, the server delivers a disconnect message for every
// instance name seen on it.
type Server struct {
	opts      ServerOptions
	listeners *channel.Listeners
	logger    *slog.Logger

	// serializes delivery across connections
	deliverMu sync.Mutex

	mu     sync.RWMutex
	conns  map[*serverConn]struct{}
	closed bool
}

var _ channel.Channel = (*Server)(nil)

// NewServer creates a Server. Mount it as an http.Handler.
func NewServer(opts ServerOptions) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "wschannel-server")
	return &Server{
		opts:      opts,
		listeners: channel.NewListeners(logger),
		logger:    logger,
		conns:     make(map[*serverConn]struct{}),
	}
}

// ServeHTTP upgrades an origin connection.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	plugin := r.URL.Query().Get(PluginParam)
	if s.opts.Plugin != "" && plugin != "" && plugin != s.opts.Plugin {
		http.Error(w, "Unknown plugin", http.StatusNotFound)
		return
	}
	if s.opts.Authorize != nil {
		if err := s.opts.Authorize(r); err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Websocket upgrade failed", "error", err)
		return
	}

	c := &serverConn{
		id:        uuid.NewString(),
		server:    s,
		conn:      conn,
		send:      make(chan []byte, sendBufSize),
		instances: make(map[string]struct{}),
	}
	if !s.register(c) {
		conn.Close()
		return
	}
	s.logger.Info("Origin connected", "conn_id", c.id, "plugin", plugin, "remote", r.RemoteAddr)

	go c.writePump()
	go c.readPump()
}

// SendMessage broadcasts payload to every connected origin. Slow connections
// drop the message rather than stall the observer.
func (s *Server) SendMessage(ctx context.Context, topic string, payload any) error {
	data, err := encodeEnvelope(topic, payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s payload: %w", topic, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return channel.ErrChannelClosed
	}
	for c := range s.conns {
		select {
		case c.send <- data:
		default:
			s.logger.Warn("Dropping message for slow origin", "conn_id", c.id, "topic", topic)
		}
	}
	return nil
}

// AddMessageListener registers h for messages from any origin.
func (s *Server) AddMessageListener(topic string, h channel.Handler) (channel.Subscription, error) {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return nil, channel.ErrChannelClosed
	}
	return s.listeners.Add(topic, h), nil
}

// Close disconnects every origin and rejects new ones.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conns := s.conns
	s.conns = make(map[*serverConn]struct{})
	s.mu.Unlock()

	for c := range conns {
		close(c.send)
	}
	return nil
}

// Connections returns the number of connected origins.
func (s *Server) Connections() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}

func (s *Server) register(c *serverConn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[c] = struct{}{}
	return true
}

func (s *Server) unregister(c *serverConn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conns[c]; ok {
		delete(s.conns, c)
		close(c.send)
	}
}

func (s *Server) deliver(topic string, payload []byte) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()
	s.listeners.Deliver(topic, payload)
}

type serverConn struct {
	id     string
	server *Server
	conn   *websocket.Conn
	send   chan []byte

	// instance names announced on this connection; only readPump touches it
	instances map[string]struct{}
}

func (c *serverConn) readPump() {
	defer func() {
		c.server.unregister(c)
		c.conn.Close()
		c.disconnectInstances()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.server.logger.Warn("Origin connection closed", "conn_id", c.id, "error", err)
			} else {
				c.server.logger.Info("Origin disconnected", "conn_id", c.id)
			}
			return
		}

		env, err := decodeEnvelope(message)
		if err != nil {
			c.server.logger.Warn("Dropping undecodable frame", "conn_id", c.id, "error", err)
			continue
		}
		c.track(env)
		c.server.deliver(env.Topic, env.Payload)
	}
}

func (c *serverConn) track(env model.Envelope) {
	var named struct {
		Name string `json:"name"`
	}
	switch env.Topic {
	case model.TopicInit, model.TopicState:
		if json.Unmarshal(env.Payload, &named) != nil {
			return
		}
		c.instances[instanceName(named.Name)] = struct{}{}
	case model.TopicDisconnect:
		if json.Unmarshal(env.Payload, &named) != nil {
			return
		}
		delete(c.instances, instanceName(named.Name))
	}
}

func (c *serverConn) disconnectInstances() {
	for name := range c.instances {
		data, _ := json.Marshal(model.DisconnectMessage{Name: name})
		c.server.deliver(model.TopicDisconnect, data)
	}
	c.instances = nil
}

func (c *serverConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func instanceName(name string) string {
	if name == "" {
		return model.DefaultInstanceName
	}
	return name
}
