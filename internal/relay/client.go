package relay

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/syntrixbase/devbridge/internal/actionlog"
	"github.com/syntrixbase/devbridge/pkg/channel/wschannel"
	"github.com/syntrixbase/devbridge/pkg/model"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Maximum message size allowed from peer. Imported histories can be large.
	maxMessageSize = 4 << 20

	// Time allowed for one command, including the send down the channel.
	commandTimeout = 10 * time.Second
)

// Send pings to peer with this period. Must be less than pongWait.
var pingPeriod = (pongWait * 9) / 10

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     wschannel.SafeCheckOrigin,
}

// Client is a middleman between a UI websocket connection and the hub.
type Client struct {
	id     string
	hub    *Hub
	conn   *websocket.Conn
	logger *slog.Logger

	// Buffered channel of outbound messages.
	send   chan BaseMessage
	mu     sync.Mutex
	closed bool

	authenticated atomic.Bool
}

// ServeWs upgrades r and serves it as a UI client of hub.
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	// Reject bad headers before the upgrade so the UI sees a 401.
	authenticated := hub.auth == nil
	if !authenticated && bearerToken(r) != "" {
		if err := hub.auth.Authorize(r); err != nil {
			writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "Invalid token")
			return
		}
		authenticated = true
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Warn("Websocket upgrade failed", "error", err)
		return
	}

	id := uuid.NewString()
	client := &Client{
		id:     id,
		hub:    hub,
		conn:   conn,
		logger: hub.logger.With("client_id", id),
		send:   make(chan BaseMessage, 256),
	}
	client.authenticated.Store(authenticated)
	if !hub.Register(client) {
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()

	if authenticated {
		client.enqueue(BaseMessage{Type: TypeSnapshot, Payload: mustMarshal(hub.snapshot())})
	}
}

// readPump pumps messages from the websocket connection to the relay.
//
// The application runs readPump in a per-connection goroutine. The application
// ensures that there is at most one reader on a connection by executing all
// reads from this goroutine.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	c.logger.Info("UI connection established")

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("UI connection closed", "error", err)
			} else {
				c.logger.Info("UI connection closed")
			}
			return
		}

		var msg BaseMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			c.logger.Warn("Ignoring undecodable UI message", "error", err)
			c.enqueue(errorMessage("", ErrCodeBadRequest, "invalid message"))
			continue
		}
		c.handleMessage(msg)
	}
}

func (c *Client) handleMessage(msg BaseMessage) {
	c.logger.Debug("Received message", "type", msg.Type, "id", msg.ID)
	switch msg.Type {
	case TypeAuth:
		c.handleAuth(msg)
	case TypePing:
		c.enqueue(BaseMessage{ID: msg.ID, Type: TypePong})
	case TypeSnapshot:
		if !c.requireAuth(msg) {
			return
		}
		c.enqueue(BaseMessage{ID: msg.ID, Type: TypeSnapshot, Payload: mustMarshal(c.hub.snapshot())})
	case TypeCommand:
		if !c.requireAuth(msg) {
			return
		}
		var cmd Command
		if err := json.Unmarshal(msg.Payload, &cmd); err != nil {
			c.enqueue(errorMessage(msg.ID, ErrCodeBadRequest, "invalid command payload"))
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		lifted, err := c.hub.relay.Lift(ctx, cmd)
		cancel()
		if err != nil {
			c.logger.Warn("Command failed", "command", cmd.Type, "instance", cmd.InstanceID, "error", err)
			c.enqueue(errorMessage(msg.ID, commandErrorCode(err), err.Error()))
			return
		}
		c.enqueue(BaseMessage{ID: msg.ID, Type: TypeAck, Payload: mustMarshal(AckPayload{Lifted: lifted})})
	default:
		c.enqueue(errorMessage(msg.ID, ErrCodeBadRequest, "unknown message type"))
	}
}

func (c *Client) handleAuth(msg BaseMessage) {
	if c.hub.auth == nil {
		c.authenticated.Store(true)
		c.enqueue(BaseMessage{ID: msg.ID, Type: TypeAuthAck})
		return
	}

	var payload AuthPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		c.enqueue(errorMessage(msg.ID, "invalid_auth", "invalid payload"))
		return
	}
	if _, err := c.hub.auth.Validate(payload.Token); err != nil {
		c.enqueue(errorMessage(msg.ID, ErrCodeUnauthorized, "invalid token"))
		return
	}
	wasAuthenticated := c.authenticated.Swap(true)
	c.enqueue(BaseMessage{ID: msg.ID, Type: TypeAuthAck})
	if !wasAuthenticated {
		c.enqueue(BaseMessage{Type: TypeSnapshot, Payload: mustMarshal(c.hub.snapshot())})
	}
}

func (c *Client) requireAuth(msg BaseMessage) bool {
	if c.isAuthenticated() {
		return true
	}
	c.enqueue(errorMessage(msg.ID, ErrCodeUnauthorized, "auth required"))
	return false
}

func (c *Client) isAuthenticated() bool {
	return c.authenticated.Load()
}

// enqueue queues msg without blocking. It reports false when the queue is
// full or the client is gone.
func (c *Client) enqueue(msg BaseMessage) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// close stops the write pump. Called by the hub only.
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// writePump pumps messages from the hub to the websocket connection.
//
// A goroutine running writePump is started for each connection. The
// application ensures that there is at most one writer to a connection by
// executing all writes from this goroutine.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(message); err != nil {
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

func commandErrorCode(err error) string {
	switch {
	case errors.Is(err, actionlog.ErrInstanceNotFound), errors.Is(err, actionlog.ErrActionNotFound):
		return ErrCodeNotFound
	case errors.Is(err, ErrNoInstance), errors.Is(err, ErrUnknownCommand), errors.Is(err, ErrInvalidCommand),
		errors.Is(err, actionlog.ErrIndexOutOfRange), errors.Is(err, actionlog.ErrInvalidHistory),
		errors.Is(err, model.ErrMalformedPayload), errors.Is(err, model.ErrMissingAction), errors.Is(err, model.ErrInvalidAction):
		return ErrCodeBadRequest
	}
	return ErrCodeInternalError
}
