package wschannel

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/syntrixbase/devbridge/pkg/channel"
)

// DialOptions configures Dial.
type DialOptions struct {
	// Header is sent with the handshake, e.g. Authorization.
	Header http.Header
	Logger *slog.Logger
}

// Client is the origin side of a websocket channel.
type Client struct {
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	listeners *channel.Listeners
	logger    *slog.Logger
}

var _ channel.Channel = (*Client)(nil)

// Dial connects to an observer Server at rawURL.
func Dial(ctx context.Context, rawURL string, opts DialOptions) (*Client, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "wschannel-client", "url", rawURL)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, rawURL, opts.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to dial %s: %w (status %d)", rawURL, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("failed to dial %s: %w", rawURL, err)
	}

	c := &Client{
		conn:      conn,
		send:      make(chan []byte, sendBufSize),
		done:      make(chan struct{}),
		listeners: channel.NewListeners(logger),
		logger:    logger,
	}
	go c.writePump()
	go c.readPump()
	return c, nil
}

// SendMessage queues payload for the observer.
func (c *Client) SendMessage(ctx context.Context, topic string, payload any) error {
	data, err := encodeEnvelope(topic, payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s payload: %w", topic, err)
	}

	select {
	case <-c.done:
		return channel.ErrChannelClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return channel.ErrChannelClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AddMessageListener registers h for messages from the observer.
func (c *Client) AddMessageListener(topic string, h channel.Handler) (channel.Subscription, error) {
	select {
	case <-c.done:
		return nil, channel.ErrChannelClosed
	default:
	}
	return c.listeners.Add(topic, h), nil
}

// Close closes the connection.
func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

// Done is closed once the client is closed or the connection drops.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) readPump() {
	defer func() {
		c.Close()
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("Devtools connection closed", "error", err)
			} else {
				c.logger.Debug("Devtools connection closed")
			}
			return
		}

		env, err := decodeEnvelope(message)
		if err != nil {
			c.logger.Warn("Dropping undecodable frame", "error", err)
			continue
		}
		c.listeners.Deliver(env.Topic, env.Payload)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Warn("Failed to write frame", "error", err)
				c.Close()
				return
			}
		case <-c.done:
			c.drain()
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		}
	}
}

// drain flushes frames queued before Close, such as a final disconnect.
func (c *Client) drain() {
	for {
		select {
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		default:
			return
		}
	}
}

// Connector dials a Server for each plugin.
type Connector struct {
	// URL of the observer endpoint, e.g. ws://localhost:8787/v1/bridge.
	URL    string
	Header http.Header
	Logger *slog.Logger
}

var _ channel.Connector = (*Connector)(nil)

// Connect dials URL with the plugin query parameter set.
func (c *Connector) Connect(ctx context.Context, plugin string) (channel.Channel, error) {
	u, err := url.Parse(c.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid devtools url %q: %w", c.URL, err)
	}
	q := u.Query()
	q.Set(PluginParam, plugin)
	u.RawQuery = q.Encode()

	client, err := Dial(ctx, u.String(), DialOptions{Header: c.Header, Logger: c.Logger})
	if err != nil {
		return nil, err
	}
	return client, nil
}
