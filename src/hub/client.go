package hub

import (
	"sort"
	"sync"
	"time"

	"github.com/orchestra-mcp/chatsocket/src/envelope"
	"github.com/orchestra-mcp/chatsocket/src/types"
)

// Client wraps a WebSocket connection and manages message flow.
type Client struct {
	ID       string
	UserID   string
	UserName string

	conn        types.Conn
	hub         *Hub
	send        chan envelope.Envelope
	connectedAt time.Time
	channels    map[string]bool
	mu          sync.RWMutex
	done        chan struct{}
	closed      bool
}

// NewClient creates a new WebSocket client wrapper for an authenticated user.
func NewClient(id, userID, userName string, conn types.Conn, h *Hub) *Client {
	return &Client{
		ID:          id,
		UserID:      userID,
		UserName:    userName,
		conn:        conn,
		hub:         h,
		send:        make(chan envelope.Envelope, h.sendBuffer),
		connectedAt: time.Now(),
		channels:    make(map[string]bool),
		done:        make(chan struct{}),
	}
}

// Info returns metadata about this client.
func (c *Client) Info() types.ClientInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()

	channels := make([]string, 0, len(c.channels))
	for ch := range c.channels {
		channels = append(channels, ch)
	}
	sort.Strings(channels)
	return types.ClientInfo{
		ID:          c.ID,
		UserID:      c.UserID,
		ConnectedAt: c.connectedAt,
		Channels:    channels,
	}
}

func (c *Client) addChannel(channel string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.channels[channel] = true
}

func (c *Client) removeChannel(channel string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.channels, channel)
}

// Enqueue queues env for the write pump without blocking. It returns false
// when the client is closed or its buffer is full.
func (c *Client) Enqueue(env envelope.Envelope) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- env:
		return true
	default:
		return false
	}
}

// ReadPump reads frames from the WebSocket and routes them to the hub.
// Malformed frames are dropped; the connection stays up.
func (c *Client) ReadPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		env, err := envelope.Decode(data)
		if err != nil {
			c.hub.logger.Debug().Err(err).Str("client_id", c.ID).Msg("dropping frame")
			continue
		}
		env.SenderID = c.UserID
		env.SentAt = time.Now()

		select {
		case c.hub.incoming <- inbound{client: c, env: env}:
		case <-c.hub.done:
			return
		}
	}
}

// WritePump writes queued envelopes to the WebSocket.
func (c *Client) WritePump() {
	defer c.conn.Close()

	for {
		select {
		case env, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.WriteJSON(env); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// Close signals the client to stop its pumps.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.done)
		close(c.send)
	}
}

// Drop closes the underlying connection without a close frame.
func (c *Client) Drop() error {
	return c.conn.Close()
}
