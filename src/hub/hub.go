package hub

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/orchestra-mcp/chatsocket/src/envelope"
)

// Handler processes one inbound envelope from a client. It runs on the hub
// loop.
type Handler func(c *Client, env envelope.Envelope) error

// Hub manages all WebSocket client connections and channel memberships.
type Hub struct {
	clients  map[string]*Client
	channels map[string]map[string]bool // channel -> set of clientIDs

	register   chan *Client
	unregister chan *Client
	incoming   chan inbound
	broadcast  chan broadcastMsg

	handlers  map[envelope.Kind]Handler
	onConnect []func(string)
	onDisconn []func(string)

	sendBuffer int
	mu         sync.RWMutex
	logger     zerolog.Logger
	done       chan struct{}
	stopOnce   sync.Once
}

type inbound struct {
	client *Client
	env    envelope.Envelope
}

type broadcastMsg struct {
	channel string
	env     envelope.Envelope
	except  string
}

// Option configures a Hub.
type Option func(*Hub)

// WithSendBuffer sets the per-client outbound queue length.
func WithSendBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.sendBuffer = n
		}
	}
}

// New creates a new Hub with the chat handlers installed.
func New(logger zerolog.Logger, opts ...Option) *Hub {
	h := &Hub{
		clients:    make(map[string]*Client),
		channels:   make(map[string]map[string]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		incoming:   make(chan inbound, 256),
		broadcast:  make(chan broadcastMsg, 256),
		handlers:   make(map[envelope.Kind]Handler),
		sendBuffer: 256,
		logger:     logger.With().Str("component", "hub").Logger(),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.registerChatHandlers()
	return h
}

// Run starts the hub event loop. Call in a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case in := <-h.incoming:
			h.handleMessage(in.client, in.env)
		case bm := <-h.broadcast:
			h.deliver(bm.channel, bm.env, bm.except)
		case <-h.done:
			h.closeAll()
			return
		}
	}
}

// Stop halts the hub event loop and closes every client. Safe to call more
// than once.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// Register queues a client for registration.
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
		c.Close()
	}
}

// Unregister queues a client for removal.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	callbacks := append([]func(string){}, h.onConnect...)
	h.mu.Unlock()

	h.logger.Info().Str("client_id", c.ID).Str("user_id", c.UserID).Msg("client registered")

	for _, cb := range callbacks {
		cb(c.ID)
	}
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.ID)

	// Remove from all channel subscriptions.
	var left []string
	for ch, subs := range h.channels {
		if !subs[c.ID] {
			continue
		}
		left = append(left, ch)
		delete(subs, c.ID)
		if len(subs) == 0 {
			delete(h.channels, ch)
		}
	}
	callbacks := append([]func(string){}, h.onDisconn...)
	h.mu.Unlock()

	c.Close()
	h.logger.Info().Str("client_id", c.ID).Msg("client unregistered")

	for _, ch := range left {
		h.deliver(ch, envelope.New(envelope.Left{UserID: c.UserID, UserName: c.UserName}, ch), "")
	}
	for _, cb := range callbacks {
		cb(c.ID)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[string]*Client)
	h.channels = make(map[string]map[string]bool)
	h.mu.Unlock()

	for _, c := range clients {
		c.Close()
	}
}
