package hub

import (
	"errors"
	"time"

	"github.com/orchestra-mcp/chatsocket/src/envelope"
)

// ErrNotMember is returned by handlers when a client posts into a channel it
// has not joined.
var ErrNotMember = errors.New("client is not a member of the channel")

func (h *Hub) handleMessage(c *Client, env envelope.Envelope) {
	h.mu.RLock()
	handler, ok := h.handlers[env.Kind]
	h.mu.RUnlock()

	if !ok {
		h.logger.Debug().Str("kind", string(env.Kind)).Msg("no handler")
		return
	}
	if err := handler(c, env); err != nil {
		h.logger.Warn().Err(err).
			Str("client_id", c.ID).
			Str("kind", string(env.Kind)).
			Str("channel", env.ChannelID).
			Msg("handler error")
	}
}

// deliver fans env out to the members of channel, skipping except. It must
// only be called from the hub loop.
func (h *Hub) deliver(channel string, env envelope.Envelope, except string) {
	h.mu.RLock()
	subs, ok := h.channels[channel]
	if !ok {
		h.mu.RUnlock()
		return
	}
	// Copy subscribers to avoid holding the lock during sends.
	targets := make([]*Client, 0, len(subs))
	for id := range subs {
		if id == except {
			continue
		}
		if c, exists := h.clients[id]; exists {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	if env.SentAt.IsZero() {
		env.SentAt = time.Now()
	}
	for _, c := range targets {
		if !c.Enqueue(env) {
			h.logger.Warn().Str("client_id", c.ID).Msg("send buffer full, dropping")
		}
	}
}

// Publish sends env to every member of channel.
func (h *Hub) Publish(channel string, env envelope.Envelope) {
	select {
	case h.broadcast <- broadcastMsg{channel: channel, env: env}:
	case <-h.done:
	}
}

// Subscribe adds a client to a channel. It reports false for unknown
// clients.
func (h *Hub) Subscribe(channel, clientID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.clients[clientID]
	if !ok {
		return false
	}
	if h.channels[channel] == nil {
		h.channels[channel] = make(map[string]bool)
	}
	h.channels[channel][clientID] = true
	c.addChannel(channel)
	return true
}

// Unsubscribe removes a client from a channel. Empty channels are dropped.
func (h *Hub) Unsubscribe(channel, clientID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.channels[channel]
	if !ok || !subs[clientID] {
		return false
	}
	delete(subs, clientID)
	if len(subs) == 0 {
		delete(h.channels, channel)
	}
	if c, ok := h.clients[clientID]; ok {
		c.removeChannel(channel)
	}
	return true
}

// SendToClient sends env directly to one client.
func (h *Hub) SendToClient(clientID string, env envelope.Envelope) bool {
	h.mu.RLock()
	client, ok := h.clients[clientID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	if env.SentAt.IsZero() {
		env.SentAt = time.Now()
	}
	return client.Enqueue(env)
}

// Disconnect drops a client's connection without a close frame, as a
// network failure would.
func (h *Hub) Disconnect(clientID string) bool {
	h.mu.RLock()
	client, ok := h.clients[clientID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	if err := client.Drop(); err != nil {
		h.logger.Debug().Err(err).Str("client_id", clientID).Msg("drop failed")
	}
	return true
}

func (h *Hub) registerChatHandlers() {
	h.handlers[envelope.KindSubscribe] = h.handleSubscribe
	h.handlers[envelope.KindUnsubscribe] = h.handleUnsubscribe
	h.handlers[envelope.KindMessage] = h.handlePost
	h.handlers[envelope.KindReaction] = h.handlePost
	h.handlers[envelope.KindTyping] = h.handleTyping
	h.handlers[envelope.KindPing] = h.handlePing
}

func channelOf(env envelope.Envelope) string {
	if env.ChannelID != "" {
		return env.ChannelID
	}
	switch p := env.Payload.(type) {
	case envelope.Subscribe:
		return p.ChannelID
	case envelope.Unsubscribe:
		return p.ChannelID
	case envelope.Typing:
		return p.ChannelID
	}
	return ""
}

func (h *Hub) handleSubscribe(c *Client, env envelope.Envelope) error {
	channel := channelOf(env)
	if channel == "" {
		return errors.New("subscribe without channel")
	}
	if h.IsMember(channel, c.ID) {
		return nil
	}
	h.Subscribe(channel, c.ID)
	h.logger.Debug().Str("client_id", c.ID).Str("channel", channel).Msg("subscribed")
	h.deliver(channel, envelope.New(envelope.Joined{UserID: c.UserID, UserName: c.UserName}, channel), c.ID)
	return nil
}

func (h *Hub) handleUnsubscribe(c *Client, env envelope.Envelope) error {
	channel := channelOf(env)
	if !h.Unsubscribe(channel, c.ID) {
		return nil
	}
	h.logger.Debug().Str("client_id", c.ID).Str("channel", channel).Msg("unsubscribed")
	h.deliver(channel, envelope.New(envelope.Left{UserID: c.UserID, UserName: c.UserName}, channel), "")
	return nil
}

// handlePost broadcasts messages and reactions to every member, the sender
// included, so the sender sees the server-stamped copy.
func (h *Hub) handlePost(c *Client, env envelope.Envelope) error {
	channel := channelOf(env)
	if !h.IsMember(channel, c.ID) {
		return ErrNotMember
	}
	switch p := env.Payload.(type) {
	case envelope.ChatMessage:
		if p.UserName == "" {
			p.UserName = c.UserName
		}
		env.Payload = p
	case envelope.Reaction:
		p.UserID = c.UserID
		env.Payload = p
	}
	env.ChannelID = channel
	h.deliver(channel, env, "")
	return nil
}

func (h *Hub) handleTyping(c *Client, env envelope.Envelope) error {
	channel := channelOf(env)
	if !h.IsMember(channel, c.ID) {
		return ErrNotMember
	}
	if p, ok := env.Payload.(envelope.Typing); ok {
		p.ChannelID = channel
		p.UserID = c.UserID
		p.UserName = c.UserName
		env.Payload = p
	}
	env.ChannelID = channel
	h.deliver(channel, env, c.ID)
	return nil
}

func (h *Hub) handlePing(c *Client, _ envelope.Envelope) error {
	pong := envelope.New(envelope.Pong{}, "")
	pong.SentAt = time.Now()
	if !c.Enqueue(pong) {
		return errors.New("pong dropped")
	}
	return nil
}
