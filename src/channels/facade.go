// Package channels offers channel-level chat operations on top of an open
// realtime connection.
package channels

import (
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/orchestra-mcp/chatsocket/src/envelope"
)

// Conn is the part of the connection manager the facade needs.
type Conn interface {
	Send(env envelope.Envelope) error
	IsConnectionOpen() bool
}

// Facade sends chat operations and remembers which channels the caller
// subscribed to. Operations issued while the connection is not open are
// dropped with a warning; nothing is queued.
type Facade struct {
	conn   Conn
	logger zerolog.Logger

	mu   sync.RWMutex
	subs map[string]struct{}
}

// New creates a Facade over conn.
func New(conn Conn, logger zerolog.Logger) *Facade {
	return &Facade{
		conn:   conn,
		logger: logger.With().Str("component", "channels").Logger(),
		subs:   make(map[string]struct{}),
	}
}

// SubscribeToChannel asks the server for the channel's traffic.
func (f *Facade) SubscribeToChannel(channelID string) bool {
	if !f.send("subscribe", envelope.New(envelope.Subscribe{ChannelID: channelID}, channelID)) {
		return false
	}
	f.mu.Lock()
	f.subs[channelID] = struct{}{}
	f.mu.Unlock()
	return true
}

// UnsubscribeFromChannel stops the channel's traffic.
func (f *Facade) UnsubscribeFromChannel(channelID string) bool {
	if !f.send("unsubscribe", envelope.New(envelope.Unsubscribe{ChannelID: channelID}, channelID)) {
		return false
	}
	f.mu.Lock()
	delete(f.subs, channelID)
	f.mu.Unlock()
	return true
}

// SendTyping announces that the user started or stopped typing.
func (f *Facade) SendTyping(channelID string, isTyping bool) bool {
	return f.send("typing", envelope.New(envelope.Typing{ChannelID: channelID, IsTyping: isTyping}, channelID))
}

// SendMessage posts content to the channel and returns the client-side
// message ID.
func (f *Facade) SendMessage(channelID, content string) (string, bool) {
	id := uuid.NewString()
	msg := envelope.ChatMessage{ID: id, Content: content, Type: "text"}
	if !f.send("message", envelope.New(msg, channelID)) {
		return "", false
	}
	return id, true
}

// SendReaction adds or removes an emoji reaction on a message.
func (f *Facade) SendReaction(channelID, messageID, emoji string, removed bool) bool {
	r := envelope.Reaction{MessageID: messageID, Emoji: emoji, Removed: removed}
	return f.send("reaction", envelope.New(r, channelID))
}

// Subscriptions returns the remembered channels, sorted.
func (f *Facade) Subscriptions() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, 0, len(f.subs))
	for id := range f.subs {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// IsSubscribed reports whether channelID is remembered as subscribed.
func (f *Facade) IsSubscribed(channelID string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.subs[channelID]
	return ok
}

// ResubscribeAll re-issues subscribe for every remembered channel and
// returns how many were sent. Call it after a reconnect; it is never called
// automatically.
func (f *Facade) ResubscribeAll() int {
	sent := 0
	for _, id := range f.Subscriptions() {
		if f.send("subscribe", envelope.New(envelope.Subscribe{ChannelID: id}, id)) {
			sent++
		}
	}
	return sent
}

func (f *Facade) send(op string, env envelope.Envelope) bool {
	if !f.conn.IsConnectionOpen() {
		f.logger.Warn().Str("op", op).Str("channel", env.ChannelID).Msg("not connected, dropping")
		return false
	}
	if err := f.conn.Send(env); err != nil {
		f.logger.Warn().Err(err).Str("op", op).Str("channel", env.ChannelID).Msg("send failed")
		return false
	}
	return true
}
