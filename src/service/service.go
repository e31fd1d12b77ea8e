package service

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/orchestra-mcp/chatsocket/src/envelope"
	"github.com/orchestra-mcp/chatsocket/src/hub"
	"github.com/orchestra-mcp/chatsocket/src/types"
)

// Service provides the high-level relay API used by the admin routes.
type Service struct {
	hub    *hub.Hub
	logger zerolog.Logger
}

// ChannelStat is one channel and its member count.
type ChannelStat struct {
	Channel     string `json:"channel"`
	Subscribers int    `json:"subscribers"`
}

// New creates a new relay service backed by the given hub.
func New(h *hub.Hub, logger zerolog.Logger) *Service {
	return &Service{hub: h, logger: logger.With().Str("component", "service").Logger()}
}

// Hub returns the underlying hub.
func (s *Service) Hub() *hub.Hub { return s.hub }

// RegisterHandler registers a handler for a frame kind.
func (s *Service) RegisterHandler(kind envelope.Kind, handler hub.Handler) {
	s.hub.RegisterHandler(kind, handler)
	s.logger.Debug().Str("kind", string(kind)).Msg("handler registered")
}

// Publish sends a server-originated payload to every member of a channel.
// Control kinds (subscribe, unsubscribe, ping, pong) are rejected.
func (s *Service) Publish(channel string, p envelope.Payload) error {
	if channel == "" {
		return fmt.Errorf("channel is required")
	}
	if err := checkServerKind(p); err != nil {
		return err
	}
	if u, ok := p.(envelope.ChannelUpdate); ok && u.ChannelID == "" {
		u.ChannelID = channel
		p = u
	}
	s.hub.Publish(channel, envelope.New(p, channel))
	s.logger.Debug().Str("channel", channel).Str("kind", string(p.Kind())).Msg("published")
	return nil
}

// Subscribe adds a client to a channel.
func (s *Service) Subscribe(channel, clientID string) error {
	if ok := s.hub.Subscribe(channel, clientID); !ok {
		return fmt.Errorf("client %s not found", clientID)
	}
	s.logger.Debug().
		Str("client_id", clientID).
		Str("channel", channel).
		Msg("subscribed")
	return nil
}

// Unsubscribe removes a client from a channel.
func (s *Service) Unsubscribe(channel, clientID string) error {
	if ok := s.hub.Unsubscribe(channel, clientID); !ok {
		return fmt.Errorf("channel %s or client %s not found", channel, clientID)
	}
	s.logger.Debug().
		Str("client_id", clientID).
		Str("channel", channel).
		Msg("unsubscribed")
	return nil
}

// OnConnection registers a callback for new connections.
func (s *Service) OnConnection(cb func(clientID string)) {
	s.hub.OnConnection(cb)
}

// OnDisconnection registers a callback for disconnections.
func (s *Service) OnDisconnection(cb func(clientID string)) {
	s.hub.OnDisconnection(cb)
}

// GetConnectedClients returns IDs of all connected clients.
func (s *Service) GetConnectedClients() []string {
	return s.hub.ConnectedClients()
}

// SendToClient sends a payload directly to a specific client.
func (s *Service) SendToClient(clientID, channel string, p envelope.Payload) error {
	if err := checkServerKind(p); err != nil {
		return err
	}
	if ok := s.hub.SendToClient(clientID, envelope.New(p, channel)); !ok {
		return fmt.Errorf("client %s not found or buffer full", clientID)
	}
	return nil
}

// DisconnectClient drops a client's connection abruptly.
func (s *Service) DisconnectClient(clientID string) error {
	if ok := s.hub.Disconnect(clientID); !ok {
		return fmt.Errorf("client %s not found", clientID)
	}
	s.logger.Info().Str("client_id", clientID).Msg("client dropped")
	return nil
}

// GetChannels returns active channels with member counts, sorted by name.
func (s *Service) GetChannels() []ChannelStat {
	channels := s.hub.Channels()
	out := make([]ChannelStat, 0, len(channels))
	for name, count := range channels {
		out = append(out, ChannelStat{Channel: name, Subscribers: count})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Channel < out[j].Channel })
	return out
}

// GetClientInfo returns info for a connected client, or error.
func (s *Service) GetClientInfo(clientID string) (*types.ClientInfo, error) {
	info := s.hub.ClientInfo(clientID)
	if info == nil {
		return nil, fmt.Errorf("client %s not found", clientID)
	}
	return info, nil
}

func checkServerKind(p envelope.Payload) error {
	if p == nil {
		return fmt.Errorf("payload is required")
	}
	switch k := p.Kind(); k {
	case envelope.KindSubscribe, envelope.KindUnsubscribe, envelope.KindPing, envelope.KindPong:
		return fmt.Errorf("%s frames cannot be published", k)
	}
	return nil
}
