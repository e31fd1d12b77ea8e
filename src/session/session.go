// Package session binds one authenticated user to one realtime connection
// and routes its events to typed callbacks.
package session

import (
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/orchestra-mcp/chatsocket/config"
	"github.com/orchestra-mcp/chatsocket/src/channels"
	"github.com/orchestra-mcp/chatsocket/src/envelope"
	"github.com/orchestra-mcp/chatsocket/src/transport"
)

// ErrNoCredential is returned by Start when no credential is given.
var ErrNoCredential = errors.New("no credential")

// Handlers are optional callbacks. They run on transport goroutines and must
// not block for long.
type Handlers struct {
	OnMessage       func(env envelope.Envelope, msg envelope.ChatMessage)
	OnTyping        func(env envelope.Envelope, typing envelope.Typing)
	OnUserJoined    func(env envelope.Envelope, who envelope.Joined)
	OnUserLeft      func(env envelope.Envelope, who envelope.Left)
	OnChannelUpdate func(env envelope.Envelope, update envelope.ChannelUpdate)
	OnReaction      func(env envelope.Envelope, reaction envelope.Reaction)
	OnConnected     func()
	OnDisconnected  func(ev transport.Disconnected)
	OnError         func(err error)
}

// Session owns at most one connection at a time.
type Session struct {
	cfg      config.RealtimeConfig
	logger   zerolog.Logger
	handlers Handlers
	opts     []transport.Option

	mu         sync.Mutex
	credential string
	conn       *transport.Manager
	facade     *channels.Facade
}

// New creates a stopped Session. A nil cfg uses the defaults.
func New(cfg *config.RealtimeConfig, logger zerolog.Logger, handlers Handlers, opts ...transport.Option) *Session {
	c := *config.DefaultRealtimeConfig()
	if cfg != nil {
		c = *cfg
	}
	return &Session{
		cfg:      c,
		logger:   logger.With().Str("component", "session").Logger(),
		handlers: handlers,
		opts:     opts,
	}
}

// Start connects with credential. Calling it again with the same credential
// while connected is a no-op; a different credential replaces the current
// connection.
func (s *Session) Start(credential string) error {
	if credential == "" {
		return ErrNoCredential
	}

	s.mu.Lock()
	if s.conn != nil && s.credential == credential {
		conn := s.conn
		s.mu.Unlock()
		switch conn.State() {
		case transport.StateConnecting, transport.StateOpen:
			return nil
		}
		conn.Connect(credential)
		return nil
	}

	m, err := transport.New(&s.cfg, s.logger, s.opts...)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	old := s.conn
	s.conn = m
	s.facade = channels.New(m, s.logger)
	s.credential = credential
	s.register(m)
	s.mu.Unlock()

	if old != nil {
		s.logger.Info().Msg("credential changed, replacing connection")
		old.RemoveAllListeners()
		old.Disconnect()
	}
	m.Connect(credential)
	return nil
}

// Stop disconnects and forgets the connection. It is safe to call more than
// once.
func (s *Session) Stop() {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.facade = nil
	s.credential = ""
	s.mu.Unlock()

	if conn == nil {
		return
	}
	conn.Disconnect()
	conn.RemoveAllListeners()
}

// Channels returns the channel facade, or nil when stopped.
func (s *Session) Channels() *channels.Facade {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.facade
}

// Connection returns the connection manager, or nil when stopped.
func (s *Session) Connection() *transport.Manager {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

// IsConnected reports whether the session has an open socket.
func (s *Session) IsConnected() bool {
	conn := s.Connection()
	return conn != nil && conn.IsConnectionOpen()
}

func (s *Session) register(m *transport.Manager) {
	h := s.handlers

	m.On(transport.EventConnected, func(transport.Event) {
		if h.OnConnected != nil {
			h.OnConnected()
		}
	})
	m.On(transport.EventDisconnected, func(ev transport.Event) {
		if h.OnDisconnected != nil {
			h.OnDisconnected(ev.(transport.Disconnected))
		}
	})
	m.On(transport.EventError, func(ev transport.Event) {
		err := ev.(transport.Failure).Err
		if errors.Is(err, transport.ErrReconnectExhausted) {
			s.logger.Error().Err(err).Msg("realtime connection lost")
		}
		if h.OnError != nil {
			h.OnError(err)
		}
	})

	onFrame(m, envelope.KindMessage, h.OnMessage)
	onFrame(m, envelope.KindTyping, h.OnTyping)
	onFrame(m, envelope.KindUserJoined, h.OnUserJoined)
	onFrame(m, envelope.KindUserLeft, h.OnUserLeft)
	onFrame(m, envelope.KindChannelUpdate, h.OnChannelUpdate)
	onFrame(m, envelope.KindReaction, h.OnReaction)
}

func onFrame[P envelope.Payload](m *transport.Manager, kind envelope.Kind, fn func(envelope.Envelope, P)) {
	if fn == nil {
		return
	}
	m.On(string(kind), func(ev transport.Event) {
		frame := ev.(transport.Frame)
		if p, ok := frame.Envelope.Payload.(P); ok {
			fn(frame.Envelope, p)
		}
	})
}
