// Package transport owns the client side of the realtime socket: one
// connection, its lifecycle, heartbeat and bounded reconnection.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/orchestra-mcp/chatsocket/config"
	"github.com/orchestra-mcp/chatsocket/src/envelope"
	"github.com/orchestra-mcp/chatsocket/src/events"
	"github.com/orchestra-mcp/chatsocket/src/types"
)

var (
	// ErrNotConnected is returned by Send when the socket is not open.
	ErrNotConnected = errors.New("socket is not open")
	// ErrReconnectExhausted is emitted once every retry has failed.
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
	// ErrCredentialChanged is emitted when Connect is called with a credential
	// other than the one the Manager was first connected with.
	ErrCredentialChanged = errors.New("credential differs from the bound credential")
)

// State is the lifecycle state of the connection.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Stats counts a Manager's traffic since it was created.
type Stats struct {
	// TotalConnections counts sockets that reached Open.
	TotalConnections uint64
	// MessagesSent counts frames written, heartbeat pings included.
	MessagesSent uint64
	// MessagesReceived counts inbound frames that decoded, pongs included.
	MessagesReceived uint64
	// Reconnections counts automatic reconnect attempts that were started.
	Reconnections uint64
	// Errors counts error events plus dropped malformed frames.
	Errors uint64
}

type counters struct {
	connections   atomic.Uint64
	sent          atomic.Uint64
	received      atomic.Uint64
	reconnections atomic.Uint64
	errors        atomic.Uint64
}

// Option configures a Manager.
type Option func(*Manager)

// WithDialer replaces the dialer chosen from the configured transport.
func WithDialer(d types.Dialer) Option {
	return func(m *Manager) { m.dialer = d }
}

// WithClock replaces the wall clock used for timers and timestamps.
func WithClock(c types.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// Manager owns at most one live socket. All methods are safe for concurrent
// use. Listeners run on the goroutine that produced the event: the read
// goroutine for inbound frames, a timer goroutine for reconnect notices, or
// the caller for Disconnect and Send failures. Events are emitted outside the
// state lock, so a Disconnect racing an open may be observed as "connected"
// immediately followed by "disconnected"; "connected" is skipped entirely once
// the connection has already been superseded.
type Manager struct {
	cfg     config.RealtimeConfig
	dialer  types.Dialer
	clock   types.Clock
	logger  zerolog.Logger
	events  *events.Dispatcher[Event]
	stamper *envelope.Stamper
	hb      *heartbeat
	stats   counters

	mu         sync.Mutex
	state      State
	credential string
	gen        uint64
	sock       types.Socket
	cancel     context.CancelFunc
	recon      *reconnector

	writeMu sync.Mutex
}

// New creates an idle Manager. A nil cfg uses the defaults.
func New(cfg *config.RealtimeConfig, logger zerolog.Logger, opts ...Option) (*Manager, error) {
	c := *config.DefaultRealtimeConfig()
	if cfg != nil {
		c = *cfg
	}
	c.ApplyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}

	m := &Manager{
		cfg:    c,
		clock:  types.SystemClock(),
		logger: logger.With().Str("component", "transport").Logger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.dialer == nil {
		d, err := NewDialer(&m.cfg)
		if err != nil {
			return nil, err
		}
		m.dialer = d
	}

	m.events = events.New[Event](m.logger)
	m.stamper = envelope.NewStamper(m.clock.Now)
	m.hb = newHeartbeat(m.clock, m.cfg.HeartbeatInterval(), m.sendPing, m.logger)
	m.recon = newReconnector(m.clock, m.cfg.BaseReconnectInterval(), m.cfg.MaxReconnectAttempts)
	return m, nil
}

// Connect opens the socket asynchronously. It is a no-op while a connection
// is being established or is open. An empty credential falls back to the
// configured one. Failures are reported through "error" events.
func (m *Manager) Connect(credential string) {
	if credential == "" {
		credential = m.cfg.Credential
	}

	m.mu.Lock()
	if m.credential != "" && credential != m.credential {
		m.mu.Unlock()
		m.logger.Warn().Msg("connect rejected: credential changed")
		m.fail(ErrCredentialChanged)
		return
	}
	if m.state == StateConnecting || m.state == StateOpen {
		state := m.state
		m.mu.Unlock()
		m.logger.Debug().Stringer("state", state).Msg("connect ignored")
		return
	}
	m.credential = credential
	m.recon.cancel()
	m.beginConnectLocked()
	m.mu.Unlock()
}

func (m *Manager) beginConnectLocked() {
	m.gen++
	gen := m.gen
	m.state = StateConnecting

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel

	endpoint := m.endpointLocked()
	m.logger.Info().
		Str("url", redact(endpoint)).
		Int("attempt", m.recon.attempt).
		Msg("connecting")

	go m.dial(ctx, gen, endpoint)
}

func (m *Manager) dial(ctx context.Context, gen uint64, endpoint string) {
	dctx, cancel := context.WithTimeout(ctx, m.cfg.HandshakeTimeout())
	sock, err := m.dialer.Dial(dctx, endpoint)
	cancel()

	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		if sock != nil {
			_ = sock.Close(types.CloseNormalClosure, "superseded")
		}
		return
	}
	if err != nil {
		m.mu.Unlock()
		err = fmt.Errorf("dial %s: %w", redact(endpoint), err)
		m.logger.Warn().Err(err).Msg("dial failed")
		m.fail(err)
		m.handleClose(gen, types.CloseAbnormalClosure, "dial failed")
		return
	}
	m.sock = sock
	m.state = StateOpen
	m.recon.reset()
	m.hb.start()
	m.mu.Unlock()
	m.stats.connections.Add(1)

	m.logger.Info().Msg("connected")
	if !m.current(gen) {
		return
	}
	m.emit(Connected{})

	go m.readLoop(ctx, gen, sock)
}

func (m *Manager) readLoop(ctx context.Context, gen uint64, sock types.Socket) {
	for {
		data, err := sock.ReadFrame(ctx)
		if err != nil {
			code, reason := types.CloseStatus(err)
			m.handleClose(gen, code, reason)
			return
		}
		if !m.current(gen) {
			return
		}
		m.handleFrame(data)
	}
}

func (m *Manager) handleFrame(data []byte) {
	env, err := envelope.Decode(data)
	if err != nil {
		m.stats.errors.Add(1)
		m.logger.Warn().Err(err).Int("bytes", len(data)).Msg("dropping inbound frame")
		return
	}
	m.stats.received.Add(1)

	switch env.Kind {
	case envelope.KindPong:
		m.hb.ack(m.clock.Now())
	case envelope.KindPing, envelope.KindSubscribe, envelope.KindUnsubscribe:
		m.logger.Debug().Str("kind", string(env.Kind)).Msg("ignoring inbound frame")
	default:
		m.emit(Frame{Envelope: env})
	}
}

// handleClose moves a live or dialing connection to Closed and decides
// whether to retry.
func (m *Manager) handleClose(gen uint64, code int, reason string) {
	m.mu.Lock()
	if gen != m.gen || (m.state != StateOpen && m.state != StateConnecting) {
		m.mu.Unlock()
		return
	}
	m.hb.stop()
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	sock := m.sock
	m.sock = nil
	m.state = StateClosed

	var (
		attempt   int
		delay     time.Duration
		retrying  bool
		exhausted bool
	)
	if code != types.CloseNormalClosure {
		attempt, delay, retrying = m.recon.schedule(func() { m.reconnect(gen) })
		exhausted = !retrying
	}
	m.mu.Unlock()

	if sock != nil {
		_ = sock.Close(types.CloseNormalClosure, "")
	}

	if code == types.CloseNormalClosure {
		m.logger.Info().Int("code", code).Str("reason", reason).Msg("disconnected")
	} else {
		m.logger.Warn().Int("code", code).Str("reason", reason).Msg("connection lost")
	}
	m.emit(Disconnected{Code: code, Reason: reason, Retrying: retrying})

	switch {
	case retrying:
		m.logger.Info().Int("attempt", attempt).Dur("delay", delay).Msg("reconnect scheduled")
		m.emit(Reconnecting{Attempt: attempt, Delay: delay})
	case exhausted:
		err := fmt.Errorf("%w after %d attempts", ErrReconnectExhausted, attempt)
		m.logger.Error().Err(err).Msg("giving up")
		m.fail(err)
	}
}

func (m *Manager) reconnect(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen || m.state != StateClosed {
		return
	}
	m.recon.fired()
	m.stats.reconnections.Add(1)
	m.beginConnectLocked()
}

// Disconnect closes the socket with code 1000 and cancels any pending
// reconnect or in-flight dial. It is safe to call in any state.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	prev := m.state
	m.gen++
	gen := m.gen
	m.recon.cancel()
	m.recon.reset()
	m.hb.stop()
	sock := m.sock
	m.sock = nil
	cancel := m.cancel
	m.cancel = nil
	switch {
	case sock != nil:
		m.state = StateClosing
	case prev != StateIdle:
		m.state = StateClosed
	}
	m.mu.Unlock()

	// The close frame goes out before the context is cancelled; some
	// backends tear the connection down on cancellation.
	if sock != nil {
		if err := sock.Close(types.CloseNormalClosure, "client disconnect"); err != nil {
			m.logger.Debug().Err(err).Msg("close failed")
		}
	}
	if cancel != nil {
		cancel()
	}
	if sock != nil {
		m.mu.Lock()
		if m.gen == gen {
			m.state = StateClosed
		}
		m.mu.Unlock()
	}

	if prev == StateOpen || prev == StateConnecting {
		m.logger.Info().Msg("disconnected by client")
		m.emit(Disconnected{Code: types.CloseNormalClosure, Reason: "client disconnect"})
	}
}

// Send encodes env and writes it as one text frame. SentAt is stamped when
// zero.
func (m *Manager) Send(env envelope.Envelope) error {
	m.mu.Lock()
	sock := m.sock
	open := m.state == StateOpen
	m.mu.Unlock()
	if !open || sock == nil {
		return ErrNotConnected
	}

	if env.SentAt.IsZero() {
		env.SentAt = m.stamper.Next()
	}
	data, err := envelope.Encode(env)
	if err != nil {
		return fmt.Errorf("encode %s: %w", env.Kind, err)
	}

	m.writeMu.Lock()
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.WriteTimeout())
	err = sock.WriteFrame(ctx, data)
	cancel()
	m.writeMu.Unlock()

	if err != nil {
		err = fmt.Errorf("send %s: %w", env.Kind, err)
		m.logger.Warn().Err(err).Msg("write failed")
		m.fail(err)
		return err
	}
	m.stats.sent.Add(1)
	m.logger.Debug().Str("kind", string(env.Kind)).Str("channel", env.ChannelID).Msg("frame sent")
	return nil
}

func (m *Manager) sendPing() {
	if !m.IsConnectionOpen() {
		return
	}
	if err := m.Send(envelope.New(envelope.Ping{}, "")); err != nil {
		m.logger.Debug().Err(err).Msg("heartbeat ping failed")
	}
}

// IsConnectionOpen reports whether the socket is open.
func (m *Manager) IsConnectionOpen() bool {
	return m.State() == StateOpen
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Attempt returns the number of reconnect attempts since the last open.
func (m *Manager) Attempt() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recon.attempt
}

// LastPong returns when the last pong arrived, or the zero time.
func (m *Manager) LastPong() time.Time {
	return m.hb.last()
}

// Stats returns a snapshot of the traffic counters.
func (m *Manager) Stats() Stats {
	return Stats{
		TotalConnections: m.stats.connections.Load(),
		MessagesSent:     m.stats.sent.Load(),
		MessagesReceived: m.stats.received.Load(),
		Reconnections:    m.stats.reconnections.Load(),
		Errors:           m.stats.errors.Load(),
	}
}

// On registers fn for the named event.
func (m *Manager) On(event string, fn func(Event)) *events.Listener[Event] {
	return m.events.On(event, fn)
}

// Once registers fn to run at most once for the named event.
func (m *Manager) Once(event string, fn func(Event)) *events.Listener[Event] {
	return m.events.Once(event, fn)
}

// Off removes a registration returned by On or Once.
func (m *Manager) Off(event string, l *events.Listener[Event]) bool {
	return m.events.Off(event, l)
}

// RemoveAllListeners drops the listeners of the given events, or all of them.
func (m *Manager) RemoveAllListeners(events ...string) {
	m.events.RemoveAllListeners(events...)
}

func (m *Manager) emit(ev Event) {
	m.events.Emit(ev.Name(), ev)
}

func (m *Manager) fail(err error) {
	m.stats.errors.Add(1)
	m.emit(Failure{Err: err})
}

func (m *Manager) current(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return gen == m.gen
}

func (m *Manager) endpointLocked() string {
	u, err := url.Parse(m.cfg.URL)
	if err != nil {
		return m.cfg.URL
	}
	if m.credential != "" {
		q := u.Query()
		q.Set("token", m.credential)
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func redact(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "<invalid url>"
	}
	q := u.Query()
	if q.Has("token") {
		q.Set("token", "REDACTED")
		u.RawQuery = q.Encode()
	}
	return u.String()
}
