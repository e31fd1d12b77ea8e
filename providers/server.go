// Package providers assembles the development relay: hub, service, admin
// routes and the WebSocket endpoint on one fasthttp server.
package providers

import (
	"errors"
	"net"
	"sync"

	"github.com/fasthttp/websocket"
	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"

	"github.com/orchestra-mcp/chatsocket/config"
	"github.com/orchestra-mcp/chatsocket/src/auth"
	"github.com/orchestra-mcp/chatsocket/src/hub"
	"github.com/orchestra-mcp/chatsocket/src/service"
)

// ErrNotActive is returned when the relay is used before Activate.
var ErrNotActive = errors.New("relay is not active")

// RelayServer is a small chat relay speaking the realtime envelope protocol.
// It exists for local development and integration tests.
type RelayServer struct {
	cfg      config.RelayConfig
	logger   zerolog.Logger
	verifier auth.Verifier

	mu       sync.Mutex
	active   bool
	hub      *hub.Hub
	service  *service.Service
	app      *fiber.App
	server   *fasthttp.Server
	upgrader websocket.FastHTTPUpgrader
}

// NewRelayServer creates an inactive relay. A nil cfg uses the defaults.
func NewRelayServer(cfg *config.RelayConfig, logger zerolog.Logger) *RelayServer {
	c := *config.DefaultRelayConfig()
	if cfg != nil {
		c = *cfg
	}
	c.ApplyDefaults()
	return &RelayServer{
		cfg:      c,
		logger:   logger.With().Str("component", "relay").Logger(),
		verifier: auth.NewVerifier(c.JWTSecret),
	}
}

// Activate initializes the hub, service and routes, and starts the hub loop.
func (p *RelayServer) Activate() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active {
		return nil
	}

	p.hub = hub.New(p.logger, hub.WithSendBuffer(p.cfg.SendBufferSize))
	p.service = service.New(p.hub, p.logger)
	p.upgrader = websocket.FastHTTPUpgrader{
		ReadBufferSize:  p.cfg.ReadBufferSize,
		WriteBufferSize: p.cfg.WriteBufferSize,
		CheckOrigin:     func(*fasthttp.RequestCtx) bool { return true },
	}
	p.app = fiber.New(fiber.Config{AppName: "chatsocket-relay"})
	p.RegisterRoutes(p.app)

	go p.hub.Run()

	p.active = true
	p.logger.Info().
		Bool("jwt", p.cfg.JWTSecret != "").
		Int("max_connections", p.cfg.MaxConnections).
		Msg("relay activated")
	return nil
}

// Deactivate stops the HTTP server and the hub loop.
func (p *RelayServer) Deactivate() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.active {
		return nil
	}
	var err error
	if p.server != nil {
		err = p.server.Shutdown()
		p.server = nil
	}
	p.hub.Stop()
	p.active = false
	p.logger.Info().Msg("relay deactivated")
	return err
}

// IsActive reports whether Activate has run.
func (p *RelayServer) IsActive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// Service exposes the relay service.
func (p *RelayServer) Service() *service.Service {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.service
}

// App exposes the fiber app serving the admin routes.
func (p *RelayServer) App() *fiber.App {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.app
}

// Handler routes /ws to the WebSocket upgrade and everything else to fiber.
func (p *RelayServer) Handler() fasthttp.RequestHandler {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.handlerLocked()
}

// Serve accepts connections on ln until Deactivate.
func (p *RelayServer) Serve(ln net.Listener) error {
	p.mu.Lock()
	if !p.active {
		p.mu.Unlock()
		return ErrNotActive
	}
	srv := &fasthttp.Server{
		Name:    "chatsocket-relay",
		Handler: p.handlerLocked(),
	}
	p.server = srv
	p.mu.Unlock()

	p.logger.Info().Str("addr", ln.Addr().String()).Msg("relay listening")
	return srv.Serve(ln)
}

// ListenAndServe listens on the configured address.
func (p *RelayServer) ListenAndServe() error {
	ln, err := net.Listen("tcp", p.cfg.Addr)
	if err != nil {
		return err
	}
	return p.Serve(ln)
}

func (p *RelayServer) handlerLocked() fasthttp.RequestHandler {
	ws := p.FastHTTPHandler()
	api := p.app.Handler()
	return func(ctx *fasthttp.RequestCtx) {
		if string(ctx.Path()) == "/ws" {
			ws(ctx)
			return
		}
		api(ctx)
	}
}
