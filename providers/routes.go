package providers

import (
	"strings"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"

	"github.com/orchestra-mcp/chatsocket/src/hub"
)

const maxFrameSize = 1 << 20

// RegisterRoutes registers the admin routes via Fiber. The WebSocket upgrade
// uses FastHTTPHandler, since Fiber v3 does not expose *fasthttp.RequestCtx.
func (p *RelayServer) RegisterRoutes(group fiber.Router) {
	group.Get("/ws/info", p.handleInfo)
	group.Get("/ws/clients", p.handleListClients)
	group.Get("/ws/channels", p.handleListChannels)
	group.Post("/ws/channels/:id/update", p.handleChannelUpdate)
	group.Delete("/ws/clients/:id", p.handleDropClient)
}

func (p *RelayServer) handleInfo(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"websocket": true,
		"endpoint":  "/ws",
		"clients":   p.hub.ClientCount(),
		"channels":  len(p.hub.Channels()),
	})
}

// FastHTTPHandler returns a raw fasthttp handler for WebSocket upgrades.
// The credential is taken from the token query parameter.
func (p *RelayServer) FastHTTPHandler() fasthttp.RequestHandler {
	h := p.hub
	upgrader := p.upgrader
	verifier := p.verifier
	logger := p.logger
	maxConns := p.cfg.MaxConnections
	writeTimeout := p.cfg.WriteTimeout()

	return func(ctx *fasthttp.RequestCtx) {
		upgrade := string(ctx.Request.Header.Peek("Upgrade"))
		if !strings.EqualFold(upgrade, "websocket") {
			rejectJSON(ctx, fasthttp.StatusUpgradeRequired, "upgrade_required", "WebSocket upgrade required")
			return
		}

		ident, err := verifier.Verify(string(ctx.QueryArgs().Peek("token")))
		if err != nil {
			logger.Debug().Err(err).Msg("handshake rejected")
			rejectJSON(ctx, fasthttp.StatusUnauthorized, "unauthorized", "missing or invalid token")
			return
		}
		if h.ClientCount() >= maxConns {
			rejectJSON(ctx, fasthttp.StatusServiceUnavailable, "server_full", "too many connections")
			return
		}

		clientID := uuid.New().String()
		err = upgrader.Upgrade(ctx, func(conn *websocket.Conn) {
			conn.SetReadLimit(maxFrameSize)
			client := hub.NewClient(clientID, ident.UserID, ident.UserName, &fasthttpConn{conn: conn, writeTimeout: writeTimeout}, h)
			h.Register(client)
			go client.WritePump()
			client.ReadPump()
		})
		if err != nil {
			logger.Error().Err(err).Msg("websocket upgrade failed")
		}
	}
}

func rejectJSON(ctx *fasthttp.RequestCtx, status int, code, message string) {
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	ctx.SetBodyString(`{"error":"` + code + `","message":"` + message + `"}`)
}

// fasthttpConn wraps fasthttp/websocket.Conn to satisfy types.Conn.
type fasthttpConn struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
}

func (f *fasthttpConn) WriteJSON(v any) error {
	if err := f.conn.SetWriteDeadline(time.Now().Add(f.writeTimeout)); err != nil {
		return err
	}
	return f.conn.WriteJSON(v)
}

func (f *fasthttpConn) ReadMessage() (int, []byte, error) { return f.conn.ReadMessage() }
func (f *fasthttpConn) Close() error                      { return f.conn.Close() }
