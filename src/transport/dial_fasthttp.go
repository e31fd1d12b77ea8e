package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fasthttp/websocket"

	"github.com/orchestra-mcp/chatsocket/src/types"
)

// maxFrameSize caps inbound frames on both backends.
const maxFrameSize = 1 << 20

// FastHTTPDialer dials with github.com/fasthttp/websocket.
type FastHTTPDialer struct {
	HandshakeTimeout time.Duration
	Header           http.Header
}

// Dial implements types.Dialer.
func (d *FastHTTPDialer) Dial(ctx context.Context, endpoint string) (types.Socket, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: d.HandshakeTimeout,
	}
	conn, resp, err := dialer.DialContext(ctx, endpoint, d.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("handshake rejected with status %d: %w", resp.StatusCode, err)
		}
		return nil, err
	}
	conn.SetReadLimit(maxFrameSize)
	return &fastHTTPSocket{conn: conn}, nil
}

type fastHTTPSocket struct {
	conn *websocket.Conn
}

func (s *fastHTTPSocket) ReadFrame(ctx context.Context) ([]byte, error) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = s.conn.SetReadDeadline(deadline)
	}
	_, data, err := s.conn.ReadMessage()
	if err != nil {
		var ce *websocket.CloseError
		if errors.As(err, &ce) {
			return nil, &types.CloseError{Code: ce.Code, Reason: ce.Text}
		}
		return nil, err
	}
	return data, nil
}

func (s *fastHTTPSocket) WriteFrame(ctx context.Context, data []byte) error {
	deadline, _ := ctx.Deadline()
	if err := s.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *fastHTTPSocket) Close(code int, reason string) error {
	msg := websocket.FormatCloseMessage(code, reason)
	werr := s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	cerr := s.conn.Close()
	if werr != nil && !errors.Is(werr, websocket.ErrCloseSent) {
		return errors.Join(werr, cerr)
	}
	return cerr
}
