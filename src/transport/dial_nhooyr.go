package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"nhooyr.io/websocket"

	"github.com/orchestra-mcp/chatsocket/src/types"
)

// NhooyrDialer dials with nhooyr.io/websocket. Reads and writes honour
// context cancellation natively.
type NhooyrDialer struct {
	Header http.Header
}

// Dial implements types.Dialer.
func (d *NhooyrDialer) Dial(ctx context.Context, endpoint string) (types.Socket, error) {
	conn, resp, err := websocket.Dial(ctx, endpoint, &websocket.DialOptions{HTTPHeader: d.Header}) //nolint:bodyclose // websocket.Dial closes the response body
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("handshake rejected with status %d: %w", resp.StatusCode, err)
		}
		return nil, err
	}
	conn.SetReadLimit(maxFrameSize)
	return &nhooyrSocket{conn: conn}, nil
}

type nhooyrSocket struct {
	conn *websocket.Conn
}

func (s *nhooyrSocket) ReadFrame(ctx context.Context) ([]byte, error) {
	_, data, err := s.conn.Read(ctx)
	if err != nil {
		var ce websocket.CloseError
		if errors.As(err, &ce) {
			return nil, &types.CloseError{Code: int(ce.Code), Reason: ce.Reason}
		}
		return nil, err
	}
	return data, nil
}

func (s *nhooyrSocket) WriteFrame(ctx context.Context, data []byte) error {
	return s.conn.Write(ctx, websocket.MessageText, data)
}

func (s *nhooyrSocket) Close(code int, reason string) error {
	return s.conn.Close(websocket.StatusCode(code), reason)
}
