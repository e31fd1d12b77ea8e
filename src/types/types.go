package types

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// WebSocket close codes used by the transport.
const (
	CloseNormalClosure   = 1000
	CloseGoingAway       = 1001
	CloseNoStatus        = 1005
	CloseAbnormalClosure = 1006
)

// Socket is the client side of one WebSocket connection carrying text frames.
type Socket interface {
	ReadFrame(ctx context.Context) ([]byte, error)
	WriteFrame(ctx context.Context, data []byte) error
	Close(code int, reason string) error
}

// Dialer opens a Socket to an endpoint.
type Dialer interface {
	Dial(ctx context.Context, endpoint string) (Socket, error)
}

// CloseError reports that the peer closed the connection with a close frame.
type CloseError struct {
	Code   int
	Reason string
}

func (e *CloseError) Error() string {
	return fmt.Sprintf("websocket closed: %d %s", e.Code, e.Reason)
}

// CloseStatus extracts the close code and reason from a read error. Errors
// that carry no close frame count as an abnormal closure.
func CloseStatus(err error) (int, string) {
	var ce *CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Reason
	}
	if err == nil {
		return CloseNormalClosure, ""
	}
	return CloseAbnormalClosure, err.Error()
}

// Conn abstracts the server side of a WebSocket connection for testability.
type Conn interface {
	WriteJSON(v any) error
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
}

// ClientInfo holds metadata about a client connected to the relay.
type ClientInfo struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	ConnectedAt time.Time `json:"connected_at"`
	Channels    []string  `json:"channels"`
}
