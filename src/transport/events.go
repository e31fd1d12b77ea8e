package transport

import (
	"time"

	"github.com/orchestra-mcp/chatsocket/src/envelope"
)

// Lifecycle event names.
const (
	EventConnected    = "connected"
	EventDisconnected = "disconnected"
	EventError        = "error"
	EventReconnecting = "reconnecting"
)

// Event is anything the Manager emits. Inbound frames are emitted under the
// name of their kind.
type Event interface {
	Name() string
}

// Connected is emitted when the socket opens.
type Connected struct{}

func (Connected) Name() string { return EventConnected }

// Disconnected is emitted when the socket closes. Retrying reports whether a
// reconnect has been scheduled.
type Disconnected struct {
	Code     int
	Reason   string
	Retrying bool
}

func (Disconnected) Name() string { return EventDisconnected }

// Reconnecting is emitted when a retry is scheduled.
type Reconnecting struct {
	Attempt int
	Delay   time.Duration
}

func (Reconnecting) Name() string { return EventReconnecting }

// Failure carries a transport error.
type Failure struct {
	Err error
}

func (Failure) Name() string { return EventError }

// Frame carries one decoded inbound envelope.
type Frame struct {
	Envelope envelope.Envelope
}

func (f Frame) Name() string { return string(f.Envelope.Kind) }
