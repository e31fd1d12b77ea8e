package transporttest

import (
	"context"
	"errors"
	"sync"

	"github.com/orchestra-mcp/chatsocket/src/envelope"
	"github.com/orchestra-mcp/chatsocket/src/types"
)

// ErrSocketClosed is returned by writes on a closed FakeSocket.
var ErrSocketClosed = errors.New("fake socket closed")

// FakeSocket is an in-memory types.Socket.
type FakeSocket struct {
	Endpoint string

	inbound chan []byte
	closed  chan struct{}

	mu          sync.Mutex
	written     [][]byte
	isClosed    bool
	readErr     error
	localCode   int
	localReason string
	writeErr    error
}

var _ types.Socket = (*FakeSocket)(nil)

// NewFakeSocket returns an open socket.
func NewFakeSocket(endpoint string) *FakeSocket {
	return &FakeSocket{
		Endpoint: endpoint,
		inbound:  make(chan []byte, 64),
		closed:   make(chan struct{}),
	}
}

// ReadFrame implements types.Socket.
func (s *FakeSocket) ReadFrame(ctx context.Context) ([]byte, error) {
	select {
	case data := <-s.inbound:
		return data, nil
	case <-s.closed:
		s.mu.Lock()
		defer s.mu.Unlock()
		return nil, s.readErr
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// WriteFrame implements types.Socket.
func (s *FakeSocket) WriteFrame(_ context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isClosed {
		return ErrSocketClosed
	}
	if s.writeErr != nil {
		return s.writeErr
	}
	s.written = append(s.written, append([]byte(nil), data...))
	return nil
}

// Close implements types.Socket; it records a local close.
func (s *FakeSocket) Close(code int, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isClosed {
		return nil
	}
	s.localCode = code
	s.localReason = reason
	s.closeLocked(&types.CloseError{Code: code, Reason: reason})
	return nil
}

func (s *FakeSocket) closeLocked(readErr error) {
	s.isClosed = true
	s.readErr = readErr
	close(s.closed)
}

// Deliver queues an inbound text frame.
func (s *FakeSocket) Deliver(frame []byte) {
	s.inbound <- frame
}

// DeliverEnvelope encodes and queues an inbound envelope.
func (s *FakeSocket) DeliverEnvelope(e envelope.Envelope) error {
	data, err := envelope.Encode(e)
	if err != nil {
		return err
	}
	s.Deliver(data)
	return nil
}

// Drop simulates the peer going away. Code 1006 is delivered as a plain
// network error, any other code as a close frame.
func (s *FakeSocket) Drop(code int, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isClosed {
		return
	}
	var err error = &types.CloseError{Code: code, Reason: reason}
	if code == types.CloseAbnormalClosure {
		err = errors.New("connection reset by peer")
	}
	s.closeLocked(err)
}

// FailWrites makes every subsequent write return err.
func (s *FakeSocket) FailWrites(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeErr = err
}

// Written decodes every frame written so far.
func (s *FakeSocket) Written() []envelope.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]envelope.Envelope, 0, len(s.written))
	for _, data := range s.written {
		e, err := envelope.Decode(data)
		if err != nil {
			continue
		}
		out = append(out, e)
	}
	return out
}

// WrittenKinds returns the kinds of every frame written so far.
func (s *FakeSocket) WrittenKinds() []envelope.Kind {
	written := s.Written()
	kinds := make([]envelope.Kind, 0, len(written))
	for _, e := range written {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

// LocalClose reports the code passed to Close, if it was called.
func (s *FakeSocket) LocalClose() (code int, reason string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.localCode, s.localReason, s.localCode != 0
}

// IsClosed reports whether either side closed the socket.
func (s *FakeSocket) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isClosed
}

// FakeDialer hands out FakeSockets and can be told to fail.
type FakeDialer struct {
	mu       sync.Mutex
	sockets  []*FakeSocket
	failures []error
	attempts int
	block    chan struct{}
}

var _ types.Dialer = (*FakeDialer)(nil)

// NewFakeDialer returns a dialer whose dials succeed.
func NewFakeDialer() *FakeDialer {
	return &FakeDialer{}
}

// FailNext makes the next n dials fail with err.
func (d *FakeDialer) FailNext(n int, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := 0; i < n; i++ {
		d.failures = append(d.failures, err)
	}
}

// Hold makes dials block until Release is called or the dial context ends.
func (d *FakeDialer) Hold() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.block = make(chan struct{})
}

// Release unblocks held dials.
func (d *FakeDialer) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.block != nil {
		close(d.block)
		d.block = nil
	}
}

// Dial implements types.Dialer.
func (d *FakeDialer) Dial(ctx context.Context, endpoint string) (types.Socket, error) {
	d.mu.Lock()
	d.attempts++
	block := d.block
	d.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.failures) > 0 {
		err := d.failures[0]
		d.failures = d.failures[1:]
		return nil, err
	}
	s := NewFakeSocket(endpoint)
	d.sockets = append(d.sockets, s)
	return s, nil
}

// Attempts returns how many times Dial was called.
func (d *FakeDialer) Attempts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attempts
}

// Sockets returns every socket handed out so far.
func (d *FakeDialer) Sockets() []*FakeSocket {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*FakeSocket, len(d.sockets))
	copy(out, d.sockets)
	return out
}

// Last returns the most recent socket, or nil.
func (d *FakeDialer) Last() *FakeSocket {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.sockets) == 0 {
		return nil
	}
	return d.sockets[len(d.sockets)-1]
}
