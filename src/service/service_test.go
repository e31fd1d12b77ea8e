package service

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orchestra-mcp/chatsocket/src/envelope"
	"github.com/orchestra-mcp/chatsocket/src/hub"
)

const (
	waitFor = time.Second
	tick    = 2 * time.Millisecond
)

type mockConn struct {
	mu       sync.Mutex
	written  []envelope.Envelope
	closed   bool
	closedCh chan struct{}
}

func newMockConn() *mockConn {
	return &mockConn{closedCh: make(chan struct{})}
}

func (m *mockConn) WriteJSON(v any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.written = append(m.written, v.(envelope.Envelope))
	return nil
}

func (m *mockConn) ReadMessage() (int, []byte, error) {
	<-m.closedCh
	return 0, nil, assert.AnError
}

func (m *mockConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.closedCh)
	}
	return nil
}

func (m *mockConn) getWritten() []envelope.Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]envelope.Envelope(nil), m.written...)
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	h := hub.New(zerolog.Nop())
	go h.Run()
	t.Cleanup(h.Stop)
	return New(h, zerolog.Nop())
}

func registerClient(t *testing.T, s *Service, id string) *mockConn {
	t.Helper()
	conn := newMockConn()
	c := hub.NewClient(id, "user-"+id, "", conn, s.Hub())
	s.Hub().Register(c)
	go c.WritePump()
	go c.ReadPump()
	require.Eventually(t, func() bool { return s.Hub().ClientInfo(id) != nil }, waitFor, tick)
	return conn
}

func TestServicePublish(t *testing.T) {
	svc := newTestService(t)
	conn := registerClient(t, svc, "svc-c1")
	require.NoError(t, svc.Subscribe("news", "svc-c1"))

	require.NoError(t, svc.Publish("news", envelope.ChannelUpdate{Name: "News", MemberCount: 1}))
	require.Eventually(t, func() bool { return len(conn.getWritten()) == 1 }, waitFor, tick)

	got := conn.getWritten()[0]
	assert.Equal(t, "news", got.ChannelID)
	assert.Equal(t, "news", got.Payload.(envelope.ChannelUpdate).ChannelID)
}

func TestServicePublishRejectsControlFrames(t *testing.T) {
	svc := newTestService(t)
	assert.Error(t, svc.Publish("news", envelope.Ping{}))
	assert.Error(t, svc.Publish("news", envelope.Subscribe{ChannelID: "news"}))
	assert.Error(t, svc.Publish("", envelope.ChannelUpdate{}))
	assert.Error(t, svc.Publish("news", nil))
}

func TestServiceSubscribeUnknownClient(t *testing.T) {
	svc := newTestService(t)
	assert.Error(t, svc.Subscribe("ch", "unknown"))
	assert.Error(t, svc.Unsubscribe("ch", "unknown"))
}

func TestServiceSendToClient(t *testing.T) {
	svc := newTestService(t)
	conn := registerClient(t, svc, "dm-target")

	require.NoError(t, svc.SendToClient("dm-target", "dm", envelope.ChatMessage{Content: "hi"}))
	require.Eventually(t, func() bool { return len(conn.getWritten()) == 1 }, waitFor, tick)

	assert.Error(t, svc.SendToClient("ghost", "dm", envelope.ChatMessage{Content: "hi"}))
}

func TestServiceGetChannels(t *testing.T) {
	svc := newTestService(t)
	registerClient(t, svc, "ch-c1")
	registerClient(t, svc, "ch-c2")

	require.NoError(t, svc.Subscribe("beta", "ch-c1"))
	require.NoError(t, svc.Subscribe("alpha", "ch-c1"))
	require.NoError(t, svc.Subscribe("alpha", "ch-c2"))

	assert.Equal(t, []ChannelStat{
		{Channel: "alpha", Subscribers: 2},
		{Channel: "beta", Subscribers: 1},
	}, svc.GetChannels())

	info, err := svc.GetClientInfo("ch-c1")
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, info.Channels)

	_, err = svc.GetClientInfo("nobody")
	assert.Error(t, err)
}

func TestServiceDisconnectClient(t *testing.T) {
	svc := newTestService(t)
	var mu sync.Mutex
	var gone string
	svc.OnDisconnection(func(id string) {
		mu.Lock()
		gone = id
		mu.Unlock()
	})
	registerClient(t, svc, "victim")

	require.NoError(t, svc.DisconnectClient("victim"))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return gone == "victim"
	}, waitFor, tick)
	assert.Error(t, svc.DisconnectClient("victim"))
}
