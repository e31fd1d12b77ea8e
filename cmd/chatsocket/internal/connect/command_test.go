package connect

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orchestra-mcp/chatsocket/config"
	"github.com/orchestra-mcp/chatsocket/src/envelope"
	"github.com/orchestra-mcp/chatsocket/src/session"
	"github.com/orchestra-mcp/chatsocket/src/transport"
	"github.com/orchestra-mcp/chatsocket/src/transport/transporttest"
)

func TestNewConnectCommand(t *testing.T) {
	cmd := NewConnectCommand()

	require.NotNil(t, cmd)
	assert.Equal(t, "connect", cmd.Use)
	assert.True(t, cmd.HasExample())
	assert.NotNil(t, cmd.RunE)

	assert.NotNil(t, cmd.Flags().Lookup("token"))
	assert.NotNil(t, cmd.Flags().Lookup("url"))
	assert.NotNil(t, cmd.Flags().Lookup("channel"))
}

func TestParseLine(t *testing.T) {
	tests := []struct {
		line string
		want op
	}{
		{"hello there", op{kind: opSay, text: "hello there"}},
		{"  /join general ", op{kind: opJoin, channel: "general"}},
		{"/leave", op{kind: opLeave}},
		{"/leave random", op{kind: opLeave, channel: "random"}},
		{"/use random", op{kind: opUse, channel: "random"}},
		{"/typing on", op{kind: opTyping, on: true}},
		{"/typing off", op{kind: opTyping}},
		{"/react m-1 :+1:", op{kind: opReact, text: "m-1", emoji: ":+1:"}},
		{"/unreact m-1 :+1:", op{kind: opUnreact, text: "m-1", emoji: ":+1:"}},
		{"/quit", op{kind: opQuit}},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := parseLine(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseLineErrors(t *testing.T) {
	_, err := parseLine("   ")
	assert.ErrorIs(t, err, errEmpty)

	for _, line := range []string{"/join", "/join a b", "/typing maybe", "/react m-1", "/use", "/nope"} {
		_, err := parseLine(line)
		assert.Error(t, err, line)
	}
}

func TestRunWithoutConnectionReportsDrops(t *testing.T) {
	cfg := config.DefaultRealtimeConfig()
	cfg.URL = "ws://127.0.0.1:1/ws"
	cfg.MaxReconnectAttempts = 1

	var out bytes.Buffer
	c := newChat(&out, nil)
	c.session = session.New(cfg, zerolog.Nop(), c.handlers())
	require.NoError(t, c.session.Start("alice"))
	defer c.session.Stop()

	in := strings.NewReader("hi\n/join general\n/quit\nignored\n")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.run(ctx, in, zerolog.Nop()))

	c.mu.Lock()
	got := out.String()
	c.mu.Unlock()
	assert.Contains(t, got, "no current channel")
	assert.Contains(t, got, "not sent")
}

func TestUnsentChannelsStayPending(t *testing.T) {
	dialer := transporttest.NewFakeDialer()
	dialer.Hold()

	var out bytes.Buffer
	c := newChat(&out, []string{"general", "random"})
	c.session = session.New(config.DefaultRealtimeConfig(), zerolog.Nop(), c.handlers(), transport.WithDialer(dialer))
	require.NoError(t, c.session.Start("alice"))
	defer c.session.Stop()

	// Not open yet: nothing can be sent, so nothing is forgotten.
	c.onConnected()
	assert.Equal(t, []string{"general", "random"}, c.pending())

	dialer.Release()
	require.Eventually(t, func() bool { return len(c.pending()) == 0 }, 5*time.Second, 10*time.Millisecond)

	sock := dialer.Last()
	require.Eventually(t, func() bool { return len(sock.Written()) == 2 }, 5*time.Second, 10*time.Millisecond)
	written := sock.Written()
	assert.Equal(t, envelope.KindSubscribe, written[0].Kind)
	assert.Equal(t, "general", written[0].ChannelID)
	assert.Equal(t, "random", written[1].ChannelID)
	assert.Equal(t, []string{"general", "random"}, c.session.Channels().Subscriptions())
}
