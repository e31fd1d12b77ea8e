package connect

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/orchestra-mcp/chatsocket/cmd/chatsocket/internal"
	"github.com/orchestra-mcp/chatsocket/src/envelope"
	"github.com/orchestra-mcp/chatsocket/src/session"
	"github.com/orchestra-mcp/chatsocket/src/transport"
)

func NewConnectCommand() *cobra.Command {
	var (
		tok      string
		url      string
		channels []string
	)

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Join channels on a relay and chat from the terminal",
		Args:  cobra.NoArgs,
		Example: `  chatsocket connect --token alice --channel general
  chatsocket connect --url ws://relay.local/ws --token "$(chatsocket token bob)"`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := internal.Setup()
			if err != nil {
				return err
			}
			if url != "" {
				cfg.Realtime.URL = url
			}
			if tok == "" {
				tok = cfg.Realtime.Credential
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			c := newChat(cmd.OutOrStdout(), channels)
			s := session.New(&cfg.Realtime, logger, c.handlers())
			c.session = s
			if err := s.Start(tok); err != nil {
				return err
			}
			defer s.Stop()

			return c.run(ctx, cmd.InOrStdin(), logger)
		},
	}

	cmd.Flags().StringVar(&tok, "token", "", "Credential sent as the token query parameter (overrides realtime.credential)")
	cmd.Flags().StringVar(&url, "url", "", "Relay endpoint (overrides realtime.url)")
	cmd.Flags().StringArrayVar(&channels, "channel", nil, "Channel to join on connect (repeatable)")

	return cmd
}

// chat renders inbound frames and applies terminal input to a session.
type chat struct {
	out     io.Writer
	session *session.Session

	mu      sync.Mutex
	current string
	initial []string
}

func newChat(out io.Writer, initial []string) *chat {
	c := &chat{out: out, initial: initial}
	if len(initial) > 0 {
		c.current = initial[0]
	}
	return c
}

func (c *chat) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format+"\n", args...)
}

func (c *chat) handlers() session.Handlers {
	return session.Handlers{
		OnConnected: c.onConnected,
		OnDisconnected: func(ev transport.Disconnected) {
			if ev.Retrying {
				c.printf("* connection lost (%d %s), retrying", ev.Code, ev.Reason)
				return
			}
			c.printf("* disconnected (%d %s)", ev.Code, ev.Reason)
		},
		OnError: func(err error) {
			if errors.Is(err, transport.ErrReconnectExhausted) {
				c.printf("* giving up: %v", err)
			}
		},
		OnMessage: func(env envelope.Envelope, msg envelope.ChatMessage) {
			name := msg.UserName
			if name == "" {
				name = env.SenderID
			}
			c.printf("[%s] %s: %s (%s)", env.ChannelID, name, msg.Content, msg.ID)
		},
		OnTyping: func(env envelope.Envelope, t envelope.Typing) {
			if t.IsTyping {
				c.printf("[%s] %s is typing", env.ChannelID, firstNonEmpty(t.UserName, t.UserID, env.SenderID))
			}
		},
		OnUserJoined: func(env envelope.Envelope, who envelope.Joined) {
			c.printf("[%s] %s joined", env.ChannelID, firstNonEmpty(who.UserName, who.UserID))
		},
		OnUserLeft: func(env envelope.Envelope, who envelope.Left) {
			c.printf("[%s] %s left", env.ChannelID, firstNonEmpty(who.UserName, who.UserID))
		},
		OnReaction: func(env envelope.Envelope, r envelope.Reaction) {
			verb := "reacted"
			if r.Removed {
				verb = "removed"
			}
			c.printf("[%s] %s %s %s on %s", env.ChannelID, firstNonEmpty(r.UserID, env.SenderID), verb, r.Emoji, r.MessageID)
		},
		OnChannelUpdate: func(env envelope.Envelope, u envelope.ChannelUpdate) {
			c.printf("[%s] channel updated: %s", firstNonEmpty(u.ChannelID, env.ChannelID), u.Name)
		},
	}
}

// onConnected joins the pending --channel list and restores the remembered
// subscriptions after a reconnect. A --channel whose subscribe could not be
// sent stays pending for the next open.
func (c *chat) onConnected() {
	f := c.session.Channels()
	if f == nil {
		return
	}
	c.mu.Lock()
	pending := c.initial
	c.initial = nil
	c.mu.Unlock()

	n := f.ResubscribeAll()
	var missed []string
	for _, ch := range pending {
		if f.SubscribeToChannel(ch) {
			n++
			continue
		}
		missed = append(missed, ch)
	}
	if len(missed) > 0 {
		c.mu.Lock()
		c.initial = append(missed, c.initial...)
		c.mu.Unlock()
	}
	c.printf("* connected, %d channel(s) joined", n)
}

func (c *chat) pending() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.initial...)
}

func (c *chat) run(ctx context.Context, in io.Reader, logger zerolog.Logger) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := sc.Err(); err != nil {
			logger.Warn().Err(err).Msg("input closed")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			o, err := parseLine(line)
			if errors.Is(err, errEmpty) {
				continue
			}
			if err != nil {
				c.printf("! %v", err)
				continue
			}
			if o.kind == opQuit {
				return nil
			}
			c.apply(o)
		}
	}
}

func (c *chat) apply(o op) {
	f := c.session.Channels()
	if f == nil {
		c.printf("! not started")
		return
	}

	c.mu.Lock()
	current := c.current
	c.mu.Unlock()

	if o.kind == opUse {
		c.setCurrent(o.channel)
		return
	}
	if o.kind == opLeave && o.channel == "" {
		o.channel = current
	}
	if (o.kind == opLeave && o.channel == "") || (o.kind != opJoin && o.kind != opLeave && current == "") {
		c.printf("! no current channel, /join one first")
		return
	}

	var ok bool
	switch o.kind {
	case opSay:
		_, ok = f.SendMessage(current, o.text)
	case opJoin:
		if ok = f.SubscribeToChannel(o.channel); ok {
			c.setCurrent(o.channel)
		}
	case opLeave:
		ok = f.UnsubscribeFromChannel(o.channel)
	case opTyping:
		ok = f.SendTyping(current, o.on)
	case opReact, opUnreact:
		ok = f.SendReaction(current, o.text, o.emoji, o.kind == opUnreact)
	}
	if !ok {
		c.printf("! not sent, connection is not open")
	}
}

func (c *chat) setCurrent(channel string) {
	c.mu.Lock()
	c.current = channel
	c.mu.Unlock()
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
