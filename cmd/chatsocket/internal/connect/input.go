package connect

import (
	"errors"
	"fmt"
	"strings"
)

type opKind int

const (
	opSay opKind = iota
	opJoin
	opLeave
	opTyping
	opReact
	opUnreact
	opUse
	opQuit
)

type op struct {
	kind    opKind
	channel string
	text    string
	emoji   string
	on      bool
}

var errEmpty = errors.New("empty line")

const usage = `/join <channel>  /leave [channel]  /use <channel>
/typing on|off  /react <message-id> <emoji>  /unreact <message-id> <emoji>  /quit`

// parseLine turns one line of input into an op. Plain text is a message to
// the current channel.
func parseLine(line string) (op, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return op{}, errEmpty
	}
	if !strings.HasPrefix(line, "/") {
		return op{kind: opSay, text: line}, nil
	}

	fields := strings.Fields(line)
	args := fields[1:]
	switch fields[0] {
	case "/join":
		if len(args) != 1 {
			return op{}, fmt.Errorf("usage: /join <channel>")
		}
		return op{kind: opJoin, channel: args[0]}, nil
	case "/leave":
		if len(args) > 1 {
			return op{}, fmt.Errorf("usage: /leave [channel]")
		}
		o := op{kind: opLeave}
		if len(args) == 1 {
			o.channel = args[0]
		}
		return o, nil
	case "/use":
		if len(args) != 1 {
			return op{}, fmt.Errorf("usage: /use <channel>")
		}
		return op{kind: opUse, channel: args[0]}, nil
	case "/typing":
		if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
			return op{}, fmt.Errorf("usage: /typing on|off")
		}
		return op{kind: opTyping, on: args[0] == "on"}, nil
	case "/react", "/unreact":
		if len(args) != 2 {
			return op{}, fmt.Errorf("usage: %s <message-id> <emoji>", fields[0])
		}
		kind := opReact
		if fields[0] == "/unreact" {
			kind = opUnreact
		}
		return op{kind: kind, text: args[0], emoji: args[1]}, nil
	case "/quit":
		return op{kind: opQuit}, nil
	}
	return op{}, fmt.Errorf("unknown command %s\n%s", fields[0], usage)
}
