package envelope

// Payload is the kind-specific body of an envelope. Each kind has exactly one
// concrete payload type.
type Payload interface {
	Kind() Kind
}

// ChatMessage is the payload of a message frame.
type ChatMessage struct {
	ID       string   `json:"id,omitempty"`
	Content  string   `json:"content"`
	Type     string   `json:"type,omitempty"` // text, image, file or system
	ReplyTo  string   `json:"replyTo,omitempty"`
	Mentions []string `json:"mentions,omitempty"`
	UserName string   `json:"userName,omitempty"`
}

func (ChatMessage) Kind() Kind { return KindMessage }

// Typing is the payload of a typing frame.
type Typing struct {
	ChannelID string `json:"channelId"`
	UserID    string `json:"userId,omitempty"`
	UserName  string `json:"userName,omitempty"`
	IsTyping  bool   `json:"isTyping"`
}

func (Typing) Kind() Kind { return KindTyping }

// Presence is the body shared by user_joined and user_left frames.
type Presence struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName,omitempty"`
}

// Joined is the payload of a user_joined frame.
type Joined Presence

func (Joined) Kind() Kind { return KindUserJoined }

// Left is the payload of a user_left frame.
type Left Presence

func (Left) Kind() Kind { return KindUserLeft }

// ChannelUpdate is the payload of a channel_update frame. Changes values pass
// through JSON, so numbers decode as float64 and nested objects as
// map[string]any.
type ChannelUpdate struct {
	ChannelID   string         `json:"channelId"`
	Name        string         `json:"name,omitempty"`
	Description string         `json:"description,omitempty"`
	MemberCount int            `json:"memberCount,omitempty"`
	Changes     map[string]any `json:"changes,omitempty"`
}

func (ChannelUpdate) Kind() Kind { return KindChannelUpdate }

// Reaction is the payload of a reaction frame.
type Reaction struct {
	MessageID string `json:"messageId"`
	Emoji     string `json:"emoji"`
	UserID    string `json:"userId,omitempty"`
	Removed   bool   `json:"removed,omitempty"`
}

func (Reaction) Kind() Kind { return KindReaction }

// Subscription is the body shared by subscribe and unsubscribe frames.
type Subscription struct {
	ChannelID string `json:"channelId"`
}

// Subscribe is the payload of a subscribe frame.
type Subscribe Subscription

func (Subscribe) Kind() Kind { return KindSubscribe }

// Unsubscribe is the payload of an unsubscribe frame.
type Unsubscribe Subscription

func (Unsubscribe) Kind() Kind { return KindUnsubscribe }

// Ping is the empty payload of a ping frame.
type Ping struct{}

func (Ping) Kind() Kind { return KindPing }

// Pong is the empty payload of a pong frame.
type Pong struct{}

func (Pong) Kind() Kind { return KindPong }

func emptyPayload(k Kind) Payload {
	switch k {
	case KindMessage:
		return ChatMessage{}
	case KindTyping:
		return Typing{}
	case KindUserJoined:
		return Joined{}
	case KindUserLeft:
		return Left{}
	case KindChannelUpdate:
		return ChannelUpdate{}
	case KindReaction:
		return Reaction{}
	case KindSubscribe:
		return Subscribe{}
	case KindUnsubscribe:
		return Unsubscribe{}
	case KindPing:
		return Ping{}
	case KindPong:
		return Pong{}
	}
	return nil
}
