// Package envelope defines the wire contract for every frame exchanged over
// the realtime socket: one JSON text frame carries exactly one Envelope.
package envelope

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Kind identifies the frame type.
type Kind string

const (
	KindMessage       Kind = "message"
	KindTyping        Kind = "typing"
	KindUserJoined    Kind = "user_joined"
	KindUserLeft      Kind = "user_left"
	KindChannelUpdate Kind = "channel_update"
	KindReaction      Kind = "reaction"
	KindSubscribe     Kind = "subscribe"
	KindUnsubscribe   Kind = "unsubscribe"
	KindPing          Kind = "ping"
	KindPong          Kind = "pong"
)

// Kinds lists every supported kind.
var Kinds = []Kind{
	KindMessage, KindTyping, KindUserJoined, KindUserLeft, KindChannelUpdate,
	KindReaction, KindSubscribe, KindUnsubscribe, KindPing, KindPong,
}

// Valid reports whether k is one of the supported kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindMessage, KindTyping, KindUserJoined, KindUserLeft, KindChannelUpdate,
		KindReaction, KindSubscribe, KindUnsubscribe, KindPing, KindPong:
		return true
	}
	return false
}

var (
	// ErrMalformed is returned when a frame is not a valid envelope.
	ErrMalformed = errors.New("malformed envelope")
	// ErrUnknownKind is returned when a frame carries an unsupported type.
	ErrUnknownKind = errors.New("unknown envelope kind")
	// ErrPayloadMismatch is returned when the payload does not belong to the envelope kind.
	ErrPayloadMismatch = errors.New("payload does not match envelope kind")
)

// Envelope is one unit exchanged over the socket.
type Envelope struct {
	Kind      Kind
	Payload   Payload
	SentAt    time.Time
	SenderID  string
	ChannelID string
}

// wireEnvelope is the JSON shape on the socket.
type wireEnvelope struct {
	Type      Kind            `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
	SenderID  string          `json:"senderId,omitempty"`
	ChannelID string          `json:"channelId,omitempty"`
}

// New builds an envelope whose kind is taken from the payload.
func New(p Payload, channelID string) Envelope {
	return Envelope{Kind: p.Kind(), Payload: p, ChannelID: channelID}
}

// Encode serializes an envelope into a text frame.
func Encode(e Envelope) ([]byte, error) {
	if !e.Kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, e.Kind)
	}
	p := e.Payload
	if p == nil {
		p = emptyPayload(e.Kind)
	}
	if p.Kind() != e.Kind {
		return nil, fmt.Errorf("%w: %s carries %T", ErrPayloadMismatch, e.Kind, p)
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", e.Kind, err)
	}
	w := wireEnvelope{
		Type:      e.Kind,
		Data:      data,
		SenderID:  e.SenderID,
		ChannelID: e.ChannelID,
	}
	if !e.SentAt.IsZero() {
		w.Timestamp = e.SentAt.UnixMilli()
	}
	return json.Marshal(w)
}

// Decode parses a text frame. It never panics; any failure is reported as
// ErrMalformed or ErrUnknownKind.
func Decode(data []byte) (Envelope, error) {
	var w wireEnvelope
	if err := json.Unmarshal(data, &w); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if w.Type == "" {
		return Envelope{}, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	if !w.Type.Valid() {
		return Envelope{}, fmt.Errorf("%w: %q", ErrUnknownKind, w.Type)
	}

	p, err := decodePayload(w.Type, w.Data)
	if err != nil {
		return Envelope{}, err
	}

	e := Envelope{
		Kind:      w.Type,
		Payload:   p,
		SenderID:  w.SenderID,
		ChannelID: w.ChannelID,
	}
	if w.Timestamp != 0 {
		e.SentAt = time.UnixMilli(w.Timestamp)
	}
	return e, nil
}

// MarshalJSON lets an Envelope be written with json-aware connections.
func (e Envelope) MarshalJSON() ([]byte, error) {
	return Encode(e)
}

// UnmarshalJSON decodes via Decode.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	dec, err := Decode(data)
	if err != nil {
		return err
	}
	*e = dec
	return nil
}

func decodePayload(k Kind, data json.RawMessage) (Payload, error) {
	p := emptyPayload(k)
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return p, nil
	}
	if trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: %s data must be an object", ErrMalformed, k)
	}

	switch k {
	case KindMessage:
		return decodeInto[ChatMessage](k, trimmed)
	case KindTyping:
		return decodeInto[Typing](k, trimmed)
	case KindUserJoined:
		return decodeInto[Joined](k, trimmed)
	case KindUserLeft:
		return decodeInto[Left](k, trimmed)
	case KindChannelUpdate:
		return decodeInto[ChannelUpdate](k, trimmed)
	case KindReaction:
		return decodeInto[Reaction](k, trimmed)
	case KindSubscribe:
		return decodeInto[Subscribe](k, trimmed)
	case KindUnsubscribe:
		return decodeInto[Unsubscribe](k, trimmed)
	case KindPing:
		return decodeInto[Ping](k, trimmed)
	case KindPong:
		return decodeInto[Pong](k, trimmed)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, k)
}

func decodeInto[P Payload](k Kind, data []byte) (Payload, error) {
	var v P
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, wrapPayloadErr(k, err)
	}
	return v, nil
}

func wrapPayloadErr(k Kind, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s data: %v", ErrMalformed, k, err)
}
