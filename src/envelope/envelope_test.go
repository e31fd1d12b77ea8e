package envelope

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePayloads() map[Kind]Payload {
	return map[Kind]Payload{
		KindMessage: ChatMessage{
			ID:       "m-1",
			Content:  "hello",
			Type:     "text",
			ReplyTo:  "m-0",
			Mentions: []string{"u-2"},
			UserName: "alice",
		},
		KindTyping:     Typing{ChannelID: "general", UserID: "u-1", UserName: "alice", IsTyping: true},
		KindUserJoined: Joined{UserID: "u-1", UserName: "alice"},
		KindUserLeft:   Left{UserID: "u-1", UserName: "alice"},
		KindChannelUpdate: ChannelUpdate{
			ChannelID:   "general",
			Name:        "General",
			Description: "everything",
			MemberCount: 3,
			Changes:     map[string]any{"name": "General", "memberCount": float64(3)},
		},
		KindReaction:    Reaction{MessageID: "m-1", Emoji: "+1", UserID: "u-1", Removed: true},
		KindSubscribe:   Subscribe{ChannelID: "general"},
		KindUnsubscribe: Unsubscribe{ChannelID: "general"},
		KindPing:        Ping{},
		KindPong:        Pong{},
	}
}

func TestRoundTripEveryKind(t *testing.T) {
	payloads := samplePayloads()
	require.Len(t, payloads, len(Kinds))

	sentAt := time.UnixMilli(1_700_000_000_123)
	for _, k := range Kinds {
		t.Run(string(k), func(t *testing.T) {
			in := Envelope{
				Kind:      k,
				Payload:   payloads[k],
				SentAt:    sentAt,
				SenderID:  "u-1",
				ChannelID: "general",
			}
			data, err := Encode(in)
			require.NoError(t, err)

			out, err := Decode(data)
			require.NoError(t, err)
			assert.Equal(t, in, out)
		})
	}
}

func TestRoundTripSparsePayloads(t *testing.T) {
	cases := []Envelope{
		{Kind: KindUserLeft, Payload: Left{UserID: "u"}},
		{Kind: KindUnsubscribe, Payload: Unsubscribe{ChannelID: "c"}},
		{Kind: KindPong, Payload: Pong{}},
		{Kind: KindChannelUpdate, Payload: ChannelUpdate{ChannelID: "c"}},
	}
	for _, in := range cases {
		t.Run(string(in.Kind), func(t *testing.T) {
			data, err := Encode(in)
			require.NoError(t, err)
			out, err := Decode(data)
			require.NoError(t, err)
			assert.Equal(t, in, out)
		})
	}
}

func TestChangesAreJSONNormalized(t *testing.T) {
	in := New(ChannelUpdate{ChannelID: "c", Changes: map[string]any{"memberCount": 3}}, "c")
	data, err := Encode(in)
	require.NoError(t, err)

	out, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, float64(3), out.Payload.(ChannelUpdate).Changes["memberCount"])
}

func TestEncodeUsesWireKeys(t *testing.T) {
	e := New(Subscribe{ChannelID: "general"}, "general")
	e.SentAt = time.UnixMilli(42)

	data, err := Encode(e)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "subscribe", raw["type"])
	assert.Equal(t, float64(42), raw["timestamp"])
	assert.Equal(t, "general", raw["channelId"])
	assert.Equal(t, map[string]any{"channelId": "general"}, raw["data"])
	_, hasSender := raw["senderId"]
	assert.False(t, hasSender)
}

func TestEncodeRejectsMismatchedPayload(t *testing.T) {
	_, err := Encode(Envelope{Kind: KindTyping, Payload: Ping{}})
	assert.ErrorIs(t, err, ErrPayloadMismatch)

	_, err = Encode(Envelope{Kind: KindUserLeft, Payload: Joined{UserID: "u"}})
	assert.ErrorIs(t, err, ErrPayloadMismatch)

	_, err = Encode(Envelope{Kind: KindPong, Payload: Ping{}})
	assert.ErrorIs(t, err, ErrPayloadMismatch)

	_, err = Encode(Envelope{Kind: "bogus"})
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestEncodeNilPayloadDefaults(t *testing.T) {
	data, err := Encode(Envelope{Kind: KindPing})
	require.NoError(t, err)

	out, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, KindPing, out.Kind)
	assert.Equal(t, Ping{}, out.Payload)
	assert.True(t, out.SentAt.IsZero())
}

func TestDecodeRejectsBadFrames(t *testing.T) {
	cases := map[string]struct {
		frame string
		want  error
	}{
		"not json":          {`{"type":`, ErrMalformed},
		"array":             {`[1,2,3]`, ErrMalformed},
		"missing type":      {`{"data":{}}`, ErrMalformed},
		"unknown kind":      {`{"type":"shout","data":{}}`, ErrUnknownKind},
		"data not object":   {`{"type":"message","data":"hi"}`, ErrMalformed},
		"wrong field types": {`{"type":"typing","data":{"isTyping":"yes"}}`, ErrMalformed},
		"bad timestamp":     {`{"type":"ping","timestamp":"now"}`, ErrMalformed},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(tc.frame))
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestDecodeToleratesMissingData(t *testing.T) {
	out, err := Decode([]byte(`{"type":"pong","timestamp":5}`))
	require.NoError(t, err)
	assert.Equal(t, Pong{}, out.Payload)
	assert.Equal(t, int64(5), out.SentAt.UnixMilli())
}

func TestEnvelopeJSONInterfaces(t *testing.T) {
	in := New(Typing{ChannelID: "c", IsTyping: true}, "c")
	data, err := json.Marshal(in)
	require.NoError(t, err)

	var out Envelope
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in, out)

	assert.Error(t, json.Unmarshal([]byte(`{"type":"nope"}`), &out))
}

func TestStamperNeverGoesBackwards(t *testing.T) {
	now := time.UnixMilli(10_000)
	s := NewStamper(func() time.Time { return now })

	first := s.Next()
	now = now.Add(-5 * time.Second)
	second := s.Next()
	now = now.Add(10 * time.Second)
	third := s.Next()

	assert.Equal(t, first, second)
	assert.True(t, third.After(second))
}
