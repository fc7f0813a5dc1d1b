package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_RequiresType(t *testing.T) {
	_, err := Decode([]byte(`{"payload":{"sessionId":"s1"}}`))
	assert.Error(t, err)

	_, err = Decode([]byte(`not json at all`))
	assert.Error(t, err)

	env, err := Decode([]byte(`{"type":"chat_chunk","payload":{"sessionId":"s1","messageId":"m1","text":"hi"}}`))
	require.NoError(t, err)
	assert.Equal(t, MsgChatChunk, env.Type)
}

func TestDecodePayload_TypedDispatch(t *testing.T) {
	env, err := Decode([]byte(`{"type":"chat_chunk","payload":{"sessionId":"s1","messageId":"m1","text":"Hel","done":false}}`))
	require.NoError(t, err)

	payload, err := DecodePayload(env)
	require.NoError(t, err)
	chunk, ok := payload.(*ChatChunkPayload)
	require.True(t, ok)
	assert.Equal(t, "s1", chunk.SessionID)
	assert.Equal(t, "Hel", chunk.Text)
	assert.False(t, chunk.Done)
}

func TestDecodePayload_UnknownTypeRejected(t *testing.T) {
	_, err := DecodePayload(Envelope{Type: "mystery_event"})
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestDecodePayload_MalformedPayloadRejected(t *testing.T) {
	_, err := DecodePayload(Envelope{
		Type:    MsgToolCallsUpdate,
		Payload: []byte(`{"toolCalls": "not an array"}`),
	})
	assert.Error(t, err)
}

func TestEncode_RoundTrip(t *testing.T) {
	env, err := Encode(MsgChatSend, ChatSendPayload{SessionID: "s1", Text: "hello"})
	require.NoError(t, err)

	var p ChatSendPayload
	require.NoError(t, UnmarshalPayload(env, &p))
	assert.Equal(t, "s1", p.SessionID)
	assert.Equal(t, "hello", p.Text)
}

func TestUnmarshalPayload_EmptyPayloadErrors(t *testing.T) {
	var p ChatSendPayload
	err := UnmarshalPayload(Envelope{Type: MsgChatSend}, &p)
	assert.Error(t, err)
}
