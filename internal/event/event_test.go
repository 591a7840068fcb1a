package event

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWireKeepsPayloadBytes(t *testing.T) {
	evt := Event{
		Name:    NameMessageNew,
		Topics:  []string{SessionTopic(12)},
		Payload: map[string]any{"session_id": 12, "message": map[string]any{"id": 99, "content": "ok"}},
	}
	data, err := Marshal(evt)
	require.NoError(t, err)

	decoded, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, NameMessageNew, decoded.Name)
	assert.Equal(t, []string{"chat:session:12"}, decoded.Topics)

	raw, ok := decoded.Payload.(json.RawMessage)
	require.True(t, ok)
	assert.JSONEq(t, `{"session_id":12,"message":{"id":99,"content":"ok"}}`, string(raw))
}

func TestWireKeepsMembership(t *testing.T) {
	evt := Event{
		Name:    NameSessionNurseRemoved,
		Topics:  []string{UserTopic(4)},
		Payload: map[string]any{"session_id": 2},
		Membership: []Membership{
			Leave(4, SessionTopic(2)),
			Join(5, SessionTopic(2), NamespaceChat),
		},
	}
	data, err := Marshal(evt)
	require.NoError(t, err)

	decoded, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, evt.Membership, decoded.Membership)
}

func TestUnmarshalRejectsIncomplete(t *testing.T) {
	_, err := Unmarshal([]byte(`{"name":"message.new","topics":[]}`))
	assert.Error(t, err)
	_, err = Unmarshal([]byte(`not json`))
	assert.Error(t, err)
}

func TestTopics(t *testing.T) {
	assert.Equal(t, "user:3", UserTopic(3))
	assert.Equal(t, "discussion:room:8", RoomTopic(8))
}
