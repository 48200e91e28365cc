package netproto

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dastari/sidereal-v3/internal/game"
)

func TestEnvelopeCodecRoundTrip(t *testing.T) {
	env := Envelope{
		ProtocolVersion: ProtocolVersion,
		Channel:         ChannelInput,
		Kind:            KindClientInput,
		Seq:             42,
		Tick:            900,
		Payload:         json.RawMessage(`{"player_entity_id":"player:abc"}`),
	}

	data, err := EncodeEnvelope(env)
	require.NoError(t, err)

	decoded, err := DecodeEnvelope(data)
	require.NoError(t, err)
	assert.Equal(t, env.Channel, decoded.Channel)
	assert.Equal(t, env.Kind, decoded.Kind)
	assert.Equal(t, env.Seq, decoded.Seq)
	assert.Equal(t, env.Tick, decoded.Tick)
}

func TestDecodeEnvelope_RejectsVersionMismatch(t *testing.T) {
	env := Envelope{ProtocolVersion: 99, Channel: ChannelState, Kind: KindReplicationState}
	data, err := EncodeEnvelope(env)
	require.NoError(t, err)

	_, err = DecodeEnvelope(data)
	require.Error(t, err)
}

func TestDecodeEnvelope_RejectsMalformed(t *testing.T) {
	_, err := DecodeEnvelope([]byte("{not json"))
	require.Error(t, err)
}

func TestInputMessageFromAxes(t *testing.T) {
	tests := []struct {
		name   string
		thrust float64
		turn   float64
		brake  bool
		want   []game.EntityAction
	}{
		{"forward left", 1, 1, false, []game.EntityAction{game.ActionThrustForward, game.ActionYawLeft}},
		{"reverse right", -1, -1, false, []game.EntityAction{game.ActionThrustReverse, game.ActionYawRight}},
		{"neutral", 0, 0, false, []game.EntityAction{game.ActionThrustNeutral, game.ActionYawNeutral}},
		{"brake wins over thrust", 1, 0, true, []game.EntityAction{game.ActionBrake, game.ActionYawNeutral}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := InputMessageFromAxes("player:abc", 7, tt.thrust, tt.turn, tt.brake)
			assert.Equal(t, tt.want, msg.Actions)
			assert.Equal(t, uint64(7), msg.Tick)
			assert.Equal(t, "player:abc", msg.PlayerEntityID)
		})
	}
}

func TestStateMessageWorldRoundTrip(t *testing.T) {
	world := game.WorldStateDelta{
		Updates: []game.WorldDeltaEntity{
			{
				EntityID: "ship:1",
				Labels:   []string{"Entity", "Ship"},
				Properties: map[string]json.RawMessage{
					"position_m": game.MustRaw(game.Vec3{X: 1, Y: 2}),
				},
			},
		},
	}

	msg, err := StateMessageFromWorld(33, world)
	require.NoError(t, err)
	assert.Equal(t, uint64(33), msg.Tick)

	decoded, err := msg.DecodeWorld()
	require.NoError(t, err)
	require.Len(t, decoded.Updates, 1)
	assert.Equal(t, "ship:1", decoded.Updates[0].EntityID)
	pos, ok := decoded.Updates[0].PositionProperty()
	require.True(t, ok)
	assert.Equal(t, game.Vec3{X: 1, Y: 2}, pos)
}

func TestDecodeWorld_Malformed(t *testing.T) {
	msg := ReplicationStateMessage{Tick: 1, WorldJSON: []byte("{bad")}
	_, err := msg.DecodeWorld()
	require.Error(t, err)
}
