// Package netproto defines the replication wire protocol and the datagram
// transport carrying it: three logical channels over UDP, JSON envelopes,
// and the control/input/state message set shared by server and client.
package netproto

import (
	"encoding/json"
	"fmt"

	"github.com/Dastari/sidereal-v3/internal/game"
)

// ProtocolVersion gates envelope decoding; mismatched datagrams are dropped
const ProtocolVersion uint16 = 1

// Channel identifies one of the three logical channels
type Channel string

const (
	// ChannelControl is reliable and unordered; one-shot auth per session
	ChannelControl Channel = "control"
	// ChannelInput is unreliable, unordered, prioritized; per-tick intent
	ChannelInput Channel = "input"
	// ChannelState is unreliable, unordered, prioritized; per-tick deltas
	ChannelState Channel = "state"
)

// Message kinds carried inside envelopes
const (
	KindControlAuth      = "control_auth"
	KindClientInput      = "client_input"
	KindReplicationState = "replication_state"
	KindAck              = "ack"
)

// Envelope frames every datagram on the replication socket
type Envelope struct {
	ProtocolVersion uint16          `json:"protocol_version"`
	Channel         Channel         `json:"channel"`
	Kind            string          `json:"kind"`
	Seq             uint64          `json:"seq"`
	Tick            uint64          `json:"tick"`
	NeedsAck        bool            `json:"needs_ack,omitempty"`
	Payload         json.RawMessage `json:"payload,omitempty"`
}

// EncodeEnvelope serializes an envelope for the wire
func EncodeEnvelope(env Envelope) ([]byte, error) {
	return json.Marshal(env)
}

// DecodeEnvelope parses a datagram into an envelope, rejecting version
// mismatches. Failures are transport drops: the caller logs and discards.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.ProtocolVersion != ProtocolVersion {
		return Envelope{}, fmt.Errorf("protocol version %d, want %d", env.ProtocolVersion, ProtocolVersion)
	}
	return env, nil
}

// ControlAuthMessage is the one-shot auth handshake from client to server
type ControlAuthMessage struct {
	PlayerEntityID string `json:"player_entity_id"`
	AccessToken    string `json:"access_token"`
}

// ClientInputMessage carries one tick of intent from client to server
type ClientInputMessage struct {
	PlayerEntityID string              `json:"player_entity_id"`
	Tick           uint64              `json:"tick"`
	Actions        []game.EntityAction `json:"actions"`
}

// InputMessageFromAxes builds an input frame from thrust/turn axis values
// and a brake flag, mirroring how the client samples its input device.
func InputMessageFromAxes(playerEntityID string, tick uint64, thrust, turn float64, brake bool) ClientInputMessage {
	var actions []game.EntityAction
	switch {
	case brake:
		actions = append(actions, game.ActionBrake)
	case thrust > 0:
		actions = append(actions, game.ActionThrustForward)
	case thrust < 0:
		actions = append(actions, game.ActionThrustReverse)
	default:
		actions = append(actions, game.ActionThrustNeutral)
	}

	switch {
	case turn > 0:
		actions = append(actions, game.ActionYawLeft)
	case turn < 0:
		actions = append(actions, game.ActionYawRight)
	default:
		actions = append(actions, game.ActionYawNeutral)
	}

	return ClientInputMessage{
		PlayerEntityID: playerEntityID,
		Tick:           tick,
		Actions:        actions,
	}
}

// ReplicationStateMessage carries one tick's filtered world delta to a client
type ReplicationStateMessage struct {
	Tick      uint64 `json:"tick"`
	WorldJSON []byte `json:"world_json"`
}

// StateMessageFromWorld encodes a world delta into a state frame
func StateMessageFromWorld(tick uint64, world game.WorldStateDelta) (ReplicationStateMessage, error) {
	raw, err := json.Marshal(world)
	if err != nil {
		return ReplicationStateMessage{}, err
	}
	return ReplicationStateMessage{Tick: tick, WorldJSON: raw}, nil
}

// DecodeWorld parses the embedded world delta
func (m ReplicationStateMessage) DecodeWorld() (game.WorldStateDelta, error) {
	var world game.WorldStateDelta
	if err := json.Unmarshal(m.WorldJSON, &world); err != nil {
		return game.WorldStateDelta{}, err
	}
	return world, nil
}

// DecodePayload parses an envelope payload into dst
func DecodePayload(env Envelope, dst interface{}) error {
	if err := json.Unmarshal(env.Payload, dst); err != nil {
		return fmt.Errorf("decode %s payload: %w", env.Kind, err)
	}
	return nil
}
