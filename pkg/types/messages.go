// Package types holds the JSON wire protocol spoken between browser peers and
// the relay. Every frame is one flat object with a "type" discriminator.
package types

import "encoding/json"

// Client -> Server
const (
	MsgJoinGame      = "join_game"      // roomId
	MsgSyncMap       = "sync_map"       // roomId, mapState, playersState (host only)
	MsgSubmitActions = "submit_actions" // roomId, actions (client only)
	MsgSyncReplay    = "sync_replay"    // roomId, replayActions (host only)
	MsgTurnComplete  = "turn_complete"  // roomId, newState, battleLog (host only)
)

// Server -> Client
const (
	MsgRoleAssigned     = "role_assigned"     // role
	MsgPlayerJoined     = "player_joined"     // peerId, to host
	MsgClientActions    = "client_actions"    // relayed submit_actions, to host
	MsgTurnUpdate       = "turn_update"       // relayed turn_complete, to client
	MsgRoomFull         = "room_full"         // roomId
	MsgHostDisconnected = "host_disconnected" // roomId
	MsgPlayerLeft       = "player_left"       // peerId, to host
	MsgRoomClosed       = "room_closed"       // roomId, reason
	MsgError            = "error"             // code, error
)

// Error codes carried by MsgError.
const (
	CodeBadJSON       = "bad_json"
	CodeUnknownType   = "unknown_type"
	CodeMissingRoom   = "missing_room_id"
	CodeRoleMismatch  = "role_mismatch"
	CodeNotInRoom     = "not_in_room"
	CodeAlreadyInRoom = "already_in_room"
	CodeJoinPending   = "join_pending"
)

const (
	RoleHost   = "host"
	RoleClient = "client"
)

// ClientMessage is anything a peer sends. Payload fields are opaque to the
// relay and forwarded as-is.
type ClientMessage struct {
	Type          string          `json:"type"`
	RoomID        string          `json:"roomId,omitempty"`
	MapState      json.RawMessage `json:"mapState,omitempty"`
	PlayersState  json.RawMessage `json:"playersState,omitempty"`
	Actions       json.RawMessage `json:"actions,omitempty"`
	ReplayActions json.RawMessage `json:"replayActions,omitempty"`
	NewState      json.RawMessage `json:"newState,omitempty"`
	BattleLog     json.RawMessage `json:"battleLog,omitempty"`
}

// ServerMessage is anything the relay sends to a peer.
type ServerMessage struct {
	Type          string          `json:"type"`
	RoomID        string          `json:"roomId,omitempty"`
	Role          string          `json:"role,omitempty"`
	PeerID        string          `json:"peerId,omitempty"`
	MapState      json.RawMessage `json:"mapState,omitempty"`
	PlayersState  json.RawMessage `json:"playersState,omitempty"`
	Actions       json.RawMessage `json:"actions,omitempty"`
	ReplayActions json.RawMessage `json:"replayActions,omitempty"`
	NewState      json.RawMessage `json:"newState,omitempty"`
	BattleLog     json.RawMessage `json:"battleLog,omitempty"`
	Reason        string          `json:"reason,omitempty"`
	Code          string          `json:"code,omitempty"`
	Error         string          `json:"error,omitempty"`
}

// Forward turns an inbound gameplay message into the frame the other occupant
// receives. Payload fields are copied untouched; only the type is mapped.
func Forward(m ClientMessage) ServerMessage {
	out := ServerMessage{
		Type:          m.Type,
		RoomID:        m.RoomID,
		MapState:      m.MapState,
		PlayersState:  m.PlayersState,
		Actions:       m.Actions,
		ReplayActions: m.ReplayActions,
		NewState:      m.NewState,
		BattleLog:     m.BattleLog,
	}
	switch m.Type {
	case MsgSubmitActions:
		out.Type = MsgClientActions
	case MsgTurnComplete:
		out.Type = MsgTurnUpdate
	}
	return out
}

func ErrorMessage(code, msg string) ServerMessage {
	return ServerMessage{Type: MsgError, Code: code, Error: msg}
}
