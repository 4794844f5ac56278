package types

import "encoding/json"

// ReplayAction is one entry of a sync_replay list: who acted and what they did.
type ReplayAction struct {
	ActorID string          `json:"actorId"`
	Action  json.RawMessage `json:"action"`
}

// RoomSnapshot is the read-only view of a room served by GET /rooms/{id}.
//
//	phase: "host_only" | "paired"
type RoomSnapshot struct {
	RoomID   string `json:"roomId"`
	HostID   string `json:"hostId"`
	ClientID string `json:"clientId,omitempty"`
	Phase    string `json:"phase"`
}
