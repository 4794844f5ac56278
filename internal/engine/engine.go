package engine

import (
	"errors"
)

var ErrRoomFull = errors.New("room is full")
var ErrRoleMismatch = errors.New("event not permitted for role")
var ErrNotInRoom = errors.New("session is not in room")
var ErrAlreadyInRoom = errors.New("session already in room")
var ErrRoomDestroyed = errors.New("room destroyed")
var ErrUnsupportedCommand = errors.New("unsupported command")

type Role string

const (
	RoleHost   Role = "host"
	RoleClient Role = "client"
)

// Kind is a gameplay event the relay forwards between occupants.
type Kind string

const (
	KindMapSync          Kind = "map_sync"
	KindActionSubmission Kind = "action_submission"
	KindReplaySync       Kind = "replay_sync"
	KindTurnResolution   Kind = "turn_resolution"
)

type Phase string

const (
	PhaseHostOnly  Phase = "host_only"
	PhasePaired    Phase = "paired"
	PhaseDestroyed Phase = "destroyed"
)

// State is one room. Host is never empty while the room exists.
type State struct {
	RoomID string
	Host   string
	Client string
	Phase  Phase
}

type CommandType string

const (
	CmdJoin  CommandType = "Join"
	CmdLeave CommandType = "Leave"
	CmdRelay CommandType = "Relay"
	CmdClose CommandType = "Close"
)

/*
	CmdJoin  -> EvtRoleAssigned(client) -> EvtPeerJoined(host)   | ErrRoomFull
	CmdLeave -> host:   EvtHostDisconnected(client?) -> EvtRoomDestroyed
	            client: EvtPlayerLeft(host)
	            other:  nothing
	CmdRelay -> EvtRelayed(counterpart) | EvtRelayDropped       | ErrNotInRoom, ErrRoleMismatch
	CmdClose -> EvtRoomClosed(each occupant) -> EvtRoomDestroyed
*/

type Command struct {
	Type      CommandType
	SessionID string
	Kind      Kind
	Reason    string
}

type EventType string

const (
	EvtRoleAssigned     EventType = "RoleAssigned"
	EvtPeerJoined       EventType = "PeerJoined"
	EvtRelayed          EventType = "Relayed"
	EvtRelayDropped     EventType = "RelayDropped"
	EvtPlayerLeft       EventType = "PlayerLeft"
	EvtHostDisconnected EventType = "HostDisconnected"
	EvtRoomClosed       EventType = "RoomClosed"
	EvtRoomDestroyed    EventType = "RoomDestroyed"
)

// Event is addressed to a single session (To) unless it describes the room
// itself (EvtRelayDropped, EvtRoomDestroyed).
type Event struct {
	Type   EventType
	To     string
	Role   Role
	PeerID string
	Kind   Kind
	Reason string
}

// Create is step 1 of room assignment: the room did not exist, so the joining
// session becomes its host.
func Create(roomID, sessionID string) ([]Event, State) {
	s := State{RoomID: roomID, Host: sessionID, Phase: PhaseHostOnly}
	return []Event{{Type: EvtRoleAssigned, To: sessionID, Role: RoleHost}}, s
}

func Apply(s State, cmd Command) ([]Event, State, error) {
	if s.Phase == PhaseDestroyed {
		return nil, s, ErrRoomDestroyed
	}

	newState := s

	switch cmd.Type {
	case CmdJoin:
		if cmd.SessionID == s.Host || cmd.SessionID == s.Client {
			return nil, s, ErrAlreadyInRoom
		}
		if s.Client != "" {
			return nil, s, ErrRoomFull
		}

		newState.Client = cmd.SessionID
		newState.Phase = DerivePhase(newState)
		return []Event{
			{Type: EvtRoleAssigned, To: cmd.SessionID, Role: RoleClient},
			{Type: EvtPeerJoined, To: s.Host, PeerID: cmd.SessionID},
		}, newState, nil

	case CmdLeave:
		switch cmd.SessionID {
		case s.Host:
			events := []Event{}
			if s.Client != "" {
				events = append(events, Event{Type: EvtHostDisconnected, To: s.Client})
			}
			events = append(events, Event{Type: EvtRoomDestroyed})
			newState.Client = ""
			newState.Phase = PhaseDestroyed
			return events, newState, nil

		case s.Client:
			newState.Client = ""
			newState.Phase = DerivePhase(newState)
			return []Event{{Type: EvtPlayerLeft, To: s.Host, PeerID: cmd.SessionID}}, newState, nil

		default:
			// Lost a join race or was refused; nothing to undo.
			return nil, s, nil
		}

	case CmdRelay:
		seat, ok := SeatOf(s, cmd.SessionID)
		if !ok {
			return nil, s, ErrNotInRoom
		}
		if !seat.Emits(cmd.Kind) {
			return nil, s, ErrRoleMismatch
		}

		to := counterpart(s, seat.Role())
		if to == "" {
			return []Event{{Type: EvtRelayDropped, Kind: cmd.Kind}}, s, nil
		}
		return []Event{{Type: EvtRelayed, To: to, Kind: cmd.Kind}}, s, nil

	case CmdClose:
		events := []Event{{Type: EvtRoomClosed, To: s.Host, Reason: cmd.Reason}}
		if s.Client != "" {
			events = append(events, Event{Type: EvtRoomClosed, To: s.Client, Reason: cmd.Reason})
		}
		events = append(events, Event{Type: EvtRoomDestroyed})
		newState.Client = ""
		newState.Phase = PhaseDestroyed
		return events, newState, nil

	default:
		return nil, s, ErrUnsupportedCommand
	}
}

func counterpart(s State, r Role) string {
	if r == RoleHost {
		return s.Client
	}
	return s.Host
}
