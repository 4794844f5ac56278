package engine

// Seat is a room slot. Each variant only emits the kinds its role owns, so
// authorization is a question of what the seat exposes rather than a role
// string compared in every handler.
type Seat interface {
	Role() Role
	Emits(k Kind) bool
}

type HostSeat struct{}

func (HostSeat) Role() Role { return RoleHost }

func (HostSeat) Emits(k Kind) bool {
	switch k {
	case KindMapSync, KindReplaySync, KindTurnResolution:
		return true
	}
	return false
}

type ClientSeat struct{}

func (ClientSeat) Role() Role { return RoleClient }

func (ClientSeat) Emits(k Kind) bool { return k == KindActionSubmission }

func SeatOf(s State, sessionID string) (Seat, bool) {
	switch {
	case sessionID == "" || s.Phase == PhaseDestroyed:
		return nil, false
	case sessionID == s.Host:
		return HostSeat{}, true
	case sessionID == s.Client:
		return ClientSeat{}, true
	}
	return nil, false
}
