package engine

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}

func DerivePhase(s State) Phase {
	switch {
	case s.Host == "":
		return PhaseDestroyed
	case s.Client == "":
		return PhaseHostOnly
	default:
		return PhasePaired
	}
}

// RoleOf reports which slot the session holds, if any.
func RoleOf(s State, sessionID string) (Role, bool) {
	seat, ok := SeatOf(s, sessionID)
	if !ok {
		return "", false
	}
	return seat.Role(), true
}
