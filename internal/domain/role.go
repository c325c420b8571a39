package domain

// Role identifies which side of a consultation this client is.
type Role string

const (
	RoleDoctor  Role = "doctor"
	RolePatient Role = "patient"
)

// Valid reports whether r is one of the two consultation roles.
func (r Role) Valid() bool {
	return r == RoleDoctor || r == RolePatient
}

// Other returns the opposite role.
func (r Role) Other() Role {
	if r == RoleDoctor {
		return RolePatient
	}
	return RoleDoctor
}

// Initiator reports whether this role normally sends the offer and
// creates the data channel. The doctor creates the room, joins first,
// and initiates when the relay reports the patient joining; the patient
// answers. In practice either side initiates on a peer-joined event,
// which the relay only delivers to the occupant already in the room.
func (r Role) Initiator() bool {
	return r == RoleDoctor
}

// ConnectionState is the negotiator's view of one peer session.
type ConnectionState int

const (
	StateIdle ConnectionState = iota
	StateNegotiating
	StateConnected
	StateFailed
	StateClosed
)

func (s ConnectionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateNegotiating:
		return "negotiating"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
