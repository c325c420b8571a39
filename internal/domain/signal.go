package domain

// SDPPayload is the JSON structure for session description offer/answer messages.
type SDPPayload struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// ICECandidatePayload is the JSON structure for ICE candidate messages.
type ICECandidatePayload struct {
	Candidate     string `json:"candidate"`
	SDPMid        string `json:"sdpMid"`
	SDPMLineIndex int    `json:"sdpMLineIndex"`
}

// Error strings the relay carries in a failed join acknowledgment.
const (
	RelayErrRoomFull     = "room-full"
	RelayErrRoomNotFound = "room-not-found"
)

// JoinResult is the relay's acknowledgment of a join request.
type JoinResult struct {
	OK               bool   `json:"ok"`
	Role             Role   `json:"role,omitempty"`
	ParticipantCount int    `json:"participantCount,omitempty"`
	Error            string `json:"error,omitempty"`
}

// Err maps a failed join acknowledgment to an error kind. Returns nil
// when the join succeeded.
func (r JoinResult) Err() error {
	if r.OK {
		return nil
	}
	switch r.Error {
	case RelayErrRoomFull:
		return ErrRoomFull
	case RelayErrRoomNotFound:
		return ErrRoomNotFound
	default:
		return ErrNetwork
	}
}

// PeerInfo describes the other occupant of a room, as reported by the relay.
type PeerInfo struct {
	SocketID string `json:"socketId"`
	Role     Role   `json:"role"`
}
