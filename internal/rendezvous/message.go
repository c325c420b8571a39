package rendezvous

import "github.com/Acon1tum/quanby-healthcare-v2-sub000/internal/domain"

// Message kinds relayed verbatim by the rendezvous server.
const (
	typeJoin       = "join"
	typeJoinAck    = "join-ack"
	typeLeave      = "leave"
	typeOffer      = "offer"
	typeAnswer     = "answer"
	typeCandidate  = "ice-candidate"
	typePeerJoined = "peer-joined"
	typePeerLeft   = "peer-left"
)

// message is the generic wire envelope for relay traffic.
type message struct {
	Type             string                      `json:"type"`
	RoomID           string                      `json:"roomId,omitempty"`
	Role             domain.Role                 `json:"role,omitempty"`
	SDP              *domain.SDPPayload          `json:"sdp,omitempty"`
	Candidate        *domain.ICECandidatePayload `json:"candidate,omitempty"`
	OK               *bool                       `json:"ok,omitempty"`
	ParticipantCount int                         `json:"participantCount,omitempty"`
	Error            string                      `json:"error,omitempty"`
	SocketID         string                      `json:"socketId,omitempty"`
}
