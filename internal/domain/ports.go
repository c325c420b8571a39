package domain

import (
	"context"

	"github.com/pion/webrtc/v4"
)

// TicketFetcher retrieves signaling credentials from the backend.
type TicketFetcher interface {
	FetchTicket(ctx context.Context, authToken, consultationID string) (*SessionTicket, error)
}

// Rendezvous manages the persistent connection to the relay server and
// the room-scoped signaling exchange. Send* methods are fire-and-forget.
type Rendezvous interface {
	Connect(ctx context.Context) error
	JoinRoom(ctx context.Context, roomID string, role Role) (JoinResult, error)
	LeaveRoom(roomID string)
	SendOffer(roomID string, sdp SDPPayload)
	SendAnswer(roomID string, sdp SDPPayload)
	SendCandidate(roomID string, candidate ICECandidatePayload)
	Close()
}

// RendezvousHandler receives relay events. Callbacks run on the client's
// read loop; implementations must not block.
type RendezvousHandler interface {
	OnConnected()
	OnDisconnected(reason error)
	OnPeerJoined(peer PeerInfo)
	OnOffer(sdp SDPPayload)
	OnAnswer(sdp SDPPayload)
	OnCandidate(candidate ICECandidatePayload)
	OnPeerLeft()
}

// RemoteStream is the remote party's media as delivered by one peer
// session. It is replaced wholesale on every track arrival, never
// patched in place.
type RemoteStream struct {
	ID    string
	Audio *webrtc.TrackRemote
	Video *webrtc.TrackRemote
}

// AppChannel is the transport surface of one data channel instance.
type AppChannel interface {
	Label() string
	Ready() bool
	SendText(data string) error
	OnOpen(fn func())
	OnMessage(fn func(data []byte))
	OnClose(fn func())
	Close() error
}

// MediaSource owns the local camera and microphone tracks.
type MediaSource interface {
	Acquire(ctx context.Context) error
	Tracks() []webrtc.TrackLocal
	RegisterCodecs(engine *webrtc.MediaEngine) error
	Release()
}

// Negotiator drives one peer session from creation through connection,
// renegotiation, and teardown. A Negotiator is rebuilt, never reused,
// after a hard failure or an explicit leave.
type Negotiator interface {
	Rebuild() error
	AttachMedia(source MediaSource) error
	SetVideoEnabled(on bool) error
	CreateDataChannel(label string) (AppChannel, error)
	CreateOffer(iceRestart bool) (SDPPayload, error)
	HandleRemoteOffer(offer SDPPayload) (SDPPayload, error)
	HandleRemoteAnswer(answer SDPPayload) error
	AddRemoteCandidate(candidate ICECandidatePayload) error
	State() ConnectionState
	RemoteStream() *RemoteStream
	OnCandidate(send func(ICECandidatePayload))
	OnStateChange(fn func(ConnectionState))
	OnRemoteStream(fn func(*RemoteStream))
	OnDataChannel(fn func(AppChannel))
	Close() error
}
