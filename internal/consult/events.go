package consult

// EventKind tags entries on the controller's event stream.
type EventKind string

const (
	EventConnected       EventKind = "connected"
	EventDisconnected    EventKind = "disconnected"
	EventPeerJoined      EventKind = "peer-joined"
	EventPeerLeft        EventKind = "peer-left"
	EventConnectionState EventKind = "connection-state"
	EventRemoteStream    EventKind = "remote-stream"
	EventChannelOpen     EventKind = "channel-open"
	EventChannelClosed   EventKind = "channel-closed"
	EventPatientInfo     EventKind = "patient-info"
	EventDoctorInfo      EventKind = "doctor-info"
	EventScanRequested   EventKind = "scan-requested"
	EventScanStatus      EventKind = "scan-status"
	EventScanResults     EventKind = "scan-results"
	EventError           EventKind = "error"
)

// Event is one entry on the stream the UI layer renders from. Data holds
// the kind-specific payload: a decoded application message, a
// *domain.RemoteStream, a domain.ConnectionState, or an error.
type Event struct {
	Kind EventKind
	Data any
}
