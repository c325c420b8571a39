package domain

// SessionTicket holds the signaling credentials and ICE configuration the
// backend issues for one consultation.
type SessionTicket struct {
	ConsultationID string      `json:"consultationId"`
	SignalServer   string      `json:"signalServer"`
	WebsocketPath  string      `json:"websocketPath"`
	AccessToken    string      `json:"accessToken"`
	ICEServers     []ICEServer `json:"iceServers"`
	PingInterval   int         `json:"pingInterval"`
	ExpirationTime int64       `json:"expirationTime"`
}

// ICEServer holds STUN/TURN server configuration.
type ICEServer struct {
	URL        string `json:"url"`
	Username   string `json:"username,omitempty"`
	Credential string `json:"credential,omitempty"`
}
