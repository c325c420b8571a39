// Package negotiator owns the peer connection lifecycle: it creates the
// local endpoints, generates and applies session descriptions, applies
// remote ICE candidates, and drives the connection through its states.
//
// Candidates that arrive before the remote description is set are
// buffered and applied, in arrival order, once it succeeds. A negotiator
// is rebuilt after a hard failure or leave; session descriptions are not
// reusable across attempts.
package negotiator

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/nack"
	pion "github.com/pion/webrtc/v4"
	"go.uber.org/zap"

	"github.com/Acon1tum/quanby-healthcare-v2-sub000/internal/domain"
)

// Negotiator implements domain.Negotiator over a Pion PeerConnection.
type Negotiator struct {
	logger     *zap.Logger
	api        *pion.API
	iceServers []domain.ICEServer

	mu            sync.Mutex
	pc            *pion.PeerConnection
	state         domain.ConnectionState
	remoteDescSet bool
	pendingRemote []domain.ICECandidatePayload
	videoSender   *pion.RTPSender
	videoTrack    pion.TrackLocal
	closed        bool

	remoteStream atomic.Pointer[domain.RemoteStream]

	onCandidate    func(domain.ICECandidatePayload)
	onStateChange  func(domain.ConnectionState)
	onRemoteStream func(*domain.RemoteStream)
	onDataChannel  func(domain.AppChannel)
}

// New creates a Negotiator whose media engine carries the codecs the
// given source produces, plus a NACK responder interceptor. The peer
// session itself is created by the first Rebuild call.
func New(iceServers []domain.ICEServer, source domain.MediaSource, logger *zap.Logger) (*Negotiator, error) {
	m := &pion.MediaEngine{}
	if err := source.RegisterCodecs(m); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	ir := &interceptor.Registry{}
	responder, err := nack.NewResponderInterceptor()
	if err != nil {
		return nil, fmt.Errorf("create nack responder: %w", err)
	}
	ir.Add(responder)

	api := pion.NewAPI(
		pion.WithMediaEngine(m),
		pion.WithInterceptorRegistry(ir),
	)

	return &Negotiator{
		logger:     logger.Named("negotiator"),
		api:        api,
		iceServers: iceServers,
		state:      domain.StateIdle,
	}, nil
}

// Rebuild tears down any existing peer session and creates a fresh one.
// All negotiation state (descriptions, buffered candidates, remote
// stream) is discarded; the new session starts in the idle state.
func (n *Negotiator) Rebuild() error {
	n.mu.Lock()
	if n.pc != nil {
		n.pc.Close()
	}

	var servers []pion.ICEServer
	for _, s := range n.iceServers {
		servers = append(servers, pion.ICEServer{
			URLs:       []string{s.URL},
			Username:   s.Username,
			Credential: s.Credential,
		})
	}

	pc, err := n.api.NewPeerConnection(pion.Configuration{
		ICEServers:   servers,
		BundlePolicy: pion.BundlePolicyMaxBundle,
	})
	if err != nil {
		n.mu.Unlock()
		return fmt.Errorf("create peer connection: %w", err)
	}

	n.pc = pc
	n.remoteDescSet = false
	n.pendingRemote = nil
	n.videoSender = nil
	n.videoTrack = nil
	n.closed = false
	n.state = domain.StateIdle
	n.remoteStream.Store(nil)
	n.mu.Unlock()

	pc.OnICECandidate(func(c *pion.ICECandidate) {
		if c == nil {
			n.logger.Debug("ICE gathering complete")
			return
		}
		j := c.ToJSON()
		if isLoopback(j.Candidate) {
			return
		}
		payload := domain.ICECandidatePayload{Candidate: j.Candidate}
		if j.SDPMid != nil {
			payload.SDPMid = *j.SDPMid
		}
		if j.SDPMLineIndex != nil {
			payload.SDPMLineIndex = int(*j.SDPMLineIndex)
		}
		n.mu.Lock()
		send := n.onCandidate
		n.mu.Unlock()
		if send != nil {
			send(payload)
		}
	})

	pc.OnConnectionStateChange(func(state pion.PeerConnectionState) {
		n.logger.Info("connection state", zap.String("state", state.String()))
		switch state {
		case pion.PeerConnectionStateConnected:
			n.setState(domain.StateConnected)
		case pion.PeerConnectionStateFailed:
			n.setState(domain.StateFailed)
		case pion.PeerConnectionStateClosed:
			n.mu.Lock()
			explicit := n.closed
			n.mu.Unlock()
			if !explicit {
				n.setState(domain.StateClosed)
			}
		}
	})

	pc.OnTrack(func(track *pion.TrackRemote, _ *pion.RTPReceiver) {
		n.logger.Info("remote track",
			zap.String("kind", track.Kind().String()),
			zap.String("codec", track.Codec().MimeType),
		)
		n.storeRemoteTrack(track)
	})

	pc.OnDataChannel(func(dc *pion.DataChannel) {
		n.logger.Info("data channel offered", zap.String("label", dc.Label()))
		n.mu.Lock()
		handler := n.onDataChannel
		n.mu.Unlock()
		if handler != nil {
			handler(newPionChannel(dc))
		}
	})

	return nil
}

// storeRemoteTrack replaces the current remote stream with a fresh value
// carrying the new track. The stream is a single pointer swap: readers
// see the old stream or the new one in full, never a mix.
func (n *Negotiator) storeRemoteTrack(track *pion.TrackRemote) {
	next := &domain.RemoteStream{ID: track.StreamID()}
	if prev := n.remoteStream.Load(); prev != nil && prev.ID == next.ID {
		next.Audio = prev.Audio
		next.Video = prev.Video
	}
	if track.Kind() == pion.RTPCodecTypeVideo {
		next.Video = track
	} else {
		next.Audio = track
	}
	n.remoteStream.Store(next)

	n.mu.Lock()
	fn := n.onRemoteStream
	n.mu.Unlock()
	if fn != nil {
		fn(next)
	}
}

// AttachMedia adds the source's local tracks to the peer session. The
// video sender is kept so the camera can be toggled without
// renegotiation.
func (n *Negotiator) AttachMedia(source domain.MediaSource) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.pc == nil {
		return domain.ErrSessionClosed
	}

	for _, track := range source.Tracks() {
		sender, err := n.pc.AddTrack(track)
		if err != nil {
			return fmt.Errorf("add %s track: %w", track.Kind(), err)
		}
		if track.Kind() == pion.RTPCodecTypeVideo {
			n.videoSender = sender
			n.videoTrack = track
		}
	}
	return nil
}

// SetVideoEnabled pauses or resumes the outgoing camera track by
// swapping the sender's track, which needs no renegotiation.
func (n *Negotiator) SetVideoEnabled(on bool) error {
	n.mu.Lock()
	sender, track := n.videoSender, n.videoTrack
	n.mu.Unlock()

	if sender == nil {
		return fmt.Errorf("toggle camera: no video sender attached")
	}
	if on {
		return sender.ReplaceTrack(track)
	}
	return sender.ReplaceTrack(nil)
}

// CreateDataChannel creates the ordered, reliable application channel.
// Only the offering side calls this; the answering side receives the
// channel through OnDataChannel.
func (n *Negotiator) CreateDataChannel(label string) (domain.AppChannel, error) {
	n.mu.Lock()
	pc := n.pc
	n.mu.Unlock()

	if pc == nil {
		return nil, domain.ErrSessionClosed
	}

	ordered := true
	dc, err := pc.CreateDataChannel(label, &pion.DataChannelInit{Ordered: &ordered})
	if err != nil {
		return nil, fmt.Errorf("create data channel: %w", err)
	}
	return newPionChannel(dc), nil
}

// CreateOffer creates a session description offer and sets it as the
// local description. With iceRestart set it re-enters negotiation on a
// live session to recover a stalled path.
func (n *Negotiator) CreateOffer(iceRestart bool) (domain.SDPPayload, error) {
	n.mu.Lock()
	pc := n.pc
	n.mu.Unlock()

	if pc == nil {
		return domain.SDPPayload{}, domain.ErrSessionClosed
	}

	var opts *pion.OfferOptions
	if iceRestart {
		opts = &pion.OfferOptions{ICERestart: true}
	}

	offer, err := pc.CreateOffer(opts)
	if err != nil {
		return domain.SDPPayload{}, fmt.Errorf("create offer: %w", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		return domain.SDPPayload{}, fmt.Errorf("set local description: %w", err)
	}

	n.setState(domain.StateNegotiating)
	return domain.SDPPayload{Type: "offer", SDP: offer.SDP}, nil
}

// HandleRemoteOffer applies the remote offer, flushes any buffered
// candidates, and returns the local answer.
func (n *Negotiator) HandleRemoteOffer(offer domain.SDPPayload) (domain.SDPPayload, error) {
	n.mu.Lock()
	pc := n.pc
	n.mu.Unlock()

	if pc == nil {
		return domain.SDPPayload{}, domain.ErrSessionClosed
	}

	n.setState(domain.StateNegotiating)

	if err := n.setRemoteDescription(pion.SessionDescription{Type: pion.SDPTypeOffer, SDP: offer.SDP}); err != nil {
		return domain.SDPPayload{}, err
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return domain.SDPPayload{}, fmt.Errorf("create answer: %w", err)
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		return domain.SDPPayload{}, fmt.Errorf("set local description: %w", err)
	}

	return domain.SDPPayload{Type: "answer", SDP: answer.SDP}, nil
}

// HandleRemoteAnswer applies the remote answer and flushes any buffered
// candidates.
func (n *Negotiator) HandleRemoteAnswer(answer domain.SDPPayload) error {
	return n.setRemoteDescription(pion.SessionDescription{Type: pion.SDPTypeAnswer, SDP: answer.SDP})
}

func (n *Negotiator) setRemoteDescription(desc pion.SessionDescription) error {
	n.mu.Lock()
	pc := n.pc
	n.mu.Unlock()

	if pc == nil {
		return domain.ErrSessionClosed
	}

	if err := pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}

	n.mu.Lock()
	n.remoteDescSet = true
	pending := n.pendingRemote
	n.pendingRemote = nil
	n.mu.Unlock()

	for _, c := range pending {
		if err := n.applyCandidate(c); err != nil {
			// A single stale candidate must not kill the session;
			// ICE keeps trying the rest.
			n.logger.Warn("apply buffered candidate", zap.Error(err))
		}
	}
	if len(pending) > 0 {
		n.logger.Info("flushed buffered candidates", zap.Int("count", len(pending)))
	}
	return nil
}

// AddRemoteCandidate applies a relayed candidate, buffering it if the
// remote description has not been set yet.
func (n *Negotiator) AddRemoteCandidate(candidate domain.ICECandidatePayload) error {
	n.mu.Lock()
	if n.pc == nil {
		n.mu.Unlock()
		return domain.ErrSessionClosed
	}
	if !n.remoteDescSet {
		n.pendingRemote = append(n.pendingRemote, candidate)
		n.mu.Unlock()
		return nil
	}
	n.mu.Unlock()

	return n.applyCandidate(candidate)
}

func (n *Negotiator) applyCandidate(candidate domain.ICECandidatePayload) error {
	n.mu.Lock()
	pc := n.pc
	n.mu.Unlock()

	if pc == nil {
		return domain.ErrSessionClosed
	}

	mid := candidate.SDPMid
	mline := uint16(candidate.SDPMLineIndex)
	init := pion.ICECandidateInit{
		Candidate:     candidate.Candidate,
		SDPMid:        &mid,
		SDPMLineIndex: &mline,
	}
	if err := pc.AddICECandidate(init); err != nil {
		return fmt.Errorf("add ice candidate: %w", err)
	}
	return nil
}

// State returns the current connection state.
func (n *Negotiator) State() domain.ConnectionState {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// RemoteStream returns the current remote stream, or nil before any
// track arrived or after the session closed.
func (n *Negotiator) RemoteStream() *domain.RemoteStream {
	return n.remoteStream.Load()
}

// BufferedCandidates reports how many remote candidates are waiting for
// the remote description.
func (n *Negotiator) BufferedCandidates() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.pendingRemote)
}

// OnCandidate registers the sink for locally discovered candidates.
func (n *Negotiator) OnCandidate(send func(domain.ICECandidatePayload)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.onCandidate = send
}

// OnStateChange registers the connection state listener.
func (n *Negotiator) OnStateChange(fn func(domain.ConnectionState)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.onStateChange = fn
}

// OnRemoteStream registers the remote stream replacement listener.
func (n *Negotiator) OnRemoteStream(fn func(*domain.RemoteStream)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.onRemoteStream = fn
}

// OnDataChannel registers the listener for a channel offered by the peer.
func (n *Negotiator) OnDataChannel(fn func(domain.AppChannel)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.onDataChannel = fn
}

// Close releases the peer session. Safe to call from any state, any
// number of times; the remote stream reference is cleared.
func (n *Negotiator) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	pc := n.pc
	n.pc = nil
	n.pendingRemote = nil
	n.mu.Unlock()

	n.remoteStream.Store(nil)
	n.setState(domain.StateClosed)

	if pc != nil {
		if err := pc.Close(); err != nil {
			return fmt.Errorf("close peer connection: %w", err)
		}
	}
	return nil
}

func (n *Negotiator) setState(s domain.ConnectionState) {
	n.mu.Lock()
	if n.state == s {
		n.mu.Unlock()
		return
	}
	// CLOSED is terminal for a peer session instance.
	if n.state == domain.StateClosed && s != domain.StateClosed {
		n.mu.Unlock()
		return
	}
	n.state = s
	fn := n.onStateChange
	n.mu.Unlock()

	if fn != nil {
		fn(s)
	}
}

func isLoopback(candidate string) bool {
	return strings.Contains(candidate, "127.0.0.1") || strings.Contains(candidate, "::1 ")
}
