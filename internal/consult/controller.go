// Package consult orchestrates one video consultation: room rendezvous,
// media acquisition, peer negotiation, and the in-band clinical message
// flow. A single Controller serves both roles; the handful of
// role-specific branches (who offers, who requests a scan, which
// identity handshake goes out) key off the profile's role.
package consult

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Acon1tum/quanby-healthcare-v2-sub000/internal/config"
	"github.com/Acon1tum/quanby-healthcare-v2-sub000/internal/datachannel"
	"github.com/Acon1tum/quanby-healthcare-v2-sub000/internal/domain"
	"github.com/Acon1tum/quanby-healthcare-v2-sub000/internal/scan"
)

// Profile identifies this side of the consultation. Patient fields are
// used when Role is RolePatient, doctor fields when Role is RoleDoctor.
type Profile struct {
	Role domain.Role

	PatientName string
	PatientID   int
	Email       string

	DoctorName     string
	Specialization string
	Bio            string
}

func (p Profile) handshake() any {
	if p.Role == domain.RoleDoctor {
		return datachannel.DoctorInfo{
			Type:           datachannel.TypeDoctorInfo,
			DoctorName:     p.DoctorName,
			Specialization: p.Specialization,
			Bio:            p.Bio,
		}
	}
	return datachannel.PatientInfo{
		Type:        datachannel.TypePatientInfo,
		PatientName: p.PatientName,
		PatientID:   p.PatientID,
		Email:       p.Email,
		Timestamp:   datachannel.Now(),
	}
}

// Controller runs one consultation session for one role. It implements
// domain.RendezvousHandler; relay events drive the negotiation.
type Controller struct {
	profile Profile
	cfg     *config.Config
	logger  *zap.Logger
	neg     domain.Negotiator
	media   domain.MediaSource
	rdv     domain.Rendezvous
	router  *datachannel.Router

	events chan Event

	mu           sync.Mutex
	roomID       string
	joined       bool
	peerPresent  bool
	participants int
	cameraOff    bool
	channel      *datachannel.Channel
	scanSub      scan.Subscription

	scanResults chan datachannel.FaceScanResults
	scanErr     chan error
}

// New creates a controller. The rendezvous client is injected afterwards
// with SetRendezvous because it needs the controller as its event
// handler.
func New(profile Profile, cfg *config.Config, neg domain.Negotiator, media domain.MediaSource, logger *zap.Logger) *Controller {
	c := &Controller{
		profile:     profile,
		cfg:         cfg,
		logger:      logger.Named("consult").With(zap.String("role", string(profile.Role))),
		neg:         neg,
		media:       media,
		events:      make(chan Event, 64),
		scanResults: make(chan datachannel.FaceScanResults, 1),
		scanErr:     make(chan error, 1),
	}
	c.router = c.buildRouter(logger)
	return c
}

// SetRendezvous injects the relay client after construction, resolving
// the circular dependency (the controller is the client's handler).
func (c *Controller) SetRendezvous(rdv domain.Rendezvous) {
	c.rdv = rdv
}

func (c *Controller) buildRouter(logger *zap.Logger) *datachannel.Router {
	r := datachannel.NewRouter(logger)

	r.Register(datachannel.TypePatientInfo, func(raw []byte) {
		var msg datachannel.PatientInfo
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.logger.Warn("decode patient-info", zap.Error(err))
			return
		}
		c.emit(EventPatientInfo, msg)
	})

	r.Register(datachannel.TypeDoctorInfo, func(raw []byte) {
		var msg datachannel.DoctorInfo
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.logger.Warn("decode doctor-info", zap.Error(err))
			return
		}
		c.emit(EventDoctorInfo, msg)
	})

	r.Register(datachannel.TypeFaceScanRequest, func(raw []byte) {
		var msg datachannel.FaceScanRequest
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.logger.Warn("decode face-scan-request", zap.Error(err))
			return
		}
		c.emit(EventScanRequested, msg)
	})

	r.Register(datachannel.TypeFaceScanStatus, func(raw []byte) {
		var msg datachannel.FaceScanStatus
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.logger.Warn("decode face-scan-status", zap.Error(err))
			return
		}
		if msg.Status == datachannel.StatusScanFailed {
			select {
			case c.scanErr <- domain.ErrScanFailed:
			default:
			}
		}
		c.emit(EventScanStatus, msg)
	})

	r.Register(datachannel.TypeFaceScanResults, func(raw []byte) {
		var msg datachannel.FaceScanResults
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.logger.Warn("decode face-scan-results", zap.Error(err))
			return
		}
		select {
		case c.scanResults <- msg:
		default:
		}
		c.emit(EventScanResults, msg)
	})

	return r
}

// Join connects to the relay, joins the room, acquires local media, and
// prepares a fresh peer session. The doctor passes an empty code to
// generate one; the patient passes the code the doctor shared. The
// (possibly generated) room code is returned.
//
// A media failure aborts the join: the room is left again and the
// caller sees a camera-specific error, distinct from any network error.
func (c *Controller) Join(ctx context.Context, code string) (string, error) {
	c.mu.Lock()
	if c.joined {
		c.mu.Unlock()
		return "", domain.ErrAlreadyJoined
	}
	c.mu.Unlock()

	if code == "" {
		if c.profile.Role != domain.RoleDoctor {
			return "", fmt.Errorf("a room code is required to join as patient")
		}
		code = domain.NewRoomCode()
	}
	code = domain.NormalizeRoomCode(code)
	if !domain.ValidRoomCode(code) {
		return "", fmt.Errorf("invalid room code %q", code)
	}

	if err := c.rdv.Connect(ctx); err != nil {
		return "", fmt.Errorf("connect to relay: %w", err)
	}

	joinCtx, cancel := context.WithTimeout(ctx, c.cfg.JoinTimeout)
	defer cancel()

	res, err := c.rdv.JoinRoom(joinCtx, code, c.profile.Role)
	if err != nil {
		return "", fmt.Errorf("join room: %w", err)
	}
	if err := res.Err(); err != nil {
		return "", fmt.Errorf("join room %s: %w", code, err)
	}

	if err := c.media.Acquire(ctx); err != nil {
		c.rdv.LeaveRoom(code)
		return "", err
	}

	if err := c.neg.Rebuild(); err != nil {
		c.media.Release()
		c.rdv.LeaveRoom(code)
		return "", fmt.Errorf("create peer session: %w", err)
	}
	c.wireNegotiator(code)
	if err := c.neg.AttachMedia(c.media); err != nil {
		c.neg.Close()
		c.media.Release()
		c.rdv.LeaveRoom(code)
		return "", fmt.Errorf("attach media: %w", err)
	}

	c.mu.Lock()
	c.roomID = code
	c.joined = true
	c.participants = res.ParticipantCount
	c.peerPresent = res.ParticipantCount > 1
	c.mu.Unlock()

	c.logger.Info("joined room",
		zap.String("room", code),
		zap.Int("participants", res.ParticipantCount),
	)
	return code, nil
}

// Leave exits the consultation: the data channel and peer session are
// closed, local media is stopped, and the relay is notified. Safe to
// call from any state and any number of times; local tracks are stopped
// exactly once.
func (c *Controller) Leave() {
	c.mu.Lock()
	roomID := c.roomID
	joined := c.joined
	ch := c.channel
	sub := c.scanSub
	c.channel = nil
	c.scanSub = nil
	c.roomID = ""
	c.joined = false
	c.peerPresent = false
	c.participants = 0
	c.mu.Unlock()

	if sub != nil {
		sub.Close()
	}
	if ch != nil {
		ch.Close()
	}
	if err := c.neg.Close(); err != nil {
		c.logger.Warn("close peer session", zap.Error(err))
	}
	c.media.Release()
	if joined && roomID != "" {
		c.rdv.LeaveRoom(roomID)
	}
}

func (c *Controller) wireNegotiator(roomID string) {
	c.neg.OnCandidate(func(cand domain.ICECandidatePayload) {
		c.rdv.SendCandidate(roomID, cand)
	})
	c.neg.OnStateChange(func(s domain.ConnectionState) {
		c.emit(EventConnectionState, s)
	})
	c.neg.OnRemoteStream(func(rs *domain.RemoteStream) {
		c.emit(EventRemoteStream, rs)
	})
	c.neg.OnDataChannel(func(ch domain.AppChannel) {
		c.adoptChannel(ch)
	})
}

// adoptChannel wraps a freshly created or freshly offered data channel.
// Each open is a reset point, so the identity handshake goes out on
// every open, not just the first.
func (c *Controller) adoptChannel(ch domain.AppChannel) {
	wrapped := datachannel.Wrap(ch, c.router, c.logger,
		func() {
			if err := c.send(c.profile.handshake()); err != nil {
				c.logger.Warn("send identity handshake", zap.Error(err))
			}
			c.emit(EventChannelOpen, nil)
		},
		func() {
			c.emit(EventChannelClosed, nil)
		},
	)

	c.mu.Lock()
	c.channel = wrapped
	c.mu.Unlock()
}

// initiate creates the data channel and sends the offer. Called on the
// side already in the room when the relay reports the peer joining.
func (c *Controller) initiate(roomID string) {
	ch, err := c.neg.CreateDataChannel(datachannel.Label)
	if err != nil {
		c.failNegotiation(fmt.Errorf("create data channel: %w", err))
		return
	}
	c.adoptChannel(ch)

	offer, err := c.neg.CreateOffer(false)
	if err != nil {
		c.failNegotiation(fmt.Errorf("create offer: %w", err))
		return
	}
	c.rdv.SendOffer(roomID, offer)
}

// failNegotiation tears the peer session down and surfaces the failure.
// A fresh attempt is offered to the caller, never performed silently.
func (c *Controller) failNegotiation(err error) {
	c.logger.Warn("negotiation failed", zap.Error(err))
	c.neg.Close()
	c.emit(EventError, err)
}

// RestartNegotiation rebuilds the peer session after a failure and, if
// the peer is still in the room, starts a new offer exchange.
func (c *Controller) RestartNegotiation() error {
	c.mu.Lock()
	roomID := c.roomID
	joined := c.joined
	peer := c.peerPresent
	c.mu.Unlock()

	if !joined {
		return domain.ErrNotJoined
	}
	if err := c.neg.Rebuild(); err != nil {
		return fmt.Errorf("rebuild peer session: %w", err)
	}
	c.wireNegotiator(roomID)
	if err := c.neg.AttachMedia(c.media); err != nil {
		return fmt.Errorf("attach media: %w", err)
	}
	if peer {
		c.initiate(roomID)
	}
	return nil
}

// RestartICE re-runs candidate exchange on the live session to recover
// a stalled media path, without tearing the session down.
func (c *Controller) RestartICE() error {
	c.mu.Lock()
	roomID := c.roomID
	joined := c.joined
	c.mu.Unlock()

	if !joined {
		return domain.ErrNotJoined
	}
	offer, err := c.neg.CreateOffer(true)
	if err != nil {
		return fmt.Errorf("ice restart offer: %w", err)
	}
	c.rdv.SendOffer(roomID, offer)
	return nil
}

// RecoverRemoteMedia waits a bounded number of intervals for remote
// media to arrive, then tries one ICE restart before giving up.
func (c *Controller) RecoverRemoteMedia(ctx context.Context) error {
	attempts := c.cfg.MediaRefreshAttempts
	if attempts < 1 {
		attempts = 1
	}
	interval := c.cfg.RemoteMediaTimeout / time.Duration(attempts+1)

	for i := 0; i < attempts; i++ {
		if c.neg.RemoteStream() != nil {
			return nil
		}
		select {
		case <-time.After(interval):
		case <-ctx.Done():
			return fmt.Errorf("remote media: %w", domain.ErrTimeout)
		}
	}

	if c.neg.RemoteStream() != nil {
		return nil
	}
	c.logger.Info("no remote media, trying ICE restart")
	if err := c.RestartICE(); err != nil {
		return err
	}

	select {
	case <-time.After(interval):
	case <-ctx.Done():
	}
	if c.neg.RemoteStream() != nil {
		return nil
	}
	return fmt.Errorf("remote media after ICE restart: %w", domain.ErrTimeout)
}

// ToggleCamera pauses or resumes the outgoing camera without
// renegotiation and returns whether the camera is now on.
func (c *Controller) ToggleCamera() (bool, error) {
	c.mu.Lock()
	next := c.cameraOff // currently off -> turning on
	c.mu.Unlock()

	if err := c.neg.SetVideoEnabled(next); err != nil {
		return !next, err
	}

	c.mu.Lock()
	c.cameraOff = !next
	c.mu.Unlock()
	return next, nil
}

// WaitChannelReady blocks until the data channel is open, bounded by the
// configured channel-open timeout (or ctx, whichever ends first).
func (c *Controller) WaitChannelReady(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ChannelOpenTimeout)
	defer cancel()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		c.mu.Lock()
		ch := c.channel
		c.mu.Unlock()

		if ch != nil {
			return ch.WaitReady(ctx)
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return fmt.Errorf("wait for data channel: %w", domain.ErrChannelNeverOpen)
		}
	}
}

// SendScanRequest asks the patient side to begin a face scan.
// Doctor-side only.
func (c *Controller) SendScanRequest() error {
	if c.profile.Role != domain.RoleDoctor {
		return fmt.Errorf("only the doctor requests scans")
	}
	c.mu.Lock()
	roomID := c.roomID
	c.mu.Unlock()
	return c.send(datachannel.NewFaceScanRequest(roomID))
}

// RequestScan sends a scan request and waits for the terminal outcome.
// A timeout is reported distinctly from an explicit failure sent by the
// patient side.
func (c *Controller) RequestScan(ctx context.Context) (datachannel.FaceScanResults, error) {
	var zero datachannel.FaceScanResults

	if err := c.WaitChannelReady(ctx); err != nil {
		return zero, err
	}

	// Drain stale outcomes from a previous scan.
	select {
	case <-c.scanResults:
	default:
	}
	select {
	case <-c.scanErr:
	default:
	}

	if err := c.SendScanRequest(); err != nil {
		return zero, err
	}

	select {
	case res := <-c.scanResults:
		return res, nil
	case err := <-c.scanErr:
		return zero, err
	case <-time.After(c.cfg.ScanTimeout):
		return zero, fmt.Errorf("scan completion: %w", domain.ErrTimeout)
	case <-ctx.Done():
		return zero, fmt.Errorf("scan completion: %w", domain.ErrTimeout)
	}
}

// SendStatus sends a progress or clinical notification to the peer.
func (c *Controller) SendStatus(status string, payload json.RawMessage) error {
	return c.send(datachannel.NewFaceScanStatus(status, payload))
}

// SendResults forwards a terminal scan outcome to the peer.
func (c *Controller) SendResults(results json.RawMessage, status string) error {
	return c.send(datachannel.NewFaceScanResults(results, status))
}

// BindScanSource subscribes the patient side to the scan provider and
// forwards its events over the data channel: progress as status
// messages, the terminal payload byte-for-byte as results. The
// subscription is torn down on Leave.
func (c *Controller) BindScanSource(src scan.Source) error {
	if c.profile.Role != domain.RolePatient {
		return fmt.Errorf("only the patient performs scans")
	}

	sub := src.Subscribe(func(ev scan.Event) {
		switch ev.Action {
		case scan.ActionAnalysisStart:
			if err := c.SendStatus(datachannel.StatusScanInProgress, nil); err != nil {
				c.logger.Warn("send scan status", zap.Error(err))
			}
		case scan.ActionAnalysisFinished:
			if err := c.SendResults(ev.Result, datachannel.StatusScanCompleted); err != nil {
				c.logger.Warn("send scan results", zap.Error(err))
			}
		case scan.ActionAnalysisFailed:
			if err := c.SendStatus(datachannel.StatusScanFailed, nil); err != nil {
				c.logger.Warn("send scan failure", zap.Error(err))
			}
		default:
			c.logger.Debug("ignore provider action", zap.String("action", ev.Action))
		}
	})

	c.mu.Lock()
	if c.scanSub != nil {
		c.scanSub.Close()
	}
	c.scanSub = sub
	c.mu.Unlock()
	return nil
}

func (c *Controller) send(msg any) error {
	c.mu.Lock()
	ch := c.channel
	c.mu.Unlock()

	if ch == nil {
		c.logger.Warn("send with no data channel")
		return domain.ErrChannelNotOpen
	}
	return ch.Send(msg)
}

// OnConnected implements domain.RendezvousHandler.
func (c *Controller) OnConnected() {
	c.emit(EventConnected, nil)
}

// OnDisconnected surfaces the relay loss; whether to treat it as a leave
// is the caller's decision, nothing is retried automatically.
func (c *Controller) OnDisconnected(reason error) {
	c.emit(EventDisconnected, reason)
}

// OnPeerJoined starts (or restarts) negotiation toward the arriving
// peer. Only the occupant already in the room receives this event.
func (c *Controller) OnPeerJoined(peer domain.PeerInfo) {
	c.mu.Lock()
	c.peerPresent = true
	c.participants++
	roomID := c.roomID
	c.mu.Unlock()

	c.emit(EventPeerJoined, peer)

	switch c.neg.State() {
	case domain.StateClosed, domain.StateFailed:
		// The previous peer session died with the previous peer;
		// build a fresh one.
		if err := c.neg.Rebuild(); err != nil {
			c.failNegotiation(fmt.Errorf("rebuild peer session: %w", err))
			return
		}
		c.wireNegotiator(roomID)
		if err := c.neg.AttachMedia(c.media); err != nil {
			c.failNegotiation(fmt.Errorf("attach media: %w", err))
			return
		}
	}

	c.initiate(roomID)
}

// OnOffer answers the peer's offer.
func (c *Controller) OnOffer(sdp domain.SDPPayload) {
	c.mu.Lock()
	roomID := c.roomID
	c.mu.Unlock()

	answer, err := c.neg.HandleRemoteOffer(sdp)
	if err != nil {
		c.failNegotiation(fmt.Errorf("handle offer: %w", err))
		return
	}
	c.rdv.SendAnswer(roomID, answer)
}

// OnAnswer applies the peer's answer.
func (c *Controller) OnAnswer(sdp domain.SDPPayload) {
	if err := c.neg.HandleRemoteAnswer(sdp); err != nil {
		c.failNegotiation(fmt.Errorf("handle answer: %w", err))
	}
}

// OnCandidate applies (or buffers) a relayed remote candidate.
func (c *Controller) OnCandidate(candidate domain.ICECandidatePayload) {
	if err := c.neg.AddRemoteCandidate(candidate); err != nil {
		c.logger.Warn("add remote candidate", zap.Error(err))
	}
}

// OnPeerLeft closes the peer session; queued application messages are
// discarded with the dead channel rather than resent, and the remote
// stream reference is cleared.
func (c *Controller) OnPeerLeft() {
	c.mu.Lock()
	c.peerPresent = false
	if c.participants > 0 {
		c.participants--
	}
	ch := c.channel
	c.channel = nil
	c.mu.Unlock()

	if ch != nil {
		ch.Close()
	}
	c.neg.Close()
	c.emit(EventPeerLeft, nil)
}

// Events is the stream of session and application events for the UI
// layer to render.
func (c *Controller) Events() <-chan Event {
	return c.events
}

// Role returns this controller's role.
func (c *Controller) Role() domain.Role { return c.profile.Role }

// RoomID returns the joined room code, empty when not joined.
func (c *Controller) RoomID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomID
}

// IsJoined reports whether the controller currently occupies a room.
func (c *Controller) IsJoined() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.joined
}

// ParticipantCount returns the last known number of room occupants.
func (c *Controller) ParticipantCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.participants
}

// ConnectionState returns the peer session's current state.
func (c *Controller) ConnectionState() domain.ConnectionState {
	return c.neg.State()
}

// RemoteStream returns the current remote stream, nil when none.
func (c *Controller) RemoteStream() *domain.RemoteStream {
	return c.neg.RemoteStream()
}

func (c *Controller) emit(kind EventKind, data any) {
	select {
	case c.events <- Event{Kind: kind, Data: data}:
	default:
		c.logger.Warn("event buffer full, dropping", zap.String("kind", string(kind)))
	}
}
