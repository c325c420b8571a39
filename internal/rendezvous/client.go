package rendezvous

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Acon1tum/quanby-healthcare-v2-sub000/internal/domain"
)

const defaultPingInterval = 25 * time.Second

// Client maintains the WebSocket connection to the relay server and
// relays room-scoped signaling messages. It implements domain.Rendezvous.
type Client struct {
	ticket  *domain.SessionTicket
	handler domain.RendezvousHandler
	logger  *zap.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	joinAck   chan domain.JoinResult

	closeOnce sync.Once
	closed    chan struct{}
}

// NewClient creates a rendezvous client. The handler receives every relay
// event; its callbacks run on the read loop and must not block.
func NewClient(ticket *domain.SessionTicket, handler domain.RendezvousHandler, logger *zap.Logger) *Client {
	return &Client{
		ticket:  ticket,
		handler: handler,
		logger:  logger.Named("rendezvous"),
		closed:  make(chan struct{}),
	}
}

// Connect dials the relay WebSocket and starts the read and ping loops.
// It is idempotent: a second call on a live connection is a no-op.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	u, err := url.Parse(c.ticket.SignalServer)
	if err != nil {
		return fmt.Errorf("parse signal server: %w", err)
	}
	if c.ticket.WebsocketPath != "" {
		u.Path = c.ticket.WebsocketPath
	}

	c.logger.Info("connecting", zap.String("url", u.String()))

	header := http.Header{}
	if c.ticket.AccessToken != "" {
		header.Set("Authorization", "Bearer "+c.ticket.AccessToken)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", domain.ErrNetwork)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	go c.readLoop()
	go c.pingLoop()

	c.handler.OnConnected()
	return nil
}

// JoinRoom requests to join roomID with the caller's declared role and
// waits for the relay's acknowledgment.
func (c *Client) JoinRoom(ctx context.Context, roomID string, role domain.Role) (domain.JoinResult, error) {
	ack := make(chan domain.JoinResult, 1)

	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return domain.JoinResult{}, domain.ErrNetwork
	}
	c.joinAck = ack
	c.mu.Unlock()

	c.sendJSON(message{Type: typeJoin, RoomID: roomID, Role: role})

	select {
	case res := <-ack:
		return res, nil
	case <-ctx.Done():
		c.mu.Lock()
		c.joinAck = nil
		c.mu.Unlock()
		return domain.JoinResult{}, fmt.Errorf("join %s: %w", roomID, domain.ErrTimeout)
	case <-c.closed:
		return domain.JoinResult{}, domain.ErrNetwork
	}
}

// LeaveRoom notifies the relay. Fire-and-forget; never blocks the caller
// beyond a single buffered write.
func (c *Client) LeaveRoom(roomID string) {
	c.sendJSON(message{Type: typeLeave, RoomID: roomID})
}

// SendOffer relays a session description offer to the other occupant.
func (c *Client) SendOffer(roomID string, sdp domain.SDPPayload) {
	c.sendJSON(message{Type: typeOffer, RoomID: roomID, SDP: &sdp})
}

// SendAnswer relays a session description answer to the other occupant.
func (c *Client) SendAnswer(roomID string, sdp domain.SDPPayload) {
	c.sendJSON(message{Type: typeAnswer, RoomID: roomID, SDP: &sdp})
}

// SendCandidate relays a local ICE candidate to the other occupant.
func (c *Client) SendCandidate(roomID string, candidate domain.ICECandidatePayload) {
	c.sendJSON(message{Type: typeCandidate, RoomID: roomID, Candidate: &candidate})
}

// Close shuts down the WebSocket connection. Safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.mu.Lock()
		if c.conn != nil {
			c.conn.Close()
		}
		c.connected = false
		c.mu.Unlock()
	})
}

func (c *Client) sendJSON(msg message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected || c.conn == nil {
		c.logger.Warn("send while disconnected", zap.String("type", msg.Type))
		return
	}

	data, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("marshal", zap.Error(err))
		return
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.logger.Warn("write", zap.Error(err))
	}
}

func (c *Client) readLoop() {
	defer func() {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
	}()

	for {
		select {
		case <-c.closed:
			return
		default:
		}

		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.closed:
				return
			default:
				c.logger.Warn("read", zap.Error(err))
				c.handler.OnDisconnected(fmt.Errorf("relay connection lost: %w", domain.ErrNetwork))
				return
			}
		}

		var msg message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn("unmarshal", zap.Error(err))
			continue
		}

		c.dispatch(msg)
	}
}

func (c *Client) dispatch(msg message) {
	switch msg.Type {
	case typeJoinAck:
		res := domain.JoinResult{
			Role:             msg.Role,
			ParticipantCount: msg.ParticipantCount,
			Error:            msg.Error,
		}
		if msg.OK != nil {
			res.OK = *msg.OK
		}
		c.mu.Lock()
		ack := c.joinAck
		c.joinAck = nil
		c.mu.Unlock()
		if ack != nil {
			ack <- res
		}

	case typePeerJoined:
		c.logger.Info("peer joined", zap.String("socketId", msg.SocketID), zap.String("role", string(msg.Role)))
		c.handler.OnPeerJoined(domain.PeerInfo{SocketID: msg.SocketID, Role: msg.Role})

	case typePeerLeft:
		c.logger.Info("peer left")
		c.handler.OnPeerLeft()

	case typeOffer:
		if msg.SDP == nil {
			c.logger.Warn("offer without sdp")
			return
		}
		c.handler.OnOffer(*msg.SDP)

	case typeAnswer:
		if msg.SDP == nil {
			c.logger.Warn("answer without sdp")
			return
		}
		c.handler.OnAnswer(*msg.SDP)

	case typeCandidate:
		if msg.Candidate == nil {
			c.logger.Warn("ice-candidate without candidate")
			return
		}
		c.handler.OnCandidate(*msg.Candidate)

	default:
		c.logger.Debug("unhandled message", zap.String("type", msg.Type))
	}
}

func (c *Client) pingLoop() {
	interval := defaultPingInterval
	if c.ticket.PingInterval > 0 {
		interval = time.Duration(c.ticket.PingInterval) * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.closed:
			return
		case <-ticker.C:
			c.mu.Lock()
			conn := c.conn
			var err error
			if conn != nil {
				err = conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(5*time.Second))
			}
			c.mu.Unlock()
			if err != nil {
				select {
				case <-c.closed:
				default:
					c.logger.Warn("ping", zap.Error(err))
				}
				return
			}
		}
	}
}
