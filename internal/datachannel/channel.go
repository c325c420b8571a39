// Package datachannel implements the ordered, reliable application
// message protocol carried over one peer session's data channel.
package datachannel

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/Acon1tum/quanby-healthcare-v2-sub000/internal/domain"
)

// Label is the data channel label both sides agree on.
const Label = "consultation"

// Channel wraps one data channel instance with the application protocol:
// JSON encoding, pre-open queueing, and type-routed dispatch. Messages
// sent before the channel opens are queued and flushed in send order on
// open; a closed channel discards its queue rather than resending into a
// dead session. Ordering holds within one Channel instance only — a
// fresh open event is a reset point for consumers.
type Channel struct {
	logger *zap.Logger
	router *Router

	mu     sync.Mutex
	ch     domain.AppChannel
	open   bool
	closed bool
	queue  []string

	opened   chan struct{}
	openOnce sync.Once
	onOpen   func()
	onClose  func()
}

// Wrap attaches the protocol to a transport channel. onOpen fires after
// any queued messages have been flushed; onClose fires when the channel
// closes for good.
func Wrap(ch domain.AppChannel, router *Router, logger *zap.Logger, onOpen, onClose func()) *Channel {
	c := &Channel{
		logger:  logger.Named("datachannel"),
		router:  router,
		ch:      ch,
		opened:  make(chan struct{}),
		onOpen:  onOpen,
		onClose: onClose,
	}

	ch.OnOpen(func() {
		// The queue is flushed before open is published, and sends hold
		// the same lock, so a send racing the open event cannot overtake
		// queued messages.
		c.mu.Lock()
		pending := c.queue
		c.queue = nil
		for _, data := range pending {
			if err := ch.SendText(data); err != nil {
				c.logger.Warn("flush queued message", zap.Error(err))
			}
		}
		c.open = true
		c.mu.Unlock()

		if len(pending) > 0 {
			c.logger.Info("flushed queued messages", zap.Int("count", len(pending)))
		}

		c.openOnce.Do(func() { close(c.opened) })
		if c.onOpen != nil {
			c.onOpen()
		}
	})

	ch.OnMessage(func(data []byte) {
		router.Dispatch(data)
	})

	ch.OnClose(func() {
		c.mu.Lock()
		alreadyClosed := c.closed
		c.open = false
		c.closed = true
		dropped := len(c.queue)
		c.queue = nil
		c.mu.Unlock()

		if dropped > 0 {
			c.logger.Warn("discarding queued messages on close", zap.Int("count", dropped))
		}
		if !alreadyClosed && c.onClose != nil {
			c.onClose()
		}
	})

	return c
}

// Ready reports whether the channel is open for sends.
func (c *Channel) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// Send marshals msg and sends it, queueing it if the channel has not
// opened yet. Sending on a closed channel is a logged no-op.
func (c *Channel) Send(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.logger.Warn("drop message on closed channel")
		return domain.ErrChannelNotOpen
	}
	if !c.open {
		c.queue = append(c.queue, string(data))
		c.mu.Unlock()
		c.logger.Debug("queued message until channel opens")
		return nil
	}
	// Sent under the lock so concurrent sends keep their relative order
	// and none can slip past an in-progress open flush.
	err = c.ch.SendText(string(data))
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn("send", zap.Error(err))
		return err
	}
	return nil
}

// WaitReady blocks until the channel opens or the context expires. A
// channel that never opens yields a distinct error from one whose peer
// never answered.
func (c *Channel) WaitReady(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return domain.ErrChannelNeverOpen
	}
	c.mu.Unlock()

	select {
	case <-c.opened:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for data channel: %w", domain.ErrChannelNeverOpen)
	}
}

// Close closes the underlying transport channel.
func (c *Channel) Close() error {
	c.mu.Lock()
	ch := c.ch
	c.mu.Unlock()
	if ch == nil {
		return nil
	}
	return ch.Close()
}
