package negotiator

import (
	pion "github.com/pion/webrtc/v4"

	"github.com/Acon1tum/quanby-healthcare-v2-sub000/internal/domain"
)

// pionChannel adapts a Pion DataChannel to domain.AppChannel.
type pionChannel struct {
	dc *pion.DataChannel
}

func newPionChannel(dc *pion.DataChannel) *pionChannel {
	return &pionChannel{dc: dc}
}

func (c *pionChannel) Label() string { return c.dc.Label() }

func (c *pionChannel) Ready() bool {
	return c.dc.ReadyState() == pion.DataChannelStateOpen
}

func (c *pionChannel) SendText(data string) error {
	if !c.Ready() {
		return domain.ErrChannelNotOpen
	}
	return c.dc.SendText(data)
}

func (c *pionChannel) OnOpen(fn func()) { c.dc.OnOpen(fn) }

func (c *pionChannel) OnMessage(fn func(data []byte)) {
	c.dc.OnMessage(func(msg pion.DataChannelMessage) {
		fn(msg.Data)
	})
}

func (c *pionChannel) OnClose(fn func()) { c.dc.OnClose(fn) }

func (c *pionChannel) Close() error { return c.dc.Close() }
