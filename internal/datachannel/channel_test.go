package datachannel

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Acon1tum/quanby-healthcare-v2-sub000/internal/domain"
)

// fakeAppChannel is an in-memory domain.AppChannel for driving the
// protocol wrapper by hand.
type fakeAppChannel struct {
	sent      []string
	open      bool
	onOpen    func()
	onMessage func([]byte)
	onClose   func()
	closed    bool

	// onSend fires once, on the first delivery.
	onSend func()
}

func (f *fakeAppChannel) Label() string { return Label }

func (f *fakeAppChannel) Ready() bool { return f.open }

func (f *fakeAppChannel) SendText(data string) error {
	if !f.open {
		return domain.ErrChannelNotOpen
	}
	f.sent = append(f.sent, data)
	if f.onSend != nil {
		fn := f.onSend
		f.onSend = nil
		fn()
	}
	return nil
}

func (f *fakeAppChannel) OnOpen(fn func()) { f.onOpen = fn }

func (f *fakeAppChannel) OnMessage(fn func([]byte)) { f.onMessage = fn }

func (f *fakeAppChannel) OnClose(fn func()) { f.onClose = fn }

func (f *fakeAppChannel) Close() error { f.closed = true; return nil }

func (f *fakeAppChannel) fireOpen() {
	f.open = true
	if f.onOpen != nil {
		f.onOpen()
	}
}

func (f *fakeAppChannel) fireClose() {
	f.open = false
	if f.onClose != nil {
		f.onClose()
	}
}

func newTestChannel(t *testing.T, fake *fakeAppChannel) *Channel {
	t.Helper()
	router := NewRouter(zap.NewNop())
	return Wrap(fake, router, zap.NewNop(), nil, nil)
}

func TestSend_QueuesUntilOpenAndFlushesInOrder(t *testing.T) {
	fake := &fakeAppChannel{}
	ch := newTestChannel(t, fake)

	// Sent before open: queued, not delivered.
	for i := 0; i < 3; i++ {
		msg := NewFaceScanStatus("status", nil)
		msg.Timestamp = int64(i)
		if err := ch.Send(msg); err != nil {
			t.Fatalf("pre-open send %d: %v", i, err)
		}
	}
	if len(fake.sent) != 0 {
		t.Fatalf("expected no deliveries before open, got %d", len(fake.sent))
	}

	fake.fireOpen()

	if len(fake.sent) != 3 {
		t.Fatalf("expected 3 flushed messages, got %d", len(fake.sent))
	}
	for i, raw := range fake.sent {
		var msg FaceScanStatus
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			t.Fatalf("unmarshal flushed message: %v", err)
		}
		if msg.Timestamp != int64(i) {
			t.Errorf("message %d flushed out of order: timestamp %d", i, msg.Timestamp)
		}
	}
}

func TestSend_OrderPreservedWhileOpen(t *testing.T) {
	fake := &fakeAppChannel{}
	ch := newTestChannel(t, fake)
	fake.fireOpen()

	for i := 0; i < 10; i++ {
		msg := NewFaceScanStatus("status", nil)
		msg.Timestamp = int64(i)
		if err := ch.Send(msg); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}

	if len(fake.sent) != 10 {
		t.Fatalf("expected 10 messages, got %d", len(fake.sent))
	}
	for i, raw := range fake.sent {
		var msg FaceScanStatus
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			t.Fatal(err)
		}
		if msg.Timestamp != int64(i) {
			t.Errorf("position %d holds timestamp %d", i, msg.Timestamp)
		}
	}
}

func TestSend_RacingOpenCannotOvertakeQueue(t *testing.T) {
	fake := &fakeAppChannel{}
	ch := newTestChannel(t, fake)

	for i := 0; i < 3; i++ {
		msg := NewFaceScanStatus("queued", nil)
		msg.Timestamp = int64(i)
		if err := ch.Send(msg); err != nil {
			t.Fatalf("pre-open send %d: %v", i, err)
		}
	}

	// Fire a send from another goroutine while the open flush is mid
	// delivery; it must not slip in front of the queued messages.
	raced := make(chan error, 1)
	fake.onSend = func() {
		go func() {
			msg := NewFaceScanStatus("late", nil)
			msg.Timestamp = 99
			raced <- ch.Send(msg)
		}()
		// Give the racing send a chance to run before the flush ends.
		time.Sleep(20 * time.Millisecond)
	}

	fake.fireOpen()
	if err := <-raced; err != nil {
		t.Fatalf("racing send: %v", err)
	}

	if len(fake.sent) != 4 {
		t.Fatalf("expected 4 deliveries, got %d", len(fake.sent))
	}
	want := []int64{0, 1, 2, 99}
	for i, raw := range fake.sent {
		var msg FaceScanStatus
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			t.Fatal(err)
		}
		if msg.Timestamp != want[i] {
			t.Errorf("position %d holds timestamp %d, want %d", i, msg.Timestamp, want[i])
		}
	}
}

func TestClose_DiscardsQueue(t *testing.T) {
	fake := &fakeAppChannel{}
	ch := newTestChannel(t, fake)

	if err := ch.Send(NewFaceScanRequest("AB12CD")); err != nil {
		t.Fatalf("pre-open send: %v", err)
	}

	fake.fireClose()

	// Nothing is resent into the dead channel, even if it "reopens".
	fake.fireOpen()
	if len(fake.sent) != 0 {
		t.Errorf("expected queued messages discarded on close, got %d sent", len(fake.sent))
	}

	if err := ch.Send(NewFaceScanRequest("AB12CD")); err != domain.ErrChannelNotOpen {
		t.Errorf("expected ErrChannelNotOpen on closed channel, got %v", err)
	}
}

func TestWaitReady(t *testing.T) {
	fake := &fakeAppChannel{}
	ch := newTestChannel(t, fake)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := ch.WaitReady(ctx); err == nil {
		t.Fatal("expected timeout waiting for a channel that never opens")
	}

	fake.fireOpen()
	if err := ch.WaitReady(context.Background()); err != nil {
		t.Fatalf("expected immediate success after open, got %v", err)
	}
}

func TestDispatch_InboundMessagesRouted(t *testing.T) {
	fake := &fakeAppChannel{}
	router := NewRouter(zap.NewNop())

	var got []string
	router.Register(TypeFaceScanStatus, func(raw []byte) {
		var msg FaceScanStatus
		if err := json.Unmarshal(raw, &msg); err != nil {
			t.Fatal(err)
		}
		got = append(got, msg.Status)
	})

	Wrap(fake, router, zap.NewNop(), nil, nil)
	fake.fireOpen()

	for _, s := range []string{"a", "b", "c"} {
		raw, _ := json.Marshal(NewFaceScanStatus(s, nil))
		fake.onMessage(raw)
	}

	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Errorf("expected inbound order [a b c], got %v", got)
	}
}
