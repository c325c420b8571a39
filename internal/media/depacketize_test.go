package media

import (
	"bytes"
	"testing"
)

func TestDepacketize_SinglePacketFrame(t *testing.T) {
	d := NewVP8Depacketizer()

	// Minimal descriptor (no X bit), S bit set, PID 0, marker closes the frame.
	payload := []byte{0x10, 0xaa, 0xbb, 0xcc}
	frame := d.Depacketize(payload, true)

	if frame == nil {
		t.Fatal("expected a complete frame")
	}
	if !bytes.Equal(frame, []byte{0xaa, 0xbb, 0xcc}) {
		t.Errorf("unexpected frame bytes: %v", frame)
	}
}

func TestDepacketize_FragmentedFrame(t *testing.T) {
	d := NewVP8Depacketizer()

	if got := d.Depacketize([]byte{0x10, 0x01, 0x02}, false); got != nil {
		t.Fatalf("expected nil before marker, got %v", got)
	}
	// Continuation packets have S clear.
	if got := d.Depacketize([]byte{0x00, 0x03, 0x04}, false); got != nil {
		t.Fatalf("expected nil before marker, got %v", got)
	}
	frame := d.Depacketize([]byte{0x00, 0x05}, true)

	if !bytes.Equal(frame, []byte{0x01, 0x02, 0x03, 0x04, 0x05}) {
		t.Errorf("reassembled frame wrong: %v", frame)
	}
}

func TestDepacketize_ExtendedDescriptor(t *testing.T) {
	d := NewVP8Depacketizer()

	// X set, then I with 15-bit PictureID: descriptor is 4 bytes.
	payload := []byte{0x90, 0x80, 0x81, 0x23, 0xde, 0xad}
	frame := d.Depacketize(payload, true)

	if !bytes.Equal(frame, []byte{0xde, 0xad}) {
		t.Errorf("expected descriptor stripped, got %v", frame)
	}
}

func TestDepacketize_DropsMidFrameStart(t *testing.T) {
	d := NewVP8Depacketizer()

	// Continuation with no preceding start: discarded.
	if got := d.Depacketize([]byte{0x00, 0x01}, true); got != nil {
		t.Errorf("expected orphan continuation dropped, got %v", got)
	}
}

func TestDepacketize_NewStartResetsBuffer(t *testing.T) {
	d := NewVP8Depacketizer()

	d.Depacketize([]byte{0x10, 0x01}, false)
	// A new start before the old frame's marker abandons the old bytes.
	frame := d.Depacketize([]byte{0x10, 0x02}, true)

	if !bytes.Equal(frame, []byte{0x02}) {
		t.Errorf("expected fresh frame after restart, got %v", frame)
	}
}

func TestDepacketize_Truncated(t *testing.T) {
	d := NewVP8Depacketizer()

	if got := d.Depacketize(nil, true); got != nil {
		t.Errorf("expected nil for empty payload, got %v", got)
	}
	// X set but no extension byte.
	if got := d.Depacketize([]byte{0x80}, true); got != nil {
		t.Errorf("expected nil for truncated descriptor, got %v", got)
	}
}

func TestDescriptorSize(t *testing.T) {
	cases := []struct {
		name    string
		payload []byte
		want    int
	}{
		{"minimal", []byte{0x00, 0x01}, 1},
		{"x only", []byte{0x80, 0x00, 0x01}, 2},
		{"short picture id", []byte{0x80, 0x80, 0x05, 0x01}, 3},
		{"long picture id", []byte{0x80, 0x80, 0x85, 0x23, 0x01}, 4},
		{"tl0picidx", []byte{0x80, 0x40, 0x07, 0x01}, 3},
		{"tid", []byte{0x80, 0x20, 0x07, 0x01}, 3},
		{"empty", nil, -1},
	}
	for _, c := range cases {
		if got := descriptorSize(c.payload); got != c.want {
			t.Errorf("%s: descriptorSize = %d, want %d", c.name, got, c.want)
		}
	}
}
