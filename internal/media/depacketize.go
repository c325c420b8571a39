package media

import (
	"io"

	pion "github.com/pion/webrtc/v4"
	"go.uber.org/zap"
)

// VP8Depacketizer reassembles VP8 frames from RTP payloads. It maintains
// instance state for fragment reassembly, so each remote track needs its
// own depacketizer.
type VP8Depacketizer struct {
	frame   []byte
	started bool
}

// NewVP8Depacketizer creates a depacketizer with its own reassembly buffer.
func NewVP8Depacketizer() *VP8Depacketizer {
	return &VP8Depacketizer{}
}

// Depacketize consumes one RTP payload. It returns a complete VP8 frame
// when marker closes the frame, nil otherwise. Payloads that arrive
// before a frame start are discarded.
func (d *VP8Depacketizer) Depacketize(payload []byte, marker bool) []byte {
	offset := descriptorSize(payload)
	if offset < 0 || offset >= len(payload) {
		return nil
	}

	start := payload[0]&0x10 != 0 && payload[0]&0x07 == 0 // S bit set, PID zero

	if start {
		d.frame = d.frame[:0]
		d.started = true
	}
	if !d.started {
		return nil
	}

	d.frame = append(d.frame, payload[offset:]...)

	if marker {
		frame := make([]byte, len(d.frame))
		copy(frame, d.frame)
		d.frame = d.frame[:0]
		d.started = false
		return frame
	}
	return nil
}

// descriptorSize returns the length of the VP8 payload descriptor
// (RFC 7741), or -1 if the payload is truncated.
func descriptorSize(payload []byte) int {
	if len(payload) < 1 {
		return -1
	}
	size := 1
	if payload[0]&0x80 == 0 { // X bit
		return size
	}
	if len(payload) < 2 {
		return -1
	}
	ext := payload[1]
	size = 2
	if ext&0x80 != 0 { // I: PictureID
		if len(payload) <= size {
			return -1
		}
		if payload[size]&0x80 != 0 { // M: 15-bit PictureID
			size += 2
		} else {
			size++
		}
	}
	if ext&0x40 != 0 { // L: TL0PICIDX
		size++
	}
	if ext&0x30 != 0 { // T or K: TID/KEYIDX
		size++
	}
	if size > len(payload) {
		return -1
	}
	return size
}

// StreamRemoteVideo reads the remote video track and writes raw VP8
// frames to w until the track ends. Intended to run on its own
// goroutine.
func StreamRemoteVideo(track *pion.TrackRemote, w io.Writer, logger *zap.Logger) {
	depack := NewVP8Depacketizer()

	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			if err != io.EOF {
				logger.Warn("video track read", zap.Error(err))
			}
			return
		}
		if frame := depack.Depacketize(pkt.Payload, pkt.Marker); frame != nil {
			if _, err := w.Write(frame); err != nil {
				logger.Warn("write frame", zap.Error(err))
				return
			}
		}
	}
}
