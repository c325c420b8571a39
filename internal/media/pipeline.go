// Package media acquires the local camera and microphone and exposes the
// remote party's video as a consumable byte stream.
package media

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"     // registers the camera adapter
	_ "github.com/pion/mediadevices/pkg/driver/microphone" // registers the microphone adapter
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"

	"github.com/Acon1tum/quanby-healthcare-v2-sub000/internal/domain"
)

// Pipeline owns the local media track set. Each acquisition's tracks
// are stopped exactly once, on the first Release after it; the same
// pipeline is reused across sessions, so Acquire re-arms Release.
type Pipeline struct {
	logger   *zap.Logger
	selector *mediadevices.CodecSelector

	mu     sync.Mutex
	stream mediadevices.MediaStream
}

// NewPipeline builds a pipeline with VP8 video and Opus audio encoders.
func NewPipeline(logger *zap.Logger) (*Pipeline, error) {
	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, fmt.Errorf("create VP8 params: %w", err)
	}
	vpxParams.BitRate = 500_000
	vpxParams.KeyFrameInterval = 15

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, fmt.Errorf("create Opus params: %w", err)
	}
	opusParams.Latency = opus.Latency20ms

	selector := mediadevices.NewCodecSelector(
		mediadevices.WithVideoEncoders(&vpxParams),
		mediadevices.WithAudioEncoders(&opusParams),
	)

	return &Pipeline{
		logger:   logger.Named("media"),
		selector: selector,
	}, nil
}

// RegisterCodecs registers the pipeline's codecs with a media engine so
// the peer session can carry its tracks.
func (p *Pipeline) RegisterCodecs(engine *webrtc.MediaEngine) error {
	p.selector.Populate(engine)
	return nil
}

// Acquire opens the camera and microphone. Device acquisition can block
// on an OS permission prompt, so it runs under the caller's context.
// Failures are classified so the controller can tell a denied permission
// from a missing device.
func (p *Pipeline) Acquire(ctx context.Context) error {
	type result struct {
		stream mediadevices.MediaStream
		err    error
	}
	done := make(chan result, 1)

	go func() {
		stream, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
			Video: func(c *mediadevices.MediaTrackConstraints) {
				c.Width = prop.Int(640)
				c.Height = prop.Int(480)
				c.FrameRate = prop.Float(30)
			},
			Audio: func(c *mediadevices.MediaTrackConstraints) {
				c.SampleRate = prop.Int(48000)
				c.ChannelCount = prop.Int(1)
				c.Latency = prop.Duration(20 * time.Millisecond)
			},
			Codec: p.selector,
		})
		done <- result{stream, err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return ClassifyAcquireError(res.err)
		}
		p.mu.Lock()
		p.stream = res.stream
		p.mu.Unlock()
		p.logger.Info("local media acquired", zap.Int("tracks", len(res.stream.GetTracks())))
		return nil
	case <-ctx.Done():
		// The device may still open later; close it when it does.
		go func() {
			if res := <-done; res.err == nil {
				for _, t := range res.stream.GetTracks() {
					t.Close()
				}
			}
		}()
		return fmt.Errorf("acquire media: %w", domain.ErrTimeout)
	}
}

// Tracks returns the acquired local tracks, ready to attach to a peer
// session. Empty before Acquire succeeds.
func (p *Pipeline) Tracks() []webrtc.TrackLocal {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stream == nil {
		return nil
	}
	var tracks []webrtc.TrackLocal
	for _, t := range p.stream.GetTracks() {
		tracks = append(tracks, t)
	}
	return tracks
}

// Release stops every local track of the current acquisition.
// Idempotent per acquisition: the first call stops the tracks, later
// calls are no-ops until Acquire succeeds again.
func (p *Pipeline) Release() {
	p.mu.Lock()
	stream := p.stream
	p.stream = nil
	p.mu.Unlock()

	if stream == nil {
		return
	}
	for _, t := range stream.GetTracks() {
		if err := t.Close(); err != nil {
			p.logger.Warn("close track", zap.Error(err))
		}
	}
	p.logger.Info("local media released")
}

// ClassifyAcquireError maps a device acquisition failure to one of the
// controller's error kinds.
func ClassifyAcquireError(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "permission denied") || strings.Contains(msg, "operation not permitted"):
		return fmt.Errorf("acquire media: %v: %w", err, domain.ErrCameraDenied)
	case strings.Contains(msg, "failed to find the best driver") ||
		strings.Contains(msg, "no such device") ||
		strings.Contains(msg, "not found"):
		return fmt.Errorf("acquire media: %v: %w", err, domain.ErrCameraNotFound)
	default:
		return fmt.Errorf("acquire media: %w", err)
	}
}
