//go:build linux

package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/careline/telecall/internal/core"
)

// CaptureSource acquires camera and microphone via pion/mediadevices
// (V4L2 + malgo on Linux), encoding VP8 + Opus.
type CaptureSource struct {
	selector *mediadevices.CodecSelector
}

func NewCaptureSource() (*CaptureSource, error) {
	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, fmt.Errorf("vp8 params: %w", err)
	}
	vpxParams.BitRate = 1_500_000

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, fmt.Errorf("opus params: %w", err)
	}

	return &CaptureSource{
		selector: mediadevices.NewCodecSelector(
			mediadevices.WithVideoEncoders(&vpxParams),
			mediadevices.WithAudioEncoders(&opusParams),
		),
	}, nil
}

// PopulateEngine registers the capture codecs on the peer's media engine;
// pass it to NewPeerFactory so local tracks bind.
func (s *CaptureSource) PopulateEngine(me *webrtc.MediaEngine) error {
	s.selector.Populate(me)
	return nil
}

func (s *CaptureSource) Acquire(ctx context.Context) (LocalMedia, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	devices := mediadevices.EnumerateDevices()
	if len(devices) == 0 {
		return nil, fmt.Errorf("%w: no capture devices present", core.ErrMediaDeviceNotFound)
	}
	for _, d := range devices {
		log.Debug().Str("module", "session.media").Str("label", d.Label).Msg("media device")
	}

	stream, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
		Codec: s.selector,
		Video: func(c *mediadevices.MediaTrackConstraints) {
			// Raw formats only; some cameras expose an MJPEG node that
			// produces malformed frames and poisons the VP8 encoder.
			c.FrameFormat = prop.FrameFormatOneOf{
				frame.FormatYUYV,
				frame.FormatI420,
				frame.FormatI444,
				frame.FormatRGBA,
			}
			c.Width = prop.IntRanged{Max: 640}
			c.Height = prop.IntRanged{Max: 480}
		},
		Audio: func(_ *mediadevices.MediaTrackConstraints) {},
	})
	if err != nil {
		return nil, classifyMediaError(err)
	}

	tracks := stream.GetTracks()
	for _, t := range tracks {
		t.OnEnded(func(err error) {
			if err != nil {
				log.Warn().Err(err).Str("module", "session.media").Msg("local track ended")
			}
		})
	}
	log.Info().Str("module", "session.media").Int("tracks", len(tracks)).Msg("local media captured")
	return &captureMedia{tracks: tracks}, nil
}

// classifyMediaError maps driver failures onto the user-facing taxonomy so
// "permission denied" and "no device" render as different messages.
func classifyMediaError(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "permission denied"), strings.Contains(msg, "not permitted"):
		return fmt.Errorf("%w: %v", core.ErrMediaPermissionDenied, err)
	case strings.Contains(msg, "failed to find"), strings.Contains(msg, "no such"), strings.Contains(msg, "not found"):
		return fmt.Errorf("%w: %v", core.ErrMediaDeviceNotFound, err)
	default:
		return fmt.Errorf("media capture: %w", err)
	}
}

type captureMedia struct {
	tracks []mediadevices.Track
}

func (m *captureMedia) Tracks() []webrtc.TrackLocal {
	out := make([]webrtc.TrackLocal, 0, len(m.tracks))
	for _, t := range m.tracks {
		out = append(out, t)
	}
	return out
}

func (m *captureMedia) Close() {
	for _, t := range m.tracks {
		if err := t.Close(); err != nil {
			log.Warn().Err(err).Str("module", "session.media").Msg("track close")
		}
	}
}
