//go:build !linux

package session

import (
	"context"
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/careline/telecall/internal/core"
)

// CaptureSource needs platform capture drivers (V4L2/malgo); on other
// platforms acquisition reports a missing device instead of pretending.
type CaptureSource struct{}

func NewCaptureSource() (*CaptureSource, error) {
	return &CaptureSource{}, nil
}

func (s *CaptureSource) PopulateEngine(me *webrtc.MediaEngine) error {
	return me.RegisterDefaultCodecs()
}

func (s *CaptureSource) Acquire(ctx context.Context) (LocalMedia, error) {
	return nil, fmt.Errorf("%w: media capture is not supported on this platform", core.ErrMediaDeviceNotFound)
}
