package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/careline/telecall/internal/core"
	"github.com/careline/telecall/internal/protocol"
)

// peerConn wraps a pion PeerConnection with batched negotiation: local
// descriptions are only handed out after ICE gathering completes, so every
// offer/answer already carries the full candidate set.
type peerConn struct {
	pc     *webrtc.PeerConnection
	notify func(Event)

	mu      sync.Mutex
	senders map[webrtc.RTPCodecType]*webrtc.RTPSender
	tracks  map[webrtc.RTPCodecType]webrtc.TrackLocal

	closeOnce sync.Once
}

// NewPeerFactory builds a PeerFactory for the given STUN servers. populate
// registers the codecs the local media source encodes with; nil falls back
// to pion's defaults (remote-only sessions, tests).
func NewPeerFactory(stunServers []string, populate func(*webrtc.MediaEngine) error) PeerFactory {
	return func(notify func(Event)) (PeerTransport, error) {
		me := &webrtc.MediaEngine{}
		if populate != nil {
			if err := populate(me); err != nil {
				return nil, fmt.Errorf("populate media engine: %w", err)
			}
		} else if err := me.RegisterDefaultCodecs(); err != nil {
			return nil, fmt.Errorf("register codecs: %w", err)
		}

		ir := &interceptor.Registry{}
		if err := webrtc.RegisterDefaultInterceptors(me, ir); err != nil {
			return nil, fmt.Errorf("register interceptors: %w", err)
		}

		api := webrtc.NewAPI(
			webrtc.WithMediaEngine(me),
			webrtc.WithInterceptorRegistry(ir),
		)
		pc, err := api.NewPeerConnection(webrtc.Configuration{
			ICEServers: []webrtc.ICEServer{{URLs: stunServers}},
		})
		if err != nil {
			return nil, fmt.Errorf("new peer connection: %w", err)
		}

		p := &peerConn{
			pc:      pc,
			notify:  notify,
			senders: make(map[webrtc.RTPCodecType]*webrtc.RTPSender),
			tracks:  make(map[webrtc.RTPCodecType]webrtc.TrackLocal),
		}
		p.bindHandlers()
		return p, nil
	}
}

func (p *peerConn) bindHandlers() {
	p.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Info().Str("module", "session.peer").Str("ice_state", s.String()).Msg("ICE state")
	})

	p.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "session.peer").Str("peer_connection_state", s.String()).Msg("peer state")
		switch s {
		case webrtc.PeerConnectionStateConnected:
			p.notify(Event{Kind: evPeerConnected})
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			p.notify(Event{Kind: evPeerFailed, Err: fmt.Errorf("peer connection %s", s)})
		}
	})

	p.pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "session.peer").
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("remote track received")
		p.notify(Event{Kind: evRemoteTrack})
	})
}

func (p *peerConn) AddTrack(t webrtc.TrackLocal) error {
	sender, err := p.pc.AddTrack(t)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.senders[t.Kind()] = sender
	p.tracks[t.Kind()] = t
	p.mu.Unlock()
	return nil
}

func (p *peerConn) CreateOffer(ctx context.Context) (protocol.Signal, error) {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return protocol.Signal{}, err
	}

	gatherComplete := webrtc.GatheringCompletePromise(p.pc)
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return protocol.Signal{}, err
	}
	select {
	case <-gatherComplete:
	case <-ctx.Done():
		return protocol.Signal{}, ctx.Err()
	}

	ld := p.pc.LocalDescription()
	return protocol.Signal{Kind: protocol.KindOffer, SDP: ld.SDP}, nil
}

func (p *peerConn) AcceptOffer(ctx context.Context, offer protocol.Signal) (protocol.Signal, error) {
	if offer.Kind != protocol.KindOffer {
		return protocol.Signal{}, fmt.Errorf("%w: expected offer, got %s", core.ErrSignalMalformed, offer.Kind)
	}
	if err := p.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  offer.SDP,
	}); err != nil {
		return protocol.Signal{}, err
	}
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return protocol.Signal{}, err
	}

	gatherComplete := webrtc.GatheringCompletePromise(p.pc)
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return protocol.Signal{}, err
	}
	select {
	case <-gatherComplete:
	case <-ctx.Done():
		return protocol.Signal{}, ctx.Err()
	}

	ld := p.pc.LocalDescription()
	return protocol.Signal{Kind: protocol.KindAnswer, SDP: ld.SDP}, nil
}

func (p *peerConn) ApplyAnswer(answer protocol.Signal) error {
	if answer.Kind != protocol.KindAnswer {
		return fmt.Errorf("%w: expected answer, got %s", core.ErrSignalMalformed, answer.Kind)
	}
	return p.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  answer.SDP,
	})
}

// SetSenderEnabled pauses an outgoing kind by detaching its track from the
// sender; reattaching resumes it. No renegotiation is triggered either way.
func (p *peerConn) SetSenderEnabled(kind webrtc.RTPCodecType, enabled bool) error {
	p.mu.Lock()
	sender, ok := p.senders[kind]
	track := p.tracks[kind]
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("no %s sender", kind)
	}
	if enabled {
		return sender.ReplaceTrack(track)
	}
	return sender.ReplaceTrack(nil)
}

func (p *peerConn) Close() {
	p.closeOnce.Do(func() {
		if err := p.pc.Close(); err != nil {
			log.Error().Err(err).Str("module", "session.peer").Msg("close error")
		} else {
			log.Info().Str("module", "session.peer").Msg("closed")
		}
	})
}
