// Package session implements the per-participant consultation controller:
// local media acquisition, relay signaling, batched offer/answer negotiation
// and unconditional teardown.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/careline/telecall/internal/core"
	"github.com/careline/telecall/internal/domain"
)

var (
	ErrAlreadyStarted = errors.New("controller already started")
	ErrAlreadyClosed  = errors.New("controller already closed")
)

const defaultNegotiationTimeout = 30 * time.Second

// Config carries the consultation tuple plus tunables. Everything the
// controller depends on is passed at construction; there is no package-level
// state.
type Config struct {
	RoomID             domain.RoomID
	ParticipantID      domain.ParticipantID
	Role               domain.Role
	NegotiationTimeout time.Duration
}

type Controller struct {
	cfg     Config
	media   MediaSource
	dial    RelayDialer
	newPeer PeerFactory

	events  chan Event
	started atomic.Bool
	done    chan struct{}

	mu       sync.Mutex
	state    State
	result   *domain.CallEnd
	muted    bool
	videoOff bool

	// Run-loop-owned; never touched from outside the loop.
	relay    RelayLink
	local    LocalMedia
	peer     PeerTransport
	peerID   domain.ParticipantID
	timer    *time.Timer
	answered bool
}

func New(cfg Config, media MediaSource, dial RelayDialer, newPeer PeerFactory) *Controller {
	if cfg.NegotiationTimeout <= 0 {
		cfg.NegotiationTimeout = defaultNegotiationTimeout
	}
	return &Controller{
		cfg:     cfg,
		media:   media,
		dial:    dial,
		newPeer: newPeer,
		events:  make(chan Event, 16),
		done:    make(chan struct{}),
		state:   StateIdle,
	}
}

// Start launches the controller. A second call while a session is in flight
// is rejected rather than coalesced.
func (c *Controller) Start(ctx context.Context) error {
	select {
	case <-c.done:
		// Closed before ever starting; the result is already recorded.
		return ErrAlreadyClosed
	default:
	}
	if !c.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	go c.run(ctx)
	return nil
}

// Close ends the call from any state. Idempotent; safe from any goroutine.
func (c *Controller) Close() {
	if !c.started.Load() {
		c.finishDirect("closed before start", nil)
		return
	}
	c.post(Event{Kind: evClose})
}

// Done is closed once teardown has completed.
func (c *Controller) Done() <-chan struct{} { return c.done }

// Result reports why the call ended; valid after Done is closed.
func (c *Controller) Result() *domain.CallEnd {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Muted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.muted
}

func (c *Controller) VideoOff() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.videoOff
}

// ToggleMute flips the outgoing audio track. No renegotiation happens; the
// sender is simply paused.
func (c *Controller) ToggleMute() { c.post(Event{Kind: evToggleAudio}) }

// ToggleVideo flips the outgoing video track.
func (c *Controller) ToggleVideo() { c.post(Event{Kind: evToggleVideo}) }

// post delivers an event to the run loop, dropping it if the session has
// already finished.
func (c *Controller) post(ev Event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	log.Debug().Str("module", "session").Str("participant", string(c.cfg.ParticipantID)).Str("state", s.String()).Msg("state change")
}

func (c *Controller) run(ctx context.Context) {
	c.setState(StateAcquiringMedia)
	local, err := c.media.Acquire(ctx)
	if err != nil {
		// Device and permission failures never reach the relay: the session
		// is over before any join is attempted.
		c.finish("media acquisition failed", err)
		return
	}
	c.local = local
	c.setState(StateMediaReady)

	relay, err := c.dial(ctx, c.post)
	if err != nil {
		c.finish("relay connect failed", fmt.Errorf("%w: %v", core.ErrRelayConnectFailed, err))
		return
	}
	c.relay = relay

	peer, err := c.newPeer(c.post)
	if err != nil {
		c.finish("peer transport setup failed", fmt.Errorf("%w: %v", core.ErrPeerNegotiationFailed, err))
		return
	}
	c.peer = peer
	for _, t := range c.local.Tracks() {
		if err := c.peer.AddTrack(t); err != nil {
			c.finish("adding local track failed", fmt.Errorf("%w: %v", core.ErrPeerNegotiationFailed, err))
			return
		}
	}

	if err := c.relay.Join(c.cfg.RoomID, c.cfg.ParticipantID, c.cfg.Role); err != nil {
		c.finish("join failed", fmt.Errorf("%w: %v", core.ErrRelayConnectFailed, err))
		return
	}
	c.setState(StateAwaitingPeer)

	// The initiator's negotiation window opens as soon as it is ready to
	// offer; it covers both "counterpart never joined" and "answer never
	// came back".
	var timeout <-chan time.Time
	if c.cfg.Role == domain.RoleInitiator {
		c.timer = time.NewTimer(c.cfg.NegotiationTimeout)
		timeout = c.timer.C
		defer c.timer.Stop()
	}

	for {
		select {
		case <-ctx.Done():
			c.finish("canceled", ctx.Err())
			return
		case <-timeout:
			if c.answered {
				// The answer won the race against an already-fired timer.
				timeout = nil
				continue
			}
			c.finish("no answer within negotiation window", core.ErrPeerNegotiationTimeout)
			return
		case ev := <-c.events:
			if done := c.handle(ctx, ev); done {
				return
			}
		}
	}
}

// handle applies one event; returns true when the session is over.
func (c *Controller) handle(ctx context.Context, ev Event) bool {
	switch ev.Kind {
	case evRoomJoined:
		if len(ev.Others) == 0 {
			return false // first in the room, wait for the counterpart
		}
		c.peerID = ev.Others[0].ID
		// A relay reconnect replays the join and gets acked again; only the
		// first ack while still awaiting the counterpart may start an offer.
		if c.cfg.Role == domain.RoleInitiator && c.State() == StateAwaitingPeer {
			return c.sendOffer(ctx)
		}
		return false

	case evUserConnected:
		c.peerID = ev.From
		if c.cfg.Role == domain.RoleInitiator && c.State() == StateAwaitingPeer {
			return c.sendOffer(ctx)
		}
		return false

	case evUserJoined:
		// Inbound offer; only the responder ever receives one.
		c.peerID = ev.From
		c.setState(StateNegotiating)
		answer, err := c.peer.AcceptOffer(ctx, ev.Signal)
		if err != nil {
			c.finish("accepting offer failed", fmt.Errorf("%w: %v", core.ErrPeerNegotiationFailed, err))
			return true
		}
		if err := c.relay.ReturnSignal(c.cfg.RoomID, c.peerID, answer); err != nil {
			c.finish("returning answer failed", fmt.Errorf("%w: %v", core.ErrRelayDisconnected, err))
			return true
		}
		return false

	case evReturnedSignal:
		if err := c.peer.ApplyAnswer(ev.Signal); err != nil {
			c.finish("applying answer failed", fmt.Errorf("%w: %v", core.ErrPeerNegotiationFailed, err))
			return true
		}
		c.answered = true
		if c.timer != nil {
			c.timer.Stop()
		}
		return false

	case evPeerConnected:
		c.setState(StateConnected)
		return false

	case evRemoteTrack:
		log.Info().Str("module", "session").Str("participant", string(c.cfg.ParticipantID)).Msg("remote media arrived")
		return false

	case evPeerFailed:
		c.finish("peer connection failed", fmt.Errorf("%w: %v", core.ErrPeerNegotiationFailed, ev.Err))
		return true

	case evUserDisconnected:
		c.finish("remote participant left", nil)
		return true

	case evRelayError:
		c.finish("relay rejected request", ev.Err)
		return true

	case evRelayDown:
		c.finish("relay connection lost", fmt.Errorf("%w: %v", core.ErrRelayDisconnected, ev.Err))
		return true

	case evToggleAudio:
		c.toggleSender(true)
		return false

	case evToggleVideo:
		c.toggleSender(false)
		return false

	case evClose:
		c.finish("closed", nil)
		return true

	default:
		log.Warn().Str("module", "session").Int("kind", int(ev.Kind)).Msg("unknown event")
		return false
	}
}

func (c *Controller) sendOffer(ctx context.Context) bool {
	c.setState(StateNegotiating)
	offer, err := c.peer.CreateOffer(ctx)
	if err != nil {
		c.finish("creating offer failed", fmt.Errorf("%w: %v", core.ErrPeerNegotiationFailed, err))
		return true
	}
	if err := c.relay.SendSignal(c.cfg.RoomID, c.peerID, offer); err != nil {
		c.finish("sending offer failed", fmt.Errorf("%w: %v", core.ErrRelayDisconnected, err))
		return true
	}
	return false
}

func (c *Controller) toggleSender(audio bool) {
	c.mu.Lock()
	kind := webrtc.RTPCodecTypeVideo
	var enabled bool
	if audio {
		kind = webrtc.RTPCodecTypeAudio
		c.muted = !c.muted
		enabled = !c.muted
	} else {
		c.videoOff = !c.videoOff
		enabled = !c.videoOff
	}
	c.mu.Unlock()

	if c.peer == nil {
		return
	}
	if err := c.peer.SetSenderEnabled(kind, enabled); err != nil {
		log.Warn().Err(err).Str("module", "session").Msg("toggle sender")
	}
}

// finish tears the session down. Local media, peer transport and relay are
// all closed regardless of individual failures. Called at most once, from
// the run loop.
func (c *Controller) finish(reason string, err error) {
	if c.local != nil {
		c.local.Close()
	}
	if c.peer != nil {
		c.peer.Close()
	}
	if c.relay != nil {
		_ = c.relay.Leave(c.cfg.RoomID, c.cfg.ParticipantID)
		c.relay.Close()
	}
	c.finishDirect(reason, err)
}

func (c *Controller) finishDirect(reason string, err error) {
	c.mu.Lock()
	if c.result != nil {
		c.mu.Unlock()
		return
	}
	if errors.Is(err, core.ErrMediaPermissionDenied) || errors.Is(err, core.ErrMediaDeviceNotFound) {
		c.state = StateMediaDenied
	} else {
		c.state = StateEnded
	}
	c.result = &domain.CallEnd{At: time.Now(), Reason: reason, Err: err}
	c.mu.Unlock()
	close(c.done)

	evt := log.Info()
	if err != nil {
		evt = log.Error().Err(err)
	}
	evt.Str("module", "session").
		Str("participant", string(c.cfg.ParticipantID)).
		Str("reason", reason).
		Msg("call ended")
	if err != nil {
		log.Info().Str("module", "session").Str("user_message", core.UserMessage(err)).Msg("surfaced to user")
	}
}
