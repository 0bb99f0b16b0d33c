package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/careline/telecall/internal/config"
	"github.com/careline/telecall/internal/core"
	"github.com/careline/telecall/internal/domain"
	"github.com/careline/telecall/internal/protocol"
)

const relayWriteTimeout = 5 * time.Second

// relayClient is the controller's persistent connection to the signaling
// relay. Transient network loss triggers a bounded redial-and-rejoin; once
// the retry budget is spent the session gets evRelayDown and ends.
type relayClient struct {
	url      string
	attempts int
	backoff  time.Duration
	notify   func(Event)

	mu     sync.Mutex
	conn   *websocket.Conn
	room   domain.RoomID
	id     domain.ParticipantID
	role   domain.Role
	joined bool
	closed bool
}

// NewRelayDialer builds a RelayDialer from client config. The initial dial
// uses the same bounded backoff as mid-call recovery.
func NewRelayDialer(cfg config.ClientConfig) RelayDialer {
	return func(ctx context.Context, notify func(Event)) (RelayLink, error) {
		c := &relayClient{
			url:      cfg.RelayURL,
			attempts: cfg.ReconnectAttempts,
			backoff:  cfg.ReconnectBackoff,
			notify:   notify,
		}
		conn, err := c.dialWithRetry(ctx)
		if err != nil {
			return nil, err
		}
		c.conn = conn
		go c.readLoop(ctx)
		return c, nil
	}
}

func (c *relayClient) dialWithRetry(ctx context.Context) (*websocket.Conn, error) {
	attempts := c.attempts
	if attempts < 1 {
		// A zero or negative retry budget still dials once.
		attempts = 1
	}
	var lastErr error
	delay := c.backoff
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			delay *= 2
		}
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		log.Warn().Err(err).Str("module", "session.relay").Int("attempt", i+1).Msg("relay dial failed")
	}
	return nil, lastErr
}

func (c *relayClient) readLoop(ctx context.Context) {
	for {
		c.mu.Lock()
		conn := c.conn
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			if c.reconnect(ctx) {
				continue
			}
			c.mu.Lock()
			wasClosed := c.closed
			c.mu.Unlock()
			if !wasClosed {
				c.notify(Event{Kind: evRelayDown, Err: err})
			}
			return
		}

		if ev, ok := decodeServerMessage(data); ok {
			c.notify(ev)
		}
	}
}

// reconnect redials and replays the join so the relay swaps in the fresh
// handle. Returns false when the retry budget is exhausted or the link was
// closed on purpose.
func (c *relayClient) reconnect(ctx context.Context) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	room, id, role, joined := c.room, c.id, c.role, c.joined
	c.mu.Unlock()

	conn, err := c.dialWithRetry(ctx)
	if err != nil {
		return false
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return false
	}
	c.conn = conn
	c.mu.Unlock()

	if joined {
		if err := c.Join(room, id, role); err != nil {
			return false
		}
	}
	log.Info().Str("module", "session.relay").Msg("relay connection restored")
	return true
}

func decodeServerMessage(data []byte) (Event, bool) {
	typ, err := protocol.TypeOf(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "session.relay").Msg("undecodable relay frame")
		return Event{}, false
	}

	switch typ {
	case protocol.TypeRoomJoined:
		var p protocol.RoomJoined
		if err := json.Unmarshal(data, &p); err != nil {
			break
		}
		return Event{Kind: evRoomJoined, Others: p.Others}, true
	case protocol.TypeUserConnected:
		var p protocol.UserConnected
		if err := json.Unmarshal(data, &p); err != nil {
			break
		}
		return Event{Kind: evUserConnected, From: p.ParticipantID}, true
	case protocol.TypeUserJoined:
		var p protocol.UserJoined
		if err := json.Unmarshal(data, &p); err != nil {
			break
		}
		return Event{Kind: evUserJoined, From: p.From, Signal: p.Signal}, true
	case protocol.TypeReceivingReturnedSignal:
		var p protocol.ReceivingReturnedSignal
		if err := json.Unmarshal(data, &p); err != nil {
			break
		}
		return Event{Kind: evReturnedSignal, From: p.From, Signal: p.Signal}, true
	case protocol.TypeUserDisconnected:
		var p protocol.UserDisconnected
		if err := json.Unmarshal(data, &p); err != nil {
			break
		}
		return Event{Kind: evUserDisconnected, From: p.ParticipantID}, true
	case protocol.TypeError:
		var p protocol.ErrorMessage
		if err := json.Unmarshal(data, &p); err != nil {
			break
		}
		relErr := fmt.Errorf("relay error %s: %s", p.Code, p.Error)
		if p.Code == protocol.CodeRoomFull {
			relErr = fmt.Errorf("%w: %s", core.ErrRoomFull, p.Error)
		}
		return Event{Kind: evRelayError, Err: relErr}, true
	default:
		log.Warn().Str("module", "session.relay").Str("type", typ).Msg("unexpected relay frame")
	}
	return Event{}, false
}

func (c *relayClient) writeJSON(v any) error {
	frame, err := protocol.Encode(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("relay link closed")
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(relayWriteTimeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

func (c *relayClient) Join(room domain.RoomID, id domain.ParticipantID, role domain.Role) error {
	c.mu.Lock()
	c.room, c.id, c.role, c.joined = room, id, role, true
	c.mu.Unlock()
	return c.writeJSON(protocol.JoinRoom{
		Type:          protocol.TypeJoinRoom,
		RoomID:        room,
		ParticipantID: id,
		Role:          role,
	})
}

func (c *relayClient) SendSignal(room domain.RoomID, to domain.ParticipantID, sig protocol.Signal) error {
	c.mu.Lock()
	from := c.id
	c.mu.Unlock()
	return c.writeJSON(protocol.SendSignal{
		Type:   protocol.TypeSendSignal,
		RoomID: room,
		To:     to,
		From:   from,
		Signal: sig,
	})
}

func (c *relayClient) ReturnSignal(room domain.RoomID, to domain.ParticipantID, sig protocol.Signal) error {
	return c.writeJSON(protocol.ReturnSignal{
		Type:   protocol.TypeReturnSignal,
		RoomID: room,
		To:     to,
		Signal: sig,
	})
}

func (c *relayClient) Leave(room domain.RoomID, id domain.ParticipantID) error {
	return c.writeJSON(protocol.LeaveRoom{
		Type:          protocol.TypeLeaveRoom,
		RoomID:        room,
		ParticipantID: id,
	})
}

func (c *relayClient) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}
