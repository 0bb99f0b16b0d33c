// Package signalws adapts the relay service onto a gorilla/websocket
// transport: one persistent connection per participant, read/write pumps,
// and backpressure-bounded sends.
package signalws

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/careline/telecall/internal/config"
	"github.com/careline/telecall/internal/core"
	"github.com/careline/telecall/internal/relay"
)

var ErrBackpressure = errors.New("backpressure")

const writeTimeout = 5 * time.Second

type Controller struct {
	Relay      *relay.Service
	ReadLimit  int64
	PingPeriod time.Duration
}

func NewController(svc *relay.Service, cfg *config.Config) *Controller {
	return &Controller{
		Relay:      svc,
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
	}
}

// wsConn is the relay-side SignalConn: a buffered send channel drained by
// writePump. A slow client fills the buffer and gets its frame dropped
// rather than blocking the room.
type wsConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.Mutex
	closed bool
}

func (c *wsConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the HTTP request and pumps frames until the client
// goes away. Membership cleanup happens on the read loop's way out, so a
// dropped transport always produces the departure notification.
func (ctl *Controller) HandleSignal(ctx context.Context, c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signalws").Msg("ws upgrade")
		return
	}
	ws.SetReadLimit(ctl.ReadLimit)

	conn := &wsConn{
		conn: ws,
		send: make(chan core.Frame, 32),
	}
	sess := &session{ctl: ctl, conn: conn}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go ctl.writePump(ctx, conn)
	ctl.readPump(ctx, sess)
}

func (ctl *Controller) writePump(ctx context.Context, c *wsConn) {
	ticker := time.NewTicker(ctl.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				log.Error().Err(err).Str("module", "signalws").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signalws").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *Controller) readPump(ctx context.Context, s *session) {
	defer func() {
		s.onDisconnect()
		s.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := s.conn.conn.ReadMessage()
			if err != nil {
				log.Info().Err(err).Str("module", "signalws").Str("participant", string(s.participantID)).Msg("readPump exit")
				return
			}
			s.handleMessage(data)
		}
	}
}
