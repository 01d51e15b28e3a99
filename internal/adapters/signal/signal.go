// Package signal is the WebSocket adapter: it upgrades connections, gates
// them through authentication and dispatches protocol frames against the
// relay registry.
package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/vigia-cam/vigia/internal/config"
	"github.com/vigia-cam/vigia/internal/domain"
	"github.com/vigia-cam/vigia/internal/relay"
)

var ErrBackpressure = errors.New("backpressure")

// Verifier is the capability consumed from the auth service.
type Verifier interface {
	Verify(token string) (domain.Identity, bool)
}

type Controller struct {
	registry *relay.Registry
	auth     Verifier

	authTimeout time.Duration
	sendBuffer  int
	readLimit   int64
}

func NewController(reg *relay.Registry, verifier Verifier, cfg *config.Config) *Controller {
	return &Controller{
		registry:    reg,
		auth:        verifier,
		authTimeout: cfg.AuthTimeout,
		sendBuffer:  cfg.SendBuffer,
		readLimit:   cfg.ReadLimit,
	}
}

// transport is what a connection needs from its socket. wsConn implements
// it; tests substitute a fake.
type transport interface {
	TrySend(relay.Frame) error
	Close()
}

type wsConn struct {
	conn *websocket.Conn
	send chan relay.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *wsConn) TrySend(f relay.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
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

// HandleSignal upgrades the request and starts the connection's pumps. The
// authentication window opens here: a connection that has not presented a
// valid token before the timer fires is told so and closed.
func (ctl *Controller) HandleSignal(ctx context.Context, c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	ws.SetReadLimit(ctl.readLimit)

	wc := &wsConn{
		conn: ws,
		send: make(chan relay.Frame, ctl.sendBuffer),
	}
	conn := newConnection(domain.NewConnID(), wc)
	conn.authTimer = time.AfterFunc(ctl.authTimeout, func() {
		ctl.authTimedOut(conn)
	})
	log.Info().Str("module", "signal").Str("conn", string(conn.id)).Msg("new connection")

	go ctl.writePump(ctx, wc)
	go ctl.readPump(ctx, conn, wc)
}

func (ctl *Controller) authTimedOut(c *connection) {
	if c.current() != stateConnecting {
		return
	}
	log.Warn().Str("module", "signal").Str("conn", string(c.id)).Msg("authentication timeout")
	ctl.sendError(c, "authentication timeout")
	c.tr.Close()
}

// teardown runs exactly once per connection, when its read side ends.
func (ctl *Controller) teardown(c *connection) {
	prev := c.shutdown()
	c.tr.Close()
	if prev != stateClosed {
		ctl.registry.Disconnect(c.id)
	}
	log.Info().Str("module", "signal").Str("conn", string(c.id)).Str("was", prev.String()).Msg("connection closed")
}
