package ws

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/nusantararadius/notifyhub/server/internal/registry"
)

// state is the lifecycle phase of a connection.
type state int32

const (
	stateConnecting state = iota
	stateActive
	stateClosed
)

func (s state) String() string {
	switch s {
	case stateConnecting:
		return "connecting"
	case stateActive:
		return "active"
	case stateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// wsConn is one WebSocket client. The embedded outbox satisfies
// registry.Conn; the hub's writePump is its only reader.
type wsConn struct {
	*outbox
	conn    *websocket.Conn
	limiter *rate.Limiter
	state   atomic.Int32
}

func (c *wsConn) setState(s state) { c.state.Store(int32(s)) }

func (c *wsConn) forceClose() { c.conn.Close() }

// ServeHTTP upgrades the request to a WebSocket and serves the client until
// either side closes. The metrics snapshot and welcome notification are
// queued before any broadcast can reach the new connection.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.closing.Load() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		slog.Debug("hub: upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	c := &wsConn{
		outbox:  newOutbox(h.cfg.SendBuffer, h.onDrop),
		conn:    conn,
		limiter: h.newLimiter(),
	}
	c.setState(stateConnecting)

	id, err := h.attach(c, c.outbox, r.RemoteAddr, registry.TransportWebSocket, true)
	if err != nil {
		slog.Warn("hub: rejecting connection", "remote", r.RemoteAddr, "err", err)
		conn.WriteControl(websocket.CloseMessage, //nolint:errcheck
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "shutting down"),
			time.Now().Add(h.cfg.WriteTimeout))
		conn.Close()
		return
	}
	c.setState(stateActive)

	go h.writePump(id, c)
	h.readPump(r.Context(), id, c) // blocks until connection closes

	c.setState(stateClosed)
	h.detach(id, c.outbox)
}

// writePump drains the outbox to the socket and sends periodic pings. When
// the outbox is closed it flushes what is left, sends a close frame and
// returns. Runs in its own goroutine per client.
func (h *Hub) writePump(id string, c *wsConn) {
	ticker := time.NewTicker(h.pingPeriod())
	defer func() {
		ticker.Stop()
		c.conn.Close()
		h.writers.Done()
	}()

	for {
		select {
		case <-c.ready:
			if !h.writeFrames(id, c) {
				return
			}
		case <-c.done:
			if h.writeFrames(id, c) {
				bye := websocket.FormatCloseMessage(websocket.CloseGoingAway, "")
				c.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout)) //nolint:errcheck
				c.conn.WriteMessage(websocket.CloseMessage, bye)            //nolint:errcheck
			}
			return

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout)) //nolint:errcheck
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// writeFrames writes everything queued on c. It reports false after a
// failed write.
func (h *Hub) writeFrames(id string, c *wsConn) bool {
	frames, _ := c.take()
	for _, msg := range frames {
		c.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout)) //nolint:errcheck
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			slog.Debug("hub: write failed", "id", id, "err", err)
			return false
		}
	}
	return true
}

// readPump reads envelopes until the connection fails or closes. A read
// error only ever terminates this connection.
func (h *Hub) readPump(ctx context.Context, id string, c *wsConn) {
	defer c.conn.Close()
	c.conn.SetReadLimit(h.cfg.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait)) //nolint:errcheck
	c.conn.SetPongHandler(func(string) error {
		h.reg.Touch(id)
		return c.conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				slog.Warn("hub: unexpected close", "id", id, "err", err)
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait)) //nolint:errcheck
		h.handle(ctx, id, c.limiter, msg)
	}
}

// pingPeriod must be less than PongWait.
func (h *Hub) pingPeriod() time.Duration {
	return (h.cfg.PongWait * 9) / 10
}
