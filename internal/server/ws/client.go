package ws

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// sendBufferSize is the channel buffer for outgoing frames per client.
	sendBufferSize = 256

	// hardReadLimit caps a single frame at the transport level so an
	// abusive peer cannot buffer unbounded data. The protocol-level size
	// ceiling (Config.MaxMessageBytes) is enforced in the read pump so the
	// close frame can carry the documented reason. Frames above this cap
	// never reach the read pump: gorilla aborts the read itself and its
	// close frame carries code 1009 with an empty reason.
	hardReadLimit = 1 << 20
)

// client is one WebSocket connection. Rate-limit state and the subscription
// set are owned by the connection and need no cross-connection
// synchronization; the registry and router are the only shared state a
// client touches.
type client struct {
	gw   *Gateway
	conn *websocket.Conn
	send chan []byte

	// identifying metadata, for logging only
	remoteAddr string
	userAgent  string

	// sliding-window message timestamps, touched only by the read pump
	recvTimes []time.Time

	// auction ids this connection subscribed to, cleared on disconnect
	subs map[string]bool

	mu     sync.Mutex
	closed bool
}

// trySend enqueues a frame for the write pump without blocking. It returns
// false when the client is closed or its buffer is full, in which case the
// caller should treat the connection as dead.
func (c *client) trySend(frame []byte) bool {
	if frame == nil {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// shutdown marks the client closed and closes its send channel exactly once.
// Safe to call from any goroutine.
func (c *client) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// isOpen reports whether the client can still accept frames.
func (c *client) isOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

// overRateLimit records one received frame against the sliding window and
// reports whether the connection has exceeded limit frames per window. The
// over-limit frame itself must never be processed.
func (c *client) overRateLimit(now time.Time, limit int, window time.Duration) bool {
	cutoff := now.Add(-window)
	kept := c.recvTimes[:0]
	for _, ts := range c.recvTimes {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	c.recvTimes = append(kept, now)
	return len(c.recvTimes) > limit
}

// closeWith writes a close frame with the given code and reason, then tears
// the connection down.
func (c *client) closeWith(code int, reason string) {
	deadline := time.Now().Add(writeWait)
	_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	_ = c.conn.Close()
}

// readPump reads frames from the connection, enforces the per-connection
// size and rate ceilings, and hands surviving frames to the gateway. It
// exits on any read error and triggers the client's unregistration.
func (c *client) readPump() {
	defer func() {
		c.gw.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(hardReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.gw.logger.Debug("ws: read error",
					slog.String("remote_addr", c.remoteAddr),
					slog.String("error", err.Error()),
				)
			}
			return
		}

		// Rate ceiling first: the 101st frame in the window is counted and
		// killed before any parsing or validation happens.
		if c.overRateLimit(c.gw.clock.Now(), c.gw.cfg.RateLimit, c.gw.cfg.RateWindow) {
			c.gw.logger.Warn("ws: connection rate limited",
				slog.String("remote_addr", c.remoteAddr),
				slog.String("user_agent", c.userAgent),
			)
			c.closeWith(websocket.ClosePolicyViolation, CloseReasonRateLimited)
			return
		}

		if len(message) > c.gw.cfg.MaxMessageBytes {
			c.gw.logger.Warn("ws: oversized frame",
				slog.String("remote_addr", c.remoteAddr),
				slog.Int("bytes", len(message)),
			)
			c.closeWith(websocket.CloseMessageTooBig, CloseReasonMessageTooLarge)
			return
		}

		c.gw.handleFrame(c, message)
	}
}

// writePump pumps frames from the send channel to the connection and sends
// periodic pings for keepalive.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The gateway closed the channel.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
