package api

import (
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-devserver/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-devserver/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-devserver/internal/metrics"
	"github.com/nerrad567/gray-logic-devserver/internal/protocol"
	"github.com/nerrad567/gray-logic-devserver/internal/server"
)

const (
	// wsSendBufferSize is the per-client outbound message buffer size.
	wsSendBufferSize = 256

	// wsCloseGrace bounds the close handshake write when the session ends.
	wsCloseGrace = time.Second
)

// upgrader configures the WebSocket upgrader.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Local development tool; any origin may connect.
		return true
	},
}

// wsSession is a client connected over WebSocket. Each text message it
// receives may hold several newline-separated tasks; each status line is
// sent back as one text message.
type wsSession struct {
	id        string
	conn      *websocket.Conn
	remote    string
	submitter Worker
	onKill    func(server.Session)
	send      chan []byte
	cfg       config.WebSocketConfig
	logger    *logging.Logger

	done     chan struct{}
	killOnce sync.Once
	wg       sync.WaitGroup
}

func newWSSession(conn *websocket.Conn, submitter Worker, cfg config.WebSocketConfig, onKill func(server.Session), logger *logging.Logger) *wsSession {
	return &wsSession{
		id:        uuid.NewString(),
		conn:      conn,
		remote:    conn.RemoteAddr().String(),
		submitter: submitter,
		onKill:    onKill,
		send:      make(chan []byte, wsSendBufferSize),
		cfg:       cfg,
		logger:    logger,
		done:      make(chan struct{}),
	}
}

func (c *wsSession) ID() string         { return c.id }
func (c *wsSession) Transport() string  { return metrics.TransportWebSocket }
func (c *wsSession) RemoteAddr() string { return c.remote }

// handleWebSocket upgrades the HTTP connection and registers the client
// alongside the TCP clients so it receives every broadcast.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := newWSSession(conn, s.worker, s.wsCfg, s.clients.Unregister, s.logger)
	if err := s.clients.Register(client); err != nil {
		s.logger.Debug("websocket client rejected", "remote", client.remote, "error", err)
		client.Kill()
		client.closeConn()
		return
	}
	client.start()
}

// start requests a fresh snapshot for the client, then launches the pumps
// so the snapshot is queued ahead of anything the client sends.
func (c *wsSession) start() {
	if err := c.submitter.Submit(protocol.TypeUpdate); err != nil {
		c.logger.Debug("initial update not queued", "session", c.id, "error", err)
	}

	c.wg.Add(2)
	go c.writePump()
	go c.readPump()
}

func (c *wsSession) pingInterval() time.Duration {
	return time.Duration(c.cfg.PingInterval) * time.Second
}

func (c *wsSession) pongWait() time.Duration {
	return time.Duration(c.cfg.PongTimeout) * time.Second
}

// readPump reads task lines from the WebSocket connection.
func (c *wsSession) readPump() {
	defer c.wg.Done()
	defer c.Kill()

	if c.cfg.MaxMessageSize > 0 {
		c.conn.SetReadLimit(int64(c.cfg.MaxMessageSize))
	}
	deadline := c.pingInterval() + c.pongWait()
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(deadline))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(deadline))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) &&
				!errors.Is(err, net.ErrClosed) {
				c.logger.Warn("websocket read error", "session", c.id, "error", err)
			} else {
				c.logger.Debug("websocket closed", "session", c.id, "error", err)
			}
			return
		}
		// Any client message resets the read deadline.
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(deadline))

		for _, line := range protocol.SplitLines(string(message)) {
			metrics.LinesReceivedTotal.WithLabelValues(metrics.TransportWebSocket).Inc()
			if err := c.submitter.Submit(line); err != nil {
				c.logger.Debug("task not queued", "session", c.id, "task", line, "error", err)
			}
		}
	}
}

// writePump writes queued status lines and keepalive pings. It owns the
// connection: on exit it sends the close frame and closes the socket.
func (c *wsSession) writePump() {
	defer c.wg.Done()
	defer c.closeConn()

	ticker := time.NewTicker(c.pingInterval())
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case line := <-c.send:
			select {
			case <-c.done:
				return
			default:
			}
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(c.pongWait()))
			if err := c.conn.WriteMessage(websocket.TextMessage, line); err != nil {
				c.logger.Debug("websocket write failed", "session", c.id, "error", err)
				c.Kill()
				return
			}
			metrics.BytesSentTotal.WithLabelValues(metrics.TransportWebSocket).Add(float64(len(line)))
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(c.pongWait()))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Kill()
				return
			}
		}
	}
}

// Send queues line for the write pump. A full buffer kills the session.
func (c *wsSession) Send(line []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- line:
		return true
	default:
		metrics.ClientsEvictedTotal.Inc()
		c.logger.Warn("websocket send buffer full, disconnecting", "session", c.id, "remote", c.remote)
		c.Kill()
		return false
	}
}

// Kill stops the session and unregisters it. It never blocks: a write stuck
// on a slow peer is interrupted, and the write pump finishes the close
// handshake on its own goroutine. It is idempotent.
func (c *wsSession) Kill() {
	c.killOnce.Do(func() {
		// Expire pending writes before done wakes the pump, so the deadline
		// the pump sets for the close frame is not overwritten.
		//nolint:errcheck // Best effort; the socket may already be closed
		c.conn.NetConn().SetWriteDeadline(time.Now())
		close(c.done)
		if c.onKill != nil {
			c.onKill(c)
		}
	})
}

// closeConn sends a best-effort close frame and closes the socket, which
// also ends the read pump.
func (c *wsSession) closeConn() {
	//nolint:errcheck // Best-effort close handshake; the peer may already be gone
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(wsCloseGrace))
	if err := c.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		c.logger.Debug("closing websocket", "session", c.id, "error", err)
	}
}

// Wait blocks until both pumps have exited.
func (c *wsSession) Wait() {
	c.wg.Wait()
}
