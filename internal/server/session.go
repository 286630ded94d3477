package server

import (
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-devserver/internal/metrics"
	"github.com/nerrad567/gray-logic-devserver/internal/protocol"
)

// Session is one connected client, whatever its transport.
//
// Thread Safety: all methods are safe for concurrent use.
type Session interface {
	// ID uniquely identifies the session.
	ID() string

	// Transport names the connection type ("tcp", "websocket").
	Transport() string

	// RemoteAddr is the peer address for logs.
	RemoteAddr() string

	// Send queues one rendered status line without blocking. A session
	// that cannot keep up is killed and Send returns false.
	Send(line []byte) bool

	// Kill closes the connection. It is idempotent.
	Kill()

	// Wait blocks until the session's goroutines have exited.
	Wait()
}

// Submitter accepts task lines. *worker.Worker implements it.
type Submitter interface {
	Submit(line string) error
}

// tcpSession is a client connected over the framed TCP protocol.
type tcpSession struct {
	id           string
	conn         net.Conn
	submitter    Submitter
	onKill       func(Session)
	send         chan []byte
	readBufSize  int
	writeTimeout time.Duration
	logger       Logger

	done     chan struct{}
	killOnce sync.Once
	wg       sync.WaitGroup
}

type sessionConfig struct {
	readBufferSize int
	sendQueueSize  int
	writeTimeout   time.Duration
}

func newTCPSession(conn net.Conn, submitter Submitter, cfg sessionConfig, onKill func(Session), logger Logger) *tcpSession {
	return &tcpSession{
		id:           uuid.NewString(),
		conn:         conn,
		submitter:    submitter,
		onKill:       onKill,
		send:         make(chan []byte, cfg.sendQueueSize),
		readBufSize:  cfg.readBufferSize,
		writeTimeout: cfg.writeTimeout,
		logger:       logger,
		done:         make(chan struct{}),
	}
}

func (s *tcpSession) ID() string         { return s.id }
func (s *tcpSession) Transport() string  { return metrics.TransportTCP }
func (s *tcpSession) RemoteAddr() string { return s.conn.RemoteAddr().String() }

// start asks the worker for a fresh snapshot so the new client does not
// wait for the next periodic update, then launches the reader and writer.
// The snapshot is queued ahead of the client's first task.
func (s *tcpSession) start() {
	if err := s.submitter.Submit(protocol.TypeUpdate); err != nil {
		s.logger.Debug("initial update not queued", "session", s.id, "error", err)
	}

	s.wg.Add(2)
	go s.receiveLoop()
	go s.writeLoop()
}

// receiveLoop turns each chunk read from the socket into task lines.
func (s *tcpSession) receiveLoop() {
	defer s.wg.Done()
	defer s.Kill()

	buf := make([]byte, s.readBufSize)
	for {
		n, err := s.conn.Read(buf)
		if n > 0 {
			for _, line := range protocol.SplitLines(string(buf[:n])) {
				metrics.LinesReceivedTotal.WithLabelValues(metrics.TransportTCP).Inc()
				if err := s.submitter.Submit(line); err != nil {
					s.logger.Debug("task not queued", "session", s.id, "task", line, "error", err)
				}
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				s.logger.Debug("client read failed", "session", s.id, "error", err)
			}
			return
		}
		if n == 0 {
			return
		}
	}
}

// writeLoop frames and writes queued lines until the session is killed.
func (s *tcpSession) writeLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.done:
			return
		case line := <-s.send:
			if s.writeTimeout > 0 {
				//nolint:errcheck // Best-effort deadline; write error caught below
				s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			}
			if err := protocol.WriteFrame(s.conn, line); err != nil {
				if !errors.Is(err, net.ErrClosed) {
					s.logger.Debug("client write failed", "session", s.id, "error", err)
				}
				s.Kill()
				return
			}
			metrics.BytesSentTotal.WithLabelValues(metrics.TransportTCP).Add(float64(protocol.HeaderSize + len(line)))
		}
	}
}

// Send queues line for the writer. A full buffer kills the session.
func (s *tcpSession) Send(line []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}

	select {
	case s.send <- line:
		return true
	default:
		metrics.ClientsEvictedTotal.Inc()
		s.logger.Warn("client send buffer full, disconnecting", "session", s.id, "remote", s.RemoteAddr())
		s.Kill()
		return false
	}
}

// Kill closes the connection and reports the session dead exactly once,
// even when the reader and writer fail at the same time.
func (s *tcpSession) Kill() {
	s.killOnce.Do(func() {
		close(s.done)
		if err := s.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.logger.Debug("closing client connection", "session", s.id, "error", err)
		}
		if s.onKill != nil {
			s.onKill(s)
		}
	})
}

// Wait blocks until both goroutines have exited.
func (s *tcpSession) Wait() {
	s.wg.Wait()
}
