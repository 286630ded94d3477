package server

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-devserver/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-devserver/internal/metrics"
	"github.com/nerrad567/gray-logic-devserver/internal/protocol"
)

// Logger defines the logging interface used by the server package.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Console supplies operator command lines to Run.
type Console interface {
	// Lines delivers one operator line at a time. It is closed at EOF.
	Lines() <-chan string

	// Handle executes a line and reports whether the server should stop.
	Handle(line string) (quit bool)
}

// Stats is a point-in-time view of the broadcaster.
type Stats struct {
	Addr        string `json:"addr"`
	Port        int    `json:"port"`
	Clients     int    `json:"clients"`
	DeadClients int    `json:"dead_clients"`
	Broadcasts  uint64 `json:"broadcasts"`
}

// Broadcaster owns the listener and the client session registry.
//
// Thread Safety:
//   - The live and dead lists share one mutex.
//   - Broadcast iterates a snapshot taken under the mutex, so sessions may
//     join or die while a message is being fanned out.
type Broadcaster struct {
	cfg       config.ServerConfig
	submitter Submitter

	listener net.Listener
	port     int

	mu     sync.Mutex
	live   map[string]Session
	dead   []Session
	closed bool

	broadcasts atomic.Uint64

	done      chan struct{}
	closeOnce sync.Once
	acceptWg  sync.WaitGroup

	logger   Logger
	loggerMu sync.RWMutex
}

// New creates a broadcaster. Call Listen before Run.
//
// Parameters:
//   - cfg: Listener and per-session settings
//   - submitter: Receives task lines from every client (the worker)
//
// Returns:
//   - *Broadcaster: Not yet listening
func New(cfg config.ServerConfig, submitter Submitter) *Broadcaster {
	return &Broadcaster{
		cfg:       cfg,
		submitter: submitter,
		live:      make(map[string]Session),
		done:      make(chan struct{}),
	}
}

// SetLogger sets the logger for the broadcaster and the sessions it creates.
func (b *Broadcaster) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()
}

func (b *Broadcaster) getLogger() Logger {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	if b.logger == nil {
		return noopLogger{}
	}
	return b.logger
}

// Listen binds the client listener. When the configured port is the default
// port and taken, successive ports are tried up to server.port_retries times.
//
// Returns:
//   - error: ErrBindExhausted if no port could be bound
func (b *Broadcaster) Listen() error {
	attempts := bindAttempts(b.cfg.Port, b.cfg.PortRetries)
	l, port, err := listen(b.cfg.Host, b.cfg.Port, attempts, b.getLogger())
	if err != nil {
		return err
	}

	b.listener = l
	b.port = port
	b.getLogger().Info("listening for clients", "address", l.Addr().String(), "port", port)
	return nil
}

// Addr returns the bound listener address, or "" before Listen.
func (b *Broadcaster) Addr() string {
	if b.listener == nil {
		return ""
	}
	return b.listener.Addr().String()
}

// Port returns the bound port, or 0 before Listen.
func (b *Broadcaster) Port() int {
	return b.port
}

// Run accepts clients and executes console lines until the console asks to
// quit or ctx is cancelled. It does not shut down sessions; call Shutdown.
//
// Parameters:
//   - ctx: Cancelling it returns from Run
//   - console: Operator command source (may be nil)
//
// Returns:
//   - error: ErrNotListening, or an unexpected accept error
func (b *Broadcaster) Run(ctx context.Context, console Console) error {
	if b.listener == nil {
		return ErrNotListening
	}

	conns := make(chan net.Conn)
	acceptErr := make(chan error, 1)
	b.acceptWg.Add(1)
	go b.acceptLoop(conns, acceptErr)

	var lines <-chan string
	if console != nil {
		lines = console.Lines()
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case conn := <-conns:
			b.startSession(conn)
			b.reap()

		case line, ok := <-lines:
			if !ok {
				// Console input ended; keep serving clients.
				lines = nil
				continue
			}
			if console.Handle(line) {
				return nil
			}

		case err := <-acceptErr:
			return err
		}
	}
}

// acceptLoop hands accepted connections to Run.
func (b *Broadcaster) acceptLoop(conns chan<- net.Conn, errs chan<- error) {
	defer b.acceptWg.Done()

	for {
		conn, err := b.listener.Accept()
		if err != nil {
			select {
			case <-b.done:
			default:
				if !errors.Is(err, net.ErrClosed) {
					errs <- fmt.Errorf("accepting client: %w", err)
				}
			}
			return
		}

		select {
		case conns <- conn:
		case <-b.done:
			conn.Close() //nolint:errcheck // Shutting down
			return
		}
	}
}

func (b *Broadcaster) startSession(conn net.Conn) {
	writeTimeout := time.Duration(b.cfg.WriteTimeout) * time.Second
	s := newTCPSession(conn, b.submitter, sessionConfig{
		readBufferSize: b.cfg.ReadBufferSize,
		sendQueueSize:  b.cfg.SendQueueSize,
		writeTimeout:   writeTimeout,
	}, b.Unregister, b.getLogger())

	if err := b.Register(s); err != nil {
		conn.Close() //nolint:errcheck // Rejected during shutdown
		return
	}
	s.start()
}

// Register adds a session to the live list.
//
// Returns:
//   - error: ErrShutdown after Shutdown; the caller must close the session
func (b *Broadcaster) Register(s Session) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrShutdown
	}
	b.live[s.ID()] = s
	count := len(b.live)
	b.mu.Unlock()

	metrics.ClientsConnected.WithLabelValues(s.Transport()).Inc()
	metrics.ClientsTotal.WithLabelValues(s.Transport()).Inc()
	b.getLogger().Info("client connected",
		"session", s.ID(),
		"transport", s.Transport(),
		"remote", s.RemoteAddr(),
		"clients", count,
	)
	return nil
}

// Unregister moves a session from the live list to the dead list, where it
// waits to be joined. Sessions call it from Kill; unknown sessions are ignored.
func (b *Broadcaster) Unregister(s Session) {
	b.mu.Lock()
	_, existed := b.live[s.ID()]
	if existed {
		delete(b.live, s.ID())
		b.dead = append(b.dead, s)
	}
	count := len(b.live)
	b.mu.Unlock()

	if existed {
		metrics.ClientsConnected.WithLabelValues(s.Transport()).Dec()
		b.getLogger().Info("client disconnected",
			"session", s.ID(),
			"transport", s.Transport(),
			"clients", count,
		)
	}
}

// reap joins sessions that have died since the last call.
func (b *Broadcaster) reap() {
	b.mu.Lock()
	dead := b.dead
	b.dead = nil
	b.mu.Unlock()

	for _, s := range dead {
		s.Wait()
	}
}

// Publish implements worker.Publisher.
func (b *Broadcaster) Publish(msg protocol.StatusMessage) {
	b.Broadcast(msg.Bytes())
}

// Broadcast hands line to every live session without blocking. Sessions
// that cannot take it are killed; the others are unaffected.
func (b *Broadcaster) Broadcast(line []byte) {
	b.mu.Lock()
	sessions := slices.Collect(maps.Values(b.live))
	b.mu.Unlock()

	for _, s := range sessions {
		s.Send(line)
	}

	b.broadcasts.Add(1)
	metrics.BroadcastsTotal.Inc()
}

// ClientCount returns the number of live sessions.
func (b *Broadcaster) ClientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.live)
}

// Stats returns current broadcaster statistics.
func (b *Broadcaster) Stats() Stats {
	b.mu.Lock()
	clients, dead := len(b.live), len(b.dead)
	b.mu.Unlock()

	return Stats{
		Addr:        b.Addr(),
		Port:        b.port,
		Clients:     clients,
		DeadClients: dead,
		Broadcasts:  b.broadcasts.Load(),
	}
}

// Shutdown stops accepting, kills and joins every live session, then joins
// the dead ones. Safe to call multiple times.
func (b *Broadcaster) Shutdown() {
	b.closeOnce.Do(func() {
		close(b.done)
		if b.listener != nil {
			if err := b.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
				b.getLogger().Warn("closing listener", "error", err)
			}
		}
		b.acceptWg.Wait()

		b.mu.Lock()
		b.closed = true
		live := slices.Collect(maps.Values(b.live))
		b.mu.Unlock()

		for _, s := range live {
			s.Kill()
		}
		for _, s := range live {
			s.Wait()
		}
		b.reap()

		b.getLogger().Info("client listener stopped", "sessions_closed", len(live))
	})
}
