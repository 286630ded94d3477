package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-devserver/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-devserver/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-devserver/internal/server"
	"github.com/nerrad567/gray-logic-devserver/internal/worker"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Worker is the part of the worker the HTTP surface needs.
type Worker interface {
	Submit(line string) error
	Stats() worker.Stats
}

// Clients is the session registry WebSocket clients join.
// *server.Broadcaster implements it.
type Clients interface {
	Register(s server.Session) error
	Unregister(s server.Session)
	Stats() server.Stats
}

// BrokerStatus reports the MQTT relay connection.
type BrokerStatus interface {
	IsConnected() bool
}

// Deps holds the dependencies required by the HTTP server.
type Deps struct {
	Config  config.HTTPConfig
	WS      config.WebSocketConfig
	Logger  *logging.Logger
	Worker  Worker
	Clients Clients
	MQTT    BrokerStatus // optional
	Version string
}

// Server is the HTTP server for health, metrics and WebSocket clients.
//
// It is created with New and started with Start.
type Server struct {
	cfg       config.HTTPConfig
	wsCfg     config.WebSocketConfig
	logger    *logging.Logger
	worker    Worker
	clients   Clients
	mqtt      BrokerStatus
	version   string
	startTime time.Time

	server   *http.Server
	listener net.Listener
	wg       sync.WaitGroup
}

// New creates a new HTTP server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, worker, clients)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Worker == nil {
		return nil, fmt.Errorf("worker is required")
	}
	if deps.Clients == nil {
		return nil, fmt.Errorf("client registry is required")
	}

	wsCfg := deps.WS
	if wsCfg.Path == "" {
		wsCfg.Path = "/ws"
	}
	if wsCfg.PingInterval <= 0 {
		wsCfg.PingInterval = 30
	}
	if wsCfg.PongTimeout <= 0 {
		wsCfg.PongTimeout = 10
	}

	return &Server{
		cfg:       deps.Config,
		wsCfg:     wsCfg,
		logger:    deps.Logger,
		worker:    deps.Worker,
		clients:   deps.Clients,
		mqtt:      deps.MQTT,
		version:   deps.Version,
		startTime: time.Now(),
	}, nil
}

// Start binds the HTTP listener and serves in a background goroutine.
//
// Parameters:
//   - ctx: Supplies request base context values
//
// Returns:
//   - error: If the port cannot be bound
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("binding HTTP listener on %s: %w", addr, err)
	}
	s.listener = l

	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	s.logger.Info("HTTP server starting", "address", l.Addr().String())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the HTTP server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections. WebSocket sessions are
// hijacked connections and are closed by the client registry, not here.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("HTTP server shutting down")
	err := s.server.Shutdown(ctx)
	s.wg.Wait()
	if err != nil {
		return fmt.Errorf("shutting down HTTP server: %w", err)
	}
	return nil
}
