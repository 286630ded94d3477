// devserver - serve one device to many network clients
//
// devserver owns a single device adapter and serialises every task from
// every connected client through one worker goroutine, while broadcasting
// status messages to all of them:
//
//	devserver Simulated --port 12345 --debug
//
// Clients speak newline-terminated task lines over TCP and receive
// length-framed status messages. An optional HTTP surface serves health,
// Prometheus metrics and WebSocket clients; an optional MQTT relay mirrors
// status to a broker.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nerrad567/gray-logic-devserver/internal/api"
	"github.com/nerrad567/gray-logic-devserver/internal/console"
	"github.com/nerrad567/gray-logic-devserver/internal/device"
	_ "github.com/nerrad567/gray-logic-devserver/internal/device/simulated"
	_ "github.com/nerrad567/gray-logic-devserver/internal/device/values"
	"github.com/nerrad567/gray-logic-devserver/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-devserver/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-devserver/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-devserver/internal/metrics"
	"github.com/nerrad567/gray-logic-devserver/internal/relay"
	"github.com/nerrad567/gray-logic-devserver/internal/server"
	"github.com/nerrad567/gray-logic-devserver/internal/worker"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

func main() {
	opts, err := parseArgs(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	// Cancel on Ctrl+C or SIGTERM for a graceful shutdown.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, opts, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Cancelled on shutdown signals
//   - opts: Parsed command line
//   - stdin: Console input
//   - stdout: Console output and PUPDATE destination
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, opts options, stdin io.Reader, stdout io.Writer) error { //nolint:gocognit // startup wiring reads top to bottom
	// Use default logger until config is loaded
	log := logging.Default()

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	log = logging.New(cfg.Logging, version)
	log.Info("starting devserver",
		"version", version,
		"commit", commit,
		"build_date", date,
		"worker", cfg.Worker.Name,
		"config", opts.configPath,
	)

	// Open the device
	adapter, err := device.Open(ctx, cfg.Worker.Name, device.Options{
		Settings: cfg.Worker.Options,
		Database: cfg.Database,
		Logger:   log.With("component", "device"),
	})
	if err != nil {
		return fmt.Errorf("opening device: %w", err)
	}

	// Connect to the MQTT broker first so it is closed last.
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = connectMQTT(cfg, adapter.Name(), log)
		if err != nil {
			adapter.Close() //nolint:errcheck // Already failing; the connect error is what matters
			return err
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
	} else {
		log.Info("MQTT relay disabled")
	}

	w := worker.New(adapter, worker.Config{
		Interval: cfg.UpdateInterval(),
		Console:  stdout,
	})
	w.SetLogger(log.With("component", "worker"))
	defer func() {
		if stopErr := w.Stop(); stopErr != nil {
			log.Error("error stopping worker", "error", stopErr)
		}
		log.Info("worker stopped")
	}()

	// Bind the client listener; exhausting the port range is fatal.
	broadcaster := server.New(cfg.Server, w)
	broadcaster.SetLogger(log.With("component", "server"))
	if err := broadcaster.Listen(); err != nil {
		return fmt.Errorf("opening client listener: %w", err)
	}
	defer broadcaster.Shutdown()
	w.AddPublisher(broadcaster)
	log.Info("listening for clients", "address", broadcaster.Addr())

	// Operator console
	var cons server.Console
	var operator *console.Console
	if cfg.Console.Enabled {
		operator = console.New(console.Config{Name: adapter.Name(), In: stdin, Out: stdout}, w, broadcaster)
		w.SetConsoleOutput(operator.Writer())
		cons = operator
		defer operator.Stop()
	}

	// MQTT relay (optional)
	var broker api.BrokerStatus
	if mqttClient != nil {
		rel := relay.New(mqttClient, relay.Options{
			Topics:    mqttClient.Topics(),
			QoS:       mqttClient.QoS(),
			QueueSize: cfg.MQTT.QueueSize,
			Submitter: w,
		})
		rel.SetLogger(log.With("component", "relay"))
		if err := rel.Start(); err != nil {
			return fmt.Errorf("starting MQTT relay: %w", err)
		}
		defer rel.Stop()
		w.AddPublisher(rel)
		broker = mqttClient
	}

	// HTTP surface (optional)
	if cfg.HTTP.Enabled {
		httpServer, httpErr := api.New(api.Deps{
			Config:  cfg.HTTP,
			WS:      cfg.WebSocket,
			Logger:  log.With("component", "api"),
			Worker:  w,
			Clients: broadcaster,
			MQTT:    broker,
			Version: version,
		})
		if httpErr != nil {
			return fmt.Errorf("creating HTTP server: %w", httpErr)
		}
		if startErr := httpServer.Start(ctx); startErr != nil {
			return fmt.Errorf("starting HTTP server: %w", startErr)
		}
		defer func() {
			if closeErr := httpServer.Close(); closeErr != nil {
				log.Error("error closing HTTP server", "error", closeErr)
			}
		}()
	}

	// Config file watcher (optional)
	if cfg.Watch.Enabled {
		watcher, watchErr := watchConfig(opts.configPath, cfg, w, log)
		if watchErr != nil {
			log.Warn("config watcher not started", "error", watchErr)
		} else {
			defer watcher.Close() //nolint:errcheck // Shutdown path; nothing to report
		}
	}

	w.Start(ctx)
	if operator != nil {
		operator.Start()
	}

	log.Info("initialisation complete",
		"adapter", adapter.Name(),
		"capabilities", len(w.Capabilities()),
		"interval", w.Interval(),
	)

	runErr := broadcaster.Run(ctx, cons)
	if runErr != nil {
		log.Error("client listener failed", "error", runErr)
	}

	log.Info("shutting down")
	broadcaster.Shutdown()

	// Deferred calls run in reverse order:
	// 1. Config watcher
	// 2. HTTP server
	// 3. MQTT relay
	// 4. Updater and worker, then the device adapter
	// 5. MQTT connection
	return runErr
}

// loadConfig loads the config file and applies command-line overrides.
func loadConfig(opts options) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath, !opts.configExplicit)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if opts.workerName != "" {
		cfg.Worker.Name = opts.workerName
	}
	if opts.portSet {
		cfg.Server.Port = opts.port
	}
	if opts.debug {
		cfg.Logging.Level = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating command line: %w", err)
	}
	return cfg, nil
}

// connectMQTT connects to the broker with topics for workerName.
func connectMQTT(cfg *config.Config, workerName string, log *logging.Logger) (*mqtt.Client, error) {
	client, err := mqtt.Connect(cfg.MQTT, mqtt.NewTopics(cfg.MQTT.TopicPrefix, workerName))
	if err != nil {
		return nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	client.SetLogger(log.With("component", "mqtt"))
	client.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	client.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)
	return client, nil
}

// watchConfig reloads the config file on change and forwards a changed
// update interval to the worker as an UPDATEINTERVAL task.
func watchConfig(path string, cfg *config.Config, w *worker.Worker, log *logging.Logger) (*config.Watcher, error) {
	debounce := time.Duration(cfg.Watch.Debounce) * time.Millisecond

	onChange := func(next *config.Config) {
		metrics.ConfigReloadsTotal.WithLabelValues("ok").Inc()
		interval := next.UpdateInterval()
		if interval == w.Interval() {
			log.Debug("config reloaded, update interval unchanged", "interval", interval)
			return
		}
		task := fmt.Sprintf("UPDATEINTERVAL %g", next.Updater.Interval)
		if err := w.Submit(task); err != nil {
			log.Warn("config reload not applied", "task", task, "error", err)
			return
		}
		log.Info("config reloaded, update interval changed", "interval", interval)
	}
	onError := func(err error) {
		metrics.ConfigReloadsTotal.WithLabelValues("error").Inc()
		log.Warn("config reload failed; keeping current settings", "error", err)
	}

	watcher, err := config.Watch(path, debounce, onChange, onError)
	if err != nil {
		return nil, fmt.Errorf("watching %s: %w", path, err)
	}
	log.Info("watching config file", "path", path)
	return watcher, nil
}
