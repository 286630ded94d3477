package relay

import (
	"fmt"
	"sync"

	"github.com/nerrad567/gray-logic-devserver/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-devserver/internal/metrics"
	"github.com/nerrad567/gray-logic-devserver/internal/protocol"
)

// DefaultQueueSize is the publish queue capacity when none is configured.
const DefaultQueueSize = 256

// Broker is the MQTT client the relay publishes through.
// *mqtt.Client implements it; tests use a fake.
type Broker interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	PublishRetained(topic string, payload []byte) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	IsConnected() bool
}

// Submitter accepts task lines. *worker.Worker implements it.
type Submitter interface {
	Submit(line string) error
}

// Logger defines the logging interface used by the relay.
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

// Options configures a Relay.
type Options struct {
	// Topics names the topics for this server instance.
	Topics mqtt.Topics

	// QoS is used for status publishes and the command subscription.
	QoS byte

	// QueueSize bounds the publish queue.
	// Default: DefaultQueueSize.
	QueueSize int

	// Submitter receives task lines from the command topic.
	// If nil, the command topic is not subscribed.
	Submitter Submitter
}

// Relay bridges status messages and commands between the worker and MQTT.
//
// Thread Safety:
//   - Publish is safe for concurrent use and never blocks.
//   - Start and Stop must be called from a single goroutine.
type Relay struct {
	broker    Broker
	topics    mqtt.Topics
	qos       byte
	submitter Submitter

	queue chan protocol.StatusMessage
	done  chan struct{}
	wg    sync.WaitGroup

	startOnce  sync.Once
	stopOnce   sync.Once
	subscribed bool

	logger   Logger
	loggerMu sync.RWMutex
}

// New creates a relay publishing through broker.
//
// Parameters:
//   - broker: Connected MQTT client
//   - opts: Topics, QoS, queue size and command submitter
//
// Returns:
//   - *Relay: Ready to start
func New(broker Broker, opts Options) *Relay {
	size := opts.QueueSize
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Relay{
		broker:    broker,
		topics:    opts.Topics,
		qos:       opts.QoS,
		submitter: opts.Submitter,
		queue:     make(chan protocol.StatusMessage, size),
		done:      make(chan struct{}),
	}
}

// SetLogger sets the logger for the relay.
func (r *Relay) SetLogger(logger Logger) {
	r.loggerMu.Lock()
	defer r.loggerMu.Unlock()
	r.logger = logger
}

func (r *Relay) getLogger() Logger {
	r.loggerMu.RLock()
	defer r.loggerMu.RUnlock()
	if r.logger == nil {
		return noopLogger{}
	}
	return r.logger
}

// Start subscribes the command topic and launches the publisher goroutine.
//
// Returns:
//   - error: ErrAlreadyStarted, or if the command subscription fails
func (r *Relay) Start() error {
	err := ErrAlreadyStarted
	r.startOnce.Do(func() {
		err = nil
		if r.submitter != nil {
			if subErr := r.broker.Subscribe(r.topics.Command(), r.qos, r.handleCommand); subErr != nil {
				err = fmt.Errorf("subscribing to %s: %w", r.topics.Command(), subErr)
				return
			}
			r.subscribed = true
		}

		r.wg.Add(1)
		go r.run()

		r.getLogger().Info("MQTT relay started",
			"status_topic", r.topics.AllStatus(),
			"command_topic", r.topics.Command(),
		)
	})
	return err
}

// Stop unsubscribes, publishes whatever is still queued and stops the
// publisher goroutine. Safe to call multiple times.
func (r *Relay) Stop() {
	r.stopOnce.Do(func() {
		if r.subscribed {
			if err := r.broker.Unsubscribe(r.topics.Command()); err != nil {
				r.getLogger().Debug("unsubscribing command topic", "error", err)
			}
		}
		close(r.done)
		r.wg.Wait()
		r.getLogger().Info("MQTT relay stopped")
	})
}

// Publish implements worker.Publisher. It queues msg without blocking and
// drops it when the queue is full or the relay is stopped.
func (r *Relay) Publish(msg protocol.StatusMessage) {
	select {
	case <-r.done:
		return
	default:
	}

	select {
	case r.queue <- msg:
	default:
		metrics.RelayDroppedTotal.Inc()
		r.getLogger().Warn("MQTT relay queue full, dropping status message", "header", msg.Header)
	}
}

// run publishes queued messages until Stop, then drains the queue.
func (r *Relay) run() {
	defer r.wg.Done()

	for {
		select {
		case msg := <-r.queue:
			r.send(msg)
		case <-r.done:
			for {
				select {
				case msg := <-r.queue:
					r.send(msg)
				default:
					return
				}
			}
		}
	}
}

// send publishes one message: the full line on its status topic and, for
// STATUS snapshots, the JSON payload on the retained state topic.
func (r *Relay) send(msg protocol.StatusMessage) {
	if !r.broker.IsConnected() {
		metrics.RelayDroppedTotal.Inc()
		r.getLogger().Debug("MQTT broker not connected, dropping status message", "header", msg.Header)
		return
	}

	topic := r.topics.Status(msg.Header)
	if err := r.broker.Publish(topic, msg.Bytes(), r.qos, false); err != nil {
		metrics.RelayErrorsTotal.Inc()
		r.getLogger().Warn("MQTT publish failed", "topic", topic, "error", err)
		return
	}
	metrics.RelayPublishedTotal.Inc()

	if msg.Header != protocol.HeaderStatus {
		return
	}
	if err := r.broker.PublishRetained(r.topics.State(), msg.Payload); err != nil {
		metrics.RelayErrorsTotal.Inc()
		r.getLogger().Warn("MQTT state publish failed", "topic", r.topics.State(), "error", err)
	}
}

// handleCommand submits each line of a command payload as a task.
func (r *Relay) handleCommand(topic string, payload []byte) error {
	for _, line := range protocol.SplitLines(string(payload)) {
		metrics.RelayCommandsTotal.Inc()
		if err := r.submitter.Submit(line); err != nil {
			return fmt.Errorf("submitting %q from %s: %w", line, topic, err)
		}
	}
	return nil
}
