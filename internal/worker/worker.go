package worker

import (
	"context"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/nerrad567/gray-logic-devserver/internal/device"
	"github.com/nerrad567/gray-logic-devserver/internal/metrics"
	"github.com/nerrad567/gray-logic-devserver/internal/protocol"
)

// DefaultInterval is the refresh interval used when Config.Interval is zero.
const DefaultInterval = time.Second

// State is the worker lifecycle state.
type State int32

// Worker states. A worker only moves forward through them.
const (
	StateRunning State = iota
	StateStopping
	StateStopped
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Publisher receives every status message the worker produces.
//
// Publish is called on the worker goroutine and must not block.
type Publisher interface {
	Publish(msg protocol.StatusMessage)
}

// PublisherFunc adapts a function to the Publisher interface.
type PublisherFunc func(msg protocol.StatusMessage)

// Publish calls f(msg).
func (f PublisherFunc) Publish(msg protocol.StatusMessage) { f(msg) }

// Logger defines the logging interface used by the worker and updater.
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

// Config holds worker construction options.
type Config struct {
	// Interval is the initial Updater interval.
	// Default: 1 second.
	Interval time.Duration

	// Clock drives the Updater and status timestamps.
	// Default: the real clock.
	Clock clockwork.Clock

	// Console receives PUPDATE output.
	// Default: os.Stdout.
	Console io.Writer
}

// Stats is a point-in-time view of the worker.
type Stats struct {
	Adapter           string        `json:"adapter"`
	State             string        `json:"state"`
	QueueDepth        int           `json:"queue_depth"`
	Interval          time.Duration `json:"interval_ns"`
	TasksProcessed    uint64        `json:"tasks_processed"`
	TasksFailed       uint64        `json:"tasks_failed"`
	MessagesPublished uint64        `json:"messages_published"`
}

// job is one queue entry. stop marks the shutdown sentinel.
type job struct {
	line string
	stop bool
}

// Worker owns the device adapter and processes tasks one at a time.
//
// Thread Safety:
//   - Submit, Kill, Stop, Stats and AddPublisher are safe for concurrent use.
//   - The adapter is only called from the worker goroutine.
type Worker struct {
	adapter device.Adapter
	caps    map[string]struct{}
	capList []string

	queue   *Queue[job]
	updater *Updater
	clock   clockwork.Clock

	console   io.Writer
	consoleMu sync.Mutex

	publishers []Publisher
	pubMu      sync.RWMutex

	// submitMu orders the state change in Kill against Submit so no task
	// lands behind the sentinel.
	state    atomic.Int32
	submitMu sync.Mutex

	killed    chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	killOnce  sync.Once
	closeOnce sync.Once
	closeErr  error

	tasksProcessed    atomic.Uint64
	tasksFailed       atomic.Uint64
	messagesPublished atomic.Uint64

	logger   Logger
	loggerMu sync.RWMutex
}

// New creates a worker for adapter.
//
// Tasks may be submitted before Start; they wait in the queue.
//
// Parameters:
//   - adapter: The device adapter; the worker takes ownership and closes it in Stop
//   - cfg: Interval, clock and console options
//
// Returns:
//   - *Worker: Ready to start
func New(adapter device.Adapter, cfg Config) *Worker {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	console := cfg.Console
	if console == nil {
		console = os.Stdout
	}

	capList := adapter.Capabilities()
	caps := make(map[string]struct{}, len(capList))
	for _, name := range capList {
		caps[name] = struct{}{}
	}

	w := &Worker{
		adapter: adapter,
		caps:    caps,
		capList: capList,
		queue:   NewQueue[job](),
		clock:   clock,
		console: console,
		killed:  make(chan struct{}),
	}
	w.updater = NewUpdater(interval, clock, func() error {
		return w.Submit(protocol.TypeUpdate)
	})
	return w
}

// Start launches the worker loop and the Updater.
//
// Cancelling ctx is equivalent to calling Kill: queued tasks still run.
// Device calls receive a context carrying ctx's values but not its
// cancellation, so a drain is never cut short.
func (w *Worker) Start(ctx context.Context) {
	w.startOnce.Do(func() {
		w.wg.Add(2)
		go w.run(context.WithoutCancel(ctx))
		go w.watch(ctx)
		w.updater.Start()

		w.getLogger().Info("worker started",
			"adapter", w.adapter.Name(),
			"capabilities", len(w.capList),
			"interval", w.updater.Interval(),
		)
	})
}

// watch turns context cancellation into Kill.
func (w *Worker) watch(ctx context.Context) {
	defer w.wg.Done()
	select {
	case <-ctx.Done():
		w.Kill()
	case <-w.killed:
	}
}

// run is the worker loop.
func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()
	defer w.state.Store(int32(StateStopped))

	for {
		j, err := w.queue.Pop(ctx)
		if err != nil {
			return
		}
		metrics.QueueDepth.Set(float64(w.queue.Len()))

		if j.stop {
			w.getLogger().Info("worker stopped",
				"adapter", w.adapter.Name(),
				"processed", w.tasksProcessed.Load(),
			)
			return
		}
		w.process(ctx, j.line)
	}
}

// Submit queues a task line.
//
// Returns:
//   - error: ErrStopped once Kill has been called
func (w *Worker) Submit(line string) error {
	w.submitMu.Lock()
	defer w.submitMu.Unlock()

	if State(w.state.Load()) != StateRunning {
		return ErrStopped
	}
	w.queue.Push(job{line: line})
	metrics.QueueDepth.Set(float64(w.queue.Len()))
	return nil
}

// Kill stops accepting tasks, queues the shutdown sentinel and stops the
// Updater. Tasks accepted before Kill still run. It does not wait for the
// loop; use Wait or Stop for that.
func (w *Worker) Kill() {
	w.killOnce.Do(func() {
		w.submitMu.Lock()
		w.state.Store(int32(StateStopping))
		w.queue.Push(job{stop: true})
		w.submitMu.Unlock()

		close(w.killed)
		w.updater.Kill()
		w.updater.Wait()
	})
}

// Wait blocks until the worker loop has exited.
func (w *Worker) Wait() {
	w.wg.Wait()
}

// Stop kills the worker, waits for the queue to drain and closes the adapter.
// Safe to call multiple times.
func (w *Worker) Stop() error {
	w.Kill()
	w.Wait()

	w.closeOnce.Do(func() {
		w.closeErr = w.adapter.Close()
		if w.closeErr != nil {
			w.getLogger().Error("closing device adapter failed",
				"adapter", w.adapter.Name(),
				"error", w.closeErr,
			)
		}
	})
	return w.closeErr
}

// AddPublisher registers p to receive every subsequent status message.
func (w *Worker) AddPublisher(p Publisher) {
	w.pubMu.Lock()
	w.publishers = append(w.publishers, p)
	w.pubMu.Unlock()
}

// SetConsoleOutput redirects PUPDATE output.
func (w *Worker) SetConsoleOutput(out io.Writer) {
	w.consoleMu.Lock()
	w.console = out
	w.consoleMu.Unlock()
}

// SetLogger sets the logger for the worker and its Updater.
func (w *Worker) SetLogger(logger Logger) {
	w.loggerMu.Lock()
	w.logger = logger
	w.loggerMu.Unlock()
	w.updater.SetLogger(logger)
}

func (w *Worker) getLogger() Logger {
	w.loggerMu.RLock()
	defer w.loggerMu.RUnlock()
	if w.logger == nil {
		return noopLogger{}
	}
	return w.logger
}

// State returns the current lifecycle state.
func (w *Worker) State() State {
	return State(w.state.Load())
}

// QueueLen returns the number of tasks waiting.
func (w *Worker) QueueLen() int {
	return w.queue.Len()
}

// Capabilities returns the adapter's capability names.
func (w *Worker) Capabilities() []string {
	return append([]string(nil), w.capList...)
}

// AdapterName returns the adapter name.
func (w *Worker) AdapterName() string {
	return w.adapter.Name()
}

// Interval returns the Updater's current interval.
func (w *Worker) Interval() time.Duration {
	return w.updater.Interval()
}

// Stats returns current worker statistics.
func (w *Worker) Stats() Stats {
	return Stats{
		Adapter:           w.adapter.Name(),
		State:             w.State().String(),
		QueueDepth:        w.queue.Len(),
		Interval:          w.updater.Interval(),
		TasksProcessed:    w.tasksProcessed.Load(),
		TasksFailed:       w.tasksFailed.Load(),
		MessagesPublished: w.messagesPublished.Load(),
	}
}
