package worker

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-devserver/internal/device"
	"github.com/nerrad567/gray-logic-devserver/internal/metrics"
	"github.com/nerrad567/gray-logic-devserver/internal/protocol"
)

// MinInterval is the shortest refresh interval UPDATEINTERVAL accepts.
const MinInterval = 10 * time.Millisecond

// process parses and dispatches one task line.
func (w *Worker) process(ctx context.Context, line string) {
	task, ok := protocol.ParseTask(line)
	if !ok {
		metrics.TasksTotal.WithLabelValues(metrics.KindIgnored).Inc()
		return
	}

	kind := w.classify(task)
	start := time.Now()
	err := w.dispatch(ctx, kind, task)

	w.tasksProcessed.Add(1)
	metrics.TasksTotal.WithLabelValues(kind).Inc()
	metrics.TaskDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())

	if err != nil {
		w.tasksFailed.Add(1)
		metrics.TaskErrorsTotal.WithLabelValues(kind).Inc()
		w.getLogger().Error("task failed",
			"task", task.Raw,
			"kind", kind,
			"error", err,
		)
	}
}

// classify maps a task to its handler. Capabilities are checked first;
// reserved names can never be capabilities.
func (w *Worker) classify(task protocol.Task) string {
	switch {
	case task.Type == "" || w.hasCapability(task.Type):
		return metrics.KindCapability
	case task.Type == protocol.TypeMethodsAvailable:
		return metrics.KindMethods
	case task.Type == protocol.TypeUpdateInterval:
		return metrics.KindInterval
	case task.Type == protocol.TypePrintUpdate:
		return metrics.KindPrint
	case task.IsPlot():
		return metrics.KindPlot
	case task.IsSpecialRequest():
		return metrics.KindSpecial
	default:
		return metrics.KindUnrecognized
	}
}

func (w *Worker) dispatch(ctx context.Context, kind string, task protocol.Task) error {
	switch kind {
	case metrics.KindCapability:
		return w.handleCapability(ctx, task)
	case metrics.KindMethods:
		w.publish(protocol.HeaderMethods, w.capList, kind)
		return nil
	case metrics.KindInterval:
		return w.handleInterval(task)
	case metrics.KindPrint:
		return w.handlePrint()
	case metrics.KindPlot:
		return w.handlePlot(ctx, task)
	case metrics.KindSpecial:
		return w.handleSpecialRequest(ctx, task)
	default:
		w.getLogger().Warn("task not recognized",
			"task", task.Raw,
			"type", task.Type,
			"available", w.capList,
		)
		return nil
	}
}

// handleCapability invokes the capability (an empty type invokes nothing)
// and publishes a STATUS snapshot on success.
func (w *Worker) handleCapability(ctx context.Context, task protocol.Task) error {
	if task.Type != "" {
		if _, err := w.invoke(ctx, task.Type, task.Args); err != nil {
			return err
		}
	}

	snap, err := w.snapshot()
	if err != nil {
		return err
	}
	w.publish(protocol.HeaderStatus, snap, metrics.KindCapability)
	return nil
}

func (w *Worker) handleInterval(task protocol.Task) error {
	d, err := ParseInterval(task.Args)
	if err != nil {
		return fmt.Errorf("%w (keeping %v)", err, w.updater.Interval())
	}
	return w.updater.ChangeInterval(d)
}

// handlePrint writes a STATUS line to the local console only.
func (w *Worker) handlePrint() error {
	snap, err := w.snapshot()
	if err != nil {
		return err
	}
	msg, err := protocol.NewStatus(protocol.HeaderStatus, w.clock.Now(), snap)
	if err != nil {
		return err
	}

	w.consoleMu.Lock()
	defer w.consoleMu.Unlock()
	_, err = fmt.Fprintln(w.console, msg.String())
	return err
}

// handlePlot refreshes the device and publishes one message headed by the
// full task type. A failed refresh still publishes the last snapshot.
func (w *Worker) handlePlot(ctx context.Context, task protocol.Task) error {
	if err := w.refresh(ctx); err != nil {
		w.getLogger().Warn("plot refresh failed, publishing last snapshot",
			"task", task.Type,
			"error", err,
		)
	}

	snap, err := w.snapshot()
	if err != nil {
		return err
	}
	w.publish(task.Type, snap, metrics.KindPlot)
	return nil
}

// handleSpecialRequest runs a ';'-separated batch of accessors and publishes
// their results keyed by name. The first failure aborts the whole batch.
func (w *Worker) handleSpecialRequest(ctx context.Context, task protocol.Task) error {
	results := make(map[string]any)

	for _, req := range strings.Split(strings.Join(task.Args, " "), ";") {
		fields := strings.Fields(req)
		if len(fields) == 0 {
			continue
		}
		name, args := fields[0], fields[1:]

		if !w.hasCapability(name) {
			return fmt.Errorf("%s: %w: %s", task.Type, device.ErrNotFound, name)
		}
		res, err := w.invoke(ctx, name, args)
		if err != nil {
			return fmt.Errorf("%s: %w", task.Type, err)
		}
		results[name] = res
	}

	w.publish(task.Type, results, metrics.KindSpecial)
	return nil
}

func (w *Worker) hasCapability(name string) bool {
	_, ok := w.caps[name]
	return ok
}

// invoke calls the adapter, converting a panic into an error.
func (w *Worker) invoke(ctx context.Context, name string, args []string) (res any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s %v: %v", ErrCapabilityPanic, name, args, r)
		}
	}()

	res, err = w.adapter.Invoke(ctx, name, args)
	if err != nil {
		return nil, fmt.Errorf("%s %v: %w", name, args, err)
	}
	return res, nil
}

func (w *Worker) refresh(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: refresh: %v", ErrCapabilityPanic, r)
		}
	}()
	return w.adapter.Refresh(ctx)
}

func (w *Worker) snapshot() (snap device.State, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: snapshot: %v", ErrCapabilityPanic, r)
		}
	}()
	return w.adapter.Snapshot(), nil
}

// publish renders a status message and hands it to every publisher.
func (w *Worker) publish(header string, payload any, kind string) {
	msg, err := protocol.NewStatus(header, w.clock.Now(), payload)
	if err != nil {
		w.getLogger().Error("rendering status message failed",
			"header", header,
			"error", err,
		)
		return
	}

	w.pubMu.RLock()
	for _, p := range w.publishers {
		p.Publish(msg)
	}
	w.pubMu.RUnlock()

	w.messagesPublished.Add(1)
	metrics.StatusMessagesTotal.WithLabelValues(kind).Inc()
}

// ParseInterval parses the seconds argument of UPDATEINTERVAL.
//
// Returns:
//   - time.Duration: The interval, at least MinInterval
//   - error: ErrInvalidInterval when missing, unparsable, non-finite or too short
func ParseInterval(args []string) (time.Duration, error) {
	if len(args) == 0 || args[0] == "" {
		return 0, fmt.Errorf("%w: missing value", ErrInvalidInterval)
	}
	secs, err := strconv.ParseFloat(args[0], 64)
	if err != nil || math.IsNaN(secs) || math.IsInf(secs, 0) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidInterval, args[0])
	}
	d := time.Duration(secs * float64(time.Second))
	if d < MinInterval {
		return 0, fmt.Errorf("%w: %q is below %v", ErrInvalidInterval, args[0], MinInterval)
	}
	return d, nil
}
