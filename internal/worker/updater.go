package worker

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/nerrad567/gray-logic-devserver/internal/metrics"
)

// Updater submits an UPDATE task every interval.
//
// Intervals longer than a second are waited out one second at a time so
// that a shortened interval takes effect within a second. Interval changes
// are applied at the next wake; when several arrive in between, the most
// recent wins.
type Updater struct {
	clock  clockwork.Clock
	submit func() error

	mu         sync.Mutex
	interval   time.Duration
	pending    time.Duration
	hasPending bool

	done      chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// NewUpdater creates an updater.
//
// Parameters:
//   - interval: Initial interval (must be positive)
//   - clock: Time source; tests pass a fake clock
//   - submit: Called once per interval; ErrStopped ends the loop
//
// Returns:
//   - *Updater: Ready to start
func NewUpdater(interval time.Duration, clock clockwork.Clock, submit func() error) *Updater {
	if interval <= 0 {
		interval = DefaultInterval
	}
	metrics.UpdateIntervalSeconds.Set(interval.Seconds())

	return &Updater{
		clock:    clock,
		submit:   submit,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start launches the loop. It does nothing after Kill.
func (u *Updater) Start() {
	select {
	case <-u.done:
		return
	default:
	}

	u.startOnce.Do(func() {
		u.wg.Add(1)
		go u.run()
	})
}

// Kill stops the loop, waking it if it is waiting.
func (u *Updater) Kill() {
	u.stopOnce.Do(func() {
		close(u.done)
	})
}

// Wait blocks until the loop has exited.
func (u *Updater) Wait() {
	u.wg.Wait()
}

// ChangeInterval requests a new interval, applied at the next wake.
func (u *Updater) ChangeInterval(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidInterval, d)
	}

	u.mu.Lock()
	u.pending = d
	u.hasPending = true
	u.mu.Unlock()

	u.getLogger().Debug("update interval change requested", "interval", d)
	return nil
}

// Interval returns the interval currently in effect.
func (u *Updater) Interval() time.Duration {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.interval
}

// SetLogger sets the logger for the updater.
func (u *Updater) SetLogger(logger Logger) {
	u.loggerMu.Lock()
	u.logger = logger
	u.loggerMu.Unlock()
}

func (u *Updater) getLogger() Logger {
	u.loggerMu.RLock()
	defer u.loggerMu.RUnlock()
	if u.logger == nil {
		return noopLogger{}
	}
	return u.logger
}

func (u *Updater) run() {
	defer u.wg.Done()

	for {
		if !u.wait() {
			return
		}

		if err := u.submit(); err != nil {
			if errors.Is(err, ErrStopped) {
				return
			}
			u.getLogger().Warn("periodic update not submitted", "error", err)
			continue
		}
		metrics.UpdaterTicksTotal.Inc()
	}
}

// wait sleeps for one interval. It returns false when killed.
func (u *Updater) wait() bool {
	current := u.applyPending()

	if current <= time.Second {
		if !u.sleep(current) {
			return false
		}
		u.applyPending()
		return true
	}

	// Whole seconds only; stop early once the (possibly changed) interval
	// is shorter than the time already waited plus the next tick.
	for i := 1; ; i++ {
		if !u.sleep(time.Second) {
			return false
		}
		if u.applyPending() < time.Duration(i+1)*time.Second {
			return true
		}
	}
}

// applyPending installs a pending interval and returns the one in effect.
func (u *Updater) applyPending() time.Duration {
	u.mu.Lock()
	changed := u.hasPending
	if changed {
		u.interval = u.pending
		u.hasPending = false
	}
	current := u.interval
	u.mu.Unlock()

	if changed {
		metrics.UpdateIntervalSeconds.Set(current.Seconds())
		u.getLogger().Info("update interval changed", "interval", current)
	}
	return current
}

func (u *Updater) sleep(d time.Duration) bool {
	t := u.clock.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.Chan():
		return true
	case <-u.done:
		return false
	}
}
