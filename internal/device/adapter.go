package device

import (
	"context"
	"maps"

	"github.com/nerrad567/gray-logic-devserver/internal/infrastructure/config"
)

// State is a device snapshot. It renders as a JSON object with sorted keys.
type State map[string]any

// Clone returns a shallow copy of s.
func (s State) Clone() State {
	if s == nil {
		return State{}
	}
	return maps.Clone(s)
}

// Adapter is the capability object the worker drives.
//
// Thread Safety:
//   - Methods are called from the worker goroutine only; implementations
//     do not need to be safe for concurrent use.
type Adapter interface {
	// Name identifies the adapter in logs and metrics.
	Name() string

	// Capabilities lists the names Invoke accepts, sorted.
	Capabilities() []string

	// Invoke runs the named capability. Unknown names return ErrNotFound.
	Invoke(ctx context.Context, name string, args []string) (any, error)

	// Refresh re-reads the device so Snapshot reflects it.
	Refresh(ctx context.Context) error

	// Snapshot returns the current state. The caller may keep the result.
	Snapshot() State

	// Close releases the device.
	Close() error
}

// Options are passed to a Factory.
type Options struct {
	// Settings are adapter-specific key/value options from the config file.
	Settings map[string]string

	// Database is the SQLite configuration for adapters that persist values.
	Database config.DatabaseConfig

	// Logger receives adapter diagnostics. Nil means discard.
	Logger Logger
}

// Setting returns Settings[key], or def when it is absent or empty.
func (o Options) Setting(key, def string) string {
	if v := o.Settings[key]; v != "" {
		return v
	}
	return def
}

// Logger defines the logging interface adapters may use.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// LoggerOrNoop returns o.Logger, or a logger that discards everything.
func (o Options) LoggerOrNoop() Logger {
	if o.Logger == nil {
		return noopLogger{}
	}
	return o.Logger
}
