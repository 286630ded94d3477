package device

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// Factory constructs an adapter.
type Factory func(ctx context.Context, opts Options) (Adapter, error)

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]Factory)
)

// Register makes an adapter available to Open under name.
// It panics if name is empty, already registered or factory is nil,
// which only happens through a programming error in an init function.
func Register(name string, factory Factory) {
	key := NormalizeName(name)
	if key == "" || factory == nil {
		panic(fmt.Sprintf("device: invalid registration %q", name))
	}

	factoriesMu.Lock()
	defer factoriesMu.Unlock()

	if _, dup := factories[key]; dup {
		panic(fmt.Sprintf("device: Register called twice for %q", name))
	}
	factories[key] = factory
}

// Open constructs the adapter registered for workerName.
//
// Parameters:
//   - ctx: Context for adapter setup (device connection, database open)
//   - workerName: e.g. "SimulatedWorker" or "simulated"
//   - opts: Adapter options
//
// Returns:
//   - Adapter: Ready adapter
//   - error: ErrUnknownAdapter, or the factory's error
func Open(ctx context.Context, workerName string, opts Options) (Adapter, error) {
	key := NormalizeName(workerName)

	factoriesMu.RLock()
	factory, ok := factories[key]
	factoriesMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %s)", ErrUnknownAdapter, workerName, strings.Join(Names(), ", "))
	}

	adapter, err := factory(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("opening %s adapter: %w", key, err)
	}
	return adapter, nil
}

// Names returns the registered adapter names, sorted.
func Names() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// NormalizeName lowercases name and removes a trailing "Worker".
func NormalizeName(name string) string {
	name = strings.TrimSpace(name)
	if base, ok := strings.CutSuffix(name, "Worker"); ok && base != "" {
		name = base
	}
	return strings.ToLower(name)
}
