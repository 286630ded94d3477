package device

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/nerrad567/gray-logic-devserver/internal/protocol"
)

// Capability is one named device operation. The result, if not nil, is
// what a SPECIALREQUEST reports for it.
type Capability func(ctx context.Context, args []string) (any, error)

// Table is the allow-list of capabilities an adapter exposes.
//
// It is filled once while the adapter is constructed and read-only after
// that, so lookups need no locking.
type Table struct {
	caps map[string]Capability
}

// NewTable returns an empty capability table.
func NewTable() *Table {
	return &Table{caps: make(map[string]Capability)}
}

// Register adds a capability.
//
// Returns:
//   - ErrInvalidName: name is empty or contains whitespace or ';'
//   - ErrReservedName: the worker handles name itself
//   - ErrDuplicateCapability: name is already registered
func (t *Table) Register(name string, fn Capability) error {
	if name == "" || strings.ContainsAny(name, " \t\r\n;") || fn == nil {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if protocol.IsReserved(name) {
		return fmt.Errorf("%w: %q", ErrReservedName, name)
	}
	if _, exists := t.caps[name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateCapability, name)
	}
	t.caps[name] = fn
	return nil
}

// MustRegister is Register for adapter constructors with fixed names.
// It panics on error.
func (t *Table) MustRegister(name string, fn Capability) {
	if err := t.Register(name, fn); err != nil {
		panic(err)
	}
}

// Has reports whether name is registered.
func (t *Table) Has(name string) bool {
	_, ok := t.caps[name]
	return ok
}

// Names returns the registered names in sorted order.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.caps))
	for name := range t.caps {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Invoke runs the named capability.
func (t *Table) Invoke(ctx context.Context, name string, args []string) (any, error) {
	fn, ok := t.caps[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return fn(ctx, args)
}
