// Package values provides a parameter-store adapter backed by SQLite.
//
// It models instruments that expose a tree of named settings grouped by
// category. Values persist across restarts; only the current value of each
// item is stored.
//
// Capabilities:
//
//	UPDATE                           reload every value from the database
//	LOAD <category> <item> <value>   store a value (value may contain spaces)
//	GET <category> <item>            return one value
//	CATEGORIES                       list categories
//	CLEAR <category>                 delete a category
//
// Settings: store (row namespace, default "values").
package values

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-devserver/internal/device"
	"github.com/nerrad567/gray-logic-devserver/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-devserver/migrations"
)

// Name is the adapter's registry name ("Values" / "ValuesWorker").
const Name = "values"

func init() {
	device.Register(Name, Open)
}

// Store is the SQLite-backed values adapter.
type Store struct {
	db    *database.DB
	store string
	cache map[string]map[string]string
	table *device.Table
	log   device.Logger
}

// Open opens the database named in opts.Database, applies migrations and
// loads the current values.
func Open(ctx context.Context, opts device.Options) (device.Adapter, error) {
	db, err := database.Open(ctx, opts.Database)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("migrating values database: %w", err)
	}

	s := New(db, opts.Setting("store", Name), opts.LoggerOrNoop())
	if err := s.Refresh(ctx); err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, err
	}
	return s, nil
}

// New wraps an already migrated database.
func New(db *database.DB, store string, log device.Logger) *Store {
	s := &Store{
		db:    db,
		store: store,
		cache: make(map[string]map[string]string),
		table: device.NewTable(),
		log:   log,
	}
	s.table.MustRegister("UPDATE", s.update)
	s.table.MustRegister("LOAD", s.load)
	s.table.MustRegister("GET", s.get)
	s.table.MustRegister("CATEGORIES", s.categories)
	s.table.MustRegister("CLEAR", s.clear)
	return s
}

// Name implements device.Adapter.
func (s *Store) Name() string { return Name }

// Capabilities implements device.Adapter.
func (s *Store) Capabilities() []string { return s.table.Names() }

// Invoke implements device.Adapter.
func (s *Store) Invoke(ctx context.Context, name string, args []string) (any, error) {
	return s.table.Invoke(ctx, name, args)
}

// Refresh reloads the cache from the database.
func (s *Store) Refresh(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx,
		"SELECT category, item, value FROM device_values WHERE worker = ? ORDER BY category, item",
		s.store)
	if err != nil {
		return &device.AdapterError{Op: "UPDATE", Err: err}
	}
	defer rows.Close()

	fresh := make(map[string]map[string]string)
	for rows.Next() {
		var category, item, value string
		if err := rows.Scan(&category, &item, &value); err != nil {
			return &device.AdapterError{Op: "UPDATE", Err: err}
		}
		if fresh[category] == nil {
			fresh[category] = make(map[string]string)
		}
		fresh[category][item] = value
	}
	if err := rows.Err(); err != nil {
		return &device.AdapterError{Op: "UPDATE", Err: err}
	}

	s.cache = fresh
	return nil
}

// Snapshot implements device.Adapter.
func (s *Store) Snapshot() device.State {
	state := make(device.State, len(s.cache))
	for category, items := range s.cache {
		copied := make(map[string]string, len(items))
		for k, v := range items {
			copied[k] = v
		}
		state[category] = copied
	}
	return state
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) update(ctx context.Context, _ []string) (any, error) {
	return nil, s.Refresh(ctx)
}

func (s *Store) load(ctx context.Context, args []string) (any, error) {
	if len(args) < 3 {
		return nil, device.InvalidArgs("LOAD wants <category> <item> <value>, got %d args", len(args))
	}
	category, item, value := args[0], args[1], strings.Join(args[2:], " ")
	if category == "" || item == "" {
		return nil, device.InvalidArgs("LOAD category and item must not be empty")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO device_values (worker, category, item, value, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (worker, category, item)
		DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		s.store, category, item, value, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, &device.AdapterError{Op: "LOAD", Err: err}
	}

	if s.cache[category] == nil {
		s.cache[category] = make(map[string]string)
	}
	s.cache[category][item] = value
	s.log.Debug("value stored", "category", category, "item", item)
	return nil, nil
}

func (s *Store) get(ctx context.Context, args []string) (any, error) {
	if len(args) != 2 {
		return nil, device.InvalidArgs("GET wants <category> <item>, got %d args", len(args))
	}

	var value string
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM device_values WHERE worker = ? AND category = ? AND item = ?",
		s.store, args[0], args[1]).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &device.AdapterError{Op: "GET", Err: fmt.Errorf("%s/%s not set", args[0], args[1])}
	}
	if err != nil {
		return nil, &device.AdapterError{Op: "GET", Err: err}
	}
	return value, nil
}

func (s *Store) categories(context.Context, []string) (any, error) {
	out := make([]string, 0, len(s.cache))
	for category := range s.cache {
		out = append(out, category)
	}
	slices.Sort(out)
	return out, nil
}

func (s *Store) clear(ctx context.Context, args []string) (any, error) {
	if len(args) != 1 {
		return nil, device.InvalidArgs("CLEAR wants <category>, got %d args", len(args))
	}
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM device_values WHERE worker = ? AND category = ?", s.store, args[0])
	if err != nil {
		return nil, &device.AdapterError{Op: "CLEAR", Err: err}
	}
	delete(s.cache, args[0])
	return nil, nil
}
