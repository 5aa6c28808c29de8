// Package storage defines the sink abstraction for the cleaned stop table
// and a registry of backends. Backends register themselves from init(); the
// storage/all package imports every built-in backend.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
)

// ErrUnknownKind is returned by New for unregistered backend kinds.
var ErrUnknownKind = errors.New("unknown storage kind")

// Config selects and configures a backend.
type Config struct {
	Kind string
	// DSN is backend specific: a file path for csv and sqlite, a connection
	// string for postgres and mssql. It is expanded with os.ExpandEnv.
	DSN string
	// Table is the destination table for SQL backends. Empty means
	// DefaultTable.
	Table string
}

// DefaultTable is the SQL table name used when Config.Table is empty.
const DefaultTable = "cleaned_stops"

// Repository receives the cleaned table.
//
// Writes are staged until Commit: a SQL backend runs them in one
// transaction and the CSV backend writes a temp file that Commit renames
// into place. Close releases resources and discards anything uncommitted;
// it is safe to call after Commit.
//
// InsertRows must not retain rows after it returns; callers reuse the
// backing slices between batches.
type Repository interface {
	EnsureTable(ctx context.Context, spec TableSpec) error
	InsertRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error)
	Commit(ctx context.Context) error
	Close()
}

// Factory constructs a Repository for cfg.
type Factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register makes a backend available under kind. It panics on an empty
// kind, a nil factory, or a duplicate registration.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}
	factories[kind] = f
}

// Kinds lists registered backend kinds in sorted order.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// New constructs a Repository with the backend registered for cfg.Kind.
func New(ctx context.Context, cfg Config) (Repository, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing kind")
	}
	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()
	if f == nil {
		return nil, fmt.Errorf("storage kind %q: %w", cfg.Kind, ErrUnknownKind)
	}

	cfg.DSN = os.ExpandEnv(cfg.DSN)
	if cfg.Table == "" {
		cfg.Table = DefaultTable
	}
	return f(ctx, cfg)
}
