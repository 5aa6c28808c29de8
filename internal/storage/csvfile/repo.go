// Package csvfile is the CSV file storage backend. It writes the cleaned
// table to a temp file next to the destination and renames it into place on
// Commit, so readers never observe a partial file.
package csvfile

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"trafficstops/internal/storage"
	"trafficstops/internal/transformer/builtin"
)

// Kind is the registry name of this backend.
const Kind = "csv"

// ErrNoTable is returned when rows are inserted before EnsureTable.
var ErrNoTable = errors.New("csvfile: EnsureTable not called")

func init() {
	storage.Register(Kind, func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		return Open(cfg.DSN)
	})
}

// Repo writes one CSV file. It is not safe for concurrent use.
type Repo struct {
	path    string
	tmp     *os.File
	w       *csv.Writer
	columns []string
	record  []string
	done    bool
}

// Open prepares a Repo that will write path. Parent directories are created
// as needed.
func Open(path string) (*Repo, error) {
	if path == "" {
		return nil, fmt.Errorf("csvfile: empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("csvfile: create output dir: %w", err)
	}
	return &Repo{path: path}, nil
}

// Path returns the destination file path.
func (r *Repo) Path() string { return r.path }

// EnsureTable starts the temp file and writes the header row from spec.
func (r *Repo) EnsureTable(ctx context.Context, spec storage.TableSpec) error {
	if r.tmp != nil {
		return fmt.Errorf("csvfile: table already started")
	}
	f, err := os.CreateTemp(filepath.Dir(r.path), "."+filepath.Base(r.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("csvfile: create temp: %w", err)
	}
	r.tmp = f
	r.w = csv.NewWriter(f)
	r.columns = spec.ColumnNames()
	r.record = make([]string, len(r.columns))
	if err := r.w.Write(r.columns); err != nil {
		return fmt.Errorf("csvfile: write header: %w", err)
	}
	return nil
}

// InsertRows appends rows. Values are rendered with builtin.FormatValue;
// nil becomes an empty field.
func (r *Repo) InsertRows(ctx context.Context, _ string, columns []string, rows [][]any) (int64, error) {
	if r.w == nil {
		return 0, ErrNoTable
	}
	if len(columns) != len(r.columns) {
		return 0, fmt.Errorf("csvfile: %d columns, header has %d", len(columns), len(r.columns))
	}
	var n int64
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		for i := range r.record {
			r.record[i] = builtin.FormatValue(row[i])
		}
		if err := r.w.Write(r.record); err != nil {
			return n, fmt.Errorf("csvfile: write row: %w", err)
		}
		n++
	}
	return n, nil
}

// Commit flushes, syncs and renames the temp file over the destination.
func (r *Repo) Commit(ctx context.Context) error {
	if r.tmp == nil {
		return ErrNoTable
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	r.w.Flush()
	if err := r.w.Error(); err != nil {
		return fmt.Errorf("csvfile: flush: %w", err)
	}
	if err := r.tmp.Sync(); err != nil {
		return fmt.Errorf("csvfile: sync: %w", err)
	}
	if err := r.tmp.Close(); err != nil {
		return fmt.Errorf("csvfile: close temp: %w", err)
	}
	if err := os.Rename(r.tmp.Name(), r.path); err != nil {
		return fmt.Errorf("csvfile: rename: %w", err)
	}
	r.done = true
	return nil
}

// Close removes the temp file unless Commit succeeded.
func (r *Repo) Close() {
	if r.tmp == nil || r.done {
		return
	}
	_ = r.tmp.Close()
	_ = os.Remove(r.tmp.Name())
	r.done = true
}

var _ storage.Repository = (*Repo)(nil)
