// Package sqlite is the SQLite storage backend, built on the pure-Go
// modernc.org/sqlite driver.
//
// SQLite has no native timestamp type, so timestamps are stored as TEXT in
// the same "YYYY-MM-DD HH:MM:SS" form the CSV output uses. That form sorts
// lexically and is understood by SQLite's date functions.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"trafficstops/internal/storage"
	"trafficstops/internal/table"
	"trafficstops/internal/transformer/builtin"
)

// Kind is the registry name of this backend.
const Kind = "sqlite"

// maxParams stays under SQLite's default host parameter limit.
const maxParams = 32000

func init() {
	storage.Register(Kind, NewRepo)
}

// Repo writes the cleaned table inside a single transaction.
type Repo struct {
	db *sql.DB
	tx *sql.Tx
}

// NewRepo opens and pings the database at cfg.DSN.
func NewRepo(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repo{db: db}, nil
}

func (r *Repo) begin(ctx context.Context) (*sql.Tx, error) {
	if r.tx != nil {
		return r.tx, nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite: begin: %w", err)
	}
	r.tx = tx
	return tx, nil
}

// EnsureTable creates the table if it does not exist.
func (r *Repo) EnsureTable(ctx context.Context, spec storage.TableSpec) error {
	ddl, err := buildCreateTableSQL(spec)
	if err != nil {
		return err
	}
	tx, err := r.begin(ctx)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create table %s: %w", spec.Name, err)
	}
	return nil
}

// InsertRows inserts rows with multi-row INSERT statements, chunked to stay
// under the parameter limit.
func (r *Repo) InsertRows(ctx context.Context, tbl string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	tx, err := r.begin(ctx)
	if err != nil {
		return 0, err
	}
	per := maxParams / len(columns)
	if per < 1 {
		per = 1
	}
	var total int64
	for start := 0; start < len(rows); start += per {
		end := min(start+per, len(rows))
		q, args := buildInsertSQL(tbl, columns, rows[start:end])
		res, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			return total, fmt.Errorf("insert into %s: %w", tbl, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

// Commit commits the pending transaction, if any.
func (r *Repo) Commit(ctx context.Context) error {
	if r.tx == nil {
		return nil
	}
	err := r.tx.Commit()
	r.tx = nil
	if err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

// Close rolls back uncommitted writes and closes the database.
func (r *Repo) Close() {
	if r.tx != nil {
		_ = r.tx.Rollback()
		r.tx = nil
	}
	_ = r.db.Close()
}

func sqlIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

func tableIdent(name string) string {
	schema, tbl := storage.SplitQualifiedName(name)
	if schema == "" {
		return sqlIdent(tbl)
	}
	return sqlIdent(schema) + "." + sqlIdent(tbl)
}

func columnType(k table.Kind) string {
	switch k {
	case table.KindInteger:
		return "INTEGER"
	default:
		return "TEXT"
	}
}

func buildCreateTableSQL(t storage.TableSpec) (string, error) {
	if strings.TrimSpace(t.Name) == "" {
		return "", fmt.Errorf("table name is empty")
	}
	if len(t.Columns) == 0 {
		return "", fmt.Errorf("table %s has no columns", t.Name)
	}
	parts := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		parts = append(parts, fmt.Sprintf("%s %s", sqlIdent(c.Name), columnType(c.Kind)))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n);", tableIdent(t.Name), strings.Join(parts, ",\n  ")), nil
}

// buildInsertSQL returns one INSERT for rows. time.Time values are bound as
// text in builtin.TimestampLayout.
func buildInsertSQL(tbl string, columns []string, rows [][]any) (string, []any) {
	colList := make([]string, len(columns))
	for i, c := range columns {
		colList[i] = sqlIdent(c)
	}
	placeholders := "(" + strings.TrimRight(strings.Repeat("?,", len(columns)), ",") + ")"

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(tableIdent(tbl))
	b.WriteString(" (")
	b.WriteString(strings.Join(colList, ", "))
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(placeholders)
		for _, v := range row {
			if ts, ok := v.(time.Time); ok {
				v = ts.UTC().Format(builtin.TimestampLayout)
			}
			args = append(args, v)
		}
	}
	return b.String(), args
}

var _ storage.Repository = (*Repo)(nil)
