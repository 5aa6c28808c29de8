// Package postgres is the PostgreSQL storage backend. Rows are loaded with
// the COPY protocol inside one transaction.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"trafficstops/internal/storage"
	"trafficstops/internal/table"
)

// Kind is the registry name of this backend.
const Kind = "postgres"

func init() {
	storage.Register(Kind, NewRepo)
}

// Repo implements storage.Repository for Postgres.
type Repo struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

// NewRepo creates a pool for cfg.DSN and verifies connectivity.
func NewRepo(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return &Repo{pool: pool}, nil
}

func (r *Repo) begin(ctx context.Context) (pgx.Tx, error) {
	if r.tx != nil {
		return r.tx, nil
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres: begin: %w", err)
	}
	r.tx = tx
	return tx, nil
}

// EnsureTable creates the schema (for qualified names) and the table.
func (r *Repo) EnsureTable(ctx context.Context, spec storage.TableSpec) error {
	schemaSQL, tableSQL, err := buildCreateSQL(spec)
	if err != nil {
		return err
	}
	tx, err := r.begin(ctx)
	if err != nil {
		return err
	}
	if schemaSQL != "" {
		if _, err := tx.Exec(ctx, schemaSQL); err != nil {
			return fmt.Errorf("create schema for %s: %w", spec.Name, err)
		}
	}
	if _, err := tx.Exec(ctx, tableSQL); err != nil {
		return fmt.Errorf("create table %s: %w", spec.Name, err)
	}
	return nil
}

// InsertRows streams rows with COPY FROM.
func (r *Repo) InsertRows(ctx context.Context, tbl string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	tx, err := r.begin(ctx)
	if err != nil {
		return 0, err
	}
	n, err := tx.CopyFrom(ctx, identifier(tbl), columns, pgx.CopyFromRows(rows))
	if err != nil {
		return n, fmt.Errorf("copy into %s: %w", tbl, err)
	}
	return n, nil
}

// Commit commits the pending transaction, if any.
func (r *Repo) Commit(ctx context.Context) error {
	if r.tx == nil {
		return nil
	}
	err := r.tx.Commit(ctx)
	r.tx = nil
	if err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

// Close rolls back uncommitted writes and closes the pool.
func (r *Repo) Close() {
	if r.tx != nil {
		_ = r.tx.Rollback(context.Background())
		r.tx = nil
	}
	r.pool.Close()
}

func identifier(name string) pgx.Identifier {
	schema, tbl := storage.SplitQualifiedName(name)
	if schema == "" {
		return pgx.Identifier{tbl}
	}
	return pgx.Identifier{schema, tbl}
}

func columnType(k table.Kind) string {
	switch k {
	case table.KindInteger:
		return "BIGINT"
	case table.KindTimestamp:
		return "TIMESTAMP"
	default:
		return "TEXT"
	}
}

// buildCreateSQL returns the optional CREATE SCHEMA and the CREATE TABLE
// statement for t.
func buildCreateSQL(t storage.TableSpec) (schemaSQL, tableSQL string, err error) {
	if strings.TrimSpace(t.Name) == "" {
		return "", "", fmt.Errorf("table name is empty")
	}
	if len(t.Columns) == 0 {
		return "", "", fmt.Errorf("table %s has no columns", t.Name)
	}
	id := identifier(t.Name)
	if len(id) == 2 {
		schemaSQL = fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s;`, pgx.Identifier{id[0]}.Sanitize())
	}
	cols := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = pgx.Identifier{c.Name}.Sanitize() + " " + columnType(c.Kind)
	}
	tableSQL = fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (%s);`, id.Sanitize(), strings.Join(cols, ", "))
	return schemaSQL, tableSQL, nil
}

var _ storage.Repository = (*Repo)(nil)
